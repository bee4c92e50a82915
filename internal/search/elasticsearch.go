// Package search keeps the ticket audit trail in Elasticsearch so that
// rejected scans and check-in conflicts can be searched per booking.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tixgate/internal/config"
	"tixgate/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const defaultSearchSize = 50

type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

// AuditQuery filters the audit trail. Empty fields match everything.
type AuditQuery struct {
	BookingID string
	Type      string
	ActorID   string
	Size      int
}

func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
		Transport: &http.Transport{
			ResponseHeaderTimeout: cfg.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	if err := client.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	shards := c.config.Shards
	if shards < 1 {
		shards = 1
	}

	keyword := map[string]any{"type": "keyword"}
	mapping := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   shards,
			"number_of_replicas": c.config.Replicas,
		},
		"mappings": map[string]any{
			"dynamic": "strict",
			"properties": map[string]any{
				"id":         keyword,
				"type":       keyword,
				"booking_id": keyword,
				"event_id":   keyword,
				"actor_id":   keyword,
				"actor_name": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"reason": keyword,
				"format": keyword,
				"timestamp": map[string]any{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(body),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// IndexAudit stores an audit event under its id, so redelivered messages
// overwrite instead of duplicating.
func (c *ElasticsearchClient) IndexAudit(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		return fmt.Errorf("audit event without id")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: event.ID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index audit event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

// SearchAudit returns matching audit events, newest first.
func (c *ElasticsearchClient) SearchAudit(ctx context.Context, q AuditQuery) ([]models.AuditEvent, error) {
	size := q.Size
	if size <= 0 {
		size = defaultSearchSize
	}

	body, err := json.Marshal(map[string]any{
		"query": buildAuditQuery(q),
		"sort":  []map[string]any{{"timestamp": map[string]any{"order": "desc"}}},
		"size":  size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source models.AuditEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	events := make([]models.AuditEvent, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		events[i] = hit.Source
	}

	return events, nil
}

func buildAuditQuery(q AuditQuery) map[string]any {
	var filters []map[string]any
	for field, value := range map[string]string{
		"booking_id": q.BookingID,
		"type":       q.Type,
		"actor_id":   q.ActorID,
	} {
		if value != "" {
			filters = append(filters, map[string]any{"term": map[string]any{field: value}})
		}
	}

	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}

	return map[string]any{
		"bool": map[string]any{"filter": filters},
	}
}

func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
