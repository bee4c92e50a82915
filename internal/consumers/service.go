package consumers

import (
	"context"
	"errors"
	"log/slog"

	"tixgate/internal/config"
	"tixgate/internal/messaging"
	"tixgate/internal/models"
	"tixgate/internal/search"

	"github.com/nats-io/stan.go"
)

const queueGroup = "audit-indexers"

// AuditSubjects are the subjects indexed by HandleAuditEvent.
var AuditSubjects = []string{
	models.EventTicketMinted,
	models.EventTicketRejected,
	models.EventTicketCheckedIn,
	models.EventTicketCheckInConflict,
	models.EventTicketCheckInOverride,
	models.EventBookingExpired,
}

type ConsumerService struct {
	nats     *messaging.NATSClient
	es       *search.ElasticsearchClient
	handlers *Handlers
	subs     []stan.Subscription
}

// NewConsumerService connects to NATS and Elasticsearch. Indexing audit
// events is its only job, so a disabled index is a configuration error.
func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	if !cfg.Elasticsearch.Enabled {
		return nil, errors.New("consumers need ELASTICSEARCH_ENABLED=true")
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
	if err != nil {
		natsClient.Close()
		return nil, err
	}

	return &ConsumerService{
		nats:     natsClient,
		es:       es,
		handlers: NewHandlers(es),
	}, nil
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	for _, subject := range AuditSubjects {
		sub, err := cs.nats.SubscribeQueue(subject, queueGroup, cs.handlers.HandleAuditEvent)
		if err != nil {
			return err
		}
		cs.subs = append(cs.subs, sub)
	}

	sub, err := cs.nats.SubscribeQueue(models.EventBookingConfirmed, queueGroup, cs.handlers.HandleBookingConfirmed)
	if err != nil {
		return err
	}
	cs.subs = append(cs.subs, sub)

	slog.Info("All consumers started successfully", "subscriptions", len(cs.subs))
	return nil
}

// Shutdown closes subscriptions without unsubscribing, so durable
// positions survive a restart.
func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
			return err
		}
	}

	return ctx.Err()
}
