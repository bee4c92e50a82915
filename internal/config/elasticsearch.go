package config

import (
	"os"
	"time"
)

// ElasticsearchConfig holds the connection settings for the audit index.
// The API runs without it; the consumers service does not.
type ElasticsearchConfig struct {
	Enabled    bool
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	Timeout    time.Duration
	Shards     int
	Replicas   int
}

// LoadElasticsearchConfig reads Elasticsearch settings from the environment
func LoadElasticsearchConfig() ElasticsearchConfig {
	return ElasticsearchConfig{
		Enabled:    getEnv("ELASTICSEARCH_ENABLED", "true") == "true",
		URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
		Index:      getEnv("ELASTICSEARCH_INDEX", "ticket-audit"),
		Username:   os.Getenv("ELASTICSEARCH_USERNAME"),
		Password:   os.Getenv("ELASTICSEARCH_PASSWORD"),
		MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
		Timeout:    getEnvDuration("ELASTICSEARCH_TIMEOUT", 30*time.Second),
		Shards:     getEnvInt("ELASTICSEARCH_SHARDS", 1),
		Replicas:   getEnvInt("ELASTICSEARCH_REPLICAS", 0),
	}
}
