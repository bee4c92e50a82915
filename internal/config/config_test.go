package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TICKET_SIGNING_KEY", "")
	t.Setenv("LEGACY_TICKETS_UNTIL", "")

	cfg := Load()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, 365*24*time.Hour, cfg.Tickets.MaxAge)
	assert.True(t, cfg.Tickets.LegacyUntil.IsZero())
	assert.Equal(t, 5*time.Second, cfg.CheckIn.WriteTimeout)
	assert.True(t, cfg.CheckIn.ConfirmWrites)
	assert.Equal(t, "ticket-audit", cfg.Elasticsearch.Index)
	assert.True(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, 1, cfg.Elasticsearch.Shards)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingSigningKey)
}

func TestLoad_TicketSettings(t *testing.T) {
	t.Setenv("TICKET_SIGNING_KEY", "primary")
	t.Setenv("TICKET_PREVIOUS_KEYS", " old-1, ,old-2 ")
	t.Setenv("TICKET_MAX_AGE_HOURS", "720")
	t.Setenv("LEGACY_TICKETS_UNTIL", "2027-01-01T00:00:00Z")
	t.Setenv("IDENTITY_TOKEN_SECRET", "idp")
	t.Setenv("CHECKIN_CONFIRM_WRITES", "false")
	t.Setenv("SCAN_RATE_WINDOW", "30s")
	t.Setenv("ELASTICSEARCH_ENABLED", "false")

	cfg := Load()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"old-1", "old-2"}, cfg.Tickets.PreviousKeys)
	assert.Equal(t, 30*24*time.Hour, cfg.Tickets.MaxAge)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Tickets.LegacyUntil)
	assert.False(t, cfg.CheckIn.ConfirmWrites)
	assert.Equal(t, 30*time.Second, cfg.Valkey.ScanWindow)
	assert.False(t, cfg.Elasticsearch.Enabled)
}

func TestValidate_MissingIdentitySecret(t *testing.T) {
	cfg := &Config{Tickets: TicketsConfig{SigningKey: "k"}}
	assert.ErrorIs(t, cfg.Validate(), ErrMissingIdentitySecret)
}

func TestGetEnvInt_Invalid(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}
