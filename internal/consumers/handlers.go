package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tixgate/internal/models"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

// AuditIndexer stores audit events. Implemented by search.ElasticsearchClient.
type AuditIndexer interface {
	IndexAudit(ctx context.Context, event *models.AuditEvent) error
}

// errPoison marks a message that can never be processed and must be acked
// to stop redelivery.
var errPoison = errors.New("unprocessable message")

type Handlers struct {
	indexer      AuditIndexer
	indexTimeout time.Duration
}

func NewHandlers(indexer AuditIndexer) *Handlers {
	return &Handlers{indexer: indexer, indexTimeout: 10 * time.Second}
}

// HandleAuditEvent indexes a ticket audit event. Messages that fail to
// index are left unacked and redelivered after the ack wait.
func (h *Handlers) HandleAuditEvent(m *stan.Msg) {
	h.handle(m, h.processAudit)
}

// HandleBookingConfirmed records confirmations in the same audit index.
func (h *Handlers) HandleBookingConfirmed(m *stan.Msg) {
	h.handle(m, h.processBookingConfirmed)
}

func (h *Handlers) handle(m *stan.Msg, process func(ctx context.Context, subject string, data []byte) error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.indexTimeout)
	defer cancel()

	err := process(ctx, m.Subject, m.Data)
	switch {
	case err == nil:
	case errors.Is(err, errPoison):
		slog.Error("Dropping unprocessable message", "subject", m.Subject, "sequence", m.Sequence, "error", err)
	default:
		slog.Error("Failed to process message, will be redelivered",
			"subject", m.Subject, "sequence", m.Sequence, "redelivered", m.Redelivered, "error", err)
		return
	}

	if err := m.Ack(); err != nil {
		slog.Error("Failed to ack message", "subject", m.Subject, "sequence", m.Sequence, "error", err)
	}
}

func (h *Handlers) processAudit(ctx context.Context, subject string, data []byte) error {
	var event models.AuditEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if event.ID == "" {
		return fmt.Errorf("%w: audit event without id", errPoison)
	}
	if event.Type == "" {
		event.Type = subject
	}

	slog.Debug("Indexing audit event", "id", event.ID, "type", event.Type, "booking_id", event.BookingID)
	return h.indexer.IndexAudit(ctx, &event)
}

func (h *Handlers) processBookingConfirmed(ctx context.Context, subject string, data []byte) error {
	var event models.BookingConfirmedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if event.BookingID == "" {
		return fmt.Errorf("%w: confirmation without booking id", errPoison)
	}

	// Derived ids keep redeliveries idempotent in the index.
	audit := &models.AuditEvent{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(subject+"/"+event.BookingID)).String(),
		Type:      subject,
		BookingID: event.BookingID,
		EventID:   event.EventID,
		ActorID:   event.UserID,
		Timestamp: event.Timestamp,
	}
	return h.indexer.IndexAudit(ctx, audit)
}
