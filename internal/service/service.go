package service

import (
	"context"
	"time"

	"tixgate/internal/checkin"
	"tixgate/internal/external"
	"tixgate/internal/logger"
	"tixgate/internal/messaging"
	"tixgate/internal/models"
	"tixgate/internal/repository"
	"tixgate/internal/ticket"
	"tixgate/internal/validation"

	"github.com/google/uuid"
)

type Services struct {
	Tickets  *TicketService
	Bookings *BookingService
}

// TicketConfig is what the ticket service needs from configuration.
type TicketConfig struct {
	MaxAge  time.Duration
	Legacy  validation.LegacyPolicy
	QRSize  int
	CheckIn checkin.Config
}

func NewServices(repos *repository.Repositories, keyring *ticket.Keyring, cfg TicketConfig, publisher messaging.Publisher, payments external.PaymentClient) *Services {
	tickets := NewTicketService(repos.Bookings, keyring, cfg, publisher)
	bookings := NewBookingService(repos.Bookings, payments, tickets, publisher)

	return &Services{
		Tickets:  tickets,
		Bookings: bookings,
	}
}

// auditor publishes audit events. Publishing is best effort: a bus outage
// must never change the outcome of a scan or a check-in.
type auditor struct {
	publisher messaging.Publisher
	now       func() time.Time
}

func (a auditor) publish(ctx context.Context, event models.AuditEvent) {
	event.ID = uuid.New().String()
	event.Timestamp = a.now().UTC()

	if err := a.publisher.Publish(event.Type, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish audit event",
			"error", err,
			"event_type", event.Type,
			"booking_id", event.BookingID)
	}
}
