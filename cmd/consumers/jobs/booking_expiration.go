package jobs

import (
	"context"
	"log/slog"
	"time"

	"tixgate/internal/messaging"
	"tixgate/internal/models"

	"github.com/google/uuid"
)

const (
	BookingExpirationTimeout = 15 * time.Minute
	bookingExpirationPeriod  = 30 * time.Second
)

// PendingCanceller is implemented by repository.BookingRepository.
type PendingCanceller interface {
	CancelExpiredPending(ctx context.Context, cutoff time.Time) ([]string, error)
}

// BookingExpirationJob cancels bookings whose payment never completed, so
// that a ticket can never be minted for them.
type BookingExpirationJob struct {
	bookings  PendingCanceller
	publisher messaging.Publisher
	timeout   time.Duration
	now       func() time.Time
	done      chan struct{}
}

func NewBookingExpirationJob(bookings PendingCanceller, publisher messaging.Publisher) *BookingExpirationJob {
	return &BookingExpirationJob{
		bookings:  bookings,
		publisher: publisher,
		timeout:   BookingExpirationTimeout,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs the check immediately and then periodically until Stop or ctx ends.
func (j *BookingExpirationJob) Start(ctx context.Context) {
	slog.Info("Starting booking expiration job", "check_interval", bookingExpirationPeriod, "timeout", j.timeout)

	go func() {
		ticker := time.NewTicker(bookingExpirationPeriod)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-ctx.Done():
				return
			case <-j.done:
				slog.Info("Booking expiration job stopped")
				return
			}
		}
	}()
}

func (j *BookingExpirationJob) Stop() {
	close(j.done)
}

// RunOnce cancels expired pending bookings and reports how many it cancelled.
func (j *BookingExpirationJob) RunOnce(ctx context.Context) int {
	now := j.now()
	ids, err := j.bookings.CancelExpiredPending(ctx, now.Add(-j.timeout))
	if err != nil {
		slog.Error("Failed to cancel expired bookings", "error", err)
		return 0
	}
	if len(ids) == 0 {
		slog.Debug("No expired bookings found")
		return 0
	}

	for _, id := range ids {
		event := models.AuditEvent{
			ID:        uuid.New().String(),
			Type:      models.EventBookingExpired,
			BookingID: id,
			Reason:    "payment_timeout",
			Timestamp: now.UTC(),
		}
		if err := j.publisher.Publish(models.EventBookingExpired, event); err != nil {
			slog.Error("Failed to publish booking expired event", "booking_id", id, "error", err)
		}
	}

	slog.Info("Cancelled expired bookings", "count", len(ids))
	return len(ids)
}
