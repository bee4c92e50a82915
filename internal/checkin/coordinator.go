// Package checkin performs the one-way NOT_CHECKED_IN -> CHECKED_IN
// transition of a booking. The durable store's conditional write is the only
// arbiter of which concurrent scanner wins; nothing here takes a lock, so the
// guarantee holds across processes and devices.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"tixgate/internal/logger"
	"tixgate/internal/models"
)

// Outcome classifies a redemption attempt.
type Outcome string

const (
	OutcomeCheckedIn        Outcome = "CHECKED_IN"
	OutcomeAlreadyCheckedIn Outcome = "ALREADY_CHECKED_IN"
	OutcomeNotRedeemable    Outcome = "NOT_REDEEMABLE"
	OutcomeFailed           Outcome = "FAILED"
)

// Failure reasons for OutcomeFailed.
const (
	ReasonStoreUnavailable = "store_unavailable"
	ReasonStoreAnomaly     = "store_anomaly"
)

const maxBookingIDLength = 128

// Result is returned for every expected outcome. Booking is set on success.
type Result struct {
	Success bool
	Outcome Outcome
	Status  models.BookingStatus
	Reason  string
	Booking *models.Booking
}

// Config bounds the external calls made during a check-in.
type Config struct {
	WriteTimeout   time.Duration
	ConfirmTimeout time.Duration
	ConfirmWrites  bool
	MaxAttempts    int
	RetryBackoff   time.Duration
}

// DefaultConfig matches the values used by the API service.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   5 * time.Second,
		ConfirmTimeout: 2 * time.Second,
		ConfirmWrites:  true,
		MaxAttempts:    3,
		RetryBackoff:   100 * time.Millisecond,
	}
}

type Coordinator struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewCoordinator(store Store, cfg Config) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Coordinator{store: store, cfg: cfg, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// ValidateBookingID rejects ids that cannot name a booking.
func ValidateBookingID(id string) error {
	if id == "" || len(id) > maxBookingIDLength {
		return ErrInvalidBookingID
	}
	if strings.IndexFunc(id, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return ErrInvalidBookingID
	}
	return nil
}

// CheckIn redeems bookingID on behalf of a staff member.
//
// Expected outcomes (success, already checked in, not redeemable,
// operational failure) are returned as a Result. Errors are reserved for
// fatal conditions: an invalid id, a missing booking, or a context that was
// cancelled before the write was issued. Once the write is issued the call
// runs to completion regardless of ctx, because the write may have landed.
func (c *Coordinator) CheckIn(ctx context.Context, bookingID, staffID, staffName string) (Result, error) {
	if err := ValidateBookingID(bookingID); err != nil {
		return Result{}, err
	}
	if staffID == "" {
		return Result{}, errors.New("checkin: staff id is required")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	log := logger.WithContext(ctx).With("booking_id", bookingID, "staff_id", staffID)

	// Detached from the caller from here on.
	writeCtx := context.WithoutCancel(ctx)
	mark := models.CheckInMark{
		At:        c.now().UTC().Truncate(time.Microsecond),
		StaffID:   staffID,
		StaffName: staffName,
	}

	booking, err := c.write(writeCtx, log, bookingID, mark)

	var notRedeemable *NotRedeemableError
	switch {
	case err == nil:
	case errors.Is(err, ErrConditionFailed):
		log.Warn("Duplicate check-in attempt rejected", "security_event", "checkin_conflict")
		return Result{Outcome: OutcomeAlreadyCheckedIn, Status: models.BookingCheckedIn, Reason: "already_checked_in"}, nil
	case errors.As(err, &notRedeemable):
		log.Warn("Check-in attempted on non-redeemable booking", "status", notRedeemable.Status)
		return Result{Outcome: OutcomeNotRedeemable, Status: notRedeemable.Status}, nil
	case errors.Is(err, ErrBookingNotFound):
		return Result{}, err
	default:
		log.Error("Conditional check-in write failed", "error", err)
		return Result{Outcome: OutcomeFailed, Reason: ReasonStoreUnavailable}, nil
	}

	if c.cfg.ConfirmWrites {
		if anomaly := c.confirm(writeCtx, log, bookingID, mark); anomaly {
			return Result{Outcome: OutcomeFailed, Reason: ReasonStoreAnomaly}, nil
		}
	}

	log.Info("Ticket checked in", "staff_name", staffName)
	return Result{Success: true, Outcome: OutcomeCheckedIn, Status: models.BookingCheckedIn, Booking: booking}, nil
}

// write issues the conditional write, retrying operational failures. A
// condition failure after an ambiguous earlier attempt is reconciled by
// reading back the mark: if it is ours, our earlier attempt won.
func (c *Coordinator) write(ctx context.Context, log *slog.Logger, bookingID string, mark models.CheckInMark) (*models.Booking, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		booking, err := c.store.ConditionalCheckIn(attemptCtx, bookingID, mark)
		cancel()

		if err == nil {
			return booking, nil
		}

		if errors.Is(err, ErrConditionFailed) && lastErr != nil {
			b, readErr := c.readBack(ctx, bookingID)
			switch {
			case readErr != nil:
				// Unknown whether the earlier attempt won, so retry instead of reporting a duplicate.
				err = fmt.Errorf("checkin: cannot reconcile earlier attempt: %w", readErr)
			case carriesMark(b, mark):
				log.Info("Earlier check-in attempt had succeeded", "attempt", attempt)
				return b, nil
			}
		}

		if !isTransient(err) {
			return nil, err
		}

		lastErr = err
		if attempt < c.cfg.MaxAttempts {
			log.Warn("Check-in write failed, retrying",
				"attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "error", err)
			time.Sleep(time.Duration(attempt) * c.cfg.RetryBackoff)
		}
	}
	return nil, lastErr
}

// readBack reads the booking after an ambiguous write. A missing row is an
// error here: the write just reported that the row exists.
func (c *Coordinator) readBack(ctx context.Context, bookingID string) (*models.Booking, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	b, err := c.store.GetBooking(readCtx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("booking vanished after conditional write")
	}
	return b, nil
}

// confirm re-reads the booking after a successful write. It returns true
// only when the store contradicts the write it just acknowledged.
func (c *Coordinator) confirm(ctx context.Context, log *slog.Logger, bookingID string, mark models.CheckInMark) bool {
	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	b, err := c.store.GetBooking(readCtx, bookingID)
	if err != nil {
		// The write was acknowledged; a failed read proves nothing.
		log.Warn("Could not confirm check-in write", "error", err)
		return false
	}
	if b == nil || !carriesMark(b, mark) {
		log.Error("Check-in write did not stick", "security_event", "store_anomaly")
		return true
	}
	return false
}

func carriesMark(b *models.Booking, mark models.CheckInMark) bool {
	if !b.CheckedIn || b.CheckedInBy == nil || *b.CheckedInBy != mark.StaffID {
		return false
	}
	return b.CheckedInAt != nil && b.CheckedInAt.Equal(mark.At)
}

func isTransient(err error) bool {
	var notRedeemable *NotRedeemableError
	switch {
	case errors.Is(err, ErrConditionFailed),
		errors.Is(err, ErrBookingNotFound),
		errors.Is(err, ErrInvalidBookingID),
		errors.As(err, &notRedeemable):
		return false
	}
	return true
}
