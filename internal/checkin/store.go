package checkin

import (
	"context"
	"errors"
	"fmt"

	"tixgate/internal/models"
)

var (
	// ErrConditionFailed is returned by Store.ConditionalCheckIn when the
	// booking is already checked in. It is the signal that another scanner won.
	ErrConditionFailed = errors.New("checkin: booking is already checked in")
	// ErrBookingNotFound means no booking exists for the id.
	ErrBookingNotFound = errors.New("checkin: booking not found")
	// ErrInvalidBookingID rejects ids that can never name a booking.
	ErrInvalidBookingID = errors.New("checkin: invalid booking id")
)

// NotRedeemableError is returned when the precondition failed because the
// booking is in a status that can never be checked in (pending, cancelled, refunded).
type NotRedeemableError struct {
	Status models.BookingStatus
}

func (e *NotRedeemableError) Error() string {
	return fmt.Sprintf("checkin: booking in status %s cannot be checked in", e.Status)
}

// Store is the durable booking store. ConditionalCheckIn must be a single
// native conditional write: set the check-in fields and status=checked_in
// only if checked_in is absent or false and the status is redeemable.
type Store interface {
	// GetBooking returns nil, nil when the booking does not exist.
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// ConditionalCheckIn returns the updated booking, or ErrConditionFailed,
	// ErrBookingNotFound, *NotRedeemableError, or an operational error.
	ConditionalCheckIn(ctx context.Context, id string, mark models.CheckInMark) (*models.Booking, error)
}

// Redeemable reports whether a status may transition to checked in. A
// checked_in status without the checked_in flag comes from legacy imports.
func Redeemable(s models.BookingStatus) bool {
	return s == models.BookingConfirmed || s == models.BookingCheckedIn
}
