package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tixgate/internal/checkin"
	"tixgate/internal/database"
	apperrors "tixgate/internal/errors"
	"tixgate/internal/models"
)

type BookingRepository struct {
	db *database.DB
}

var _ checkin.Store = (*BookingRepository)(nil)

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// bookingColumns is selected from a bookings row aliased b, joined to its
// user u and event e.
const bookingColumns = `
		b.id, b.event_id, b.user_id, b.status, b.ticket_count, b.total_amount,
		b.payment_id, b.checked_in, b.checked_in_at, b.checked_in_by, b.checked_in_by_name,
		b.created_at, b.updated_at,
		COALESCE(u.full_name, ''), COALESCE(e.title, '')`

const bookingJoins = `
		LEFT JOIN users u ON u.id = b.user_id
		LEFT JOIN events e ON e.id = b.event_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	booking := &models.Booking{}
	var (
		status    string
		checkedIn sql.NullBool
	)

	err := row.Scan(
		&booking.ID,
		&booking.EventID,
		&booking.UserID,
		&status,
		&booking.TicketCount,
		&booking.TotalAmount,
		&booking.PaymentID,
		&checkedIn,
		&booking.CheckedInAt,
		&booking.CheckedInBy,
		&booking.CheckedInByName,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&booking.AttendeeName,
		&booking.EventTitle,
	)
	if err != nil {
		return nil, err
	}

	// A status outside the enum means the row was written by something
	// other than this service; refuse to reason about it.
	booking.Status, err = models.ParseBookingStatus(status)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", booking.ID, err)
	}
	booking.CheckedIn = checkedIn.Valid && checkedIn.Bool

	return booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (id, event_id, user_id, status, ticket_count, total_amount, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		booking.ID,
		booking.EventID,
		booking.UserID,
		booking.Status,
		booking.TicketCount,
		booking.TotalAmount,
		booking.PaymentID,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

// GetByID returns nil, nil when no booking exists. Connection-level
// failures are retried; the read has no side effects.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings b` + bookingJoins + `
		WHERE b.id = $1`

	rows, err := r.db.QueryWithRetry(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanBooking(rows)
}

// GetBooking satisfies checkin.Store.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *BookingRepository) GetByUserID(ctx context.Context, userID string) ([]models.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings b` + bookingJoins + `
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC`

	rows, err := r.db.QueryWithRetry(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}

// ConditionalCheckIn is the single guarded write that decides which scanner
// wins. It is never retried here; the coordinator owns retries because it
// can reconcile an attempt whose acknowledgement was lost.
func (r *BookingRepository) ConditionalCheckIn(ctx context.Context, id string, mark models.CheckInMark) (*models.Booking, error) {
	query := `
		WITH b AS (
			UPDATE bookings
			SET checked_in = TRUE,
			    checked_in_at = $2,
			    checked_in_by = $3,
			    checked_in_by_name = NULLIF($4, ''),
			    status = 'checked_in',
			    updated_at = $2
			WHERE id = $1
			  AND checked_in IS NOT TRUE
			  AND status IN ('confirmed', 'checked_in')
			RETURNING *
		)
		SELECT` + bookingColumns + `
		FROM b` + bookingJoins

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id, mark.At, mark.StaffID, mark.StaffName))
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// The write did not apply. This read only explains why.
	current, err := r.GetByID(ctx, id)
	switch {
	case err != nil:
		return nil, err
	case current == nil:
		return nil, checkin.ErrBookingNotFound
	case current.CheckedIn:
		return nil, checkin.ErrConditionFailed
	case !checkin.Redeemable(current.Status):
		return nil, &checkin.NotRedeemableError{Status: current.Status}
	}
	// Neither checked in nor blocked, yet the guard failed: the row changed
	// between the two statements. Report it as retryable.
	return nil, fmt.Errorf("check-in guard failed for booking %s in status %s", id, current.Status)
}

// ConfirmPending moves a pending booking to confirmed after payment. It
// returns apperrors.ErrNotFound or apperrors.ErrConflict when the guard fails.
func (r *BookingRepository) ConfirmPending(ctx context.Context, id, paymentID string) (*models.Booking, error) {
	query := `
		WITH b AS (
			UPDATE bookings
			SET status = 'confirmed', payment_id = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
			RETURNING *
		)
		SELECT` + bookingColumns + `
		FROM b` + bookingJoins

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id, paymentID))
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.ErrNotFound
	}
	return nil, fmt.Errorf("booking %s is %s: %w", id, current.Status, apperrors.ErrConflict)
}

// UpdateStatus is used for cancellations and refunds. It never touches a
// checked-in booking.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	if status == models.BookingCheckedIn {
		return fmt.Errorf("status %s is only set by check-in: %w", status, apperrors.ErrConflict)
	}

	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND checked_in IS NOT TRUE AND status <> 'checked_in'`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// CancelExpiredPending cancels bookings left pending since before cutoff
// and returns their ids.
func (r *BookingRepository) CancelExpiredPending(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
