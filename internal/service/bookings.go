package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tixgate/internal/auth"
	"tixgate/internal/checkin"
	apperrors "tixgate/internal/errors"
	"tixgate/internal/external"
	"tixgate/internal/logger"
	"tixgate/internal/messaging"
	"tixgate/internal/models"
)

// BookingStore is the part of repository.BookingRepository used here.
type BookingStore interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByUserID(ctx context.Context, userID string) ([]models.Booking, error)
	ConfirmPending(ctx context.Context, id, paymentID string) (*models.Booking, error)
}

type BookingService struct {
	bookings  BookingStore
	payments  external.PaymentClient
	tickets   *TicketService
	publisher messaging.Publisher
	now       func() time.Time
}

func NewBookingService(bookings BookingStore, payments external.PaymentClient, tickets *TicketService, publisher messaging.Publisher) *BookingService {
	return &BookingService{
		bookings:  bookings,
		payments:  payments,
		tickets:   tickets,
		publisher: publisher,
		now:       time.Now,
	}
}

// Confirm charges a pending booking through the payment gateway, moves it to
// confirmed and returns its first signed ticket.
func (s *BookingService) Confirm(ctx context.Context, p *auth.Principal, bookingID string) (*models.ConfirmBookingResponse, error) {
	if p == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !auth.HasAnyPermission(p, auth.PermBookingsCreate, auth.PermBookingsManage) {
		return nil, apperrors.ErrForbidden
	}
	if checkin.ValidateBookingID(bookingID) != nil {
		return nil, apperrors.ErrNotFound
	}

	log := logger.WithContext(ctx).With("booking_id", bookingID)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil || (booking.UserID != p.UserID && !auth.HasPermission(p, auth.PermBookingsManage)) {
		return nil, apperrors.ErrNotFound
	}
	if booking.Status != models.BookingPending {
		return nil, fmt.Errorf("booking is %s: %w", booking.Status, apperrors.ErrConflict)
	}

	charge, err := s.payments.Charge(ctx, external.ChargeRequest{
		OrderID:     booking.ID,
		Amount:      booking.TotalAmount,
		Description: booking.EventTitle,
	})
	if err != nil {
		if errors.Is(err, external.ErrPaymentDeclined) {
			return nil, fmt.Errorf("%v: %w", err, apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to charge booking: %w", err)
	}

	// A concurrent confirmation loses here and gets ErrConflict.
	confirmed, err := s.bookings.ConfirmPending(ctx, booking.ID, charge.PaymentID)
	if err != nil {
		log.Error("Payment taken but booking not confirmed", "payment_id", charge.PaymentID, "error", err)
		return nil, err
	}

	if err := s.publisher.Publish(models.EventBookingConfirmed, models.BookingConfirmedEvent{
		BookingID: confirmed.ID,
		EventID:   confirmed.EventID,
		UserID:    confirmed.UserID,
		PaymentID: charge.PaymentID,
		Timestamp: s.now().UTC(),
	}); err != nil {
		log.Error("Failed to publish booking confirmed event", "error", err, "event_type", models.EventBookingConfirmed)
	}

	ticket, err := s.tickets.issue(ctx, confirmed, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("booking confirmed but ticket not issued: %w", err)
	}

	log.Info("Booking confirmed", "payment_id", charge.PaymentID)
	return &models.ConfirmBookingResponse{
		BookingID: confirmed.ID,
		PaymentID: charge.PaymentID,
		Ticket:    *ticket,
	}, nil
}

// ListOwn returns the caller's bookings. Check-in staff identity is not
// exposed to attendees.
func (s *BookingService) ListOwn(ctx context.Context, p *auth.Principal) ([]models.Booking, error) {
	if p == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !auth.HasPermission(p, auth.PermBookingsReadOwn) {
		return nil, apperrors.ErrForbidden
	}

	bookings, err := s.bookings.GetByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	for i := range bookings {
		bookings[i].CheckedInBy = nil
		bookings[i].CheckedInByName = nil
	}
	return bookings, nil
}
