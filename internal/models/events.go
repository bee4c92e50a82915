package models

import "time"

// NATS subjects for ticket audit events
const (
	EventTicketMinted          = "ticket.minted"
	EventTicketRejected        = "ticket.rejected"
	EventTicketCheckedIn       = "ticket.checked_in"
	EventTicketCheckInConflict = "ticket.checkin_conflict"
	EventTicketCheckInOverride = "ticket.checkin_override"
	EventBookingConfirmed      = "booking.confirmed"
	EventBookingExpired        = "booking.expired"
)

// AuditEvent is published for every security-relevant ticket action and
// indexed by the consumers service. It never carries the ticket signature.
type AuditEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Format    string    `json:"format,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingConfirmedEvent is published once a booking leaves pending
type BookingConfirmedEvent struct {
	BookingID string    `json:"booking_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Timestamp time.Time `json:"timestamp"`
}
