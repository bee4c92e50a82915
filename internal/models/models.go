package models

import (
	"fmt"
	"time"
)

// BookingStatus is the closed set of booking lifecycle states.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
	BookingCheckedIn BookingStatus = "checked_in"
)

// ParseBookingStatus rejects any value outside the enum.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingRefunded, BookingCheckedIn:
		return st, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// User represents an account known to the service
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Event represents an event tickets are issued for
type Event struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	OrganizerID   string    `json:"organizer_id" db:"organizer_id"`
	DatetimeStart time.Time `json:"datetime_start" db:"datetime_start"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Booking is the authoritative record a ticket is checked against.
type Booking struct {
	ID              string        `json:"id" db:"id"`
	EventID         string        `json:"event_id" db:"event_id"`
	UserID          string        `json:"user_id" db:"user_id"`
	Status          BookingStatus `json:"status" db:"status"`
	TicketCount     int           `json:"ticket_count" db:"ticket_count"`
	TotalAmount     int64         `json:"total_amount" db:"total_amount"`
	PaymentID       *string       `json:"payment_id,omitempty" db:"payment_id"`
	CheckedIn       bool          `json:"checked_in" db:"checked_in"`
	CheckedInAt     *time.Time    `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy     *string       `json:"checked_in_by,omitempty" db:"checked_in_by"`
	CheckedInByName *string       `json:"checked_in_by_name,omitempty" db:"checked_in_by_name"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`

	// Not from the bookings table, filled by a join
	AttendeeName string `json:"attendee_name,omitempty"`
	EventTitle   string `json:"event_title,omitempty"`
}

// CheckInMark is what a successful redemption writes onto a booking.
type CheckInMark struct {
	At        time.Time
	StaffID   string
	StaffName string
}

// TicketSummary is the redacted view of a redeemable ticket shown to scanning staff.
type TicketSummary struct {
	BookingID    string `json:"booking_id"`
	AttendeeName string `json:"attendee_name"`
	TicketCount  int    `json:"ticket_count"`
	EventTitle   string `json:"event_title"`
}

// SummaryOf builds the on-screen summary for a booking.
func SummaryOf(b *Booking) *TicketSummary {
	return &TicketSummary{
		BookingID:    b.ID,
		AttendeeName: b.AttendeeName,
		TicketCount:  b.TicketCount,
		EventTitle:   b.EventTitle,
	}
}
