// Package validation decides whether a scanned ticket is redeemable against
// a snapshot of its booking. It performs no writes; redemption itself is
// arbitrated by the check-in coordinator.
package validation

import (
	"time"

	"tixgate/internal/models"
	"tixgate/internal/ticket"
)

// Rejection reasons. Each one maps to a distinct operator message.
const (
	ReasonUnreadable       = "unreadable_scan"
	ReasonInvalidQRFormat  = "invalid_qr_format"
	ReasonLegacyDisabled   = "legacy_format_disabled"
	ReasonBookingNotFound  = "booking_not_found"
	ReasonBookingMismatch  = "booking_mismatch"
	ReasonEventMismatch    = "event_mismatch"
	ReasonUserMismatch     = "user_mismatch"
	ReasonAlreadyCheckedIn = "already_checked_in"
	ReasonBookingPending   = "booking_pending"
	ReasonBookingCancelled = "booking_cancelled"
	ReasonBookingRefunded  = "booking_refunded"
)

// Ticket formats reported with every result.
const (
	FormatSigned = "signed"
	FormatLegacy = "legacy"
)

// LegacyPolicy bounds how long unsigned tickets stay acceptable. Legacy
// tickets are accepted only while now is before Until; a zero Until turns
// the legacy path off.
type LegacyPolicy struct {
	Until time.Time
}

func (lp LegacyPolicy) allows(now time.Time) bool {
	return !lp.Until.IsZero() && now.Before(lp.Until)
}

// Result is what the scanner UI branches on. Details is set only when Valid.
type Result struct {
	Valid   bool
	Reason  string
	Format  string
	Details *models.TicketSummary
}

// Validator holds the verification keys and policy. It is safe for concurrent use.
type Validator struct {
	keyring *ticket.Keyring
	maxAge  time.Duration
	legacy  LegacyPolicy
}

func NewValidator(keyring *ticket.Keyring, maxAge time.Duration, legacy LegacyPolicy) *Validator {
	return &Validator{keyring: keyring, maxAge: maxAge, legacy: legacy}
}

// BookingIDOf extracts the booking id a scan refers to so the caller can
// load the snapshot. It does not verify anything.
func BookingIDOf(raw string) (string, bool) {
	parsed := ticket.Parse(raw)
	switch parsed.Format {
	case ticket.FormatSigned:
		return parsed.Signed.BookingID, parsed.Signed.BookingID != ""
	case ticket.FormatLegacy:
		return parsed.Legacy.BookingID, true
	}
	return "", false
}

// Validate checks raw against booking as of now. The checks short-circuit
// in a fixed order so the first failure decides the reason.
func (v *Validator) Validate(raw string, booking *models.Booking, now time.Time) Result {
	parsed := ticket.Parse(raw)

	switch parsed.Format {
	case ticket.FormatSigned:
		return v.validateSigned(parsed.Signed, booking, now)
	case ticket.FormatLegacy:
		return v.validateLegacy(parsed.Legacy, booking, now)
	}
	return Result{Reason: ReasonInvalidQRFormat}
}

func (v *Validator) validateSigned(p *ticket.Payload, booking *models.Booking, now time.Time) Result {
	if res := v.keyring.Verify(*p, now, v.maxAge); !res.Valid {
		return reject(FormatSigned, res.Reason)
	}

	if reason := matchIdentifiers(p.BookingID, p.EventID, p.UserID, booking); reason != "" {
		return reject(FormatSigned, reason)
	}

	if booking.CheckedIn || booking.Status == models.BookingCheckedIn {
		return reject(FormatSigned, ReasonAlreadyCheckedIn)
	}
	if booking.Status != models.BookingConfirmed {
		return reject(FormatSigned, StatusReason(booking.Status))
	}

	return accept(FormatSigned, booking)
}

func (v *Validator) validateLegacy(p *ticket.LegacyPayload, booking *models.Booking, now time.Time) Result {
	if !v.legacy.allows(now) {
		return reject(FormatLegacy, ReasonLegacyDisabled)
	}

	if reason := matchIdentifiers(p.BookingID, p.EventID, p.UserID, booking); reason != "" {
		return reject(FormatLegacy, reason)
	}

	if booking.CheckedIn {
		return reject(FormatLegacy, ReasonAlreadyCheckedIn)
	}
	if booking.Status != models.BookingConfirmed && booking.Status != models.BookingCheckedIn {
		return reject(FormatLegacy, StatusReason(booking.Status))
	}

	return accept(FormatLegacy, booking)
}

func matchIdentifiers(bookingID, eventID, userID string, booking *models.Booking) string {
	switch {
	case booking == nil:
		return ReasonBookingNotFound
	case bookingID != booking.ID:
		return ReasonBookingMismatch
	case eventID != booking.EventID:
		return ReasonEventMismatch
	case userID != booking.UserID:
		return ReasonUserMismatch
	}
	return ""
}

// StatusReason maps a non-redeemable status onto its rejection reason.
func StatusReason(s models.BookingStatus) string {
	switch s {
	case models.BookingCheckedIn:
		return ReasonAlreadyCheckedIn
	case models.BookingCancelled:
		return ReasonBookingCancelled
	case models.BookingRefunded:
		return ReasonBookingRefunded
	}
	return ReasonBookingPending
}

func reject(format, reason string) Result {
	return Result{Format: format, Reason: reason}
}

func accept(format string, booking *models.Booking) Result {
	return Result{Valid: true, Format: format, Details: models.SummaryOf(booking)}
}
