package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tixgate/internal/auth"
	"tixgate/internal/checkin"
	apperrors "tixgate/internal/errors"
	"tixgate/internal/logger"
	"tixgate/internal/messaging"
	"tixgate/internal/metrics"
	"tixgate/internal/models"
	"tixgate/internal/qr"
	"tixgate/internal/ticket"
	"tixgate/internal/validation"
)

// OutcomeUnreadable means the scanner produced nothing usable and the
// ticket should be scanned again. No ticket was judged.
const OutcomeUnreadable checkin.Outcome = "UNREADABLE"

// CheckInResult is returned to scanning staff. Reason is empty on success.
type CheckInResult struct {
	Success bool
	Outcome checkin.Outcome
	Reason  string
	Details *models.TicketSummary
}

// TicketService is the trust boundary for tickets. Every operation checks
// the caller's permissions here, whatever the client already checked.
type TicketService struct {
	store       checkin.Store
	keyring     *ticket.Keyring
	validator   *validation.Validator
	coordinator *checkin.Coordinator
	audit       auditor
	qrSize      int
	now         func() time.Time
}

func NewTicketService(store checkin.Store, keyring *ticket.Keyring, cfg TicketConfig, publisher messaging.Publisher) *TicketService {
	s := &TicketService{
		store:       store,
		keyring:     keyring,
		validator:   validation.NewValidator(keyring, cfg.MaxAge, cfg.Legacy),
		coordinator: checkin.NewCoordinator(store, cfg.CheckIn),
		qrSize:      cfg.QRSize,
		now:         time.Now,
	}
	s.audit = auditor{publisher: publisher, now: s.clock}
	return s
}

// WithClock replaces the wall clock used for minting, validation and
// check-in marks, for tests.
func (s *TicketService) WithClock(now func() time.Time) *TicketService {
	s.now = now
	s.coordinator.WithClock(now)
	return s
}

func (s *TicketService) clock() time.Time {
	return s.now()
}

// MintTicket returns a signed ticket and its QR code. Owners may fetch their
// own tickets; holders of tickets:mint may fetch any.
func (s *TicketService) MintTicket(ctx context.Context, p *auth.Principal, bookingID string) (*models.TicketResponse, error) {
	if p == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !auth.HasAnyPermission(p, auth.PermTicketsMint, auth.PermTicketsViewOwn) {
		return nil, apperrors.ErrForbidden
	}
	if checkin.ValidateBookingID(bookingID) != nil {
		return nil, apperrors.ErrNotFound
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	// A stranger's booking is reported as missing so ids cannot be probed.
	if booking == nil || (booking.UserID != p.UserID && !auth.HasPermission(p, auth.PermTicketsMint)) {
		return nil, apperrors.ErrNotFound
	}

	return s.issue(ctx, booking, p.UserID)
}

// issue mints a ticket for a booking the caller is already authorized for.
func (s *TicketService) issue(ctx context.Context, booking *models.Booking, actorID string) (*models.TicketResponse, error) {
	if !checkin.Redeemable(booking.Status) {
		return nil, fmt.Errorf("booking %s is %s: %w", booking.ID, booking.Status, apperrors.ErrConflict)
	}

	payload, err := s.keyring.Mint(booking.ID, booking.EventID, booking.UserID, s.now()).Encode()
	if err != nil {
		return nil, err
	}

	png, err := qr.Encode(payload, s.qrSize)
	if err != nil {
		return nil, err
	}

	metrics.TicketMinted()
	s.audit.publish(ctx, models.AuditEvent{
		Type:      models.EventTicketMinted,
		BookingID: booking.ID,
		EventID:   booking.EventID,
		ActorID:   actorID,
		Format:    validation.FormatSigned,
	})

	return &models.TicketResponse{
		BookingID: booking.ID,
		Payload:   payload,
		QRCodePNG: png,
	}, nil
}

// ScanAndValidate certifies that a scan looks redeemable right now. It
// writes nothing; the result is advisory until CheckIn succeeds.
func (s *TicketService) ScanAndValidate(ctx context.Context, p *auth.Principal, scanned string) (validation.Result, error) {
	if p == nil {
		return validation.Result{}, apperrors.ErrUnauthorized
	}
	if !auth.HasPermission(p, auth.PermTicketsScan) {
		return validation.Result{}, apperrors.ErrForbidden
	}

	res, _, err := s.validate(ctx, p, scanned)
	return res, err
}

func (s *TicketService) validate(ctx context.Context, p *auth.Principal, scanned string) (validation.Result, *models.Booking, error) {
	raw, err := qr.Decode(scanned)
	if errors.Is(err, qr.ErrUnreadable) {
		metrics.ObserveValidation("", validation.ReasonUnreadable)
		return validation.Result{Reason: validation.ReasonUnreadable}, nil, nil
	}
	if err != nil {
		return validation.Result{}, nil, err
	}

	var booking *models.Booking
	if id, ok := validation.BookingIDOf(raw); ok && checkin.ValidateBookingID(id) == nil {
		booking, err = s.store.GetBooking(ctx, id)
		if err != nil {
			logger.WithContext(ctx).Error("Booking lookup failed during scan", "booking_id", id, "error", err)
			return validation.Result{}, nil, fmt.Errorf("failed to get booking: %w: %w", apperrors.ErrUnavailable, err)
		}
	}

	res := s.validator.Validate(raw, booking, s.now())
	metrics.ObserveValidation(res.Format, res.Reason)

	if !res.Valid {
		s.reportRejection(ctx, p, booking, res)
		return res, nil, nil
	}
	return res, booking, nil
}

func (s *TicketService) reportRejection(ctx context.Context, p *auth.Principal, booking *models.Booking, res validation.Result) {
	event := models.AuditEvent{
		Type:      models.EventTicketRejected,
		ActorID:   p.UserID,
		ActorName: p.Name,
		Reason:    res.Reason,
		Format:    res.Format,
	}
	if booking != nil {
		event.BookingID = booking.ID
		event.EventID = booking.EventID
	}

	log := logger.WithContext(ctx).With("reason", res.Reason, "format", res.Format, "booking_id", event.BookingID)
	switch res.Reason {
	case validation.ReasonAlreadyCheckedIn:
		log.Warn("Scan of already used ticket", "security_event", "checkin_conflict")
		event.Type = models.EventTicketCheckInConflict
	case ticket.ReasonInvalidSignature, validation.ReasonBookingMismatch,
		validation.ReasonEventMismatch, validation.ReasonUserMismatch:
		log.Warn("Ticket rejected", "security_event", "ticket_forgery_suspected")
	default:
		log.Info("Ticket rejected")
	}

	s.audit.publish(ctx, event)
}

// CheckIn validates a scan and then redeems it through the coordinator.
// Validation only filters obvious failures; the conditional write decides.
func (s *TicketService) CheckIn(ctx context.Context, p *auth.Principal, scanned string) (CheckInResult, error) {
	if p == nil {
		return CheckInResult{}, apperrors.ErrUnauthorized
	}
	if !auth.HasAllPermissions(p, auth.PermTicketsScan, auth.PermCheckInPerform) {
		return CheckInResult{}, apperrors.ErrForbidden
	}

	res, booking, err := s.validate(ctx, p, scanned)
	if err != nil {
		return CheckInResult{}, err
	}
	if !res.Valid {
		outcome := checkin.OutcomeNotRedeemable
		switch res.Reason {
		case validation.ReasonAlreadyCheckedIn:
			outcome = checkin.OutcomeAlreadyCheckedIn
		case validation.ReasonUnreadable:
			outcome = OutcomeUnreadable
		}
		return CheckInResult{Outcome: outcome, Reason: res.Reason}, nil
	}

	return s.redeem(ctx, p, booking.ID, models.EventTicketCheckedIn, "")
}

// Override checks a booking in without a readable ticket, for example a
// damaged print verified by other means. The same guarded write applies.
func (s *TicketService) Override(ctx context.Context, p *auth.Principal, bookingID, note string) (CheckInResult, error) {
	if p == nil {
		return CheckInResult{}, apperrors.ErrUnauthorized
	}
	if !auth.HasPermission(p, auth.PermCheckInOverride) {
		return CheckInResult{}, apperrors.ErrForbidden
	}

	logger.WithContext(ctx).Warn("Manual check-in override requested",
		"booking_id", bookingID, "staff_id", p.UserID, "security_event", "checkin_override")

	return s.redeem(ctx, p, bookingID, models.EventTicketCheckInOverride, note)
}

func (s *TicketService) redeem(ctx context.Context, p *auth.Principal, bookingID, successEvent, note string) (CheckInResult, error) {
	start := time.Now()
	res, err := s.coordinator.CheckIn(ctx, bookingID, p.UserID, p.Name)
	if err != nil {
		return CheckInResult{}, err
	}
	metrics.ObserveCheckIn(string(res.Outcome), time.Since(start))

	event := models.AuditEvent{
		BookingID: bookingID,
		ActorID:   p.UserID,
		ActorName: p.Name,
		Reason:    note,
	}

	out := CheckInResult{Success: res.Success, Outcome: res.Outcome, Reason: res.Reason}
	switch res.Outcome {
	case checkin.OutcomeCheckedIn:
		event.Type = successEvent
		if res.Booking != nil {
			event.EventID = res.Booking.EventID
			out.Details = models.SummaryOf(res.Booking)
		}
	case checkin.OutcomeAlreadyCheckedIn:
		event.Type = models.EventTicketCheckInConflict
		event.Reason = validation.ReasonAlreadyCheckedIn
		out.Reason = validation.ReasonAlreadyCheckedIn
	case checkin.OutcomeNotRedeemable:
		event.Type = models.EventTicketRejected
		event.Reason = validation.StatusReason(res.Status)
		out.Reason = event.Reason
	default:
		// Operational failures are retried by the caller and not audited.
		return out, nil
	}

	s.audit.publish(ctx, event)
	return out, nil
}
