package models

// ScanRequest - body of the validate and check-in endpoints
type ScanRequest struct {
	Scan string `json:"scan" binding:"required"`
}

// OverrideRequest - manual check-in without a readable ticket
type OverrideRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	Note      string `json:"note,omitempty"`
}

// ValidationResponse - result of scanAndValidate
type ValidationResponse struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason,omitempty"`
	Format  string         `json:"format,omitempty"`
	Details *TicketSummary `json:"details,omitempty"`
}

// CheckInResponse - result of a redemption attempt
type CheckInResponse struct {
	Success bool           `json:"success"`
	Reason  string         `json:"reason,omitempty"`
	Details *TicketSummary `json:"details,omitempty"`
}

// TicketResponse - JSON form of a minted ticket
type TicketResponse struct {
	BookingID string `json:"booking_id"`
	Payload   string `json:"payload"`
	QRCodePNG []byte `json:"qr_code_png"`
}

// ConfirmBookingResponse - result of the payment stub + confirmation
type ConfirmBookingResponse struct {
	BookingID string         `json:"booking_id"`
	PaymentID string         `json:"payment_id"`
	Ticket    TicketResponse `json:"ticket"`
}

// PrincipalResponse - the authenticated caller as the server sees it
type PrincipalResponse struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Groups      []string `json:"groups"`
	Permissions []string `json:"permissions"`
}
