package handlers

import (
	"net/http"

	"tixgate/internal/checkin"
	"tixgate/internal/models"
	"tixgate/internal/service"

	"github.com/gin-gonic/gin"
)

// GetTicket - GET /api/tickets/:bookingId
// Returns the QR code as PNG, or the signed payload with ?format=json.
func (h *Handlers) GetTicket(c *gin.Context) {
	ticket, err := h.tickets.MintTicket(c.Request.Context(), principal(c), c.Param("bookingId"))
	if err != nil {
		writeError(c, err, "Failed to issue ticket")
		return
	}

	c.Header("Cache-Control", "no-store")
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, ticket)
		return
	}
	c.Data(http.StatusOK, "image/png", ticket.QRCodePNG)
}

// ValidateScan - POST /api/checkin/validate
// Advisory only; nothing is written.
func (h *Handlers) ValidateScan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.tickets.ScanAndValidate(c.Request.Context(), principal(c), req.Scan)
	if err != nil {
		writeError(c, err, "Failed to validate ticket")
		return
	}

	c.JSON(http.StatusOK, models.ValidationResponse{
		Valid:   res.Valid,
		Reason:  res.Reason,
		Format:  res.Format,
		Details: res.Details,
	})
}

// CheckIn - POST /api/checkin
func (h *Handlers) CheckIn(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.tickets.CheckIn(c.Request.Context(), principal(c), req.Scan)
	if err != nil {
		writeError(c, err, "Failed to check in ticket")
		return
	}
	writeCheckIn(c, res)
}

// OverrideCheckIn - POST /api/checkin/override
func (h *Handlers) OverrideCheckIn(c *gin.Context) {
	var req models.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.tickets.Override(c.Request.Context(), principal(c), req.BookingID, req.Note)
	if err != nil {
		writeError(c, err, "Failed to check in booking")
		return
	}
	writeCheckIn(c, res)
}

// writeCheckIn keeps "already used" and "try again" apart: a scanner must
// never show a duplicate for a write that may not have happened.
func writeCheckIn(c *gin.Context, res service.CheckInResult) {
	status := http.StatusOK
	switch res.Outcome {
	case checkin.OutcomeCheckedIn:
	case checkin.OutcomeAlreadyCheckedIn:
		status = http.StatusConflict
	case service.OutcomeUnreadable:
		status = http.StatusBadRequest
	case checkin.OutcomeFailed:
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "1")
	default:
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, models.CheckInResponse{
		Success: res.Success,
		Reason:  res.Reason,
		Details: res.Details,
	})
}
