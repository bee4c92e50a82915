package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListBookings - GET /api/bookings
func (h *Handlers) ListBookings(c *gin.Context) {
	bookings, err := h.bookings.ListOwn(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err, "Failed to list bookings")
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// ConfirmBooking - POST /api/bookings/:bookingId/confirm
// Charges the booking and returns its first ticket.
func (h *Handlers) ConfirmBooking(c *gin.Context) {
	res, err := h.bookings.Confirm(c.Request.Context(), principal(c), c.Param("bookingId"))
	if err != nil {
		writeError(c, err, "Failed to confirm booking")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, res)
}
