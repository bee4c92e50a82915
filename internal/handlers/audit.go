package handlers

import (
	"net/http"
	"strconv"

	"tixgate/internal/auth"
	apperrors "tixgate/internal/errors"
	"tixgate/internal/search"

	"github.com/gin-gonic/gin"
)

const maxAuditPageSize = 200

// BookingAudit - GET /api/audit/bookings/:bookingId
// Query: type, actor, size.
func (h *Handlers) BookingAudit(c *gin.Context) {
	if !auth.HasPermission(principal(c), auth.PermBookingsManage) {
		writeError(c, apperrors.ErrForbidden, "")
		return
	}
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit search is not configured"})
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	if size < 1 || size > maxAuditPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and 200"})
		return
	}

	events, err := h.audit.SearchAudit(c.Request.Context(), search.AuditQuery{
		BookingID: c.Param("bookingId"),
		Type:      c.Query("type"),
		ActorID:   c.Query("actor"),
		Size:      size,
	})
	if err != nil {
		writeError(c, err, "Failed to search audit trail")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
