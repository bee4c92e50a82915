package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tixgate/internal/auth"
	"tixgate/internal/checkin"
	apperrors "tixgate/internal/errors"
	"tixgate/internal/logger"
	"tixgate/internal/middleware"
	"tixgate/internal/models"
	"tixgate/internal/search"
	"tixgate/internal/service"
	"tixgate/internal/validation"

	"github.com/gin-gonic/gin"
)

// TicketAPI is implemented by service.TicketService.
type TicketAPI interface {
	MintTicket(ctx context.Context, p *auth.Principal, bookingID string) (*models.TicketResponse, error)
	ScanAndValidate(ctx context.Context, p *auth.Principal, scanned string) (validation.Result, error)
	CheckIn(ctx context.Context, p *auth.Principal, scanned string) (service.CheckInResult, error)
	Override(ctx context.Context, p *auth.Principal, bookingID, note string) (service.CheckInResult, error)
}

// BookingAPI is implemented by service.BookingService.
type BookingAPI interface {
	Confirm(ctx context.Context, p *auth.Principal, bookingID string) (*models.ConfirmBookingResponse, error)
	ListOwn(ctx context.Context, p *auth.Principal) ([]models.Booking, error)
}

type SessionRevoker interface {
	RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error
}

type AuditSearcher interface {
	SearchAudit(ctx context.Context, q search.AuditQuery) ([]models.AuditEvent, error)
}

type Handlers struct {
	tickets  TicketAPI
	bookings BookingAPI
	sessions SessionRevoker
	audit    AuditSearcher
}

// NewHandlers builds the HTTP handlers. sessions and audit may be nil; the
// endpoints that need them then answer 503.
func NewHandlers(tickets TicketAPI, bookings BookingAPI, sessions SessionRevoker, audit AuditSearcher) *Handlers {
	return &Handlers{
		tickets:  tickets,
		bookings: bookings,
		sessions: sessions,
		audit:    audit,
	}
}

func principal(c *gin.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request.Context())
}

// writeError maps service errors onto status codes. Internal details are
// logged, never returned.
func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, checkin.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrUnavailable):
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable, try again"})
	case errors.Is(err, checkin.ErrInvalidBookingID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking id"})
	default:
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// Me - GET /api/me
func (h *Handlers) Me(c *gin.Context) {
	p := principal(c)
	if p == nil {
		writeError(c, apperrors.ErrUnauthorized, "")
		return
	}

	groups := make([]string, len(p.Groups))
	for i, g := range p.Groups {
		groups[i] = string(g)
	}
	perms := p.PermissionList()
	permissions := make([]string, len(perms))
	for i, perm := range perms {
		permissions[i] = string(perm)
	}

	c.JSON(http.StatusOK, models.PrincipalResponse{
		UserID:      p.UserID,
		Name:        p.Name,
		Groups:      groups,
		Permissions: permissions,
	})
}

// Logout - POST /api/logout
// Revokes the presented token until it would have expired anyway.
func (h *Handlers) Logout(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
		return
	}

	tokenID := c.GetString(middleware.TokenIDKey)
	if tokenID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token carries no id and cannot be revoked"})
		return
	}

	exp, ok := middleware.TokenExpiry(c)
	ttl := time.Until(exp)
	if !ok || ttl <= 0 {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.sessions.RevokeSession(c.Request.Context(), tokenID, ttl); err != nil {
		logger.WithContext(c.Request.Context()).Error("Failed to revoke session", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to end session"})
		return
	}

	logger.WithContext(c.Request.Context()).Info("Session revoked")
	c.Status(http.StatusNoContent)
}
