package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tixgate/internal/auth"
	"tixgate/internal/checkin"
	apperrors "tixgate/internal/errors"
	"tixgate/internal/identity"
	"tixgate/internal/messaging"
	"tixgate/internal/middleware"
	"tixgate/internal/models"
	"tixgate/internal/search"
	"tixgate/internal/service"
	"tixgate/internal/ticket"
	"tixgate/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookings struct{ mock.Mock }

func (m *mockBookings) Confirm(ctx context.Context, p *auth.Principal, bookingID string) (*models.ConfirmBookingResponse, error) {
	args := m.Called(ctx, p, bookingID)
	res, _ := args.Get(0).(*models.ConfirmBookingResponse)
	return res, args.Error(1)
}

func (m *mockBookings) ListOwn(ctx context.Context, p *auth.Principal) ([]models.Booking, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).([]models.Booking)
	return res, args.Error(1)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	return m.Called(ctx, tokenID, ttl).Error(0)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) SearchAudit(ctx context.Context, q search.AuditQuery) ([]models.AuditEvent, error) {
	args := m.Called(ctx, q)
	res, _ := args.Get(0).([]models.AuditEvent)
	return res, args.Error(1)
}

// unavailableStore reads normally but every conditional write fails.
type unavailableStore struct {
	*checkin.MemoryStore
}

func (unavailableStore) ConditionalCheckIn(context.Context, string, models.CheckInMark) (*models.Booking, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// unreadableStore accepts writes but every booking lookup fails.
type unreadableStore struct {
	*checkin.MemoryStore
}

func (unreadableStore) GetBooking(context.Context, string) (*models.Booking, error) {
	return nil, errors.New("read tcp: i/o timeout")
}

type testEnv struct {
	router   *gin.Engine
	store    *checkin.MemoryStore
	keyring  *ticket.Keyring
	verifier *identity.Verifier
	bookings *mockBookings
	sessions *mockSessions
	audit    *mockAudit
}

func newTestEnv(t *testing.T, store checkin.Store) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keyring, err := ticket.NewKeyring("handlers-ticket-secret")
	require.NoError(t, err)
	verifier, err := identity.NewVerifier("handlers-token-secret", "", "")
	require.NoError(t, err)

	cfg := service.TicketConfig{MaxAge: 365 * 24 * time.Hour, QRSize: 128, CheckIn: checkin.DefaultConfig()}
	cfg.CheckIn.RetryBackoff = time.Millisecond
	publisher := messaging.NewLogPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	tickets := service.NewTicketService(store, keyring, cfg, publisher)

	env := &testEnv{
		keyring:  keyring,
		verifier: verifier,
		bookings: &mockBookings{},
		sessions: &mockSessions{},
		audit:    &mockAudit{},
	}
	if ms, ok := store.(*checkin.MemoryStore); ok {
		env.store = ms
	}

	h := NewHandlers(tickets, env.bookings, env.sessions, env.audit)

	r := gin.New()
	api := r.Group("/api")
	api.Use(middleware.Auth(verifier, nil))
	{
		api.GET("/me", h.Me)
		api.POST("/logout", h.Logout)
		api.GET("/tickets/:bookingId", h.GetTicket)
		api.GET("/bookings", h.ListBookings)
		api.POST("/bookings/:bookingId/confirm", h.ConfirmBooking)
		api.POST("/checkin/validate", h.ValidateScan)
		api.POST("/checkin", h.CheckIn)
		api.POST("/checkin/override", h.OverrideCheckIn)
		api.GET("/audit/bookings/:bookingId", h.BookingAudit)
	}
	env.router = r
	return env
}

func confirmedBooking(id string) models.Booking {
	return models.Booking{
		ID:           id,
		EventID:      "evt1",
		UserID:       "usr1",
		Status:       models.BookingConfirmed,
		TicketCount:  1,
		AttendeeName: "Aida Bekova",
		EventTitle:   "Spring Concert",
	}
}

func (e *testEnv) token(t *testing.T, subject string, groups ...string) string {
	t.Helper()
	raw, err := e.verifier.Sign(identity.Claims{
		Name:   "Name of " + subject,
		Groups: groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        "jti-" + subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return raw
}

func (e *testEnv) scan(t *testing.T, bookingID string) string {
	t.Helper()
	raw, err := e.keyring.Mint(bookingID, "evt1", "usr1", time.Now().Add(-time.Minute)).Encode()
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore())

	w := env.do(t, http.MethodGet, "/api/me", env.token(t, "staff1", "organizer"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PrincipalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "staff1", resp.UserID)
	assert.Equal(t, []string{"organizer"}, resp.Groups)
	assert.Contains(t, resp.Permissions, string(auth.PermTicketsScan))
	assert.NotContains(t, resp.Permissions, string(auth.PermCheckInOverride))

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/me", "", nil).Code)
}

func TestGetTicket(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore(confirmedBooking("bkg1")))
	owner := env.token(t, "usr1", "user")

	w := env.do(t, http.MethodGet, "/api/tickets/bkg1", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = env.do(t, http.MethodGet, "/api/tickets/bkg1?format=json", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ticketResp models.TicketResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ticketResp))
	assert.Equal(t, "bkg1", ticketResp.BookingID)
	assert.NotEmpty(t, ticketResp.Payload)

	// A stranger cannot tell the booking exists.
	w = env.do(t, http.MethodGet, "/api/tickets/bkg1", env.token(t, "usr2", "user"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodGet, "/api/tickets/nope", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateScan(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore(confirmedBooking("bkg1")))
	staff := env.token(t, "staff1", "organizer")

	w := env.do(t, http.MethodPost, "/api/checkin/validate", staff, models.ScanRequest{Scan: env.scan(t, "bkg1")})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "Aida Bekova", resp.Details.AttendeeName)

	w = env.do(t, http.MethodPost, "/api/checkin/validate", staff, models.ScanRequest{Scan: "not a ticket"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = models.ValidationResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Nil(t, resp.Details)

	w = env.do(t, http.MethodPost, "/api/checkin/validate", env.token(t, "usr1", "user"), models.ScanRequest{Scan: env.scan(t, "bkg1")})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/checkin/validate", staff, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckIn(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore(confirmedBooking("bkg1")))
	staff := env.token(t, "staff1", "organizer")
	body := models.ScanRequest{Scan: env.scan(t, "bkg1")}

	w := env.do(t, http.MethodPost, "/api/checkin", staff, body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.CheckInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "bkg1", resp.Details.BookingID)

	w = env.do(t, http.MethodPost, "/api/checkin", staff, body)
	require.Equal(t, http.StatusConflict, w.Code)
	resp = models.CheckInResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "already_checked_in", resp.Reason)

	b, err := env.store.GetBooking(context.Background(), "bkg1")
	require.NoError(t, err)
	assert.Equal(t, "staff1", *b.CheckedInBy)
}

func TestCheckIn_NotRedeemable(t *testing.T) {
	cancelled := confirmedBooking("bkg1")
	cancelled.Status = models.BookingCancelled
	env := newTestEnv(t, checkin.NewMemoryStore(cancelled))

	w := env.do(t, http.MethodPost, "/api/checkin", env.token(t, "staff1", "organizer"), models.ScanRequest{Scan: env.scan(t, "bkg1")})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "booking_cancelled")
}

func TestCheckIn_StoreUnavailableIsRetryable(t *testing.T) {
	env := newTestEnv(t, unavailableStore{checkin.NewMemoryStore(confirmedBooking("bkg1"))})

	w := env.do(t, http.MethodPost, "/api/checkin", env.token(t, "staff1", "organizer"), models.ScanRequest{Scan: env.scan(t, "bkg1")})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "already_checked_in")
}

func TestCheckIn_BookingLookupFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t, unreadableStore{checkin.NewMemoryStore(confirmedBooking("bkg1"))})
	staff := env.token(t, "staff1", "organizer")
	req := models.ScanRequest{Scan: env.scan(t, "bkg1")}

	w := env.do(t, http.MethodPost, "/api/checkin/validate", staff, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = env.do(t, http.MethodPost, "/api/checkin", staff, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "already_checked_in")
}

func TestCheckIn_UnreadableScanAsksForRescan(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore(confirmedBooking("bkg1")))

	w := env.do(t, http.MethodPost, "/api/checkin", env.token(t, "staff1", "organizer"), models.ScanRequest{Scan: "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp models.CheckInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, validation.ReasonUnreadable, resp.Reason)

	b, _ := env.store.GetBooking(context.Background(), "bkg1")
	assert.False(t, b.CheckedIn)
}

func TestCheckIn_RequiresPerformPermission(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore(confirmedBooking("bkg1")))

	// Scan alone is not enough.
	w := env.do(t, http.MethodPost, "/api/checkin", env.token(t, "usr1", "user"), models.ScanRequest{Scan: env.scan(t, "bkg1")})
	assert.Equal(t, http.StatusForbidden, w.Code)

	b, _ := env.store.GetBooking(context.Background(), "bkg1")
	assert.False(t, b.CheckedIn)
}

func TestOverrideCheckIn(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore(confirmedBooking("bkg1")))
	req := models.OverrideRequest{BookingID: "bkg1", Note: "damaged print"}

	w := env.do(t, http.MethodPost, "/api/checkin/override", env.token(t, "staff1", "organizer"), req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := env.token(t, "admin1", "admin")
	w = env.do(t, http.MethodPost, "/api/checkin/override", admin, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/checkin/override", admin, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/checkin/override", admin, models.OverrideRequest{BookingID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/checkin/override", admin, models.OverrideRequest{BookingID: "has space"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmBooking(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore())
	owner := env.token(t, "usr1", "user")

	env.bookings.On("Confirm", mock.Anything, mock.Anything, "bkg1").
		Return(&models.ConfirmBookingResponse{BookingID: "bkg1", PaymentID: "pay1"}, nil).Once()
	env.bookings.On("Confirm", mock.Anything, mock.Anything, "bkg1").
		Return(nil, apperrors.ErrConflict).Once()
	env.bookings.On("Confirm", mock.Anything, mock.Anything, "bkg2").
		Return(nil, errors.New("gateway timeout")).Once()

	w := env.do(t, http.MethodPost, "/api/bookings/bkg1/confirm", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pay1")

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/bookings/bkg1/confirm", owner, nil).Code)

	w = env.do(t, http.MethodPost, "/api/bookings/bkg2/confirm", owner, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "gateway timeout")

	env.bookings.AssertExpectations(t)
}

func TestListBookings(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore())
	env.bookings.On("ListOwn", mock.Anything, mock.MatchedBy(func(p *auth.Principal) bool { return p.UserID == "usr1" })).
		Return([]models.Booking{confirmedBooking("bkg1")}, nil)

	w := env.do(t, http.MethodGet, "/api/bookings", env.token(t, "usr1", "user"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var bookings []models.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bookings))
	require.Len(t, bookings, 1)
	assert.Equal(t, "bkg1", bookings[0].ID)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore())
	env.sessions.On("RevokeSession", mock.Anything, "jti-usr1",
		mock.MatchedBy(func(ttl time.Duration) bool { return ttl > 59*time.Minute && ttl <= time.Hour })).
		Return(nil).Once()
	env.sessions.On("RevokeSession", mock.Anything, "jti-usr2", mock.Anything).
		Return(errors.New("valkey down")).Once()

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/logout", env.token(t, "usr1", "user"), nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/api/logout", env.token(t, "usr2", "user"), nil).Code)

	env.sessions.AssertExpectations(t)
}

func TestBookingAudit(t *testing.T) {
	env := newTestEnv(t, checkin.NewMemoryStore())
	env.audit.On("SearchAudit", mock.Anything, search.AuditQuery{BookingID: "bkg1", Type: "ticket.rejected", Size: 10}).
		Return([]models.AuditEvent{{ID: "a1", Type: "ticket.rejected", BookingID: "bkg1"}}, nil)

	admin := env.token(t, "admin1", "admin")

	w := env.do(t, http.MethodGet, "/api/audit/bookings/bkg1?type=ticket.rejected&size=10", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"a1"`)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/audit/bookings/bkg1?size=0", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/audit/bookings/bkg1", env.token(t, "staff1", "organizer"), nil).Code)
}

func TestBookingAudit_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier, err := identity.NewVerifier("handlers-token-secret", "", "")
	require.NoError(t, err)

	h := NewHandlers(nil, nil, nil, nil)
	r := gin.New()
	r.GET("/api/audit/bookings/:bookingId", middleware.Auth(verifier, nil), h.BookingAudit)

	env := &testEnv{router: r, verifier: verifier}
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/audit/bookings/bkg1", env.token(t, "admin1", "admin"), nil).Code)
}
