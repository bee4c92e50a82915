package validation

import (
	"testing"
	"time"

	"tixgate/internal/models"
	"tixgate/internal/ticket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.UnixMilli(1_700_000_000_000).Add(time.Hour)

func newValidator(t *testing.T, legacy LegacyPolicy) (*Validator, *ticket.Keyring) {
	t.Helper()
	kr, err := ticket.NewKeyring("validator-secret")
	require.NoError(t, err)
	return NewValidator(kr, 365*24*time.Hour, legacy), kr
}

func confirmedBooking() *models.Booking {
	return &models.Booking{
		ID:           "bkg1",
		EventID:      "evt1",
		UserID:       "usr1",
		Status:       models.BookingConfirmed,
		TicketCount:  2,
		AttendeeName: "Aida Bekova",
		EventTitle:   "Spring Concert",
	}
}

func signedScan(t *testing.T, kr *ticket.Keyring, bookingID, eventID, userID string) string {
	t.Helper()
	raw, err := kr.Mint(bookingID, eventID, userID, now.Add(-time.Minute)).Encode()
	require.NoError(t, err)
	return raw
}

func TestValidate_SignedSuccess(t *testing.T) {
	v, kr := newValidator(t, LegacyPolicy{})
	raw := signedScan(t, kr, "bkg1", "evt1", "usr1")

	res := v.Validate(raw, confirmedBooking(), now)

	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, FormatSigned, res.Format)
	assert.Equal(t, &models.TicketSummary{
		BookingID:    "bkg1",
		AttendeeName: "Aida Bekova",
		TicketCount:  2,
		EventTitle:   "Spring Concert",
	}, res.Details)
}

func TestValidate_CrossEventRejected(t *testing.T) {
	v, kr := newValidator(t, LegacyPolicy{})
	raw := signedScan(t, kr, "bkg1", "evt1", "usr1")

	booking := confirmedBooking()
	booking.EventID = "evt2"

	res := v.Validate(raw, booking, now)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonEventMismatch, res.Reason)
	assert.Nil(t, res.Details)
}

func TestValidate_IdentifierMismatches(t *testing.T) {
	v, kr := newValidator(t, LegacyPolicy{})

	cases := []struct {
		name   string
		scan   [3]string
		reason string
	}{
		{"booking", [3]string{"bkg9", "evt1", "usr1"}, ReasonBookingMismatch},
		{"event", [3]string{"bkg1", "evt9", "usr1"}, ReasonEventMismatch},
		{"user", [3]string{"bkg1", "evt1", "usr9"}, ReasonUserMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := signedScan(t, kr, tc.scan[0], tc.scan[1], tc.scan[2])
			assert.Equal(t, tc.reason, v.Validate(raw, confirmedBooking(), now).Reason)
		})
	}
}

func TestValidate_SignedStatuses(t *testing.T) {
	v, kr := newValidator(t, LegacyPolicy{})
	raw := signedScan(t, kr, "bkg1", "evt1", "usr1")

	cases := map[models.BookingStatus]string{
		models.BookingCheckedIn: ReasonAlreadyCheckedIn,
		models.BookingPending:   ReasonBookingPending,
		models.BookingCancelled: ReasonBookingCancelled,
		models.BookingRefunded:  ReasonBookingRefunded,
	}
	for status, reason := range cases {
		booking := confirmedBooking()
		booking.Status = status
		assert.Equal(t, reason, v.Validate(raw, booking, now).Reason, status)
	}

	booking := confirmedBooking()
	booking.CheckedIn = true
	assert.Equal(t, ReasonAlreadyCheckedIn, v.Validate(raw, booking, now).Reason)
}

func TestValidate_SignatureFailuresComeFirst(t *testing.T) {
	v, _ := newValidator(t, LegacyPolicy{})

	other, err := ticket.NewKeyring("someone-else")
	require.NoError(t, err)
	forged := signedScan(t, other, "bkg1", "evt1", "usr1")

	// A forged ticket must not learn anything about the booking.
	assert.Equal(t, ticket.ReasonInvalidSignature, v.Validate(forged, nil, now).Reason)
}

func TestValidate_Expired(t *testing.T) {
	kr, err := ticket.NewKeyring("validator-secret")
	require.NoError(t, err)
	v := NewValidator(kr, 24*time.Hour, LegacyPolicy{})

	raw, err := kr.Mint("bkg1", "evt1", "usr1", now.Add(-25*time.Hour)).Encode()
	require.NoError(t, err)

	assert.Equal(t, ticket.ReasonExpired, v.Validate(raw, confirmedBooking(), now).Reason)
}

func TestValidate_BookingNotFound(t *testing.T) {
	v, kr := newValidator(t, LegacyPolicy{})
	raw := signedScan(t, kr, "bkg1", "evt1", "usr1")

	assert.Equal(t, ReasonBookingNotFound, v.Validate(raw, nil, now).Reason)
}

func TestValidate_InvalidFormat(t *testing.T) {
	v, _ := newValidator(t, LegacyPolicy{})

	for _, raw := range []string{"", "WIFI:S:venue;T:WPA;P:secret;;", "{broken"} {
		res := v.Validate(raw, confirmedBooking(), now)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonInvalidQRFormat, res.Reason)
	}
}

func TestValidate_LegacyScenario(t *testing.T) {
	v, _ := newValidator(t, LegacyPolicy{Until: now.Add(24 * time.Hour)})
	raw := "evt1-usr1-bkg1-1700000000000"

	res := v.Validate(raw, confirmedBooking(), now)
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, FormatLegacy, res.Format)

	booking := confirmedBooking()
	booking.CheckedIn = true
	res = v.Validate(raw, booking, now)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonAlreadyCheckedIn, res.Reason)
}

func TestValidate_LegacyStatuses(t *testing.T) {
	v, _ := newValidator(t, LegacyPolicy{Until: now.Add(time.Hour)})
	raw := "evt1|usr1|bkg1|1700000000000"

	booking := confirmedBooking()
	booking.Status = models.BookingCheckedIn
	assert.True(t, v.Validate(raw, booking, now).Valid)

	booking.Status = models.BookingCancelled
	assert.Equal(t, ReasonBookingCancelled, v.Validate(raw, booking, now).Reason)

	booking = confirmedBooking()
	booking.UserID = "usr2"
	assert.Equal(t, ReasonUserMismatch, v.Validate(raw, booking, now).Reason)
}

func TestValidate_LegacySunset(t *testing.T) {
	raw := "evt1-usr1-bkg1-1700000000000"

	disabled, _ := newValidator(t, LegacyPolicy{})
	assert.Equal(t, ReasonLegacyDisabled, disabled.Validate(raw, confirmedBooking(), now).Reason)

	expired, _ := newValidator(t, LegacyPolicy{Until: now})
	assert.Equal(t, ReasonLegacyDisabled, expired.Validate(raw, confirmedBooking(), now).Reason)
}

func TestBookingIDOf(t *testing.T) {
	_, kr := newValidator(t, LegacyPolicy{})

	id, ok := BookingIDOf(signedScan(t, kr, "bkg7", "evt1", "usr1"))
	assert.True(t, ok)
	assert.Equal(t, "bkg7", id)

	id, ok = BookingIDOf("evt1-usr1-bkg3-1700000000000")
	assert.True(t, ok)
	assert.Equal(t, "bkg3", id)

	_, ok = BookingIDOf("nonsense")
	assert.False(t, ok)
}
