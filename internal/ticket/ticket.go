// Package ticket mints and verifies the HMAC-signed payloads carried by QR tickets.
package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSecret is returned when a Keyring is built without an active key.
var ErrMissingSecret = errors.New("ticket: signing secret is not configured")

// Verification reasons. They are shown to operators and written to the audit log.
const (
	ReasonMalformed        = "malformed"
	ReasonInvalidSignature = "invalid_signature"
	ReasonExpired          = "expired"
	ReasonIssuedInFuture   = "issued_in_future"
)

// signatureHexLen is the length of a hex-encoded HMAC-SHA-256.
const signatureHexLen = sha256.Size * 2

// futureSkew tolerates clock drift between the minting host and the scanner.
const futureSkew = 60 * time.Second

// Payload is the signed proof of a booking that travels inside a QR code.
type Payload struct {
	BookingID string `json:"bookingId"`
	EventID   string `json:"eventId"`
	UserID    string `json:"userId"`
	IssuedAt  int64  `json:"issuedAt"`
	Signature string `json:"signature"`
}

// LegacyPayload is a ticket minted before signing existed. It carries no
// signature and must never be treated as verified.
type LegacyPayload struct {
	EventID   string
	UserID    string
	BookingID string
	IssuedAt  int64
}

// Format tells callers which branch a parsed ticket belongs to.
type Format int

const (
	FormatUnknown Format = iota
	FormatSigned
	FormatLegacy
)

// Parsed is the result of Parse. Exactly one of Signed and Legacy is set
// when Format is not FormatUnknown.
type Parsed struct {
	Format Format
	Signed *Payload
	Legacy *LegacyPayload
}

// Verification is the outcome of Keyring.Verify. Reason is empty when Valid.
type Verification struct {
	Valid  bool
	Reason string
}

// CanonicalString is the exact byte sequence covered by the signature.
func CanonicalString(bookingID, eventID, userID string, issuedAt int64) string {
	return bookingID + "|" + eventID + "|" + userID + "|" + strconv.FormatInt(issuedAt, 10)
}

// Encode serializes a signed payload into the compact JSON carried by the QR code.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode ticket payload: %w", err)
	}
	return string(data), nil
}

// Parse recognizes the signed JSON format and the legacy delimited format.
// It returns a Parsed with FormatUnknown for anything else.
func Parse(raw string) Parsed {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Parsed{}
	}

	if strings.HasPrefix(raw, "{") {
		p, ok := parseSigned(raw)
		if !ok {
			return Parsed{}
		}
		return Parsed{Format: FormatSigned, Signed: p}
	}

	if lp, ok := parseLegacy(raw); ok {
		return Parsed{Format: FormatLegacy, Legacy: lp}
	}
	return Parsed{}
}

func parseSigned(raw string) (*Payload, bool) {
	// Decode into loosely typed fields first so that a wrong JSON type
	// yields a malformed payload instead of a decode error.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false
	}

	p := &Payload{}
	for name, dst := range map[string]*string{
		"bookingId": &p.BookingID,
		"eventId":   &p.EventID,
		"userId":    &p.UserID,
		"signature": &p.Signature,
	} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		// Wrong types are left empty and reported as malformed by Verify.
		_ = json.Unmarshal(v, dst)
	}
	if v, ok := fields["issuedAt"]; ok {
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			if ts, err := n.Int64(); err == nil {
				p.IssuedAt = ts
			}
		}
	}
	return p, true
}

func parseLegacy(raw string) (*LegacyPayload, bool) {
	var parts []string
	switch {
	case strings.Count(raw, "|") == 3:
		parts = strings.Split(raw, "|")
	case strings.Count(raw, "-") == 3:
		parts = strings.Split(raw, "-")
	default:
		return nil, false
	}

	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, false
		}
	}

	issuedAt, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || issuedAt <= 0 {
		return nil, false
	}

	return &LegacyPayload{
		EventID:   parts[0],
		UserID:    parts[1],
		BookingID: parts[2],
		IssuedAt:  issuedAt,
	}, true
}

// Keyring signs with one active key and verifies against the active key
// plus any retired keys still inside their rotation grace window.
type Keyring struct {
	active  []byte
	retired [][]byte
}

// NewKeyring builds a Keyring. The active secret is mandatory; empty
// retired secrets are ignored.
func NewKeyring(active string, retired ...string) (*Keyring, error) {
	if active == "" {
		return nil, ErrMissingSecret
	}

	kr := &Keyring{active: []byte(active)}
	for _, secret := range retired {
		if secret == "" || secret == active {
			continue
		}
		kr.retired = append(kr.retired, []byte(secret))
	}
	return kr, nil
}

// Mint signs a new payload. now must be the server wall clock at mint time.
func (k *Keyring) Mint(bookingID, eventID, userID string, now time.Time) Payload {
	issuedAt := now.UnixMilli()
	return Payload{
		BookingID: bookingID,
		EventID:   eventID,
		UserID:    userID,
		IssuedAt:  issuedAt,
		Signature: sign(k.active, CanonicalString(bookingID, eventID, userID, issuedAt)),
	}
}

// Verify recomputes the MAC and checks freshness. maxAge bounds how old
// issuedAt may be relative to now.
func (k *Keyring) Verify(p Payload, now time.Time, maxAge time.Duration) Verification {
	if p.BookingID == "" || p.EventID == "" || p.UserID == "" || p.IssuedAt <= 0 {
		return Verification{Reason: ReasonMalformed}
	}

	given, err := hex.DecodeString(p.Signature)
	if err != nil || len(p.Signature) != signatureHexLen {
		return Verification{Reason: ReasonMalformed}
	}

	canonical := CanonicalString(p.BookingID, p.EventID, p.UserID, p.IssuedAt)

	// Every key is checked so timing does not reveal which one matched.
	matched := 0
	for _, key := range k.keys() {
		matched |= subtle.ConstantTimeCompare(mac(key, canonical), given)
	}
	if matched != 1 {
		return Verification{Reason: ReasonInvalidSignature}
	}

	age := now.UnixMilli() - p.IssuedAt
	if age > maxAge.Milliseconds() {
		return Verification{Reason: ReasonExpired}
	}
	if -age > futureSkew.Milliseconds() {
		return Verification{Reason: ReasonIssuedInFuture}
	}

	return Verification{Valid: true}
}

func (k *Keyring) keys() [][]byte {
	keys := make([][]byte, 0, 1+len(k.retired))
	keys = append(keys, k.active)
	return append(keys, k.retired...)
}

func mac(key []byte, canonical string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(canonical))
	return h.Sum(nil)
}

func sign(key []byte, canonical string) string {
	return hex.EncodeToString(mac(key, canonical))
}
