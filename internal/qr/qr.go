// Package qr turns ticket payloads into scannable images and cleans up
// text coming back from a scanner. It knows nothing about ticket semantics.
package qr

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 512

// maxScanLength bounds accepted scanner input. Signed payloads are well below it.
const maxScanLength = 2048

// ErrUnreadable means the scan produced nothing usable and should be repeated.
// It is not a ticket validation failure.
var ErrUnreadable = errors.New("qr: scan could not be read")

// Encode renders payload as a PNG QR code with high error correction so
// that partially damaged prints still scan.
func Encode(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("qr: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}

	png, err := qrcode.Encode(payload, qrcode.High, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}

// Decode normalizes scanned text into the raw payload string.
func Decode(scanned string) (string, error) {
	s := strings.TrimPrefix(scanned, "\ufeff")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if s == "" || len(s) > maxScanLength {
		return "", ErrUnreadable
	}
	return s, nil
}
