// Package external holds clients for services outside tixgate. The payment
// gateway is stubbed: it approves every well-formed charge.
package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrPaymentDeclined is returned for a charge the gateway refused.
var ErrPaymentDeclined = errors.New("payment declined")

const PaymentStatusConfirmed = "CONFIRMED"

type PaymentConfig struct {
	Currency string
	// Latency simulates the round trip to a real gateway.
	Latency time.Duration
}

type ChargeRequest struct {
	OrderID     string
	Amount      int64
	Currency    string
	Description string
	Email       string
}

type ChargeResult struct {
	PaymentID string
	OrderID   string
	Status    string
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// PaymentClient charges a booking before it is confirmed.
type PaymentClient interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type StubPaymentClient struct {
	currency string
	latency  time.Duration
	now      func() time.Time
}

func NewStubPaymentClient(cfg PaymentConfig) *StubPaymentClient {
	currency := cfg.Currency
	if currency == "" {
		currency = "KZT"
	}
	return &StubPaymentClient{currency: currency, latency: cfg.Latency, now: time.Now}
}

func (c *StubPaymentClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPaymentDeclined)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", ErrPaymentDeclined, req.Amount)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = c.currency
	}

	if c.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.latency):
		}
	}

	result := &ChargeResult{
		PaymentID: "pay_" + uuid.New().String(),
		OrderID:   req.OrderID,
		Status:    PaymentStatusConfirmed,
		Amount:    req.Amount,
		Currency:  currency,
		CreatedAt: c.now().UTC(),
	}

	slog.Info("Payment confirmed by stub gateway",
		"order_id", req.OrderID, "payment_id", result.PaymentID, "amount", req.Amount, "currency", currency)
	return result, nil
}
