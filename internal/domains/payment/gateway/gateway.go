package gateway

//go:generate go run go.uber.org/mock/mockgen -source=./gateway.go -destination=../mocks/gateway_mock.go -package=mocks

import (
	"context"
	"math/rand"
	"time"
	"voltdock/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Gateway is the boundary to the external payment provider. The core only
// issues refunds through it; charging is reported back to the core as payment
// outcomes, never fetched inline.
type Gateway interface {
	Refund(ctx context.Context, req RefundRequest) (RefundResponse, error)
}

type RefundRequest struct {
	PaymentID      string  `json:"payment_id"`
	TransactionRef string  `json:"transaction_ref"`
	Amount         float64 `json:"amount"`
	Reason         string  `json:"reason"`
}

type RefundResponse struct {
	Success       bool      `json:"success"`
	RefundRef     string    `json:"refund_ref"`
	RefundedAt    time.Time `json:"refunded_at"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// mockGateway simulates a payment provider with a configurable refund failure
// rate. Real settlement is a non-goal; this keeps the refund path exercisable
// end to end.
type mockGateway struct {
	failureRate float64
}

func New(cfg *config.Config) Gateway {
	return &mockGateway{
		failureRate: cfg.External.PaymentGateway.RefundFailureRate,
	}
}

func (g *mockGateway) Refund(ctx context.Context, req RefundRequest) (RefundResponse, error) {
	log.Info().
		Str("paymentID", req.PaymentID).
		Float64("amount", req.Amount).
		Msg("Requesting refund from payment gateway")

	if rand.Float64() < g.failureRate {
		return RefundResponse{
			Success:       false,
			FailureReason: "gateway declined refund",
		}, nil
	}

	return RefundResponse{
		Success:    true,
		RefundRef:  uuid.NewString(),
		RefundedAt: time.Now(),
	}, nil
}
