package events

//go:generate go run go.uber.org/mock/mockgen -source=./events.go -destination=./mocks/publisher_mock.go -package=mocks

import (
	"context"
	"time"
)

// EventType identifies a reservation lifecycle event consumed by the
// notification subsystem. Delivery and display are entirely the consumer's
// concern; the core only publishes.
type EventType string

const (
	EventReservationExpired  EventType = "RESERVATION_EXPIRED"
	EventReservationExpiring EventType = "RESERVATION_EXPIRING"
	EventBookingConfirmed    EventType = "BOOKING_CONFIRMED"
	EventBookingCancelled    EventType = "BOOKING_CANCELLED"
	EventPaymentRequested    EventType = "PAYMENT_REQUESTED"
)

type LifecycleEvent struct {
	Type          EventType `json:"type"`
	ReservationID string    `json:"reservation_id"`
	RequesterID   string    `json:"requester_id"`
	ChargerID     string    `json:"charger_id,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishLifecycle(ctx context.Context, event LifecycleEvent) error
}
