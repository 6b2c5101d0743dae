package model

import (
	"database/sql"
	"time"
	"voltdock/shared/model"
)

const (
	TableName  = "reservations"
	EntityName = "reservation"

	FieldID            = "id"
	FieldChargerID     = "charger_id"
	FieldRequesterID   = "requester_id"
	FieldStartTime     = "start_time"
	FieldEndTime       = "end_time"
	FieldStatus        = "status"
	FieldPricePerKwh   = "price_per_kwh"
	FieldReservedUntil = "reserved_until"
	FieldEnergyKwh     = "energy_kwh"
	FieldTotalAmount   = "total_amount"
	FieldVersion       = "version"
	FieldCreatedBy     = "created_by"
)

// Status is the persisted lifecycle state of a reservation. ACTIVE and
// COMPLETED also exist as read-derived projections of CONFIRMED, see
// EffectiveStatus.
type Status string

const (
	StatusReserved       Status = "RESERVED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusActive         Status = "ACTIVE"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusExpired        Status = "EXPIRED"
)

// SlotHoldingStatuses is the set of statuses that blocks a charger's time
// slot. RESERVED and PAYMENT_PENDING hold the slot provisionally so two
// concurrent payers cannot race for the same interval.
func SlotHoldingStatuses() []string {
	return []string{
		string(StatusReserved),
		string(StatusPaymentPending),
		string(StatusConfirmed),
		string(StatusActive),
	}
}

// transitions is the legal transition table. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusReserved:       {StatusPaymentPending, StatusCancelled, StatusExpired},
	StatusPaymentPending: {StatusConfirmed, StatusReserved, StatusCancelled, StatusExpired},
	StatusConfirmed:      {StatusActive, StatusCompleted, StatusCancelled},
	StatusActive:         {StatusCompleted},
}

type Reservation struct {
	ID            string          `db:"id"`
	ChargerID     string          `db:"charger_id"`
	RequesterID   string          `db:"requester_id"`
	StartTime     time.Time       `db:"start_time"`
	EndTime       time.Time       `db:"end_time"`
	Status        Status          `db:"status"`
	PricePerKwh   float64         `db:"price_per_kwh"`
	ReservedUntil sql.NullTime    `db:"reserved_until"`
	EnergyKwh     sql.NullFloat64 `db:"energy_kwh"`
	TotalAmount   sql.NullFloat64 `db:"total_amount"`
	Version       int             `db:"version"`
	model.Metadata
}

// IsTerminal reports whether the reservation reached a final state. Terminal
// reservations are retained for audit; no field may change anymore.
func (r *Reservation) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// HoldsSlot reports whether the reservation currently blocks its interval.
func (r *Reservation) HoldsSlot() bool {
	switch r.Status {
	case StatusReserved, StatusPaymentPending, StatusConfirmed, StatusActive:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal direct transition from the
// current persisted status.
func (r *Reservation) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[r.Status] {
		if allowed == next {
			return true
		}
	}

	return false
}

// HoldExpired reports whether the payment hold window has lapsed at now.
// Only reservations still in the pending-payment phase carry a hold.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.ReservedUntil.Valid && !now.Before(r.ReservedUntil.Time)
}

// OwnedBy reports whether the given requester created this reservation.
func (r *Reservation) OwnedBy(requester string) bool {
	return r.RequesterID == requester
}

// EffectiveStatus projects ACTIVE and COMPLETED from the current time for
// CONFIRMED reservations. The projection is display-state only: the persisted
// row stays CONFIRMED until consumption is recorded.
func (r *Reservation) EffectiveStatus(now time.Time) Status {
	if r.Status != StatusConfirmed && r.Status != StatusActive {
		return r.Status
	}

	if !now.Before(r.EndTime) {
		return StatusCompleted
	}

	if !now.Before(r.StartTime) {
		return StatusActive
	}

	return StatusConfirmed
}

// Overlaps reports whether the half-open interval [start, end) intersects the
// reservation's own interval. Touching intervals do not overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}
