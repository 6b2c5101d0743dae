package model_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voltdock/internal/domains/reservation/model"
)

func TestReservation_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    model.Status
		to      model.Status
		allowed bool
	}{
		{name: "reserved to payment pending", from: model.StatusReserved, to: model.StatusPaymentPending, allowed: true},
		{name: "reserved to cancelled", from: model.StatusReserved, to: model.StatusCancelled, allowed: true},
		{name: "reserved to expired", from: model.StatusReserved, to: model.StatusExpired, allowed: true},
		{name: "reserved straight to confirmed", from: model.StatusReserved, to: model.StatusConfirmed, allowed: false},
		{name: "payment pending to confirmed", from: model.StatusPaymentPending, to: model.StatusConfirmed, allowed: true},
		{name: "payment pending back to reserved", from: model.StatusPaymentPending, to: model.StatusReserved, allowed: true},
		{name: "payment pending to expired", from: model.StatusPaymentPending, to: model.StatusExpired, allowed: true},
		{name: "confirmed to cancelled", from: model.StatusConfirmed, to: model.StatusCancelled, allowed: true},
		{name: "confirmed to completed", from: model.StatusConfirmed, to: model.StatusCompleted, allowed: true},
		{name: "confirmed to expired", from: model.StatusConfirmed, to: model.StatusExpired, allowed: false},
		{name: "completed is terminal", from: model.StatusCompleted, to: model.StatusCancelled, allowed: false},
		{name: "cancelled is terminal", from: model.StatusCancelled, to: model.StatusReserved, allowed: false},
		{name: "expired is terminal", from: model.StatusExpired, to: model.StatusReserved, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := model.Reservation{Status: tt.from}
			assert.Equal(t, tt.allowed, r.CanTransitionTo(tt.to))
		})
	}
}

func TestReservation_IsTerminal(t *testing.T) {
	for _, status := range []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusExpired} {
		r := model.Reservation{Status: status}
		assert.True(t, r.IsTerminal(), "status %s should be terminal", status)
	}

	for _, status := range []model.Status{model.StatusReserved, model.StatusPaymentPending, model.StatusConfirmed, model.StatusActive} {
		r := model.Reservation{Status: status}
		assert.False(t, r.IsTerminal(), "status %s should not be terminal", status)
	}
}

func TestReservation_EffectiveStatus(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name     string
		status   model.Status
		now      time.Time
		expected model.Status
	}{
		{name: "confirmed before start", status: model.StatusConfirmed, now: start.Add(-time.Minute), expected: model.StatusConfirmed},
		{name: "confirmed at start becomes active", status: model.StatusConfirmed, now: start, expected: model.StatusActive},
		{name: "confirmed mid-session is active", status: model.StatusConfirmed, now: start.Add(30 * time.Minute), expected: model.StatusActive},
		{name: "confirmed at end becomes completed", status: model.StatusConfirmed, now: end, expected: model.StatusCompleted},
		{name: "confirmed after end is completed", status: model.StatusConfirmed, now: end.Add(time.Hour), expected: model.StatusCompleted},
		{name: "reserved is not projected", status: model.StatusReserved, now: start.Add(30 * time.Minute), expected: model.StatusReserved},
		{name: "cancelled is not projected", status: model.StatusCancelled, now: end.Add(time.Hour), expected: model.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := model.Reservation{Status: tt.status, StartTime: start, EndTime: end}
			assert.Equal(t, tt.expected, r.EffectiveStatus(tt.now))
		})
	}
}

func TestReservation_Overlaps(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	r := model.Reservation{StartTime: start, EndTime: start.Add(time.Hour)}

	// [10:00,11:00) vs [10:30,11:30) overlaps.
	assert.True(t, r.Overlaps(start.Add(30*time.Minute), start.Add(90*time.Minute)))

	// Touching interval [11:00,12:00) does not overlap.
	assert.False(t, r.Overlaps(start.Add(time.Hour), start.Add(2*time.Hour)))

	// Touching interval [09:00,10:00) does not overlap.
	assert.False(t, r.Overlaps(start.Add(-time.Hour), start))

	// Fully contained interval overlaps.
	assert.True(t, r.Overlaps(start.Add(10*time.Minute), start.Add(20*time.Minute)))
}

func TestReservation_HoldExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	withHold := model.Reservation{ReservedUntil: sql.NullTime{Time: now.Add(10 * time.Minute), Valid: true}}
	assert.False(t, withHold.HoldExpired(now))
	assert.True(t, withHold.HoldExpired(now.Add(10*time.Minute)))
	assert.True(t, withHold.HoldExpired(now.Add(11*time.Minute)))

	noHold := model.Reservation{}
	assert.False(t, noHold.HoldExpired(now))
}
