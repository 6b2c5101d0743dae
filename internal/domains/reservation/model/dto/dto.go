package dto

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"voltdock/internal/domains/reservation/model"
	"voltdock/shared"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	gModel "voltdock/shared/model"
)

type CreateReservationRequest struct {
	ChargerID string `json:"charger_id" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time"   validate:"required"`
}

// Interval parses the requested time window. Validation of lead time and
// duration bounds is the service's concern; this only rejects unparseable
// input.
func (c *CreateReservationRequest) Interval() (start, end time.Time, err error) {
	start, err = time.Parse(constant.DateFormat, c.StartTime)
	if err != nil {
		return start, end, err
	}

	end, err = time.Parse(constant.DateFormat, c.EndTime)
	if err != nil {
		return start, end, err
	}

	return start, end, nil
}

// ToModel builds the initial RESERVED row: price snapshotted from the charger
// at creation, hold window stamped from now.
func (c *CreateReservationRequest) ToModel(requester string, pricePerKwh float64, start, end, now time.Time, holdWindow time.Duration) model.Reservation {
	return model.Reservation{
		ID:          uuid.NewString(),
		ChargerID:   c.ChargerID,
		RequesterID: requester,
		StartTime:   start,
		EndTime:     end,
		Status:      model.StatusReserved,
		PricePerKwh: pricePerKwh,
		ReservedUntil: sql.NullTime{
			Time:  now.Add(holdWindow),
			Valid: true,
		},
		Version: 1,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  requester,
			ModifiedBy: requester,
		},
	}
}

type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type PaymentOutcomeRequest struct {
	ReservationID  string `json:"reservation_id"  validate:"required"`
	Outcome        string `json:"outcome"         validate:"required,oneof=SUCCESS FAILURE"`
	TransactionRef string `json:"transaction_ref" validate:"omitempty,max=100"`
}

type CompleteReservationRequest struct {
	EnergyKwh float64 `json:"energy_kwh" validate:"required,gt=0"`
}

type ReservationResponse struct {
	ID            string   `json:"id"`
	ChargerID     string   `json:"charger_id"`
	RequesterID   string   `json:"requester_id"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	Status        string   `json:"status"`
	PricePerKwh   float64  `json:"price_per_kwh"`
	ReservedUntil *string  `json:"reserved_until,omitempty"`
	EnergyKwh     *float64 `json:"energy_kwh,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	gDto.Metadata
}

// FromModel maps a reservation to its API shape. Status is the read-derived
// projection at now, so a CONFIRMED booking inside its window reports ACTIVE.
func (r *ReservationResponse) FromModel(mod model.Reservation, now time.Time) {
	r.ID = mod.ID
	r.ChargerID = mod.ChargerID
	r.RequesterID = mod.RequesterID
	r.StartTime = mod.StartTime.Format(constant.DateFormat)
	r.EndTime = mod.EndTime.Format(constant.DateFormat)
	r.Status = string(mod.EffectiveStatus(now))
	r.PricePerKwh = mod.PricePerKwh

	if mod.ReservedUntil.Valid {
		until := mod.ReservedUntil.Time.Format(constant.DateFormat)
		r.ReservedUntil = &until
	}

	if mod.EnergyKwh.Valid {
		energy := mod.EnergyKwh.Float64
		r.EnergyKwh = &energy
	}

	if mod.TotalAmount.Valid {
		total := mod.TotalAmount.Float64
		r.TotalAmount = &total
	}

	r.Metadata.FromModel(mod.Metadata)
}

type GetReservationsResponse struct {
	Reservations []ReservationResponse `json:"reservations"`
	TotalPage    int                   `json:"total_page"`
	TotalData    int                   `json:"total_data"`
}

func (r *GetReservationsResponse) FromModels(models []model.Reservation, now time.Time, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Reservations = make([]ReservationResponse, len(models))
	for i, mod := range models {
		r.Reservations[i].FromModel(mod, now)
	}
}

// CancelReservationResponse bundles the cancellation outcome with the refund
// outcome when money already moved. RefundError set with Cancelled true is the
// partial-success case: the slot is released, the refund needs attention.
type CancelReservationResponse struct {
	ReservationID   string `json:"reservation_id"`
	Cancelled       bool   `json:"cancelled"`
	RefundRequested bool   `json:"refund_requested"`
	RefundError     string `json:"refund_error,omitempty"`
}
