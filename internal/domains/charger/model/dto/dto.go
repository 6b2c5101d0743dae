package dto

import (
	"github.com/google/uuid"

	"voltdock/internal/domains/charger/model"
	"voltdock/shared"
	gDto "voltdock/shared/dto"
	gModel "voltdock/shared/model"
	"voltdock/shared/timezone"
)

type CreateChargerRequest struct {
	Name        string  `json:"name"          validate:"required,max=100"`
	Address     string  `json:"address"       validate:"required,max=255"`
	PricePerKwh float64 `json:"price_per_kwh" validate:"required,gt=0"`
	Status      string  `json:"status"        validate:"omitempty,oneof=available maintenance retired"`
}

func (c *CreateChargerRequest) ToModel(user string) model.Charger {
	status := model.StatusAvailable
	if c.Status != "" {
		status = c.Status
	}

	return model.Charger{
		ID:          uuid.NewString(),
		Name:        c.Name,
		Address:     c.Address,
		PricePerKwh: c.PricePerKwh,
		Status:      status,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}
}

type UpdateChargerRequest struct {
	Name        string  `db:"name"          json:"name"          validate:"omitempty,max=100"`
	Address     string  `db:"address"       json:"address"       validate:"omitempty,max=255"`
	PricePerKwh float64 `db:"price_per_kwh" json:"price_per_kwh" validate:"omitempty,gt=0"`
	Status      string  `db:"status"        json:"status"        validate:"omitempty,oneof=available maintenance retired"`
}

type ChargerResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	PricePerKwh float64 `json:"price_per_kwh"`
	Status      string  `json:"status"`
	gDto.Metadata
}

func (r *ChargerResponse) FromModel(mod model.Charger) {
	r.ID = mod.ID
	r.Name = mod.Name
	r.Address = mod.Address
	r.PricePerKwh = mod.PricePerKwh
	r.Status = mod.Status
	r.Metadata.FromModel(mod.Metadata)
}

type GetChargersResponse struct {
	Chargers  []ChargerResponse `json:"chargers"`
	TotalPage int               `json:"total_page"`
	TotalData int               `json:"total_data"`
}

func (r *GetChargersResponse) FromModels(models []model.Charger, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Chargers = make([]ChargerResponse, len(models))
	for i, mod := range models {
		r.Chargers[i].FromModel(mod)
	}
}
