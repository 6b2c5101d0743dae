package model

import (
	"voltdock/shared/model"
)

const (
	TableName  = "chargers"
	EntityName = "charger"

	FieldID          = "id"
	FieldName        = "name"
	FieldAddress     = "address"
	FieldPricePerKwh = "price_per_kwh"
	FieldStatus      = "status"
)

const (
	StatusAvailable   = "available"
	StatusMaintenance = "maintenance"
	StatusRetired     = "retired"
)

type Charger struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	Address     string  `db:"address"`
	PricePerKwh float64 `db:"price_per_kwh"`
	Status      string  `db:"status"`
	model.Metadata
}
