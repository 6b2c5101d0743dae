package model

import (
	"voltdock/shared/model"
)

const (
	TableName  = "payments"
	EntityName = "payment"

	FieldID             = "id"
	FieldReservationID  = "reservation_id"
	FieldAmount         = "amount"
	FieldStatus         = "status"
	FieldTransactionRef = "transaction_ref"
	FieldSuperseded     = "superseded"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

// Payment is the core's view of the external payment subsystem's record. A
// failed attempt is superseded when the payer retries, so at most one
// non-superseded payment exists per reservation.
type Payment struct {
	ID             string  `db:"id"`
	ReservationID  string  `db:"reservation_id"`
	Amount         float64 `db:"amount"`
	Status         Status  `db:"status"`
	TransactionRef string  `db:"transaction_ref"`
	Superseded     bool    `db:"superseded"`
	model.Metadata
}

// Refundable reports whether money moved and can still be returned.
func (p *Payment) Refundable() bool {
	return p.Status == StatusSuccess
}
