package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"voltdock/infras/otel"
	"voltdock/infras/postgres"
	"voltdock/internal/domains/payment/model"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/logger"
	gRepo "voltdock/shared/repository"
)

type Payment interface {
	Insert(ctx context.Context, model model.Payment) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Payment, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	GetActiveByReservation(ctx context.Context, reservationID string) (model.Payment, error)
	SupersedeByReservation(ctx context.Context, reservationID string) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Payment]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Payment {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Payment](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

// GetActiveByReservation returns the single non-superseded payment for the
// reservation, or a zero Payment when none exists.
func (repo *repositoryImpl) GetActiveByReservation(ctx context.Context, reservationID string) (model.Payment, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".payment.GetActiveByReservation")
	defer scope.End()

	query := fmt.Sprintf(`SELECT id, reservation_id, amount, status, transaction_ref, superseded,
		created_at, modified_at, created_by, modified_by
		FROM %s WHERE reservation_id = $1 AND NOT superseded`, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var payment model.Payment

	err := repo.db.Read.GetContext(ctx, &payment, query, reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return model.Payment{}, fmt.Errorf("failed to get active payment: %w", err)
	}

	return payment, nil
}

// SupersedeByReservation retires the current payment attempt so a retry can
// insert a fresh one without violating the one-active-payment constraint.
func (repo *repositoryImpl) SupersedeByReservation(ctx context.Context, reservationID string) error {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".payment.SupersedeByReservation")
	defer scope.End()

	query := fmt.Sprintf("UPDATE %s SET superseded = TRUE WHERE reservation_id = $1 AND NOT superseded", model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	if _, err := repo.db.Write.ExecContext(ctx, query, reservationID); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return fmt.Errorf("failed to supersede payments: %w", err)
	}

	return nil
}
