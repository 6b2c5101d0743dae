package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"fmt"
	"time"
	"voltdock/infras/otel"
	"voltdock/infras/postgres"
	"voltdock/internal/domains/reservation/model"
	"voltdock/shared"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/failure"
	"voltdock/shared/logger"
	gRepo "voltdock/shared/repository"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const selectColumns = `id, charger_id, requester_id, start_time, end_time, status,
	price_per_kwh, reserved_until, energy_kwh, total_amount, version,
	created_at, modified_at, created_by, modified_by`

type Reservation interface {
	ReserveAtomically(ctx context.Context, chargerID string, fn func(ctx context.Context, tx *sqlx.Tx) error) error
	ExistsOverlapTx(ctx context.Context, tx *sqlx.Tx, chargerID string, start, end time.Time) (bool, error)
	InsertTx(ctx context.Context, tx *sqlx.Tx, mod model.Reservation) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Reservation, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Reservation, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Transition(ctx context.Context, id string, from, to model.Status, version int, set map[string]any) error
	FindDueForExpiry(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
	FindExpiringWithin(ctx context.Context, now, until time.Time) ([]model.Reservation, error)
}

type repositoryImpl struct {
	gRepo.Repository[model.Reservation]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Reservation {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Reservation](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

// ReserveAtomically runs fn inside a transaction that holds an advisory lock
// scoped to the charger id. Only one reservation attempt per charger can be in
// flight; attempts on other chargers proceed independently. The lock is held
// until commit, so the conflict check and the insert are a single atomic step.
func (repo *repositoryImpl) ReserveAtomically(ctx context.Context, chargerID string, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".reservation.ReserveAtomically")
	defer scope.End()
	defer scope.TraceIfError(err)

	tx, err := repo.db.Write.BeginTxx(ctx, nil)
	if err != nil {
		logger.ErrorWithStack(err)

		return fmt.Errorf("failed to begin reservation transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.ErrorWithStack(rbErr)
			}
		}
	}()

	// pg_advisory_xact_lock releases automatically at commit/rollback.
	if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", chargerID); err != nil {
		logger.ErrorWithStack(err)

		return fmt.Errorf("failed to acquire charger lock: %w", err)
	}

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		logger.ErrorWithStack(err)

		return fmt.Errorf("failed to commit reservation transaction: %w", err)
	}

	return nil
}

// ExistsOverlapTx reports whether any slot-holding reservation on the charger
// intersects the half-open interval [start, end). Touching intervals are not
// overlaps.
func (repo *repositoryImpl) ExistsOverlapTx(ctx context.Context, tx *sqlx.Tx, chargerID string, start, end time.Time) (bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".reservation.ExistsOverlapTx")
	defer scope.End()

	query := fmt.Sprintf(`SELECT EXISTS(
		SELECT 1 FROM %s
		WHERE charger_id = $1
		  AND status = ANY($2)
		  AND start_time < $3
		  AND end_time > $4
	)`, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var exists bool
	if err := tx.GetContext(ctx, &exists, query, chargerID, pq.Array(model.SlotHoldingStatuses()), end, start); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return false, fmt.Errorf("failed to check reservation overlap: %w", err)
	}

	return exists, nil
}

// Transition performs the guarded status change: the write only lands when the
// persisted status and version still match what the caller read. A zero-row
// update is resolved by re-reading: either the row is gone (not found) or a
// concurrent writer won the race.
func (repo *repositoryImpl) Transition(ctx context.Context, id string, from, to model.Status, version int, set map[string]any) (err error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".reservation.Transition")
	defer scope.End()

	query := fmt.Sprintf("UPDATE %s SET status = :to_status, version = version + 1", model.TableName)
	args := map[string]any{
		"id":          id,
		"from_status": string(from),
		"to_status":   string(to),
		"version":     version,
	}

	for col, val := range set {
		query += fmt.Sprintf(", %s = :%s", col, col)
		args[col] = val
	}

	query += " WHERE id = :id AND status = :from_status AND version = :version"
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	result, err := repo.db.Write.NamedExecContext(ctx, query, args)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return fmt.Errorf("failed to transition reservation %s to %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return fmt.Errorf("failed to read transition result for reservation %s: %w", id, err)
	}

	if rows == 0 {
		current, getErr := repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
		if getErr != nil {
			return getErr
		}

		if current.ID == constant.Empty {
			return failure.NotFound("reservation not found") // nolint:wrapcheck
		}

		return failure.ConcurrentModification( // nolint:wrapcheck
			fmt.Sprintf("reservation %s changed concurrently (status %s)", id, current.Status),
		)
	}

	return nil
}

// FindDueForExpiry returns reservations still holding a lapsed payment hold,
// oldest deadline first.
func (repo *repositoryImpl) FindDueForExpiry(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".reservation.FindDueForExpiry")
	defer scope.End()

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = ANY($1)
		  AND reserved_until < $2
		ORDER BY reserved_until ASC
		LIMIT $3`, selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	pending := []string{string(model.StatusReserved), string(model.StatusPaymentPending)}

	var models []model.Reservation
	if err := repo.db.Read.SelectContext(ctx, &models, query, pq.Array(pending), now, limit); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return nil, fmt.Errorf("failed to find reservations due for expiry: %w", err)
	}

	return models, nil
}

// FindExpiringWithin returns unpaid reservations whose hold deadline falls in
// (now, until]. Used by the sweeper's warning pass; it never mutates.
func (repo *repositoryImpl) FindExpiringWithin(ctx context.Context, now, until time.Time) ([]model.Reservation, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".reservation.FindExpiringWithin")
	defer scope.End()

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = ANY($1)
		  AND reserved_until > $2
		  AND reserved_until <= $3
		ORDER BY reserved_until ASC`, selectColumns, model.TableName)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	pending := []string{string(model.StatusReserved), string(model.StatusPaymentPending)}

	var models []model.Reservation
	if err := repo.db.Read.SelectContext(ctx, &models, query, pq.Array(pending), now, until); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return nil, fmt.Errorf("failed to find expiring reservations: %w", err)
	}

	return models, nil
}
