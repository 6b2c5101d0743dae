package service

import (
	"context"
	"fmt"
	"time"
	"voltdock/config"
	"voltdock/infras/otel"
	chargerModel "voltdock/internal/domains/charger/model"
	chargerRepository "voltdock/internal/domains/charger/repository"
	paymentModel "voltdock/internal/domains/payment/model"
	paymentRepository "voltdock/internal/domains/payment/repository"
	paymentService "voltdock/internal/domains/payment/service"
	"voltdock/internal/domains/reservation/model"
	"voltdock/internal/domains/reservation/model/dto"
	"voltdock/internal/domains/reservation/repository"
	"voltdock/internal/events"
	"voltdock/shared"
	"voltdock/shared/clock"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/failure"
	gModel "voltdock/shared/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type Reservation interface {
	Create(ctx context.Context, req dto.CreateReservationRequest) (dto.ReservationResponse, error)
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetReservationsResponse, error)
	GetMine(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetReservationsResponse, error)
	Get(ctx context.Context, id string) (dto.ReservationResponse, error)
	InitiatePayment(ctx context.Context, id string) (dto.ReservationResponse, error)
	Cancel(ctx context.Context, id string, req dto.CancelReservationRequest) (dto.CancelReservationResponse, error)
	RecordConsumption(ctx context.Context, id string, req dto.CompleteReservationRequest) (dto.ReservationResponse, error)
}

type serviceImpl struct {
	repo        repository.Reservation
	chargerRepo chargerRepository.Charger
	paymentRepo paymentRepository.Payment
	paymentSvc  paymentService.Payment
	publisher   events.Publisher
	cfg         *config.Config
	clock       clock.Clock
	otel        otel.Otel
}

func New(
	repo repository.Reservation,
	chargerRepo chargerRepository.Charger,
	paymentRepo paymentRepository.Payment,
	paymentSvc paymentService.Payment,
	publisher events.Publisher,
	cfg *config.Config,
	clock clock.Clock,
	otel otel.Otel,
) Reservation {
	return &serviceImpl{
		repo:        repo,
		chargerRepo: chargerRepo,
		paymentRepo: paymentRepo,
		paymentSvc:  paymentSvc,
		publisher:   publisher,
		cfg:         cfg,
		clock:       clock,
		otel:        otel,
	}
}

// Create places a new reservation. The conflict check and the insert run
// inside one charger-scoped critical section, so two concurrent requests for
// overlapping intervals on the same charger resolve to exactly one winner.
func (s *serviceImpl) Create(ctx context.Context, req dto.CreateReservationRequest) (res dto.ReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.Create")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)

	start, end, err := req.Interval()
	if err != nil {
		return res, failure.BadRequestFromString("start_time and end_time must be RFC 3339 timestamps") // nolint:wrapcheck
	}

	now := s.clock.Now()
	if err = s.validateInterval(start, end, now); err != nil {
		return res, err
	}

	charger, err := s.chargerRepo.Get(ctx, shared.FilterByID(req.ChargerID, chargerModel.FieldID, chargerModel.TableName))
	if err != nil {
		return res, err
	}

	if charger.ID == constant.Empty {
		return res, failure.NotFound("charger not found") // nolint:wrapcheck
	}

	if charger.Status != chargerModel.StatusAvailable {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("charger %s is %s and cannot be reserved", charger.ID, charger.Status),
		)
	}

	reservation := req.ToModel(requester, charger.PricePerKwh, start, end, now, time.Duration(s.cfg.Reservation.HoldWindowMinutes)*time.Minute)

	err = s.repo.ReserveAtomically(ctx, req.ChargerID, func(ctx context.Context, tx *sqlx.Tx) error {
		exists, checkErr := s.repo.ExistsOverlapTx(ctx, tx, req.ChargerID, start, end)
		if checkErr != nil {
			return checkErr
		}

		if exists {
			return failure.Conflict( // nolint:wrapcheck
				fmt.Sprintf("charger %s is already reserved during the requested window", req.ChargerID),
			)
		}

		return s.repo.InsertTx(ctx, tx, reservation)
	})
	if err != nil {
		return res, err
	}

	log.Info().
		Str("reservationID", reservation.ID).
		Str("chargerID", reservation.ChargerID).
		Time("startTime", reservation.StartTime).
		Msg("reservation created")

	res.FromModel(reservation, now)

	return res, nil
}

func (s *serviceImpl) validateInterval(start, end time.Time, now time.Time) error {
	policy := s.cfg.Reservation

	if start.Before(now.Add(time.Duration(policy.MinLeadTimeMinutes) * time.Minute)) {
		return failure.BadRequestFromString( // nolint:wrapcheck
			fmt.Sprintf("reservations must start at least %d minutes from now", policy.MinLeadTimeMinutes),
		)
	}

	if !end.After(start) {
		return failure.BadRequestFromString("end_time must be after start_time") // nolint:wrapcheck
	}

	duration := end.Sub(start)
	if duration < time.Duration(policy.MinDurationMinutes)*time.Minute {
		return failure.BadRequestFromString( // nolint:wrapcheck
			fmt.Sprintf("reservations must last at least %d minutes", policy.MinDurationMinutes),
		)
	}

	if duration > time.Duration(policy.MaxDurationMinutes)*time.Minute {
		return failure.BadRequestFromString( // nolint:wrapcheck
			fmt.Sprintf("reservations may last at most %d minutes", policy.MaxDurationMinutes),
		)
	}

	return nil
}

// GetAll lists reservations. Non-admin callers only ever see their own rows;
// the requester filter is forced here rather than trusted from the query.
func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetReservationsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	if role != constant.RoleAdmin {
		filter = withRequesterFilter(filter, requester)
	}

	return s.list(ctx, req, filter)
}

// GetMine lists the caller's own reservations. Unlike GetAll the requester
// filter applies to admins too; this is the personal view, not the admin one.
func (s *serviceImpl) GetMine(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetReservationsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.GetMine")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)

	return s.list(ctx, req, withRequesterFilter(filter, requester))
}

func withRequesterFilter(filter gDto.FilterGroup, requester string) gDto.FilterGroup {
	filter.Filters = append(filter.Filters, gDto.Filter{
		Field:    model.FieldRequesterID,
		Value:    requester,
		Operator: gDto.FilterOperatorEq,
		Table:    model.TableName,
	})

	return filter
}

func (s *serviceImpl) list(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetReservationsResponse, err error) {
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count reservations")

		return res, fmt.Errorf("failed to count reservations: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get reservations")

		return res, fmt.Errorf("failed to get reservations: %w", err)
	}

	res.FromModels(models, s.clock.Now(), total, req.Limit)

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.ReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	reservation, err := s.authorizedGet(ctx, id)
	if err != nil {
		return res, err
	}

	res.FromModel(reservation, s.clock.Now())

	return res, nil
}

// InitiatePayment moves a RESERVED reservation into PAYMENT_PENDING and opens
// a payment for the estimated session cost. A previous failed attempt is
// superseded so the reservation keeps a single payment in flight.
func (s *serviceImpl) InitiatePayment(ctx context.Context, id string) (res dto.ReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.InitiatePayment")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)

	reservation, err := s.authorizedGet(ctx, id)
	if err != nil {
		return res, err
	}

	now := s.clock.Now()

	if reservation.HoldExpired(now) {
		return res, failure.ReservationExpired( // nolint:wrapcheck
			fmt.Sprintf("payment hold for reservation %s has lapsed", id),
		)
	}

	if reservation.Status != model.StatusReserved {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("reservation %s is %s, payment can only start from RESERVED", id, reservation.Status),
		)
	}

	set := map[string]any{
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: requester,
	}
	if err = s.repo.Transition(ctx, id, model.StatusReserved, model.StatusPaymentPending, reservation.Version, set); err != nil {
		return res, err
	}

	amount := s.estimateAmount(reservation)

	if err = s.paymentRepo.SupersedeByReservation(ctx, id); err != nil {
		s.revertPaymentPending(ctx, reservation, now, requester)

		return res, err
	}

	payment := paymentModel.Payment{
		ID:            uuid.NewString(),
		ReservationID: id,
		Amount:        amount,
		Status:        paymentModel.StatusPending,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  requester,
			ModifiedBy: requester,
		},
	}
	if err = s.paymentRepo.Insert(ctx, payment); err != nil {
		s.revertPaymentPending(ctx, reservation, now, requester)

		return res, err
	}

	s.publish(ctx, events.LifecycleEvent{
		Type:          events.EventPaymentRequested,
		ReservationID: id,
		RequesterID:   reservation.RequesterID,
		ChargerID:     reservation.ChargerID,
		Amount:        amount,
		OccurredAt:    now,
	})

	reservation.Status = model.StatusPaymentPending
	res.FromModel(reservation, now)

	return res, nil
}

// revertPaymentPending hands the hold back after a failed payment setup so
// the requester can retry right away instead of waiting for the sweeper to
// reclaim the row. The transition already landed, hence version+1.
func (s *serviceImpl) revertPaymentPending(ctx context.Context, reservation model.Reservation, now time.Time, requester string) {
	set := map[string]any{
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: requester,
	}
	if err := s.repo.Transition(ctx, reservation.ID, model.StatusPaymentPending, model.StatusReserved, reservation.Version+1, set); err != nil {
		log.Warn().Err(err).Str("reservationID", reservation.ID).Msg("failed to revert reservation after payment setup error, sweeper will reclaim it")
	}
}

// estimateAmount prices the session from the snapshotted tariff and the
// configured average draw. Actual consumption settles separately when the
// session completes.
func (s *serviceImpl) estimateAmount(reservation model.Reservation) float64 {
	hours := reservation.EndTime.Sub(reservation.StartTime).Hours()

	return reservation.PricePerKwh * hours * s.cfg.Reservation.EstimatedKwhPerHour
}

// Cancel delegates to the payment reconciler, which owns the guard sequence
// and the refund path for paid reservations.
func (s *serviceImpl) Cancel(ctx context.Context, id string, req dto.CancelReservationRequest) (res dto.CancelReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.Cancel")
	defer scope.End()
	defer scope.TraceIfError(err)

	return s.paymentSvc.CancelWithRefund(ctx, id, req.Reason)
}

// RecordConsumption settles a finished session: the reservation becomes
// COMPLETED with the measured energy and the final charge derived from the
// snapshotted tariff.
func (s *serviceImpl) RecordConsumption(ctx context.Context, id string, req dto.CompleteReservationRequest) (res dto.ReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".reservation.RecordConsumption")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)

	reservation, err := s.authorizedGet(ctx, id)
	if err != nil {
		return res, err
	}

	now := s.clock.Now()

	if reservation.Status != model.StatusConfirmed && reservation.Status != model.StatusActive {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("reservation %s is %s, only confirmed sessions can be completed", id, reservation.Status),
		)
	}

	if now.Before(reservation.EndTime) {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("reservation %s has not ended yet", id),
		)
	}

	total := req.EnergyKwh * reservation.PricePerKwh

	set := map[string]any{
		model.FieldEnergyKwh:     req.EnergyKwh,
		model.FieldTotalAmount:   total,
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: requester,
	}
	if err = s.repo.Transition(ctx, id, reservation.Status, model.StatusCompleted, reservation.Version, set); err != nil {
		return res, err
	}

	log.Info().
		Str("reservationID", id).
		Float64("energyKwh", req.EnergyKwh).
		Float64("totalAmount", total).
		Msg("reservation completed")

	reservation.Status = model.StatusCompleted
	reservation.EnergyKwh.Valid = true
	reservation.EnergyKwh.Float64 = req.EnergyKwh
	reservation.TotalAmount.Valid = true
	reservation.TotalAmount.Float64 = total
	res.FromModel(reservation, now)

	return res, nil
}

// authorizedGet loads a reservation and enforces that only its owner or an
// admin may see it.
func (s *serviceImpl) authorizedGet(ctx context.Context, id string) (model.Reservation, error) {
	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	reservation, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		return reservation, err
	}

	if reservation.ID == constant.Empty {
		return reservation, failure.NotFound("reservation not found") // nolint:wrapcheck
	}

	if !reservation.OwnedBy(requester) && role != constant.RoleAdmin {
		return reservation, failure.Forbidden("reservation belongs to another requester") // nolint:wrapcheck
	}

	return reservation, nil
}

func (s *serviceImpl) publish(ctx context.Context, event events.LifecycleEvent) {
	if err := s.publisher.PublishLifecycle(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("type", string(event.Type)).
			Str("reservationID", event.ReservationID).
			Msg("failed to publish lifecycle event")
	}
}
