package service

import (
	"context"
	"fmt"
	"time"
	"voltdock/config"
	"voltdock/infras/otel"
	"voltdock/internal/domains/payment/gateway"
	"voltdock/internal/domains/payment/model"
	"voltdock/internal/domains/payment/repository"
	resModel "voltdock/internal/domains/reservation/model"
	resDto "voltdock/internal/domains/reservation/model/dto"
	resRepository "voltdock/internal/domains/reservation/repository"
	"voltdock/internal/events"
	"voltdock/shared"
	"voltdock/shared/clock"
	"voltdock/shared/constant"
	"voltdock/shared/failure"

	"github.com/rs/zerolog/log"
)

const (
	outcomeSuccess = "SUCCESS"
	outcomeFailure = "FAILURE"

	gatewayActor = "payment-gateway"
)

// Payment reconciles externally reported payment outcomes with the
// reservation lifecycle and owns the refund path of cancellations.
type Payment interface {
	OnPaymentOutcome(ctx context.Context, req resDto.PaymentOutcomeRequest) (resDto.ReservationResponse, error)
	CancelWithRefund(ctx context.Context, reservationID, reason string) (resDto.CancelReservationResponse, error)
}

type serviceImpl struct {
	repo      repository.Payment
	resRepo   resRepository.Reservation
	gateway   gateway.Gateway
	publisher events.Publisher
	cfg       *config.Config
	clock     clock.Clock
	otel      otel.Otel
}

func New(
	repo repository.Payment,
	resRepo resRepository.Reservation,
	gateway gateway.Gateway,
	publisher events.Publisher,
	cfg *config.Config,
	clock clock.Clock,
	otel otel.Otel,
) Payment {
	return &serviceImpl{
		repo:      repo,
		resRepo:   resRepo,
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
		otel:      otel,
	}
}

// OnPaymentOutcome applies a gateway-reported outcome to the reservation. A
// success confirms the booking when the hold still stands. A success arriving
// after the hold lapsed is still recorded on the payment, but the call fails
// loudly so the caller knows a refund is owed. A failure reverts the
// reservation to RESERVED so the payer can retry within the hold window.
func (s *serviceImpl) OnPaymentOutcome(ctx context.Context, req resDto.PaymentOutcomeRequest) (res resDto.ReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".payment.OnPaymentOutcome")
	defer scope.End()
	defer scope.TraceIfError(err)

	reservation, err := s.resRepo.Get(ctx, shared.FilterByID(req.ReservationID, resModel.FieldID, resModel.TableName))
	if err != nil {
		return res, err
	}

	if reservation.ID == constant.Empty {
		return res, failure.NotFound("reservation not found") // nolint:wrapcheck
	}

	payment, err := s.repo.GetActiveByReservation(ctx, req.ReservationID)
	if err != nil {
		return res, err
	}

	if payment.ID == constant.Empty {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("no payment in flight for reservation %s", req.ReservationID),
		)
	}

	now := s.clock.Now()

	if req.Outcome == outcomeFailure {
		return s.applyFailure(ctx, reservation, payment, now)
	}

	return s.applySuccess(ctx, reservation, payment, req.TransactionRef, now)
}

func (s *serviceImpl) applySuccess(ctx context.Context, reservation resModel.Reservation, payment model.Payment, transactionRef string, now time.Time) (res resDto.ReservationResponse, err error) {
	// A redelivered SUCCESS for the payment that already confirmed this
	// booking is acknowledged as-is. Asking for a refund here would claw back
	// the money behind a booking that stays CONFIRMED.
	if reservation.Status == resModel.StatusConfirmed && payment.Status == model.StatusSuccess {
		log.Info().
			Str("reservationID", reservation.ID).
			Str("paymentID", payment.ID).
			Msg("duplicate payment success for a confirmed reservation, ignoring")

		res.FromModel(reservation, now)

		return res, nil
	}

	// The money moved regardless of what the reservation looks like, so the
	// payment record is updated first.
	update := map[string]any{
		model.FieldStatus:         string(model.StatusSuccess),
		model.FieldTransactionRef: transactionRef,
		constant.FieldModifiedAt:  now,
		constant.FieldModifiedBy:  gatewayActor,
	}
	if err = s.repo.Update(ctx, update, shared.FilterByID(payment.ID, model.FieldID, model.TableName)); err != nil {
		return res, err
	}

	if reservation.Status != resModel.StatusPaymentPending || reservation.HoldExpired(now) {
		log.Warn().
			Str("reservationID", reservation.ID).
			Str("status", string(reservation.Status)).
			Msg("payment succeeded for a reservation no longer awaiting payment, refund required")

		return res, failure.ReservationExpired( // nolint:wrapcheck
			fmt.Sprintf("reservation %s is no longer payable, payment recorded and must be refunded", reservation.ID),
		)
	}

	set := map[string]any{
		resModel.FieldReservedUntil: nil,
		constant.FieldModifiedAt:    now,
		constant.FieldModifiedBy:    gatewayActor,
	}
	if err = s.resRepo.Transition(ctx, reservation.ID, resModel.StatusPaymentPending, resModel.StatusConfirmed, reservation.Version, set); err != nil {
		if failure.IsConcurrentModification(err) {
			// Most likely the sweeper expired the hold between our read and the
			// write. The payment is recorded; the booking is not.
			log.Warn().
				Str("reservationID", reservation.ID).
				Msg("reservation changed while confirming payment, refund required")

			return res, failure.ReservationExpired( // nolint:wrapcheck
				fmt.Sprintf("reservation %s changed while confirming, payment recorded and must be refunded", reservation.ID),
			)
		}

		return res, err
	}

	s.publish(ctx, events.LifecycleEvent{
		Type:          events.EventBookingConfirmed,
		ReservationID: reservation.ID,
		RequesterID:   reservation.RequesterID,
		ChargerID:     reservation.ChargerID,
		Amount:        payment.Amount,
		OccurredAt:    now,
	})

	reservation.Status = resModel.StatusConfirmed
	reservation.ReservedUntil.Valid = false
	res.FromModel(reservation, now)

	return res, nil
}

func (s *serviceImpl) applyFailure(ctx context.Context, reservation resModel.Reservation, payment model.Payment, now time.Time) (res resDto.ReservationResponse, err error) {
	update := map[string]any{
		model.FieldStatus:        string(model.StatusFailed),
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: gatewayActor,
	}
	if err = s.repo.Update(ctx, update, shared.FilterByID(payment.ID, model.FieldID, model.TableName)); err != nil {
		return res, err
	}

	if reservation.Status != resModel.StatusPaymentPending {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("reservation %s is not awaiting payment", reservation.ID),
		)
	}

	// A lapsed hold belongs to the sweeper; reverting it here would race the
	// expiry pass.
	if reservation.HoldExpired(now) {
		res.FromModel(reservation, now)

		return res, nil
	}

	set := map[string]any{
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: gatewayActor,
	}
	if err = s.resRepo.Transition(ctx, reservation.ID, resModel.StatusPaymentPending, resModel.StatusReserved, reservation.Version, set); err != nil {
		return res, err
	}

	reservation.Status = resModel.StatusReserved
	res.FromModel(reservation, now)

	return res, nil
}

// CancelWithRefund cancels a reservation on behalf of the requester in the
// context. Paid reservations additionally go through the gateway refund; a
// refund failure does not undo the cancellation, the response reports it so
// the caller can retry the refund out of band.
func (s *serviceImpl) CancelWithRefund(ctx context.Context, reservationID, reason string) (res resDto.CancelReservationResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".payment.CancelWithRefund")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	reservation, err := s.resRepo.Get(ctx, shared.FilterByID(reservationID, resModel.FieldID, resModel.TableName))
	if err != nil {
		return res, err
	}

	if reservation.ID == constant.Empty {
		return res, failure.NotFound("reservation not found") // nolint:wrapcheck
	}

	if !reservation.OwnedBy(requester) && role != constant.RoleAdmin {
		return res, failure.Forbidden("reservation belongs to another requester") // nolint:wrapcheck
	}

	if reservation.IsTerminal() {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("reservation %s is already %s", reservation.ID, reservation.Status),
		)
	}

	now := s.clock.Now()
	deadline := reservation.StartTime.Add(-time.Duration(s.cfg.Reservation.CancellationLeadMinutes) * time.Minute)

	if !now.Before(deadline) {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("cancellation window closed, reservations must be cancelled at least %d minutes before start", s.cfg.Reservation.CancellationLeadMinutes),
		)
	}

	if !reservation.CanTransitionTo(resModel.StatusCancelled) {
		return res, failure.InvalidState( // nolint:wrapcheck
			fmt.Sprintf("reservation %s cannot be cancelled from %s", reservation.ID, reservation.Status),
		)
	}

	set := map[string]any{
		resModel.FieldReservedUntil: nil,
		constant.FieldModifiedAt:    now,
		constant.FieldModifiedBy:    requester,
	}
	if err = s.resRepo.Transition(ctx, reservation.ID, reservation.Status, resModel.StatusCancelled, reservation.Version, set); err != nil {
		return res, err
	}

	res.ReservationID = reservation.ID
	res.Cancelled = true

	// The reservation is cancelled at this point. Refund troubles from here on
	// degrade the response, they never suppress the lifecycle event.
	payment, err := s.repo.GetActiveByReservation(ctx, reservationID)
	if err != nil {
		log.Error().Err(err).Str("reservationID", reservationID).Msg("failed to look up payment after cancellation")
		res.RefundError = "payment lookup failed, refund must be issued manually"
	}

	if err == nil && payment.Refundable() {
		res.RefundRequested = true

		if refundErr := s.refund(ctx, payment, reason, now); refundErr != nil {
			res.RefundError = refundErr.Error()
		}
	}

	s.publish(ctx, events.LifecycleEvent{
		Type:          events.EventBookingCancelled,
		ReservationID: reservation.ID,
		RequesterID:   reservation.RequesterID,
		ChargerID:     reservation.ChargerID,
		Amount:        payment.Amount,
		OccurredAt:    now,
	})

	return res, nil
}

func (s *serviceImpl) refund(ctx context.Context, payment model.Payment, reason string, now time.Time) error {
	resp, err := s.gateway.Refund(ctx, gateway.RefundRequest{
		PaymentID:      payment.ID,
		TransactionRef: payment.TransactionRef,
		Amount:         payment.Amount,
		Reason:         reason,
	})
	if err != nil {
		log.Error().Err(err).Str("paymentID", payment.ID).Msg("refund request failed")

		return fmt.Errorf("refund request failed: %w", err)
	}

	if !resp.Success {
		log.Warn().Str("paymentID", payment.ID).Str("reason", resp.FailureReason).Msg("gateway declined refund")

		return fmt.Errorf("gateway declined refund: %s", resp.FailureReason)
	}

	update := map[string]any{
		model.FieldStatus:        string(model.StatusRefunded),
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: gatewayActor,
	}
	if err = s.repo.Update(ctx, update, shared.FilterByID(payment.ID, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Str("paymentID", payment.ID).Msg("failed to record refund")

		return fmt.Errorf("refund issued but not recorded: %w", err)
	}

	return nil
}

func (s *serviceImpl) publish(ctx context.Context, event events.LifecycleEvent) {
	if err := s.publisher.PublishLifecycle(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("type", string(event.Type)).
			Str("reservationID", event.ReservationID).
			Msg("failed to publish lifecycle event")
	}
}
