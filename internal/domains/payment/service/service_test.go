package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"voltdock/config"
	"voltdock/infras/otel/mocks"
	"voltdock/internal/domains/payment/gateway"
	paymentMocks "voltdock/internal/domains/payment/mocks"
	"voltdock/internal/domains/payment/model"
	"voltdock/internal/domains/payment/service"
	reservationMocks "voltdock/internal/domains/reservation/mocks"
	resModel "voltdock/internal/domains/reservation/model"
	resDto "voltdock/internal/domains/reservation/model/dto"
	"voltdock/internal/events"
	eventMocks "voltdock/internal/events/mocks"
	"voltdock/shared/clock/clockmock"
	"voltdock/shared/constant"
	"voltdock/shared/failure"
)

type paymentFixture struct {
	svc       service.Payment
	repo      *paymentMocks.MockPayment
	resRepo   *reservationMocks.MockReservation
	gateway   *paymentMocks.MockGateway
	publisher *eventMocks.MockPublisher
	clock     *clockmock.Clock
}

func newPaymentFixture(t *testing.T, now time.Time) paymentFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	cfg := &config.Config{}
	cfg.Reservation.CancellationLeadMinutes = 60

	f := paymentFixture{
		repo:      paymentMocks.NewMockPayment(ctrl),
		resRepo:   reservationMocks.NewMockReservation(ctrl),
		gateway:   paymentMocks.NewMockGateway(ctrl),
		publisher: eventMocks.NewMockPublisher(ctrl),
		clock:     clockmock.New(now),
	}

	f.svc = service.New(f.repo, f.resRepo, f.gateway, f.publisher, cfg, f.clock, mocks.NewOtel())

	return f
}

func userContext(userID string) context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, userID)

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleUser)
}

func adminContext() context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "admin-1")

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleAdmin)
}

func pendingReservation(now time.Time) resModel.Reservation {
	r := resModel.Reservation{
		ID:          "res-1",
		ChargerID:   "charger-1",
		RequesterID: "user-1",
		StartTime:   now.Add(3 * time.Hour),
		EndTime:     now.Add(5 * time.Hour),
		Status:      resModel.StatusPaymentPending,
		PricePerKwh: 0.5,
		Version:     2,
	}
	r.ReservedUntil.Valid = true
	r.ReservedUntil.Time = now.Add(5 * time.Minute)

	return r
}

func activePayment() model.Payment {
	return model.Payment{
		ID:            "pay-1",
		ReservationID: "res-1",
		Amount:        7,
		Status:        model.StatusPending,
	}
}

func TestPaymentService_OnPaymentOutcome_Success(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	outcome := resDto.PaymentOutcomeRequest{
		ReservationID:  "res-1",
		Outcome:        "SUCCESS",
		TransactionRef: "txn-42",
	}

	t.Run("confirms the booking", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(pendingReservation(now), nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(activePayment(), nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req map[string]any, _ any) error {
				assert.Equal(t, string(model.StatusSuccess), req[model.FieldStatus])
				assert.Equal(t, "txn-42", req[model.FieldTransactionRef])

				return nil
			})

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusPaymentPending, resModel.StatusConfirmed, 2, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _, _ resModel.Status, _ int, set map[string]any) error {
				// Confirmation clears the hold deadline.
				assert.Nil(t, set[resModel.FieldReservedUntil])

				return nil
			})

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.LifecycleEvent) error {
				assert.Equal(t, events.EventBookingConfirmed, event.Type)

				return nil
			})

		res, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.NoError(t, err)
		assert.Equal(t, string(resModel.StatusConfirmed), res.Status)
		assert.Nil(t, res.ReservedUntil)
	})

	t.Run("duplicate success for a confirmed booking is acknowledged", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		confirmed := pendingReservation(now)
		confirmed.Status = resModel.StatusConfirmed
		confirmed.ReservedUntil.Valid = false
		confirmed.Version = 3

		settled := activePayment()
		settled.Status = model.StatusSuccess
		settled.TransactionRef = "txn-42"

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed, nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(settled, nil)

		// No payment update, no transition, no event. The booking this
		// payment bought stays exactly as it is.
		res, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.NoError(t, err)
		assert.Equal(t, string(resModel.StatusConfirmed), res.Status)
	})

	t.Run("success after hold lapsed still records the payment", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		lapsed := pendingReservation(now)
		lapsed.ReservedUntil.Time = now.Add(-time.Minute)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(lapsed, nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(activePayment(), nil)

		// The money moved, so the payment record is still updated.
		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		_, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.True(t, failure.IsReservationExpired(err))
	})

	t.Run("success after expiry still records the payment", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		expired := pendingReservation(now)
		expired.Status = resModel.StatusExpired
		expired.ReservedUntil.Valid = false

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(expired, nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(activePayment(), nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		_, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.True(t, failure.IsReservationExpired(err))
	})

	t.Run("sweeper wins the confirmation race", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(pendingReservation(now), nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(activePayment(), nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusPaymentPending, resModel.StatusConfirmed, 2, gomock.Any()).
			Return(failure.ConcurrentModification("reservation res-1 changed concurrently (status EXPIRED)"))

		_, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.True(t, failure.IsReservationExpired(err))
	})

	t.Run("no payment in flight", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(pendingReservation(now), nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(model.Payment{}, nil)

		_, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.True(t, failure.IsInvalidState(err))
	})

	t.Run("reservation not found", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(resModel.Reservation{}, nil)

		_, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.Error(t, err)
	})
}

func TestPaymentService_OnPaymentOutcome_Failure(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	outcome := resDto.PaymentOutcomeRequest{
		ReservationID: "res-1",
		Outcome:       "FAILURE",
	}

	t.Run("reverts to RESERVED within the hold", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(pendingReservation(now), nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(activePayment(), nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req map[string]any, _ any) error {
				assert.Equal(t, string(model.StatusFailed), req[model.FieldStatus])

				return nil
			})

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusPaymentPending, resModel.StatusReserved, 2, gomock.Any()).
			Return(nil)

		res, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.NoError(t, err)
		assert.Equal(t, string(resModel.StatusReserved), res.Status)
	})

	t.Run("lapsed hold is left for the sweeper", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		lapsed := pendingReservation(now)
		lapsed.ReservedUntil.Time = now.Add(-time.Minute)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(lapsed, nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(activePayment(), nil)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		// No Transition expectation: the sweeper owns expiry.
		_, err := f.svc.OnPaymentOutcome(adminContext(), outcome)

		assert.NoError(t, err)
	})
}

func TestPaymentService_CancelWithRefund(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	confirmed := func() resModel.Reservation {
		return resModel.Reservation{
			ID:          "res-1",
			ChargerID:   "charger-1",
			RequesterID: "user-1",
			StartTime:   now.Add(3 * time.Hour),
			EndTime:     now.Add(5 * time.Hour),
			Status:      resModel.StatusConfirmed,
			PricePerKwh: 0.5,
			Version:     3,
		}
	}

	paidPayment := func() model.Payment {
		p := activePayment()
		p.Status = model.StatusSuccess
		p.TransactionRef = "txn-42"

		return p
	}

	t.Run("cancels and refunds a paid booking", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed(), nil)

		transition := f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusConfirmed, resModel.StatusCancelled, 3, gomock.Any()).
			Return(nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(paidPayment(), nil)

		// The slot is released before the gateway is touched.
		refund := f.gateway.EXPECT().
			Refund(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req gateway.RefundRequest) (gateway.RefundResponse, error) {
				assert.Equal(t, "pay-1", req.PaymentID)
				assert.Equal(t, 7.0, req.Amount)

				return gateway.RefundResponse{Success: true, RefundRef: "ref-1"}, nil
			})

		gomock.InOrder(transition, refund)

		f.repo.EXPECT().
			Update(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req map[string]any, _ any) error {
				assert.Equal(t, string(model.StatusRefunded), req[model.FieldStatus])

				return nil
			})

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.LifecycleEvent) error {
				assert.Equal(t, events.EventBookingCancelled, event.Type)

				return nil
			})

		res, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "change of plans")

		assert.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.True(t, res.RefundRequested)
		assert.Empty(t, res.RefundError)
	})

	t.Run("declined refund is a partial success", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed(), nil)

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusConfirmed, resModel.StatusCancelled, 3, gomock.Any()).
			Return(nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(paidPayment(), nil)

		f.gateway.EXPECT().
			Refund(gomock.Any(), gomock.Any()).
			Return(gateway.RefundResponse{Success: false, FailureReason: "insufficient gateway balance"}, nil)

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			Return(nil)

		res, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "")

		assert.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.True(t, res.RefundRequested)
		assert.NotEmpty(t, res.RefundError)
	})

	t.Run("unpaid booking skips the gateway", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		reserved := confirmed()
		reserved.Status = resModel.StatusReserved

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(reserved, nil)

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusReserved, resModel.StatusCancelled, 3, gomock.Any()).
			Return(nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(model.Payment{}, nil)

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			Return(nil)

		res, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "")

		assert.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.False(t, res.RefundRequested)
	})

	t.Run("payment lookup failure still announces the cancellation", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed(), nil)

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusConfirmed, resModel.StatusCancelled, 3, gomock.Any()).
			Return(nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(model.Payment{}, errors.New("connection reset"))

		// The booking is cancelled either way, so the event goes out.
		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.LifecycleEvent) error {
				assert.Equal(t, events.EventBookingCancelled, event.Type)

				return nil
			})

		res, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "")

		assert.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.False(t, res.RefundRequested)
		assert.NotEmpty(t, res.RefundError)
	})

	t.Run("cancellation window closed", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		soon := confirmed()
		soon.StartTime = now.Add(30 * time.Minute)
		soon.EndTime = now.Add(2 * time.Hour)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(soon, nil)

		_, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "")

		assert.True(t, failure.IsInvalidState(err))
	})

	t.Run("terminal reservation", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		done := confirmed()
		done.Status = resModel.StatusCancelled

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(done, nil)

		_, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "")

		assert.True(t, failure.IsInvalidState(err))
	})

	t.Run("not the owner", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed(), nil)

		_, err := f.svc.CancelWithRefund(userContext("somebody-else"), "res-1", "")

		assert.Error(t, err)
	})

	t.Run("admin may cancel on behalf of the owner", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		reserved := confirmed()
		reserved.Status = resModel.StatusReserved

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(reserved, nil)

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusReserved, resModel.StatusCancelled, 3, gomock.Any()).
			Return(nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(model.Payment{}, nil)

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			Return(nil)

		res, err := f.svc.CancelWithRefund(adminContext(), "res-1", "operator action")

		assert.NoError(t, err)
		assert.True(t, res.Cancelled)
	})

	t.Run("gateway transport error is reported", func(t *testing.T) {
		f := newPaymentFixture(t, now)

		f.resRepo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed(), nil)

		f.resRepo.EXPECT().
			Transition(gomock.Any(), "res-1", resModel.StatusConfirmed, resModel.StatusCancelled, 3, gomock.Any()).
			Return(nil)

		f.repo.EXPECT().
			GetActiveByReservation(gomock.Any(), "res-1").
			Return(paidPayment(), nil)

		f.gateway.EXPECT().
			Refund(gomock.Any(), gomock.Any()).
			Return(gateway.RefundResponse{}, errors.New("gateway unreachable"))

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			Return(nil)

		res, err := f.svc.CancelWithRefund(userContext("user-1"), "res-1", "")

		assert.NoError(t, err)
		assert.True(t, res.Cancelled)
		assert.NotEmpty(t, res.RefundError)
	})
}
