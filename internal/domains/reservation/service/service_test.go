package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"voltdock/config"
	"voltdock/infras/otel/mocks"
	chargerMocks "voltdock/internal/domains/charger/mocks"
	chargerModel "voltdock/internal/domains/charger/model"
	paymentMocks "voltdock/internal/domains/payment/mocks"
	paymentModel "voltdock/internal/domains/payment/model"
	paymentService "voltdock/internal/domains/payment/service"
	reservationMocks "voltdock/internal/domains/reservation/mocks"
	"voltdock/internal/domains/reservation/model"
	"voltdock/internal/domains/reservation/model/dto"
	"voltdock/internal/domains/reservation/service"
	"voltdock/internal/events"
	eventMocks "voltdock/internal/events/mocks"
	"voltdock/shared/clock/clockmock"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/failure"
	gModel "voltdock/shared/model"
)

func assertRequesterFilter(t *testing.T, filter gDto.FilterGroup, requester string) {
	t.Helper()

	for _, raw := range filter.Filters {
		if f, ok := raw.(gDto.Filter); ok && f.Field == model.FieldRequesterID {
			assert.Equal(t, requester, f.Value)

			return
		}
	}

	t.Errorf("expected a %s filter for %s", model.FieldRequesterID, requester)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Reservation.MinLeadTimeMinutes = 15
	cfg.Reservation.MinDurationMinutes = 15
	cfg.Reservation.MaxDurationMinutes = 480
	cfg.Reservation.HoldWindowMinutes = 10
	cfg.Reservation.CancellationLeadMinutes = 60
	cfg.Reservation.SweepIntervalSeconds = 30
	cfg.Reservation.ExpiryWarningMinutes = 2
	cfg.Reservation.EstimatedKwhPerHour = 7

	return cfg
}

func userContext(userID string) context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, userID)

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleUser)
}

func adminContext(userID string) context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, userID)

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleAdmin)
}

type reservationFixture struct {
	svc         service.Reservation
	repo        *reservationMocks.MockReservation
	chargerRepo *chargerMocks.MockCharger
	paymentRepo *paymentMocks.MockPayment
	gateway     *paymentMocks.MockGateway
	publisher   *eventMocks.MockPublisher
	clock       *clockmock.Clock
	cfg         *config.Config
}

func newReservationFixture(t *testing.T, now time.Time) reservationFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	f := reservationFixture{
		repo:        reservationMocks.NewMockReservation(ctrl),
		chargerRepo: chargerMocks.NewMockCharger(ctrl),
		paymentRepo: paymentMocks.NewMockPayment(ctrl),
		gateway:     paymentMocks.NewMockGateway(ctrl),
		publisher:   eventMocks.NewMockPublisher(ctrl),
		clock:       clockmock.New(now),
		cfg:         testConfig(),
	}

	mockOtel := mocks.NewOtel()

	paymentSvc := paymentService.New(f.paymentRepo, f.repo, f.gateway, f.publisher, f.cfg, f.clock, mockOtel)
	f.svc = service.New(f.repo, f.chargerRepo, f.paymentRepo, paymentSvc, f.publisher, f.cfg, f.clock, mockOtel)

	return f
}

func TestReservationService_Create(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	availableCharger := chargerModel.Charger{
		ID:          "charger-1",
		Name:        "Dock A1",
		PricePerKwh: 0.5,
		Status:      chargerModel.StatusAvailable,
	}

	request := func(start, end time.Time) dto.CreateReservationRequest {
		return dto.CreateReservationRequest{
			ChargerID: "charger-1",
			StartTime: start.Format(time.RFC3339),
			EndTime:   end.Format(time.RFC3339),
		}
	}

	tests := []struct {
		name      string
		req       dto.CreateReservationRequest
		setupMock func(f reservationFixture)
		wantErr   bool
		checkErr  func(t *testing.T, err error)
	}{
		{
			name: "successful reservation",
			req:  request(now.Add(time.Hour), now.Add(2*time.Hour)),
			setupMock: func(f reservationFixture) {
				f.chargerRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(availableCharger, nil)

				f.repo.EXPECT().
					ReserveAtomically(gomock.Any(), "charger-1", gomock.Any()).
					DoAndReturn(func(ctx context.Context, chargerID string, fn func(context.Context, *sqlx.Tx) error) error {
						return fn(ctx, nil)
					})

				f.repo.EXPECT().
					ExistsOverlapTx(gomock.Any(), gomock.Any(), "charger-1", now.Add(time.Hour), now.Add(2*time.Hour)).
					Return(false, nil)

				f.repo.EXPECT().
					InsertTx(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, mod model.Reservation) error {
						assert.Equal(t, model.StatusReserved, mod.Status)
						assert.Equal(t, "user-1", mod.RequesterID)
						assert.Equal(t, 0.5, mod.PricePerKwh)
						assert.True(t, mod.ReservedUntil.Valid)
						assert.Equal(t, now.Add(10*time.Minute), mod.ReservedUntil.Time)
						assert.Equal(t, 1, mod.Version)

						return nil
					})
			},
		},
		{
			name: "overlapping reservation rejected",
			req:  request(now.Add(time.Hour), now.Add(2*time.Hour)),
			setupMock: func(f reservationFixture) {
				f.chargerRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(availableCharger, nil)

				f.repo.EXPECT().
					ReserveAtomically(gomock.Any(), "charger-1", gomock.Any()).
					DoAndReturn(func(ctx context.Context, chargerID string, fn func(context.Context, *sqlx.Tx) error) error {
						return fn(ctx, nil)
					})

				f.repo.EXPECT().
					ExistsOverlapTx(gomock.Any(), gomock.Any(), "charger-1", gomock.Any(), gomock.Any()).
					Return(true, nil)
			},
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				assert.True(t, failure.IsConflict(err))
			},
		},
		{
			name:      "lead time too short",
			req:       request(now.Add(5*time.Minute), now.Add(time.Hour)),
			setupMock: func(f reservationFixture) {},
			wantErr:   true,
		},
		{
			name:      "end before start",
			req:       request(now.Add(2*time.Hour), now.Add(time.Hour)),
			setupMock: func(f reservationFixture) {},
			wantErr:   true,
		},
		{
			name:      "duration below minimum",
			req:       request(now.Add(time.Hour), now.Add(time.Hour+10*time.Minute)),
			setupMock: func(f reservationFixture) {},
			wantErr:   true,
		},
		{
			name:      "duration above maximum",
			req:       request(now.Add(time.Hour), now.Add(10*time.Hour)),
			setupMock: func(f reservationFixture) {},
			wantErr:   true,
		},
		{
			name: "unparseable timestamps",
			req: dto.CreateReservationRequest{
				ChargerID: "charger-1",
				StartTime: "tomorrow",
				EndTime:   "later",
			},
			setupMock: func(f reservationFixture) {},
			wantErr:   true,
		},
		{
			name: "charger not found",
			req:  request(now.Add(time.Hour), now.Add(2*time.Hour)),
			setupMock: func(f reservationFixture) {
				f.chargerRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(chargerModel.Charger{}, nil)
			},
			wantErr: true,
		},
		{
			name: "charger under maintenance",
			req:  request(now.Add(time.Hour), now.Add(2*time.Hour)),
			setupMock: func(f reservationFixture) {
				maintenance := availableCharger
				maintenance.Status = chargerModel.StatusMaintenance

				f.chargerRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(maintenance, nil)
			},
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				assert.True(t, failure.IsInvalidState(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReservationFixture(t, now)
			tt.setupMock(f)

			res, err := f.svc.Create(userContext("user-1"), tt.req)

			if tt.wantErr {
				assert.Error(t, err)

				if tt.checkErr != nil {
					tt.checkErr(t, err)
				}

				return
			}

			assert.NoError(t, err)
			assert.Equal(t, string(model.StatusReserved), res.Status)
			assert.NotNil(t, res.ReservedUntil)
		})
	}
}

func TestReservationService_InitiatePayment(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	reserved := func() model.Reservation {
		r := model.Reservation{
			ID:          "res-1",
			ChargerID:   "charger-1",
			RequesterID: "user-1",
			StartTime:   now.Add(2 * time.Hour),
			EndTime:     now.Add(4 * time.Hour),
			Status:      model.StatusReserved,
			PricePerKwh: 0.5,
			Version:     1,
			Metadata: gModel.Metadata{
				CreatedAt: now, ModifiedAt: now, CreatedBy: "user-1", ModifiedBy: "user-1",
			},
		}
		r.ReservedUntil.Valid = true
		r.ReservedUntil.Time = now.Add(10 * time.Minute)

		return r
	}

	t.Run("opens payment for estimated cost", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(reserved(), nil)

		f.repo.EXPECT().
			Transition(gomock.Any(), "res-1", model.StatusReserved, model.StatusPaymentPending, 1, gomock.Any()).
			Return(nil)

		f.paymentRepo.EXPECT().
			SupersedeByReservation(gomock.Any(), "res-1").
			Return(nil)

		f.paymentRepo.EXPECT().
			Insert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, payment paymentModel.Payment) error {
				// 2 hours at 7 kWh/h and 0.5 per kWh.
				assert.InDelta(t, 7.0, payment.Amount, 1e-9)
				assert.Equal(t, paymentModel.StatusPending, payment.Status)
				assert.Equal(t, "res-1", payment.ReservationID)

				return nil
			})

		f.publisher.EXPECT().
			PublishLifecycle(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.LifecycleEvent) error {
				assert.Equal(t, events.EventPaymentRequested, event.Type)
				assert.InDelta(t, 7.0, event.Amount, 1e-9)

				return nil
			})

		res, err := f.svc.InitiatePayment(userContext("user-1"), "res-1")

		assert.NoError(t, err)
		assert.Equal(t, string(model.StatusPaymentPending), res.Status)
	})

	t.Run("failed payment setup hands the hold back", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(reserved(), nil)

		f.repo.EXPECT().
			Transition(gomock.Any(), "res-1", model.StatusReserved, model.StatusPaymentPending, 1, gomock.Any()).
			Return(nil)

		f.paymentRepo.EXPECT().
			SupersedeByReservation(gomock.Any(), "res-1").
			Return(nil)

		f.paymentRepo.EXPECT().
			Insert(gomock.Any(), gomock.Any()).
			Return(errors.New("database error"))

		// The transition bumped the version, so the revert expects it.
		f.repo.EXPECT().
			Transition(gomock.Any(), "res-1", model.StatusPaymentPending, model.StatusReserved, 2, gomock.Any()).
			Return(nil)

		_, err := f.svc.InitiatePayment(userContext("user-1"), "res-1")

		assert.Error(t, err)
	})

	t.Run("hold already lapsed", func(t *testing.T) {
		f := newReservationFixture(t, now)

		lapsed := reserved()
		lapsed.ReservedUntil.Time = now.Add(-time.Minute)

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(lapsed, nil)

		_, err := f.svc.InitiatePayment(userContext("user-1"), "res-1")

		assert.True(t, failure.IsReservationExpired(err))
	})

	t.Run("already confirmed", func(t *testing.T) {
		f := newReservationFixture(t, now)

		confirmed := reserved()
		confirmed.Status = model.StatusConfirmed
		confirmed.ReservedUntil.Valid = false

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed, nil)

		_, err := f.svc.InitiatePayment(userContext("user-1"), "res-1")

		assert.True(t, failure.IsInvalidState(err))
	})

	t.Run("not the owner", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(reserved(), nil)

		_, err := f.svc.InitiatePayment(userContext("somebody-else"), "res-1")

		assert.Error(t, err)
	})
}

func TestReservationService_RecordConsumption(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	confirmed := func() model.Reservation {
		return model.Reservation{
			ID:          "res-1",
			ChargerID:   "charger-1",
			RequesterID: "user-1",
			StartTime:   now.Add(-3 * time.Hour),
			EndTime:     now.Add(-time.Hour),
			Status:      model.StatusConfirmed,
			PricePerKwh: 0.5,
			Version:     3,
		}
	}

	t.Run("settles a finished session", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(confirmed(), nil)

		f.repo.EXPECT().
			Transition(gomock.Any(), "res-1", model.StatusConfirmed, model.StatusCompleted, 3, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _, _ model.Status, _ int, set map[string]any) error {
				assert.Equal(t, 12.5, set[model.FieldEnergyKwh])
				assert.Equal(t, 6.25, set[model.FieldTotalAmount])

				return nil
			})

		res, err := f.svc.RecordConsumption(userContext("user-1"), "res-1", dto.CompleteReservationRequest{EnergyKwh: 12.5})

		assert.NoError(t, err)
		assert.Equal(t, string(model.StatusCompleted), res.Status)
		assert.NotNil(t, res.TotalAmount)
		assert.Equal(t, 6.25, *res.TotalAmount)
	})

	t.Run("session still running", func(t *testing.T) {
		f := newReservationFixture(t, now)

		running := confirmed()
		running.EndTime = now.Add(time.Hour)

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(running, nil)

		_, err := f.svc.RecordConsumption(userContext("user-1"), "res-1", dto.CompleteReservationRequest{EnergyKwh: 12.5})

		assert.True(t, failure.IsInvalidState(err))
	})

	t.Run("unpaid reservation cannot complete", func(t *testing.T) {
		f := newReservationFixture(t, now)

		unpaid := confirmed()
		unpaid.Status = model.StatusReserved

		f.repo.EXPECT().
			Get(gomock.Any(), gomock.Any()).
			Return(unpaid, nil)

		_, err := f.svc.RecordConsumption(userContext("user-1"), "res-1", dto.CompleteReservationRequest{EnergyKwh: 12.5})

		assert.True(t, failure.IsInvalidState(err))
	})
}

func TestReservationService_GetAll(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("non-admin only sees own reservations", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Count(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, filter gDto.FilterGroup) (int, error) {
				assertRequesterFilter(t, filter, "user-1")

				return 1, nil
			})

		f.repo.EXPECT().
			GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]model.Reservation{{ID: "res-1", RequesterID: "user-1", Status: model.StatusReserved}}, nil)

		res, err := f.svc.GetAll(userContext("user-1"), gDto.QueryParams{Limit: 10}, gDto.FilterGroup{})

		assert.NoError(t, err)
		assert.Len(t, res.Reservations, 1)
		assert.Equal(t, 1, res.TotalData)
	})

	t.Run("repository error surfaces", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Count(gomock.Any(), gomock.Any()).
			Return(0, errors.New("database error"))

		_, err := f.svc.GetAll(userContext("user-1"), gDto.QueryParams{Limit: 10}, gDto.FilterGroup{})

		assert.Error(t, err)
	})
}

func TestReservationService_GetMine(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("admin personal view is still scoped to the caller", func(t *testing.T) {
		f := newReservationFixture(t, now)

		f.repo.EXPECT().
			Count(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, filter gDto.FilterGroup) (int, error) {
				assertRequesterFilter(t, filter, "admin-1")

				return 1, nil
			})

		f.repo.EXPECT().
			GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]model.Reservation{{ID: "res-9", RequesterID: "admin-1", Status: model.StatusReserved}}, nil)

		res, err := f.svc.GetMine(adminContext("admin-1"), gDto.QueryParams{Limit: 10}, gDto.FilterGroup{})

		assert.NoError(t, err)
		assert.Len(t, res.Reservations, 1)
	})
}

func TestReservationService_Get_DerivedStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	f := newReservationFixture(t, now)

	// Confirmed booking whose window contains now reads as ACTIVE.
	inWindow := model.Reservation{
		ID:          "res-1",
		RequesterID: "user-1",
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(time.Hour),
		Status:      model.StatusConfirmed,
	}

	f.repo.EXPECT().
		Get(gomock.Any(), gomock.Any()).
		Return(inWindow, nil)

	res, err := f.svc.Get(userContext("user-1"), "res-1")

	assert.NoError(t, err)
	assert.Equal(t, string(model.StatusActive), res.Status)
}
