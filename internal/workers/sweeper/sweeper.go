package sweeper

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"voltdock/config"
	"voltdock/infras/otel"
	"voltdock/internal/domains/reservation/model"
	"voltdock/internal/domains/reservation/repository"
	"voltdock/internal/events"
	"voltdock/shared/cache"
	"voltdock/shared/clock"
	"voltdock/shared/constant"
	"voltdock/shared/failure"

	"github.com/rs/zerolog/log"
)

const (
	sweeperActor = "sweeper"
	expiryBatch  = 100

	warningKeyPrefix = "reservation:expiry-warned"
)

// Sweeper periodically expires reservations whose payment hold lapsed and
// warns about holds that are about to. It is safe to run alongside the HTTP
// tier and, because every transition is version guarded, alongside other
// sweeper instances.
type Sweeper struct {
	repo      repository.Reservation
	publisher events.Publisher
	cache     cache.RedisCache
	cfg       *config.Config
	clock     clock.Clock
	otel      otel.Otel
}

func New(
	repo repository.Reservation,
	publisher events.Publisher,
	cache cache.RedisCache,
	cfg *config.Config,
	clock clock.Clock,
	otel otel.Otel,
) *Sweeper {
	return &Sweeper{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
		clock:     clock,
		otel:      otel,
	}
}

// Run blocks until ctx is cancelled, sweeping at the configured interval. One
// failing reservation never aborts the rest of the pass.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Reservation.SweepIntervalSeconds) * time.Second

	log.Info().Dur("interval", interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry sweeper stopped")

			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass followed by one warning pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelWorkerScopeName, constant.OtelWorkerScopeName+".sweeper.Sweep")
	defer scope.End()

	now := s.clock.Now()

	s.expireDue(ctx, now)
	s.warnExpiring(ctx, now)
}

func (s *Sweeper) expireDue(ctx context.Context, now time.Time) {
	due, err := s.repo.FindDueForExpiry(ctx, now, expiryBatch)
	if err != nil {
		log.Error().Err(err).Msg("failed to scan for expired reservations")

		return
	}

	for _, reservation := range due {
		if err := s.expire(ctx, reservation, now); err != nil {
			// A version mismatch means someone else moved the row first, either
			// a payment landing or another sweeper. Not an error.
			if failure.IsConcurrentModification(err) || failure.GetCode(err) == http.StatusNotFound {
				log.Debug().
					Str("reservationID", reservation.ID).
					Msg("reservation changed before expiry could land, skipping")

				continue
			}

			log.Error().Err(err).
				Str("reservationID", reservation.ID).
				Msg("failed to expire reservation")
		}
	}
}

func (s *Sweeper) expire(ctx context.Context, reservation model.Reservation, now time.Time) error {
	set := map[string]any{
		model.FieldReservedUntil: nil,
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: sweeperActor,
	}

	if err := s.repo.Transition(ctx, reservation.ID, reservation.Status, model.StatusExpired, reservation.Version, set); err != nil {
		return err
	}

	log.Info().
		Str("reservationID", reservation.ID).
		Str("chargerID", reservation.ChargerID).
		Msg("reservation expired, slot released")

	s.publish(ctx, events.LifecycleEvent{
		Type:          events.EventReservationExpired,
		ReservationID: reservation.ID,
		RequesterID:   reservation.RequesterID,
		ChargerID:     reservation.ChargerID,
		OccurredAt:    now,
	})

	return nil
}

// warnExpiring emits one RESERVATION_EXPIRING event per hold. The cache marker
// is what keeps successive passes from re-warning the same reservation; its
// TTL only needs to outlive the warning horizon.
func (s *Sweeper) warnExpiring(ctx context.Context, now time.Time) {
	horizon := time.Duration(s.cfg.Reservation.ExpiryWarningMinutes) * time.Minute

	expiring, err := s.repo.FindExpiringWithin(ctx, now, now.Add(horizon))
	if err != nil {
		log.Error().Err(err).Msg("failed to scan for expiring reservations")

		return
	}

	markerTTL := int((horizon + time.Minute).Seconds())

	for _, reservation := range expiring {
		key := fmt.Sprintf("%s:%s:%d", warningKeyPrefix, reservation.ID, reservation.ReservedUntil.Time.Unix())

		first, err := s.cache.SetIfAbsent(ctx, key, true, markerTTL)
		if err != nil {
			log.Error().Err(err).
				Str("reservationID", reservation.ID).
				Msg("failed to mark expiry warning")

			continue
		}

		if !first {
			continue
		}

		log.Warn().
			Str("reservationID", reservation.ID).
			Time("reservedUntil", reservation.ReservedUntil.Time).
			Msg("reservation payment hold expiring soon")

		s.publish(ctx, events.LifecycleEvent{
			Type:          events.EventReservationExpiring,
			ReservationID: reservation.ID,
			RequesterID:   reservation.RequesterID,
			ChargerID:     reservation.ChargerID,
			OccurredAt:    now,
		})
	}
}

func (s *Sweeper) publish(ctx context.Context, event events.LifecycleEvent) {
	if err := s.publisher.PublishLifecycle(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("type", string(event.Type)).
			Str("reservationID", event.ReservationID).
			Msg("failed to publish lifecycle event")
	}
}
