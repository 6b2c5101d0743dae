package events

import (
	"context"
	"fmt"
	"voltdock/config"
	"voltdock/infras/kafka"
	"voltdock/infras/otel"
	"voltdock/shared/constant"

	"github.com/rs/zerolog/log"
)

type kafkaPublisher struct {
	client kafka.Client
	cfg    *config.Config
	otel   otel.Otel
}

func NewKafkaPublisher(client kafka.Client, cfg *config.Config, otel otel.Otel) Publisher {
	return &kafkaPublisher{
		client: client,
		cfg:    cfg,
		otel:   otel,
	}
}

// PublishLifecycle sends one lifecycle event to the lifecycle topic, keyed by
// reservation id so events for the same reservation stay ordered per partition.
func (p *kafkaPublisher) PublishLifecycle(ctx context.Context, event LifecycleEvent) (err error) {
	ctx, scope := p.otel.NewScope(ctx, constant.OtelEventScopeName, constant.OtelEventScopeName+".PublishLifecycle")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttributes(map[string]any{
		"event.type":           string(event.Type),
		"event.reservation_id": event.ReservationID,
	})

	msg := kafka.Message{
		Key:   event.ReservationID,
		Value: event,
	}

	if err = p.client.SendMessages(ctx, p.cfg.Kafka.Topics.Lifecycle, msg); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Str("reservationID", event.ReservationID).Msg("failed to publish lifecycle event")

		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}

	return nil
}
