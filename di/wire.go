//go:build wireinject
// +build wireinject

package di

import (
	"voltdock/config"
	"voltdock/infras/jwt"
	"voltdock/infras/kafka"
	"voltdock/infras/otel"
	"voltdock/infras/postgres"
	"voltdock/infras/redis"
	"voltdock/internal/events"
	chargerHandler "voltdock/internal/handlers/charger"
	healthHandler "voltdock/internal/handlers/health"
	paymentHandler "voltdock/internal/handlers/payment"
	reservationHandler "voltdock/internal/handlers/reservation"
	"voltdock/internal/workers/sweeper"
	"voltdock/shared/cache"
	"voltdock/shared/clock"
	"voltdock/transport/http"
	"voltdock/transport/http/middleware"
	"voltdock/transport/http/router"

	chargerRepository "voltdock/internal/domains/charger/repository"
	chargerService "voltdock/internal/domains/charger/service"
	"voltdock/internal/domains/payment/gateway"
	paymentRepository "voltdock/internal/domains/payment/repository"
	paymentService "voltdock/internal/domains/payment/service"
	reservationRepository "voltdock/internal/domains/reservation/repository"
	reservationService "voltdock/internal/domains/reservation/service"

	"github.com/google/wire"
)

var configurations = wire.NewSet(
	config.Get,
)

var infrastructures = wire.NewSet(
	postgres.New,
	otel.New,
	redis.New,
	kafka.New,
	jwt.New,
)

var middlewares = wire.NewSet(
	middleware.NewAppMiddleware,
	middleware.NewAuthMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
	clock.New,
)

var eventStreams = wire.NewSet(
	events.NewKafkaPublisher,
)

var chargerDomain = wire.NewSet(
	chargerRepository.New,
	chargerService.New,
)

var paymentDomain = wire.NewSet(
	paymentRepository.New,
	gateway.New,
	paymentService.New,
)

var reservationDomain = wire.NewSet(
	reservationRepository.New,
	reservationService.New,
)

var domains = wire.NewSet(
	chargerDomain,
	paymentDomain,
	reservationDomain,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	chargerHandler.New,
	reservationHandler.New,
	paymentHandler.New,
	healthHandler.New,
	router.New,
)

func InitializeService() *http.HTTP {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		eventStreams,
		domains,
		routing,
		http.New,
	)

	return &http.HTTP{}
}

func InitializeSweeper() *sweeper.Sweeper {
	wire.Build(
		configurations,
		infrastructures,
		sharedHelpers,
		eventStreams,
		reservationRepository.New,
		sweeper.New,
	)

	return &sweeper.Sweeper{}
}
