// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"github.com/google/wire"
	"voltdock/config"
	"voltdock/infras/jwt"
	"voltdock/infras/kafka"
	"voltdock/infras/otel"
	"voltdock/infras/postgres"
	"voltdock/infras/redis"
	"voltdock/internal/domains/charger/repository"
	"voltdock/internal/domains/charger/service"
	"voltdock/internal/domains/payment/gateway"
	repository3 "voltdock/internal/domains/payment/repository"
	service2 "voltdock/internal/domains/payment/service"
	repository2 "voltdock/internal/domains/reservation/repository"
	service3 "voltdock/internal/domains/reservation/service"
	"voltdock/internal/events"
	"voltdock/internal/handlers/charger"
	"voltdock/internal/handlers/health"
	"voltdock/internal/handlers/payment"
	"voltdock/internal/handlers/reservation"
	"voltdock/internal/workers/sweeper"
	"voltdock/shared/cache"
	"voltdock/shared/clock"
	"voltdock/transport/http"
	"voltdock/transport/http/middleware"
	"voltdock/transport/http/router"
)

// Injectors from wire.go:

func InitializeService() *http.HTTP {
	configConfig := config.Get()
	connection := postgres.New(configConfig)
	otelOtel := otel.New(configConfig)
	repositoryCharger := repository.New(connection, otelOtel)
	client := redis.New(configConfig)
	redisCache := cache.NewRedisCache(client, otelOtel)
	serviceCharger := service.New(repositoryCharger, configConfig, redisCache, otelOtel)
	jwtJWT := jwt.New(configConfig)
	auth := middleware.NewAuthMiddleware(jwtJWT, otelOtel)
	handler := charger.New(serviceCharger, auth, otelOtel)
	repositoryReservation := repository2.New(connection, otelOtel)
	repositoryPayment := repository3.New(connection, otelOtel)
	gatewayGateway := gateway.New(configConfig)
	kafkaClient := kafka.New(configConfig)
	publisher := events.NewKafkaPublisher(kafkaClient, configConfig, otelOtel)
	clockClock := clock.New()
	servicePayment := service2.New(repositoryPayment, repositoryReservation, gatewayGateway, publisher, configConfig, clockClock, otelOtel)
	serviceReservation := service3.New(repositoryReservation, repositoryCharger, repositoryPayment, servicePayment, publisher, configConfig, clockClock, otelOtel)
	reservationHandler := reservation.New(serviceReservation, auth, otelOtel)
	paymentHandler := payment.New(servicePayment, auth, otelOtel)
	healthHandler := health.New(connection)
	domainHandlers := router.DomainHandlers{
		Charger:     handler,
		Reservation: reservationHandler,
		Payment:     paymentHandler,
		Health:      healthHandler,
	}
	appMiddleware := middleware.NewAppMiddleware(otelOtel, configConfig, redisCache)
	routerRouter := router.New(domainHandlers, appMiddleware)
	httpHTTP := http.New(configConfig, routerRouter)
	return httpHTTP
}

func InitializeSweeper() *sweeper.Sweeper {
	configConfig := config.Get()
	connection := postgres.New(configConfig)
	otelOtel := otel.New(configConfig)
	repositoryReservation := repository2.New(connection, otelOtel)
	client := kafka.New(configConfig)
	publisher := events.NewKafkaPublisher(client, configConfig, otelOtel)
	redisClient := redis.New(configConfig)
	redisCache := cache.NewRedisCache(redisClient, otelOtel)
	clockClock := clock.New()
	sweeperSweeper := sweeper.New(repositoryReservation, publisher, redisCache, configConfig, clockClock, otelOtel)
	return sweeperSweeper
}

// wire.go:

var configurations = wire.NewSet(config.Get)

var infrastructures = wire.NewSet(postgres.New, otel.New, redis.New, kafka.New, jwt.New)

var middlewares = wire.NewSet(middleware.NewAppMiddleware, middleware.NewAuthMiddleware)

var sharedHelpers = wire.NewSet(cache.NewRedisCache, clock.New)

var eventStreams = wire.NewSet(events.NewKafkaPublisher)

var chargerDomain = wire.NewSet(repository.New, service.New)

var paymentDomain = wire.NewSet(repository3.New, gateway.New, service2.New)

var reservationDomain = wire.NewSet(repository2.New, service3.New)

var domains = wire.NewSet(
	chargerDomain,
	paymentDomain,
	reservationDomain,
)

var routing = wire.NewSet(wire.Struct(new(router.DomainHandlers), "*"), charger.New, reservation.New, payment.New, health.New, router.New)
