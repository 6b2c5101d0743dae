package service

import (
	"context"
	"fmt"
	"voltdock/config"
	"voltdock/infras/otel"
	"voltdock/internal/domains/charger/model"
	"voltdock/internal/domains/charger/model/dto"
	"voltdock/internal/domains/charger/repository"
	"voltdock/shared"
	"voltdock/shared/cache"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/failure"

	"github.com/rs/zerolog/log"
)

const (
	cacheGetCharger    = "charger:get"
	cacheGetAllCharger = "charger:gets"
	cacheCountCharger  = "charger:count"
)

type Charger interface {
	Create(ctx context.Context, req dto.CreateChargerRequest) error
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetChargersResponse, error)
	Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	Get(ctx context.Context, id string) (dto.ChargerResponse, error)
	Update(ctx context.Context, req dto.UpdateChargerRequest, id string) error
	Delete(ctx context.Context, id string) error
}

type serviceImpl struct {
	repo  repository.Charger
	cfg   *config.Config
	cache cache.RedisCache
	otel  otel.Otel
}

func New(repo repository.Charger, cfg *config.Config, cache cache.RedisCache, otel otel.Otel) Charger {
	return &serviceImpl{
		repo:  repo,
		cfg:   cfg,
		cache: cache,
		otel:  otel,
	}
}

func (s *serviceImpl) Create(ctx context.Context, req dto.CreateChargerRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".charger.Create")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	charger := req.ToModel(user)

	if err = s.repo.Insert(ctx, charger); err != nil {
		log.Error().Err(err).Msg("failed to create charger")

		return fmt.Errorf("failed to create charger: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, cacheGetAllCharger)
		shared.InvalidateCaches(c, s.cache, cacheCountCharger)
	}()

	return nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetChargersResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".charger.GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllCharger, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for chargers")

		return res, nil
	}

	total, err := s.Count(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count chargers")

		return res, fmt.Errorf("failed to count chargers: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get chargers")

		return res, fmt.Errorf("failed to get chargers: %w", err)
	}

	res.FromModels(models, total, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save chargers to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".charger.Count")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountCharger, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count chargers")

		return res, fmt.Errorf("failed to count chargers: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save charger count to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.ChargerResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".charger.Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetCharger, id)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for charger")

		return res, nil
	}

	charger, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get charger")

		return res, fmt.Errorf("failed to get charger: %w", err)
	}

	if charger.ID == constant.Empty {
		return res, failure.NotFound("charger not found") // nolint:wrapcheck
	}

	res.FromModel(charger)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save charger to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Update(ctx context.Context, req dto.UpdateChargerRequest, id string) error {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".charger.Update")
	defer scope.End()

	if req == (dto.UpdateChargerRequest{}) {
		return failure.BadRequestFromString("update request cannot be empty") // nolint:wrapcheck
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	filter := shared.FilterByID(id, model.FieldID, model.TableName)

	exist, err := s.repo.Exist(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to check if charger exists")

		return fmt.Errorf("failed to check if charger exists: %w", err)
	}

	if !exist {
		log.Error().Msg("charger not found")

		return failure.NotFound("charger not found") // nolint:wrapcheck
	}

	// Active reservations keep the price they were created with; updating the
	// charger price only affects reservations created afterwards.
	updatedFields := shared.TransformFields(req, user)
	if err := s.repo.Update(ctx, updatedFields, filter); err != nil {
		log.Error().Err(err).Msg("failed to update charger")

		return fmt.Errorf("failed to update charger: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetCharger, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete charger from cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllCharger)
		shared.InvalidateCaches(c, s.cache, cacheCountCharger)
	}()

	return nil
}

func (s *serviceImpl) Delete(ctx context.Context, id string) error {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".charger.Delete")
	defer scope.End()

	exist, err := s.repo.Exist(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to check if charger exists")

		return fmt.Errorf("failed to check if charger exists: %w", err)
	}

	if !exist {
		log.Error().Msg("charger not found")

		return failure.NotFound("charger not found") // nolint:wrapcheck
	}

	if err := s.repo.Delete(ctx, shared.FilterByID(id, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Msg("failed to delete charger")

		return fmt.Errorf("failed to delete charger: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetCharger, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete charger from cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllCharger)
		shared.InvalidateCaches(c, s.cache, cacheCountCharger)
	}()

	return nil
}
