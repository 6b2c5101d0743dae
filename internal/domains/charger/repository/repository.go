package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"voltdock/infras/otel"
	"voltdock/infras/postgres"
	"voltdock/internal/domains/charger/model"
	gDto "voltdock/shared/dto"
	gRepo "voltdock/shared/repository"
)

type Charger interface {
	Insert(ctx context.Context, model model.Charger) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Charger, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Charger, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	Delete(ctx context.Context, filter gDto.FilterGroup) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Charger]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Charger {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Charger](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}
