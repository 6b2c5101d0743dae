package charger

import (
	"net/http"
	"voltdock/infras/otel"
	"voltdock/internal/domains/charger/model"
	"voltdock/internal/domains/charger/model/dto"
	"voltdock/internal/domains/charger/service"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/validator"
	"voltdock/transport/http/middleware"
	"voltdock/transport/http/response"

	"github.com/go-chi/chi/v5"

	"github.com/rs/zerolog/log"
)

type Handler struct {
	service    service.Charger
	middleware middleware.Auth
	otel       otel.Otel
}

func New(service service.Charger, middleware middleware.Auth, otel otel.Otel) Handler {
	return Handler{
		service:    service,
		middleware: middleware,
		otel:       otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/chargers", func(routerGroup chi.Router) {
		routerGroup.Use(handler.middleware.Authenticate)

		routerGroup.Get("/", handler.GetChargers)
		routerGroup.Get("/{id}", handler.GetChargerByID)

		routerGroup.Group(func(adminGroup chi.Router) {
			adminGroup.Use(handler.middleware.RequireAdmin)

			adminGroup.Post("/", handler.CreateCharger)
			adminGroup.Patch("/{id}", handler.UpdateCharger)
			adminGroup.Delete("/{id}", handler.DeleteCharger)
		})
	})
}

// CreateCharger registers a new charging point.
// @Summary Create a new charger @Admin
// @Description Register a charging point with its tariff.
// @Tags Charger
// @Accept json
// @Produce json
// @Param request body dto.CreateChargerRequest true "Create Charger Request"
// @Success 201 {object} response.Message "Charger created successfully"
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/chargers [post]
// @Security BearerAuth
func (handler *Handler) CreateCharger(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreateCharger")
	defer scope.End()

	req := dto.CreateChargerRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	if err := handler.service.Create(ctx, req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create charger")

		response.WithError(writer, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Charger created successfully by user " + user)

	response.WithMessage(writer, http.StatusCreated, "Charger created successfully")
}

// GetChargers lists charging points.
// @Summary Get all chargers
// @Description Retrieve chargers with optional filtering and pagination.
// @Tags Charger
// @Accept json
// @Produce json
// @Param name query string false "Filter by name"
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.GetChargersResponse
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/chargers [get]
// @Security BearerAuth
func (handler *Handler) GetChargers(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetChargers")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	filterGroup := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
	}

	if name := r.URL.Query().Get(model.FieldName); name != "" {
		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldName,
			Operator: gDto.FilterOperatorLike,
			Value:    name,
			Table:    model.TableName,
		})
	}

	if status := r.URL.Query().Get(model.FieldStatus); status != "" {
		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldStatus,
			Operator: gDto.FilterOperatorEq,
			Value:    status,
			Table:    model.TableName,
		})
	}

	chargers, err := handler.service.GetAll(ctx, queryParams, filterGroup)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get chargers")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Chargers retrieved successfully")

	response.WithJSON(w, http.StatusOK, chargers)
}

// GetChargerByID retrieves a charging point by its ID.
// @Summary Get a charger by ID
// @Description Retrieve a charger by its unique identifier.
// @Tags Charger
// @Accept json
// @Produce json
// @Param id path string true "Charger ID"
// @Success 200 {object} dto.ChargerResponse
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/chargers/{id} [get]
// @Security BearerAuth
func (handler *Handler) GetChargerByID(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetChargerByID")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	charger, err := handler.service.Get(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get charger by ID")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Charger retrieved successfully")

	response.WithJSON(w, http.StatusOK, charger)
}

// UpdateCharger updates a charging point.
// @Summary Update a charger by ID @Admin
// @Description Update charger details. Price changes only affect reservations created afterwards.
// @Tags Charger
// @Accept json
// @Produce json
// @Param id path string true "Charger ID"
// @Param request body dto.UpdateChargerRequest true "Update Charger Request"
// @Success 200 {object} response.Message "Charger updated successfully"
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error
// @Router /v1/chargers/{id} [patch]
// @Security BearerAuth
func (handler *Handler) UpdateCharger(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UpdateCharger")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	req := dto.UpdateChargerRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	if err := handler.service.Update(ctx, req, id); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to update charger")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Charger updated successfully by user " + user)

	response.WithMessage(w, http.StatusOK, "Charger updated successfully")
}

// DeleteCharger removes a charging point.
// @Summary Delete a charger by ID @Admin
// @Description Delete a charger using its unique identifier.
// @Tags Charger
// @Accept json
// @Produce json
// @Param id path string true "Charger ID"
// @Success 200 {object} response.Message "Charger deleted successfully"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/chargers/{id} [delete]
// @Security BearerAuth
func (handler *Handler) DeleteCharger(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".DeleteCharger")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	if err := handler.service.Delete(ctx, id); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to delete charger")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Charger deleted successfully by user " + user)

	response.WithMessage(w, http.StatusOK, "Charger deleted successfully")
}
