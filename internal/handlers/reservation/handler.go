package reservation

import (
	"net/http"
	"voltdock/infras/otel"
	"voltdock/internal/domains/reservation/model"
	"voltdock/internal/domains/reservation/model/dto"
	"voltdock/internal/domains/reservation/service"
	"voltdock/shared/constant"
	gDto "voltdock/shared/dto"
	"voltdock/shared/validator"
	"voltdock/transport/http/middleware"
	"voltdock/transport/http/response"

	"github.com/go-chi/chi/v5"

	"github.com/rs/zerolog/log"
)

type Handler struct {
	service    service.Reservation
	middleware middleware.Auth
	otel       otel.Otel
}

func New(service service.Reservation, middleware middleware.Auth, otel otel.Otel) Handler {
	return Handler{
		service:    service,
		middleware: middleware,
		otel:       otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/reservations", func(routerGroup chi.Router) {
		routerGroup.Use(handler.middleware.Authenticate)

		routerGroup.Post("/", handler.CreateReservation)
		routerGroup.With(handler.middleware.RequireAdmin).Get("/", handler.GetReservations)
		routerGroup.Get("/myreservations", handler.GetMyReservations)
		routerGroup.Get("/{id}", handler.GetReservationByID)
		routerGroup.Post("/{id}/payment", handler.InitiatePayment)
		routerGroup.Post("/{id}/cancel", handler.CancelReservation)
		routerGroup.Post("/{id}/complete", handler.CompleteReservation)
	})
}

// CreateReservation places a reservation for a charging slot.
// @Summary Reserve a charging slot
// @Description Reserve a charger for a time window. The slot is held for the payment hold window; overlapping requests are rejected.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param request body dto.CreateReservationRequest true "Create Reservation Request"
// @Success 201 {object} dto.ReservationResponse "Reservation created"
// @Failure 400 {object} response.Error
// @Failure 409 {object} response.Error "Time window already taken"
// @Failure 500 {object} response.Error
// @Router /v1/reservations [post]
// @Security BearerAuth
func (handler *Handler) CreateReservation(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreateReservation")
	defer scope.End()

	req := dto.CreateReservationRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	res, err := handler.service.Create(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create reservation")

		response.WithError(writer, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Reservation created successfully by user " + user)

	response.WithJSON(writer, http.StatusCreated, res)
}

// GetReservations lists reservations across all requesters.
// @Summary List all reservations @Admin
// @Description Retrieve reservations with optional filtering and pagination.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param charger_id query string false "Filter by charger"
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.GetReservationsResponse
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/reservations [get]
// @Security BearerAuth
func (handler *Handler) GetReservations(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetReservations")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	reservations, err := handler.service.GetAll(ctx, queryParams, handler.filterFromQuery(r))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get reservations")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Reservations retrieved successfully")

	response.WithJSON(w, http.StatusOK, reservations)
}

// GetMyReservations lists the caller's own reservations.
// @Summary List my reservations
// @Description Retrieve the authenticated requester's reservations.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.GetReservationsResponse
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/reservations/myreservations [get]
// @Security BearerAuth
func (handler *Handler) GetMyReservations(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetMyReservations")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	reservations, err := handler.service.GetMine(ctx, queryParams, handler.filterFromQuery(r))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get my reservations")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("My reservations retrieved successfully")

	response.WithJSON(w, http.StatusOK, reservations)
}

// GetReservationByID retrieves one reservation.
// @Summary Get a reservation by ID
// @Description Retrieve a reservation. The status reflects the current time, a confirmed booking inside its window reads ACTIVE.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} dto.ReservationResponse
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/reservations/{id} [get]
// @Security BearerAuth
func (handler *Handler) GetReservationByID(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetReservationByID")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	reservation, err := handler.service.Get(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get reservation by ID")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Reservation retrieved successfully")

	response.WithJSON(w, http.StatusOK, reservation)
}

// InitiatePayment opens the payment for a reservation.
// @Summary Start paying for a reservation
// @Description Move the reservation to PAYMENT_PENDING and open a payment for the estimated session cost.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} dto.ReservationResponse
// @Failure 404 {object} response.Error
// @Failure 410 {object} response.Error "Payment hold lapsed"
// @Failure 422 {object} response.Error
// @Router /v1/reservations/{id}/payment [post]
// @Security BearerAuth
func (handler *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".InitiatePayment")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	reservation, err := handler.service.InitiatePayment(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to initiate payment")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Payment initiated successfully")

	response.WithJSON(w, http.StatusOK, reservation)
}

// CancelReservation cancels a reservation, refunding if already paid.
// @Summary Cancel a reservation
// @Description Cancel before the cancellation deadline. Paid bookings are refunded; a refund failure is reported in the response without undoing the cancellation.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param request body dto.CancelReservationRequest false "Cancel Reservation Request"
// @Success 200 {object} dto.CancelReservationResponse
// @Failure 404 {object} response.Error
// @Failure 422 {object} response.Error "Cancellation window closed or terminal state"
// @Router /v1/reservations/{id}/cancel [post]
// @Security BearerAuth
func (handler *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CancelReservation")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	req := dto.CancelReservationRequest{}
	if r.ContentLength > 0 {
		if err := validator.Validate(r.Body, &req); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to validate request body")

			response.WithError(w, err)

			return
		}
	}

	res, err := handler.service.Cancel(ctx, id, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to cancel reservation")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Reservation cancelled by user " + user)

	response.WithJSON(w, http.StatusOK, res)
}

// CompleteReservation records the consumed energy for a finished session.
// @Summary Complete a reservation
// @Description Record the measured energy once the session window ended. The final charge uses the price snapshotted at creation.
// @Tags Reservation
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param request body dto.CompleteReservationRequest true "Complete Reservation Request"
// @Success 200 {object} dto.ReservationResponse
// @Failure 404 {object} response.Error
// @Failure 422 {object} response.Error
// @Router /v1/reservations/{id}/complete [post]
// @Security BearerAuth
func (handler *Handler) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CompleteReservation")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	req := dto.CompleteReservationRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	res, err := handler.service.RecordConsumption(ctx, id, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to complete reservation")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Reservation completed successfully")

	response.WithJSON(w, http.StatusOK, res)
}

func (handler *Handler) filterFromQuery(r *http.Request) gDto.FilterGroup {
	filterGroup := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
	}

	if chargerID := r.URL.Query().Get(model.FieldChargerID); chargerID != "" {
		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldChargerID,
			Operator: gDto.FilterOperatorEq,
			Value:    chargerID,
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

	return filterGroup
}
