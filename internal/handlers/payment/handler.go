package payment

import (
	"net/http"
	"voltdock/infras/otel"
	"voltdock/internal/domains/payment/service"
	resDto "voltdock/internal/domains/reservation/model/dto"
	"voltdock/shared/constant"
	"voltdock/shared/validator"
	"voltdock/transport/http/middleware"
	"voltdock/transport/http/response"

	"github.com/go-chi/chi/v5"

	"github.com/rs/zerolog/log"
)

type Handler struct {
	service    service.Payment
	middleware middleware.Auth
	otel       otel.Otel
}

func New(service service.Payment, middleware middleware.Auth, otel otel.Otel) Handler {
	return Handler{
		service:    service,
		middleware: middleware,
		otel:       otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/payments", func(routerGroup chi.Router) {
		routerGroup.Use(handler.middleware.Authenticate)
		routerGroup.Use(handler.middleware.RequireAdmin)

		routerGroup.Post("/outcome", handler.PaymentOutcome)
	})
}

// PaymentOutcome ingests an outcome reported by the payment subsystem.
// @Summary Report a payment outcome @Admin
// @Description Apply a SUCCESS or FAILURE reported by the external payment subsystem to the reservation. A success arriving after the hold lapsed is recorded but answered with 410 so the reporter knows a refund is owed.
// @Tags Payment
// @Accept json
// @Produce json
// @Param request body resDto.PaymentOutcomeRequest true "Payment Outcome Request"
// @Success 200 {object} resDto.ReservationResponse
// @Failure 400 {object} response.Error
// @Failure 410 {object} response.Error "Reservation no longer payable, refund required"
// @Failure 422 {object} response.Error
// @Router /v1/payments/outcome [post]
// @Security BearerAuth
func (handler *Handler) PaymentOutcome(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".PaymentOutcome")
	defer scope.End()

	req := resDto.PaymentOutcomeRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	res, err := handler.service.OnPaymentOutcome(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("reservationID", req.ReservationID).Msg("failed to apply payment outcome")

		response.WithError(writer, err)

		return
	}

	scope.AddEvent("Payment outcome applied for reservation " + req.ReservationID)

	response.WithJSON(writer, http.StatusOK, res)
}
