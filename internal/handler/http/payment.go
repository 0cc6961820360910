package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"
	"github.com/OscarCaraballo97/inferno-payment/pkg/httputil"
	"github.com/OscarCaraballo97/inferno-payment/pkg/logger"
	"github.com/OscarCaraballo97/inferno-payment/pkg/validator"

	"github.com/OscarCaraballo97/inferno-payment/internal/cards"
	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
	"github.com/OscarCaraballo97/inferno-payment/internal/saga"
)

// ServicePlanRequest is the service being paid for.
type ServicePlanRequest struct {
	Proveedor     string  `json:"proveedor" validate:"required"`
	PrecioMensual float64 `json:"precio_mensual" validate:"gte=0"`
}

// CreatePaymentRequest is the body of POST /api/v1/payments. The userId is
// optional; when absent it is resolved from the card.
type CreatePaymentRequest struct {
	CardID  string             `json:"cardId" validate:"required"`
	UserID  string             `json:"userId"`
	Service ServicePlanRequest `json:"service"`
}

// CreatePaymentResponse acknowledges an accepted payment.
type CreatePaymentResponse struct {
	TraceID string `json:"traceId"`
}

// PaymentHandler exposes the payment ingress and status endpoints.
type PaymentHandler struct {
	repo   repository.SagaRepository
	enq    saga.Enqueuer
	cards  cards.Validator
	logger *slog.Logger
}

func NewPaymentHandler(repo repository.SagaRepository, enq saga.Enqueuer, cardValidator cards.Validator, l *slog.Logger) *PaymentHandler {
	return &PaymentHandler{repo: repo, enq: enq, cards: cardValidator, logger: l}
}

// Create accepts a payment request, validates the card and enqueues the
// start-payment message. The saga record itself is created asynchronously
// by the start-payment worker; the caller polls with the returned traceId.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("malformed request body"), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	card, err := h.cards.Validate(r.Context(), req.CardID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = card.UserID
	}

	traceID := uuid.New().String()
	ctx := logger.WithTraceID(r.Context(), traceID)

	payload := saga.StartPaymentRequest{
		TraceID: traceID,
		UserID:  userID,
		CardID:  req.CardID,
		Service: domain.ServicePlan{Proveedor: req.Service.Proveedor, PrecioMensual: req.Service.PrecioMensual},
	}
	msg, err := queue.NewMessageWithPayload(domain.StepStartPayment, traceID, payload)
	if err != nil {
		httputil.WriteError(w, r, apperrors.Internal(err), h.logger)
		return
	}
	if err := h.enq.Enqueue(ctx, domain.StepStartPayment, msg); err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue payment", slog.String("error", err.Error()))
		httputil.WriteError(w, r, apperrors.ServiceUnavailable("payment queue unavailable"), h.logger)
		return
	}

	h.logger.InfoContext(ctx, "payment accepted",
		slog.String("trace_id", traceID),
		slog.String("card_id", req.CardID),
	)
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: CreatePaymentResponse{TraceID: traceID}})
}

// Get returns the current status record of a payment saga.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceId")
	if traceID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("traceId is required"), h.logger)
		return
	}

	record, err := h.repo.Get(r.Context(), traceID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: record})
}
