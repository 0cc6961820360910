package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
)

// InitiateHandler processes start-payment messages: it creates the
// durable saga record, marks the saga in progress and hands it to the
// check-balance stage.
type InitiateHandler struct {
	repo   repository.SagaRepository
	enq    Enqueuer
	logger *slog.Logger
}

func NewInitiateHandler(repo repository.SagaRepository, enq Enqueuer, logger *slog.Logger) *InitiateHandler {
	return &InitiateHandler{repo: repo, enq: enq, logger: logger}
}

func (h *InitiateHandler) Handle(ctx context.Context, req *StartPaymentRequest) error {
	log := h.logger.With(slog.String("trace_id", req.TraceID), slog.String("stage", string(domain.StepStartPayment)))

	record := domain.NewPaymentSaga(req.TraceID, req.UserID, req.CardID, req.Service)
	if err := h.repo.Create(ctx, record); err != nil {
		observeStage(string(domain.StepStartPayment), outcomeError)
		return fmt.Errorf("creating saga record: %w", err)
	}

	upd := repository.SagaUpdate{
		Status:   repository.StatusPtr(domain.StatusInProgress),
		Step:     repository.StepPtr(domain.StepStartPayment),
		Progress: repository.IntPtr(domain.ProgressInitiated),
	}
	if err := h.repo.Advance(ctx, req.TraceID, domain.StepStartPayment, upd); err != nil {
		if errors.Is(err, apperrors.ErrStaleStage) {
			// A redelivery raced a later stage; the saga is already past us.
			log.Info("start-payment update fenced out, skipping")
			observeStage(string(domain.StepStartPayment), outcomeSkipped)
			return nil
		}
		observeStage(string(domain.StepStartPayment), outcomeError)
		return fmt.Errorf("advancing saga to in-progress: %w", err)
	}

	if err := h.enq.Enqueue(ctx, domain.StepCheckBalance, queue.NewMessage(domain.StepCheckBalance, req.TraceID)); err != nil {
		observeStage(string(domain.StepStartPayment), outcomeError)
		return fmt.Errorf("enqueueing check-balance: %w", err)
	}

	log.Info("payment saga initiated", slog.String("card_id", req.CardID))
	observeStage(string(domain.StepStartPayment), outcomeAdvanced)
	return nil
}
