package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/funds"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
)

// msgInsufficientFunds is the customer-visible failure reason recorded
// on the saga when the balance check comes back negative.
const msgInsufficientFunds = "Insufficient account balance."

// VerifyBalanceHandler processes check-balance messages: it asks the
// funds checker whether the account can cover the payment and either
// fails the saga or hands it to the transaction stage.
type VerifyBalanceHandler struct {
	repo   repository.SagaRepository
	enq    Enqueuer
	funds  funds.Checker
	logger *slog.Logger
}

func NewVerifyBalanceHandler(repo repository.SagaRepository, enq Enqueuer, checker funds.Checker, logger *slog.Logger) *VerifyBalanceHandler {
	return &VerifyBalanceHandler{repo: repo, enq: enq, funds: checker, logger: logger}
}

func (h *VerifyBalanceHandler) Handle(ctx context.Context, traceID string) error {
	log := h.logger.With(slog.String("trace_id", traceID), slog.String("stage", string(domain.StepCheckBalance)))

	upd := repository.SagaUpdate{
		Step:     repository.StepPtr(domain.StepCheckBalance),
		Progress: repository.IntPtr(domain.ProgressChecking),
	}
	if err := h.repo.Advance(ctx, traceID, domain.StepCheckBalance, upd); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrStaleStage):
			log.Info("check-balance update fenced out, skipping")
			observeStage(string(domain.StepCheckBalance), outcomeSkipped)
			return nil
		case errors.Is(err, apperrors.ErrNotFound):
			// The record was never created; nothing to verify against.
			log.Error("saga record not found, aborting check-balance")
			observeStage(string(domain.StepCheckBalance), outcomeAborted)
			return nil
		}
		observeStage(string(domain.StepCheckBalance), outcomeError)
		return fmt.Errorf("advancing saga to checking: %w", err)
	}

	ok, err := h.funds.HasFunds(ctx, traceID)
	if err != nil {
		observeStage(string(domain.StepCheckBalance), outcomeError)
		return fmt.Errorf("checking funds: %w", err)
	}

	if !ok {
		failed := repository.SagaUpdate{
			Status:   repository.StatusPtr(domain.StatusFailed),
			Step:     repository.StepPtr(domain.StepCheckBalance),
			Progress: repository.IntPtr(domain.ProgressDone),
			Error:    repository.StrPtr(msgInsufficientFunds),
		}
		if err := h.repo.Advance(ctx, traceID, domain.StepCheckBalance, failed); err != nil && !errors.Is(err, apperrors.ErrStaleStage) {
			observeStage(string(domain.StepCheckBalance), outcomeError)
			return fmt.Errorf("recording insufficient funds: %w", err)
		}
		log.Warn("payment rejected for insufficient funds")
		observeStage(string(domain.StepCheckBalance), outcomeFailed)
		return nil
	}

	upd = repository.SagaUpdate{Progress: repository.IntPtr(domain.ProgressFundsOK)}
	if err := h.repo.Advance(ctx, traceID, domain.StepCheckBalance, upd); err != nil && !errors.Is(err, apperrors.ErrStaleStage) {
		observeStage(string(domain.StepCheckBalance), outcomeError)
		return fmt.Errorf("advancing saga past balance check: %w", err)
	}

	if err := h.enq.Enqueue(ctx, domain.StepTransaction, queue.NewMessage(domain.StepTransaction, traceID)); err != nil {
		observeStage(string(domain.StepCheckBalance), outcomeError)
		return fmt.Errorf("enqueueing transaction: %w", err)
	}

	log.Info("balance verified, settlement queued")
	observeStage(string(domain.StepCheckBalance), outcomeAdvanced)
	return nil
}
