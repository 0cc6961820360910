package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"

	"github.com/OscarCaraballo97/inferno-payment/internal/corebank"
	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
)

// SettleHandler processes transaction messages: it posts the purchase
// to the core-banking service and drives the saga to its terminal
// state. A settlement rejection and an unreachable bank both fail the
// saga, with the reason recorded on the record so the two cases stay
// distinguishable.
type SettleHandler struct {
	repo   repository.SagaRepository
	bank   corebank.Settler
	logger *slog.Logger
}

func NewSettleHandler(repo repository.SagaRepository, bank corebank.Settler, logger *slog.Logger) *SettleHandler {
	return &SettleHandler{repo: repo, bank: bank, logger: logger}
}

func (h *SettleHandler) Handle(ctx context.Context, traceID string) error {
	log := h.logger.With(slog.String("trace_id", traceID), slog.String("stage", string(domain.StepTransaction)))

	record, err := h.repo.Get(ctx, traceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Error("saga record not found, aborting settlement")
			observeStage(string(domain.StepTransaction), outcomeAborted)
			return nil
		}
		observeStage(string(domain.StepTransaction), outcomeError)
		return fmt.Errorf("loading saga record: %w", err)
	}
	if record.IsTerminal() {
		log.Info("saga already terminal, skipping settlement", slog.String("status", string(record.Status)))
		observeStage(string(domain.StepTransaction), outcomeSkipped)
		return nil
	}

	upd := repository.SagaUpdate{Step: repository.StepPtr(domain.StepTransaction)}
	if err := h.repo.Advance(ctx, traceID, domain.StepTransaction, upd); err != nil {
		if errors.Is(err, apperrors.ErrStaleStage) {
			log.Info("transaction update fenced out, skipping")
			observeStage(string(domain.StepTransaction), outcomeSkipped)
			return nil
		}
		observeStage(string(domain.StepTransaction), outcomeError)
		return fmt.Errorf("advancing saga to transaction: %w", err)
	}

	req := &corebank.SettlementRequest{
		Merchant: record.Merchant(),
		CardID:   record.CardID,
		Amount:   record.Amount(),
		TraceID:  record.TraceID,
		Type:     corebank.TypePurchase,
	}
	if err := h.bank.Settle(ctx, record.UserID, req); err != nil {
		if errors.Is(err, apperrors.ErrSettlementRejected) || errors.Is(err, apperrors.ErrSettlementUnreachable) {
			failed := repository.SagaUpdate{
				Status:   repository.StatusPtr(domain.StatusFailed),
				Step:     repository.StepPtr(domain.StepTransaction),
				Progress: repository.IntPtr(domain.ProgressDone),
				Error:    repository.StrPtr(err.Error()),
			}
			if ferr := h.repo.Advance(ctx, traceID, domain.StepTransaction, failed); ferr != nil && !errors.Is(ferr, apperrors.ErrStaleStage) {
				observeStage(string(domain.StepTransaction), outcomeError)
				return fmt.Errorf("recording settlement failure: %w", ferr)
			}
			log.Warn("settlement failed", slog.String("reason", err.Error()))
			observeStage(string(domain.StepTransaction), outcomeFailed)
			return nil
		}
		observeStage(string(domain.StepTransaction), outcomeError)
		return fmt.Errorf("settling transaction: %w", err)
	}

	done := repository.SagaUpdate{
		Status:   repository.StatusPtr(domain.StatusFinish),
		Step:     repository.StepPtr(domain.StepTransaction),
		Progress: repository.IntPtr(domain.ProgressDone),
	}
	if err := h.repo.Advance(ctx, traceID, domain.StepTransaction, done); err != nil && !errors.Is(err, apperrors.ErrStaleStage) {
		observeStage(string(domain.StepTransaction), outcomeError)
		return fmt.Errorf("finishing saga: %w", err)
	}

	log.Info("payment settled", slog.String("merchant", req.Merchant), slog.Float64("amount", req.Amount))
	observeStage(string(domain.StepTransaction), outcomeFinished)
	return nil
}
