package repository

import (
	"context"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
)

// SagaUpdate is a partial attribute update applied to a saga record. Nil
// fields are left untouched so concurrent writes to unrelated attributes are
// never clobbered.
type SagaUpdate struct {
	Status   *domain.Status
	Step     *domain.Step
	Progress *int
	Error    *string
}

// SagaRepository defines persistence for payment saga records.
//
// Advance is the fenced update recommended for stage writes: the update is
// applied only when the stored record is not terminal, the new progress does
// not regress, and the writing stage is not behind the record's current step.
// A rejected fence returns apperrors.ErrStaleStage; a missing record returns
// an apperrors.NotFound. Store-level failures are returned as-is and are
// expected to propagate to the queue layer for redelivery.
type SagaRepository interface {
	// Create inserts the record. Re-creating the same traceId overwrites in
	// place, which keeps a redelivered start-payment message idempotent.
	Create(ctx context.Context, saga *domain.PaymentSaga) error

	// Get returns the full current record, or an apperrors.NotFound.
	Get(ctx context.Context, traceID string) (*domain.PaymentSaga, error)

	// Advance applies the partial update on behalf of the given stage.
	Advance(ctx context.Context, traceID string, stage domain.Step, upd SagaUpdate) error
}

// Helpers for building SagaUpdate literals without intermediate variables.

func StatusPtr(s domain.Status) *domain.Status { return &s }
func StepPtr(s domain.Step) *domain.Step       { return &s }
func IntPtr(i int) *int                        { return &i }
func StrPtr(s string) *string                  { return &s }
