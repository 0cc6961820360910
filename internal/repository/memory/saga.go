package memory

import (
	"context"
	"sync"
	"time"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"
)

// SagaRepository is an in-process saga store. It backs local development and
// the end-to-end scenario tests; production deployments use the redis or
// postgres drivers.
type SagaRepository struct {
	mu    sync.RWMutex
	sagas map[string]domain.PaymentSaga
}

// NewSagaRepository creates an empty in-memory saga store.
func NewSagaRepository() *SagaRepository {
	return &SagaRepository{
		sagas: make(map[string]domain.PaymentSaga),
	}
}

// Create inserts the record, overwriting in place on a repeated traceId.
func (r *SagaRepository) Create(_ context.Context, saga *domain.PaymentSaga) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sagas[saga.TraceID] = *saga
	return nil
}

// Get returns a copy of the current record.
func (r *SagaRepository) Get(_ context.Context, traceID string) (*domain.PaymentSaga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	saga, ok := r.sagas[traceID]
	if !ok {
		return nil, apperrors.NotFound("payment saga", traceID)
	}
	return &saga, nil
}

// Advance applies the partial update behind the stage fence.
func (r *SagaRepository) Advance(_ context.Context, traceID string, stage domain.Step, upd repository.SagaUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	saga, ok := r.sagas[traceID]
	if !ok {
		return apperrors.NotFound("payment saga", traceID)
	}

	progress := saga.Progress
	if upd.Progress != nil {
		progress = *upd.Progress
	}
	if !saga.CanAdvance(stage, progress) {
		return apperrors.ErrStaleStage
	}

	if upd.Status != nil {
		saga.Status = *upd.Status
	}
	if upd.Step != nil {
		saga.Step = *upd.Step
	}
	if upd.Progress != nil {
		saga.Progress = *upd.Progress
	}
	if upd.Error != nil {
		saga.Error = *upd.Error
	}
	saga.UpdatedAt = time.Now().UTC()

	r.sagas[traceID] = saga
	return nil
}

// Len returns the number of stored records.
func (r *SagaRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sagas)
}
