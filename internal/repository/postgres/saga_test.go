package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
)

func setupRepo(t *testing.T) (*SagaRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	return NewSagaRepository(mockPool), mockPool
}

func newSaga() *domain.PaymentSaga {
	return domain.NewPaymentSaga("trace-1", "user-1", "card-1",
		domain.ServicePlan{Proveedor: "Netflix", PrecioMensual: 15.99})
}

func TestSagaRepository_Create(t *testing.T) {
	repo, mockPool := setupRepo(t)
	saga := newSaga()

	serviceJSON, err := json.Marshal(saga.Service)
	require.NoError(t, err)

	mockPool.ExpectExec("INSERT INTO payment_sagas").
		WithArgs(
			saga.TraceID, saga.UserID, saga.CardID, serviceJSON,
			saga.Status, saga.Step, saga.Step.Order(), saga.Progress, saga.Error, saga.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), saga)

	require.NoError(t, err)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSagaRepository_Create_DatabaseError(t *testing.T) {
	repo, mockPool := setupRepo(t)

	mockPool.ExpectExec("INSERT INTO payment_sagas").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err := repo.Create(context.Background(), newSaga())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert saga")
}

func TestSagaRepository_Get(t *testing.T) {
	repo, mockPool := setupRepo(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"trace_id", "user_id", "card_id", "service", "status", "step", "progress", "error", "updated_at",
	}).AddRow(
		"trace-1", "user-1", "card-1", []byte(`{"proveedor":"Netflix","precio_mensual":15.99}`),
		domain.StatusInProgress, domain.StepCheckBalance, domain.ProgressChecking, "", now,
	)

	mockPool.ExpectQuery("SELECT (.+) FROM payment_sagas").
		WithArgs("trace-1").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "trace-1")

	require.NoError(t, err)
	assert.Equal(t, "trace-1", got.TraceID)
	assert.Equal(t, "Netflix", got.Service.Proveedor)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, domain.StepCheckBalance, got.Step)
	assert.Equal(t, domain.ProgressChecking, got.Progress)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestSagaRepository_Get_NotFound(t *testing.T) {
	repo, mockPool := setupRepo(t)

	mockPool.ExpectQuery("SELECT (.+) FROM payment_sagas").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSagaRepository_Advance(t *testing.T) {
	repo, mockPool := setupRepo(t)

	mockPool.ExpectExec("UPDATE payment_sagas SET").
		WithArgs(
			domain.StatusInProgress,
			domain.ProgressInitiated,
			pgxmock.AnyArg(), // updated_at
			"trace-1",
			domain.ProgressInitiated,
			domain.StepStartPayment.Order(),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Advance(context.Background(), "trace-1", domain.StepStartPayment, repository.SagaUpdate{
		Status:   repository.StatusPtr(domain.StatusInProgress),
		Progress: repository.IntPtr(domain.ProgressInitiated),
	})

	require.NoError(t, err)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSagaRepository_Advance_FencedWriteIsStale(t *testing.T) {
	repo, mockPool := setupRepo(t)
	now := time.Now().UTC()

	mockPool.ExpectExec("UPDATE payment_sagas SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "trace-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	// The record exists, so zero affected rows means the fence rejected it.
	rows := pgxmock.NewRows([]string{
		"trace_id", "user_id", "card_id", "service", "status", "step", "progress", "error", "updated_at",
	}).AddRow(
		"trace-1", "user-1", "card-1", []byte(`{}`),
		domain.StatusFinish, domain.StepTransaction, domain.ProgressDone, "", now,
	)
	mockPool.ExpectQuery("SELECT (.+) FROM payment_sagas").
		WithArgs("trace-1").
		WillReturnRows(rows)

	err := repo.Advance(context.Background(), "trace-1", domain.StepCheckBalance, repository.SagaUpdate{
		Status:   repository.StatusPtr(domain.StatusInProgress),
		Progress: repository.IntPtr(domain.ProgressChecking),
	})

	assert.ErrorIs(t, err, apperrors.ErrStaleStage)
}

func TestSagaRepository_Advance_MissingRecordIsNotFound(t *testing.T) {
	repo, mockPool := setupRepo(t)

	mockPool.ExpectExec("UPDATE payment_sagas SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	mockPool.ExpectQuery("SELECT (.+) FROM payment_sagas").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	err := repo.Advance(context.Background(), "missing", domain.StepCheckBalance, repository.SagaUpdate{
		Step: repository.StepPtr(domain.StepCheckBalance),
	})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
