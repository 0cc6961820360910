package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"
)

// DB is the subset of pgxpool.Pool used by the repository. pgxmock's pool
// satisfies it as well, which keeps the tests free of a live database.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SagaRepository implements repository.SagaRepository using PostgreSQL.
// The stage fence is expressed as conditions on the UPDATE itself, so a
// stale or duplicate stage write affects zero rows.
type SagaRepository struct {
	db DB
}

// NewSagaRepository creates a PostgreSQL-backed saga store.
func NewSagaRepository(db DB) *SagaRepository {
	return &SagaRepository{db: db}
}

// Create inserts the record, overwriting in place when the traceId already
// exists so a redelivered start-payment message stays idempotent.
func (r *SagaRepository) Create(ctx context.Context, saga *domain.PaymentSaga) error {
	serviceJSON, err := json.Marshal(saga.Service)
	if err != nil {
		return fmt.Errorf("marshal service plan: %w", err)
	}

	query := `
		INSERT INTO payment_sagas (trace_id, user_id, card_id, service, status, step, step_order, progress, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trace_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			card_id = EXCLUDED.card_id,
			service = EXCLUDED.service,
			status = EXCLUDED.status,
			step = EXCLUDED.step,
			step_order = EXCLUDED.step_order,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		saga.TraceID,
		saga.UserID,
		saga.CardID,
		serviceJSON,
		saga.Status,
		saga.Step,
		saga.Step.Order(),
		saga.Progress,
		saga.Error,
		saga.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert saga: %w", err)
	}

	return nil
}

// Get retrieves the full record by traceId.
func (r *SagaRepository) Get(ctx context.Context, traceID string) (*domain.PaymentSaga, error) {
	query := `
		SELECT trace_id, user_id, card_id, service, status, step, progress, error, updated_at
		FROM payment_sagas
		WHERE trace_id = $1`

	var (
		saga        domain.PaymentSaga
		serviceJSON []byte
	)

	err := r.db.QueryRow(ctx, query, traceID).Scan(
		&saga.TraceID,
		&saga.UserID,
		&saga.CardID,
		&serviceJSON,
		&saga.Status,
		&saga.Step,
		&saga.Progress,
		&saga.Error,
		&saga.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment saga", traceID)
		}
		return nil, fmt.Errorf("get saga: %w", err)
	}

	if len(serviceJSON) > 0 {
		if err := json.Unmarshal(serviceJSON, &saga.Service); err != nil {
			return nil, fmt.Errorf("unmarshal service plan: %w", err)
		}
	}

	return &saga, nil
}

// Advance applies the partial update behind the stage fence.
func (r *SagaRepository) Advance(ctx context.Context, traceID string, stage domain.Step, upd repository.SagaUpdate) error {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 8)

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Step != nil {
		add("step", *upd.Step)
		add("step_order", upd.Step.Order())
	}
	if upd.Progress != nil {
		add("progress", *upd.Progress)
	}
	if upd.Error != nil {
		add("error", *upd.Error)
	}
	add("updated_at", time.Now().UTC())

	// The fence: never touch terminal records, never regress progress, and
	// never let a stage behind the record's current step write.
	args = append(args, traceID)
	where := fmt.Sprintf("trace_id = $%d AND status NOT IN ('FINISH', 'FAILED')", len(args))

	if upd.Progress != nil {
		args = append(args, *upd.Progress)
		where += fmt.Sprintf(" AND progress <= $%d", len(args))
	}
	args = append(args, stage.Order())
	where += fmt.Sprintf(" AND step_order <= $%d", len(args))

	query := fmt.Sprintf("UPDATE payment_sagas SET %s WHERE %s", strings.Join(sets, ", "), where)

	ct, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("advance saga: %w", err)
	}

	if ct.RowsAffected() == 0 {
		// Zero rows means missing record or rejected fence; disambiguate.
		if _, getErr := r.Get(ctx, traceID); getErr != nil {
			return getErr
		}
		return apperrors.ErrStaleStage
	}

	return nil
}
