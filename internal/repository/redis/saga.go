package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/repository"
	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"
)

const keyPrefix = "payment:saga:"

// advanceScript applies a partial hash update only when the stored record is
// not terminal, progress does not regress, and the writing stage is not
// behind the record's current step. ARGV[1] is the new progress (-1 keeps the
// stored value), ARGV[2] the writing stage's order, and ARGV[3..] the
// field/value pairs to set.
var advanceScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return 'NOT_FOUND'
end
local status = redis.call('HGET', key, 'status')
if status == 'FINISH' or status == 'FAILED' then
  return 'STALE'
end
local progress = tonumber(redis.call('HGET', key, 'progress') or '0')
local newProgress = tonumber(ARGV[1])
if newProgress == -1 then
  newProgress = progress
end
if newProgress < progress then
  return 'STALE'
end
local stepOrder = tonumber(redis.call('HGET', key, 'stepOrder') or '0')
if tonumber(ARGV[2]) < stepOrder then
  return 'STALE'
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', key, ARGV[i], ARGV[i+1])
end
return 'OK'
`)

// SagaRepository stores saga records as Redis hashes, one hash per traceId.
// Partial updates map directly onto HSET, and the no-regression fence runs
// server-side as a Lua script so concurrent stage writers cannot interleave.
type SagaRepository struct {
	client *redis.Client
}

// NewSagaRepository creates a Redis-backed saga store.
func NewSagaRepository(client *redis.Client) *SagaRepository {
	return &SagaRepository{client: client}
}

func key(traceID string) string {
	return keyPrefix + traceID
}

// Create writes the full record as a hash, overwriting any existing fields
// for the same traceId.
func (r *SagaRepository) Create(ctx context.Context, saga *domain.PaymentSaga) error {
	serviceJSON, err := json.Marshal(saga.Service)
	if err != nil {
		return fmt.Errorf("marshal service plan: %w", err)
	}

	fields := map[string]any{
		"traceId":   saga.TraceID,
		"userId":    saga.UserID,
		"cardId":    saga.CardID,
		"service":   string(serviceJSON),
		"status":    string(saga.Status),
		"step":      string(saga.Step),
		"stepOrder": saga.Step.Order(),
		"progress":  saga.Progress,
		"error":     saga.Error,
		"updatedAt": saga.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := r.client.HSet(ctx, key(saga.TraceID), fields).Err(); err != nil {
		return fmt.Errorf("create saga %s: %w", saga.TraceID, err)
	}
	return nil
}

// Get reads the full record.
func (r *SagaRepository) Get(ctx context.Context, traceID string) (*domain.PaymentSaga, error) {
	values, err := r.client.HGetAll(ctx, key(traceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get saga %s: %w", traceID, err)
	}
	if len(values) == 0 {
		return nil, apperrors.NotFound("payment saga", traceID)
	}

	saga := &domain.PaymentSaga{
		TraceID: values["traceId"],
		UserID:  values["userId"],
		CardID:  values["cardId"],
		Status:  domain.Status(values["status"]),
		Step:    domain.Step(values["step"]),
		Error:   values["error"],
	}

	if raw := values["service"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &saga.Service); err != nil {
			return nil, fmt.Errorf("unmarshal service plan for %s: %w", traceID, err)
		}
	}
	if raw := values["progress"]; raw != "" {
		progress, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse progress for %s: %w", traceID, err)
		}
		saga.Progress = progress
	}
	if raw := values["updatedAt"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse updatedAt for %s: %w", traceID, err)
		}
		saga.UpdatedAt = ts
	}

	return saga, nil
}

// Advance applies the partial update behind the server-side stage fence.
func (r *SagaRepository) Advance(ctx context.Context, traceID string, stage domain.Step, upd repository.SagaUpdate) error {
	progressArg := "-1"
	args := []any{nil, strconv.Itoa(stage.Order())}

	if upd.Status != nil {
		args = append(args, "status", string(*upd.Status))
	}
	if upd.Step != nil {
		args = append(args, "step", string(*upd.Step), "stepOrder", strconv.Itoa(upd.Step.Order()))
	}
	if upd.Progress != nil {
		progressArg = strconv.Itoa(*upd.Progress)
		args = append(args, "progress", progressArg)
	}
	if upd.Error != nil {
		args = append(args, "error", *upd.Error)
	}
	args = append(args, "updatedAt", time.Now().UTC().Format(time.RFC3339Nano))
	args[0] = progressArg

	res, err := advanceScript.Run(ctx, r.client, []string{key(traceID)}, args...).Text()
	if err != nil {
		return fmt.Errorf("advance saga %s: %w", traceID, err)
	}

	switch res {
	case "OK":
		return nil
	case "NOT_FOUND":
		return apperrors.NotFound("payment saga", traceID)
	case "STALE":
		return apperrors.ErrStaleStage
	default:
		return fmt.Errorf("advance saga %s: unexpected script result %q", traceID, res)
	}
}

// Ping verifies store connectivity, for readiness checks.
func (r *SagaRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
