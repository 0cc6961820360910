package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
)

// DefaultStageDelay is the fixed pause applied before every stage
// handler runs, keeping the workflow observably asynchronous.
const DefaultStageDelay = 5 * time.Second

// Dispatcher routes messages from a single stage queue to the handler
// for that stage. A worker process runs exactly one dispatcher; which
// stage it serves is decided at startup.
type Dispatcher struct {
	stage    domain.Step
	delay    time.Duration
	initiate *InitiateHandler
	verify   *VerifyBalanceHandler
	settle   *SettleHandler
	logger   *slog.Logger
}

func NewDispatcher(
	stage domain.Step,
	delay time.Duration,
	initiate *InitiateHandler,
	verify *VerifyBalanceHandler,
	settle *SettleHandler,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if !domain.IsValidStep(string(stage)) {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if delay < 0 {
		delay = DefaultStageDelay
	}
	return &Dispatcher{
		stage:    stage,
		delay:    delay,
		initiate: initiate,
		verify:   verify,
		settle:   settle,
		logger:   logger,
	}, nil
}

// Stage returns the stage this dispatcher is bound to.
func (d *Dispatcher) Stage() domain.Step { return d.stage }

// Handle implements queue.Handler.
func (d *Dispatcher) Handle(ctx context.Context, msg *queue.Message) error {
	d.logger.Info("stage message received",
		slog.String("trace_id", msg.TraceID),
		slog.String("stage", string(d.stage)),
		slog.String("message_id", msg.MessageID),
	)

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	switch d.stage {
	case domain.StepStartPayment:
		var req StartPaymentRequest
		if err := msg.UnmarshalPayload(&req); err != nil {
			return fmt.Errorf("decoding start-payment payload: %w", err)
		}
		if req.TraceID == "" {
			req.TraceID = msg.TraceID
		}
		return d.initiate.Handle(ctx, &req)
	case domain.StepCheckBalance:
		return d.verify.Handle(ctx, msg.TraceID)
	case domain.StepTransaction:
		return d.settle.Handle(ctx, msg.TraceID)
	default:
		return fmt.Errorf("no handler for stage %q", d.stage)
	}
}
