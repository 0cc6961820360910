// Package saga contains the stage handlers that drive a payment saga
// through its three steps: start-payment, check-balance and transaction.
// Each handler is bound to a single stage queue by the Dispatcher and
// records its progress through the fenced repository Advance operation,
// so late or duplicate deliveries can never move a saga backwards.
package saga

import (
	"context"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
)

// Enqueuer publishes a message onto the queue of the given stage.
// Satisfied by queue.Producer.
type Enqueuer interface {
	Enqueue(ctx context.Context, stage domain.Step, msg *queue.Message) error
}

// StartPaymentRequest is the payload carried by start-payment messages.
// It holds everything needed to mint the durable saga record; later
// stages carry only the traceId and read the record back.
type StartPaymentRequest struct {
	TraceID string             `json:"traceId"`
	UserID  string             `json:"userId"`
	CardID  string             `json:"cardId"`
	Service domain.ServicePlan `json:"service"`
}
