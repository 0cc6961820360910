// Package funds abstracts the balance decision made by the check-balance
// stage. The production deployment points this at a real ledger; until then
// the decision function is injected so the outcome is never hardwired into
// the stage handler.
package funds

import (
	"context"
	"math/rand/v2"
)

// Checker decides whether the payer behind a saga has sufficient funds.
type Checker interface {
	// HasFunds returns true when the account can cover the payment.
	// An error means the decision could not be made at all and the stage
	// should be retried, not failed.
	HasFunds(ctx context.Context, traceID string) (bool, error)
}

// StaticChecker always returns a fixed outcome. Used in tests and as the
// deterministic development mode.
type StaticChecker struct {
	Sufficient bool
}

// HasFunds returns the configured outcome.
func (c StaticChecker) HasFunds(_ context.Context, _ string) (bool, error) {
	return c.Sufficient, nil
}

// RandomChecker simulates a ledger by failing a configured fraction of
// checks. It must be selected affirmatively by configuration; nothing in the
// stage handlers defaults to it.
type RandomChecker struct {
	// FailureRatio is the fraction of checks that report insufficient
	// funds, in [0, 1].
	FailureRatio float64
}

// HasFunds reports insufficient funds for roughly FailureRatio of calls.
func (c RandomChecker) HasFunds(_ context.Context, _ string) (bool, error) {
	return rand.Float64() >= c.FailureRatio, nil
}
