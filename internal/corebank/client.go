// Package corebank talks to the core-banking settlement backend.
package corebank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"
	"github.com/OscarCaraballo97/inferno-payment/pkg/httpclient"
)

// TransactionType for card purchases.
const TypePurchase = "PURCHASE"

// SettlementRequest is the payload the core-banking backend expects.
type SettlementRequest struct {
	Merchant string  `json:"merchant"`
	CardID   string  `json:"cardId"`
	Amount   float64 `json:"amount"`
	TraceID  string  `json:"traceId"`
	Type     string  `json:"type"`
}

// Settler executes a settlement against the payer's account. A nil return
// means the transaction was accepted. Rejections wrap
// apperrors.ErrSettlementRejected and unreachable backends wrap
// apperrors.ErrSettlementUnreachable; callers distinguish the two with
// errors.Is.
type Settler interface {
	Settle(ctx context.Context, userID string, req *SettlementRequest) error
}

// Client settles transactions over HTTP:
// POST {base}/users/{userId}/transactions.
// The production wiring hands it a circuit-breaker client, so a down core
// banking backend fails settlements fast instead of being retried per message.
type Client struct {
	base   string
	http   httpclient.Doer
	logger *slog.Logger
}

// NewClient creates a settlement client for the given base URL.
func NewClient(base string, http httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		base:   base,
		http:   http,
		logger: logger,
	}
}

// Settle posts the settlement request to the core-banking backend.
func (c *Client) Settle(ctx context.Context, userID string, req *SettlementRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal settlement request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/transactions", c.base, url.PathEscape(userID))

	resp, err := c.http.Post(ctx, endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSettlementUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("%w: core responded %d: %s", apperrors.ErrSettlementRejected, resp.StatusCode, string(detail))
	}

	c.logger.DebugContext(ctx, "settlement accepted",
		slog.String("trace_id", req.TraceID),
		slog.String("merchant", req.Merchant),
		slog.Float64("amount", req.Amount),
	)

	return nil
}

// SimulatedSettler accepts every settlement without a backend. It is a valid
// operating mode for environments with no core-banking endpoint wired yet,
// but must be selected affirmatively by configuration and announces itself
// on every call.
type SimulatedSettler struct {
	logger *slog.Logger
}

// NewSimulatedSettler creates the simulation-mode settler.
func NewSimulatedSettler(logger *slog.Logger) *SimulatedSettler {
	logger.Warn("core-banking settlement running in simulation mode, all settlements succeed")
	return &SimulatedSettler{logger: logger}
}

// Settle logs and accepts the settlement.
func (s *SimulatedSettler) Settle(ctx context.Context, userID string, req *SettlementRequest) error {
	s.logger.InfoContext(ctx, "simulated settlement",
		slog.String("trace_id", req.TraceID),
		slog.String("user_id", userID),
		slog.String("merchant", req.Merchant),
		slog.Float64("amount", req.Amount),
	)
	return nil
}
