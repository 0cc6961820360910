// Package cards validates payment cards against the users API before a saga
// is started.
package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/OscarCaraballo97/inferno-payment/pkg/errors"
	"github.com/OscarCaraballo97/inferno-payment/pkg/httpclient"
)

// Card is the subset of the users API card resource the ingress needs: the
// owning user and whether the card can be charged.
type Card struct {
	CardID string `json:"cardId"`
	UserID string `json:"userId"`
	Active bool   `json:"active"`
}

// Validator checks a card before a payment saga is started.
type Validator interface {
	// Validate returns the card when it exists and is active. Unknown
	// cards return an apperrors.NotFound, inactive cards an
	// apperrors.InvalidInput, and an unreachable users API an
	// apperrors.ServiceUnavailable.
	Validate(ctx context.Context, cardID string) (*Card, error)
}

// Client validates cards via GET {base}/cards/{cardId}.
type Client struct {
	base   string
	http   httpclient.Doer
	logger *slog.Logger
}

// NewClient creates a users-API card validation client.
func NewClient(base string, http httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		base:   base,
		http:   http,
		logger: logger,
	}
}

// Validate looks the card up and checks it is active.
func (c *Client) Validate(ctx context.Context, cardID string) (*Card, error) {
	endpoint := fmt.Sprintf("%s/cards/%s", c.base, url.PathEscape(cardID))

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, apperrors.ServiceUnavailable("users API unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("card", cardID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.ServiceUnavailable(fmt.Sprintf("users API error (%d)", resp.StatusCode))
	}

	var card Card
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode card response: %w", err)
	}

	if !card.Active {
		return nil, apperrors.InvalidInput("card inactive")
	}

	if card.CardID == "" {
		card.CardID = cardID
	}

	return &card, nil
}

// SkipValidator passes every card through without consulting the users API.
// It is the operating mode when no users API is configured and logs once at
// construction so the gap is visible.
type SkipValidator struct{}

// NewSkipValidator creates the pass-through validator.
func NewSkipValidator(logger *slog.Logger) *SkipValidator {
	logger.Warn("users API not configured, card validation skipped")
	return &SkipValidator{}
}

// Validate accepts the card without lookup; the owner is unknown.
func (SkipValidator) Validate(_ context.Context, cardID string) (*Card, error) {
	return &Card{CardID: cardID, Active: true}, nil
}
