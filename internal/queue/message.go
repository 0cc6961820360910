package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
)

// TopicPrefix is the prefix of all payment stage topics.
const TopicPrefix = "payments.stage"

// TopicFor returns the topic name of a stage's queue.
func TopicFor(stage domain.Step) string {
	return fmt.Sprintf("%s.%s", TopicPrefix, stage)
}

// Message is the envelope carried on a stage queue. Stage messages carry the
// traceId only; the start-payment message additionally carries the full
// payment request as Payload.
type Message struct {
	MessageID  string          `json:"messageId"`
	TraceID    string          `json:"traceId"`
	Stage      domain.Step     `json:"stage"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a traceId-only stage message with a fresh message ID.
func NewMessage(stage domain.Step, traceID string) *Message {
	return &Message{
		MessageID:  uuid.New().String(),
		TraceID:    traceID,
		Stage:      stage,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewMessageWithPayload creates a stage message carrying a JSON payload.
func NewMessageWithPayload(stage domain.Step, traceID string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	msg := NewMessage(stage, traceID)
	msg.Payload = data
	return msg, nil
}

// UnmarshalPayload deserializes the message payload into the given target.
func (m *Message) UnmarshalPayload(target any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.MessageID)
	}
	return json.Unmarshal(m.Payload, target)
}

// Marshal serializes the message to JSON bytes.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage deserializes a stage message from JSON bytes.
func UnmarshalMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
