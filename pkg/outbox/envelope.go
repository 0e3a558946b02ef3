package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current payload envelope schema.
const EnvelopeVersion = 1

// PayloadEnvelope is the stable structure for every message published to Pub/Sub.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps data with a fresh event id.
func NewEnvelope(data any, occurredAt time.Time) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal envelope data: %w", err)
	}
	return PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	}, nil
}

// DecodeEnvelope parses a message body and checks the envelope header.
func DecodeEnvelope(body []byte) (PayloadEnvelope, uuid.UUID, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return PayloadEnvelope{}, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return PayloadEnvelope{}, uuid.Nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return PayloadEnvelope{}, uuid.Nil, fmt.Errorf("invalid event id %q: %w", env.EventID, err)
	}
	if len(env.Data) == 0 {
		return PayloadEnvelope{}, uuid.Nil, errors.New("envelope data is empty")
	}
	return env, id, nil
}

// DecodeData unmarshals the envelope payload into dst.
func (e PayloadEnvelope) DecodeData(dst any) error {
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}
