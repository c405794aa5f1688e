package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef says which tenant, and optionally which customer, caused an event.
type ActorRef struct {
	TenantID   uuid.UUID  `json:"tenantId"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	Role       string     `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. Consumers key deduplication on
// EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var ErrEmptyPayload = errors.New("envelope has no data")

// DecodeEnvelope parses a stored envelope and rejects ones no consumer could
// use: no version, a missing event id or empty data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		return env, fmt.Errorf("envelope event id %q: %w", env.EventID, err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEmptyPayload
	}
	env.Data = data
	return env, nil
}
