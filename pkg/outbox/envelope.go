package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written on every new envelope. Readers accept any
// version up to it.
const EnvelopeVersion = 1

// ActorRef names the user that caused the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. The same bytes are stored in
// outbox_events.payload and sent as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version       int             `json:"version"`
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType,omitempty"`
	AggregateType string          `json:"aggregateType,omitempty"`
	AggregateID   string          `json:"aggregateId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Actor         *ActorRef       `json:"actor,omitempty"`
	Data          json.RawMessage `json:"data"`
}

var (
	ErrEnvelopeVersion = errors.New("unsupported envelope version")
	ErrEnvelopeEventID = errors.New("envelope event id missing")
	ErrEnvelopeData    = errors.New("envelope data missing")
)

// DecodeEnvelope parses raw and rejects envelopes that no consumer can act on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return PayloadEnvelope{}, fmt.Errorf("%w: %d", ErrEnvelopeVersion, env.Version)
	}
	if env.EventID == "" {
		return PayloadEnvelope{}, ErrEnvelopeEventID
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEnvelopeData
	}
	return env, nil
}

// DecodeData unmarshals the envelope body into dst.
func (e PayloadEnvelope) DecodeData(dst any) error {
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode %s data: %w", e.EventType, err)
	}
	return nil
}
