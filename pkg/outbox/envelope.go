package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeVersion is stamped on events that do not set their own version.
const EnvelopeVersion = 1

const (
	actorSystem  = "system"
	actorGateway = "gateway"
	actorSeller  = "seller"
)

var ErrEmptyEventData = errors.New("envelope carries no event data")

// ActorRef names whoever caused the event.
type ActorRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

func SystemActor(job string) *ActorRef          { return &ActorRef{Kind: actorSystem, ID: job} }
func GatewayActor(invoiceSlug string) *ActorRef { return &ActorRef{Kind: actorGateway, ID: invoiceSlug} }
func SellerActor(sellerID string) *ActorRef     { return &ActorRef{Kind: actorSeller, ID: sellerID} }

// PayloadEnvelope is the JSON document stored in outbox_events.payload and
// published verbatim as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes whose data is
// missing or null.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEmptyEventData
	}
	return env, nil
}
