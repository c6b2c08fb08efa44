package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its aggregate, topic and payload
// schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry is read-only after construction.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish, whatever the number
// of attempts.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func describe[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      event,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes every settlement-pipeline event to the configured
// settlements topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.SettlementsTopic)
	if topic == "" {
		return nil, errors.New("settlements topic is required")
	}
	descriptors := []EventDescriptor{
		describe[payloads.SettlementLinkCreatedEvent](enums.EventSettlementLinkCreated, enums.AggregateSettlementLink),
		describe[payloads.SettlementCompletedEvent](enums.EventSettlementCompleted, enums.AggregateSettlementLink),
		describe[payloads.SettlementFailedEvent](enums.EventSettlementFailed, enums.AggregateSettlementLink),
		describe[payloads.SettlementLinkExpiredEvent](enums.EventSettlementLinkExpired, enums.AggregateSettlementLink),
		describe[payloads.ShipmentRecordedEvent](enums.EventShipmentRecorded, enums.AggregateShipment),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		d.Topic = topic
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Resolve validates a row against its descriptor and decodes the typed
// payload. Every failure is non-retryable: the row itself is bad.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: %s events belong to %s, got %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// Topics lists the distinct destination topics.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, d := range r.entries {
		if _, ok := seen[d.Topic]; !ok {
			seen[d.Topic] = struct{}{}
			out = append(out, d.Topic)
		}
	}
	return out
}
