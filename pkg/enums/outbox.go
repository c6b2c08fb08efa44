package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSettlementLink OutboxAggregateType = "settlement_link"
	AggregateShipment       OutboxAggregateType = "shipment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSettlementLink,
	AggregateShipment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSettlementLinkCreated OutboxEventType = "settlement_link_created"
	EventSettlementCompleted   OutboxEventType = "settlement_completed"
	EventSettlementFailed      OutboxEventType = "settlement_failed"
	EventSettlementLinkExpired OutboxEventType = "settlement_link_expired"
	EventShipmentRecorded      OutboxEventType = "shipment_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSettlementLinkCreated,
	EventSettlementCompleted,
	EventSettlementFailed,
	EventSettlementLinkExpired,
	EventShipmentRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}

// OutboxDLQErrorReason records why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
