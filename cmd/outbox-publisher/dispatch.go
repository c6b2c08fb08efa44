package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// dispatch publishes one row and records what happened to it. The returned
// error is reserved for bookkeeping failures.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	fields := eventFields(event)
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	pubErr := s.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case pubErr == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return 0, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil

	case errors.As(pubErr, &nonRetryable):
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, fields)

	case event.AttemptCount+1 >= s.maxAttempts:
		fields["attempt_count"] = event.AttemptCount + 1
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", pubErr), fields)
	}

	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = pubErr.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return 0, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) (outcome, error) {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")

	entry := outbox.NewDLQEntry(event, reason, cause, s.now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return 0, fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return 0, fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return outcomeDeadLettered, nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, buildMessage(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// buildMessage carries the stored envelope verbatim. Events of one aggregate
// share an ordering key so a link's created/completed/expired events arrive
// in commit order.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
	}
	if actor := resolved.Envelope.Actor; actor != nil {
		attrs["actor_kind"] = actor.Kind
		if actor.ID != "" {
			attrs["actor_id"] = actor.ID
		}
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: event.AggregateID.String(),
	}
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
