package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

// DomainEvent is what services hand to the outbox. Data is marshalled into
// the envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("unknown outbox aggregate type %q", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return errors.New("outbox aggregate id required")
	}
	return nil
}

// Service writes events inside the caller's transaction so they commit or
// roll back with the state change that produced them.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists emits at most one event per (type, aggregate). Settlement
// transitions are replayed on duplicate deliveries, so every emission in the
// saga goes through here.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return fmt.Errorf("check outbox event: %w", err)
	}
	if exists {
		return nil
	}
	return s.Emit(ctx, tx, event)
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, error) {
	if err := event.validate(); err != nil {
		return models.OutboxEvent{}, err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.OutboxEvent{}, err
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, nil
}
