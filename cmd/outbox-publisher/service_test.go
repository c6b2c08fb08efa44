package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/payloads"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/registry"
)

const topic = "ds-settlement-events"

func linkEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateSettlementLink,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, id.String(), outbox.GatewayActor("inv-1")),
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

func envelopeJSON(t *testing.T, eventID string, actor *outbox.ActorRef) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return raw
}

func TestDrainContinuesAfterTransientFailure(t *testing.T) {
	first := linkEvent(t, enums.EventSettlementCompleted, 0)
	second := linkEvent(t, enums.EventSettlementCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []error{errors.New("transient"), nil}}
	svc := newTestService(t, repo, pub, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	stats, err := svc.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchStats{published: 1, retried: 1}, stats)
	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestBuildMessageCarriesEnvelopeAndOrdering(t *testing.T) {
	event := linkEvent(t, enums.EventSettlementLinkCreated, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []error{nil}}
	svc := newTestService(t, repo, pub, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, []byte(event.Payload), msg.Data)
	assert.Equal(t, event.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, string(enums.EventSettlementLinkCreated), msg.Attributes["event_type"])
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, "1", msg.Attributes["schema_version"])
	assert.Equal(t, "gateway", msg.Attributes["actor_kind"])
	assert.Equal(t, "inv-1", msg.Attributes["actor_id"])
	assert.Equal(t, []string{topic}, pub.topics)
}

func TestDrainDeadLettersUnresolvableRows(t *testing.T) {
	event := linkEvent(t, enums.EventSettlementFailed, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	svc := newTestService(t, repo, &fakePublisher{}, reg, dlq, nil)

	stats, err := svc.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, []byte(event.Payload), []byte(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	event := linkEvent(t, enums.EventSettlementCompleted, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	pub := &fakePublisher{results: []error{errors.New("transient")}}
	svc := newTestService(t, repo, pub, &fakeRegistry{}, dlq, &config.OutboxConfig{BatchSize: 1, MaxAttempts: 2})

	stats, err := svc.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	require.NotNil(t, dlq.entries[0].ErrorMessage)
	assert.Contains(t, *dlq.entries[0].ErrorMessage, "max publish attempts")
	assert.Empty(t, repo.failed)
}

func TestDrainAbortsOnBookkeepingFailure(t *testing.T) {
	event := linkEvent(t, enums.EventSettlementCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}, markErr: errors.New("db down")}
	svc := newTestService(t, repo, &fakePublisher{results: []error{nil}}, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	_, err := svc.drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark published")
}

func TestMissingPublisherIsNonRetryable(t *testing.T) {
	event := linkEvent(t, enums.EventSettlementCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	svc := newTestService(t, repo, nil, &fakeRegistry{}, dlq, nil)

	stats, err := svc.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
}

func TestBatchBackOffIsCapped(t *testing.T) {
	policy := newBatchBackOff(100 * time.Millisecond)
	var last time.Duration
	for i := 0; i < 20; i++ {
		last = policy.NextBackOff()
		require.GreaterOrEqual(t, last, time.Duration(0), "batch backoff must never stop")
	}
	assert.LessOrEqual(t, last, maxBackoff+maxBackoff/2)
	policy.Reset()
	assert.LessOrEqual(t, policy.NextBackOff(), 200*time.Millisecond)
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, &config.OutboxConfig{})
	assert.Equal(t, defaultBatchSize, svc.batchSize)
	assert.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	assert.Equal(t, defaultPoll, svc.pollInterval)
}

func newTestService(t *testing.T, repo outboxRepository, pub *fakePublisher, reg registryResolver, dlq dlqRepository, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	factory := func(name string) publisher {
		if pub == nil {
			return nil
		}
		pub.topics = append(pub.topics, name)
		return pub
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: factory,
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return svc
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []error
	messages []*gcppubsub.Message
	topics   []string
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return fakePublishResult{err: err}
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

// fakeRegistry resolves every row against the settlements topic unless err
// is set.
type fakeRegistry struct {
	err error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         topic,
		},
		Envelope: envelope,
		Payload:  &payloads.SettlementCompletedEvent{},
	}, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
