package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	publishTimeout     = 15 * time.Second
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// Service relays committed outbox rows to the settlements topic. Rows are
// claimed with SKIP LOCKED, so several relays may run side by side.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	dlq          dlqRepository
	publishers   publisherFactory
	stop         func()
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		publishers:   params.PublisherFactory,
		stop:         func() {},
		batchSize:    positiveOr(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPoll
	}
	if s.publishers == nil {
		cache := newPublisherCache(params.PubSub)
		s.publishers = cache.get
		s.stop = cache.stopAll
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx is canceled. An empty batch waits one poll
// interval; a failed batch waits on an uncapped exponential backoff.
func (s *Service) Run(ctx context.Context) error {
	defer s.stop()

	if err := s.ensureReady(ctx); err != nil {
		return err
	}

	retry := newBatchBackOff(s.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		stats, err := s.drain(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			if err := sleep(ctx, retry.NextBackOff()); err != nil {
				return err
			}
			continue
		}
		retry.Reset()

		if stats.total() > 0 {
			continue
		}
		if err := sleep(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}

func (s *Service) ensureReady(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// newBatchBackOff spaces out retries after failed batches; it never gives up.
func newBatchBackOff(interval time.Duration) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.MaxInterval = maxBackoff
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

type batchStats struct {
	published    int
	retried      int
	deadLettered int
}

func (b batchStats) total() int {
	return b.published + b.retried + b.deadLettered
}

// drain claims one batch and settles every row in it inside one
// transaction. Bookkeeping failures abort the batch so the claim is
// released.
func (s *Service) drain(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range events {
			result, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			switch result {
			case outcomePublished:
				stats.published++
			case outcomeRetry:
				stats.retried++
			case outcomeDeadLettered:
				stats.deadLettered++
			}
		}
		return nil
	})
	if err != nil {
		return batchStats{}, err
	}
	if stats.total() > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"published":     stats.published,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
		}), "outbox batch drained")
	}
	return stats, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
