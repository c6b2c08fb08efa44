package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const (
	defaultRetention        = 30 * 24 * time.Hour
	defaultOutboxMinAttempt = 5
	retentionJobName        = "settlement-retention"
)

// RetentionJobParams configure pruning of delivered events and resolved
// dead letters.
type RetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      outboxPruner
	DeadLetters deadLetterPruner
	Retention   time.Duration
	MinAttempts int
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

type deadLetterPruner interface {
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = defaultOutboxMinAttempt
	}
	return &retentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		deadLetters: params.DeadLetters,
		retention:   retention,
		minAttempts: minAttempts,
		now:         time.Now,
	}, nil
}

type retentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	deadLetters deadLetterPruner
	retention   time.Duration
	minAttempts int
	now         func() time.Time
}

func (j *retentionJob) Name() string { return retentionJobName }

// Run prunes both stores independently; a failure in one does not stop the
// other.
func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var events, letters int64
	var errs error
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		events = rows
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune outbox: %w", err))
	}
	if j.deadLetters != nil {
		rows, err := j.deadLetters.DeleteResolvedBefore(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune dead letters: %w", err))
		}
		letters = rows
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"min_attempts":         j.minAttempts,
		"outbox_deleted":       events,
		"dead_letters_deleted": letters,
	})
	if errs != nil {
		return errs
	}
	j.logg.Info(logCtx, "retention cleanup complete")
	return nil
}
