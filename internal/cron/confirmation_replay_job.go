package cron

import (
	"context"
	"fmt"
	"time"

	infinitypaywebhook "github.com/angelmondragon/dropship-settlements/internal/webhooks/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const (
	defaultReplayAfter       = time.Minute
	defaultReplayBatch       = 50
	defaultReplayMaxAttempts = 10
)

type ConfirmationReplayJobParams struct {
	Logger      *logger.Logger
	Replayer    confirmationReplayer
	After       time.Duration
	BatchSize   int
	MaxAttempts int
}

type confirmationReplayer interface {
	ReplayStale(ctx context.Context, cutoff time.Time, limit, maxAttempts int) (infinitypaywebhook.ReplayStats, error)
}

// NewConfirmationReplayJob re-drives inbox rows whose processing failed
// transiently.
func NewConfirmationReplayJob(params ConfirmationReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Replayer == nil {
		return nil, fmt.Errorf("confirmation replayer required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReplayAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReplayBatch
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultReplayMaxAttempts
	}
	return &confirmationReplayJob{
		logg:        params.Logger,
		replayer:    params.Replayer,
		after:       after,
		batch:       batch,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type confirmationReplayJob struct {
	logg        *logger.Logger
	replayer    confirmationReplayer
	after       time.Duration
	batch       int
	maxAttempts int
	now         func() time.Time
}

func (j *confirmationReplayJob) Name() string { return "confirmation-replay" }

func (j *confirmationReplayJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	stats, err := j.replayer.ReplayStale(ctx, cutoff, j.batch, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("confirmation replay: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"scanned":       stats.Scanned,
		"processed":     stats.Processed,
		"dead_lettered": stats.DeadLettered,
		"failed":        stats.Failed,
	})
	j.logg.Info(logCtx, "confirmation replay complete")
	return nil
}
