package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquireErr error
	releases   int
	releaseCtx context.Context
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.held = false
	f.releases++
	f.releaseCtx = ctx
	return nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	panic bool
	hook  func()
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.hook != nil {
		t.hook()
	}
	if t.panic {
		panic("nil map")
	}
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &testJob{name: "link-expiry"}
	failing := &testJob{name: "confirmation-replay", err: errors.New("boom")}
	panicking := &testJob{name: "settlement-retention", panic: true}
	lock := &fakeLock{}

	report, err := newTestService(t, lock, ok, failing, panicking).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"link-expiry", "confirmation-replay", "settlement-retention"}, report.Ran)
	assert.Equal(t, []string{"confirmation-replay", "settlement-retention"}, report.Failed)
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, panicking.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "link-expiry"}
	lock := &fakeLock{held: true}

	report, err := newTestService(t, lock, job).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	_, err := newTestService(t, &fakeLock{acquireErr: errors.New("redis down")}).RunOnce(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestRunOnceStopsAfterCancelAndStillReleases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &testJob{name: "link-expiry", hook: cancel}
	second := &testJob{name: "confirmation-replay"}
	lock := &fakeLock{}

	report, err := newTestService(t, lock, first, second).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"link-expiry"}, report.Ran)
	assert.Zero(t, second.runs)
	require.Equal(t, 1, lock.releases)
	assert.NoError(t, lock.releaseCtx.Err())
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	assert.Error(t, err)
}
