package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_aggregator/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(testLogger())

	err := s.AddJob("broken", "not a schedule", time.Second, func(context.Context) error { return nil })

	assert.ErrorContains(t, err, "schedule job broken")
}

func TestRunNow_UnknownJob(t *testing.T) {
	s := New(testLogger())

	assert.ErrorContains(t, s.RunNow(context.Background(), "missing"), "unknown job")
}

func TestRunNow_AppliesTimeoutAndReturnsError(t *testing.T) {
	s := New(testLogger())

	jobErr := errors.New("upstream down")
	var deadline time.Time
	var hasDeadline bool
	require.NoError(t, s.AddJob("sync", "@every 1h", time.Minute, func(ctx context.Context) error {
		deadline, hasDeadline = ctx.Deadline()
		return jobErr
	}))

	err := s.RunNow(context.Background(), "sync")

	assert.ErrorIs(t, err, jobErr)
	assert.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRunNow_UsesCallerContext(t *testing.T) {
	s := New(testLogger())

	var runs atomic.Int32
	require.NoError(t, s.AddJob("push", "@every 1h", 0, func(ctx context.Context) error {
		runs.Add(1)
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.RunNow(ctx, "push"), context.Canceled)
	assert.Equal(t, int32(1), runs.Load())
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := New(testLogger())
	require.NoError(t, s.AddJob("sync", "@every 1h", time.Second, func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunOnStart(t *testing.T) {
	s := New(testLogger())
	assert.ErrorContains(t, s.RunOnStart("sync"), "unknown job")

	ran := make(chan struct{})
	require.NoError(t, s.AddJob("sync", "@every 1h", time.Second, func(ctx context.Context) error {
		close(ran)
		return nil
	}))
	require.NoError(t, s.RunOnStart("sync"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("startup job did not run")
	}

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

type fakeSyncer struct{ calls int }

func (f *fakeSyncer) Sync(context.Context) (*domain.SyncStats, error) {
	f.calls++
	return &domain.SyncStats{}, nil
}

type fakePusher struct{ err error }

func (f *fakePusher) RunOnce(context.Context) (*domain.PushResult, error) {
	return nil, f.err
}

func TestJobAdapters(t *testing.T) {
	syncer := &fakeSyncer{}
	require.NoError(t, SyncJob(syncer)(context.Background()))
	assert.Equal(t, 1, syncer.calls)

	boom := errors.New("boom")
	assert.ErrorIs(t, PushJob(&fakePusher{err: boom})(context.Background()), boom)
}
