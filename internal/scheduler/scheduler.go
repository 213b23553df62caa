package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"content_aggregator/internal/domain"
)

// Job is a unit of scheduled work. It receives a context bounded by the
// job's timeout and cancelled on shutdown.
type Job func(ctx context.Context) error

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

// Pusher defines the interface for a single comment push cycle.
type Pusher interface {
	RunOnce(ctx context.Context) (*domain.PushResult, error)
}

func SyncJob(syncer Syncer) Job {
	return func(ctx context.Context) error {
		_, err := syncer.Sync(ctx)
		return err
	}
}

func PushJob(pusher Pusher) Job {
	return func(ctx context.Context) error {
		_, err := pusher.RunOnce(ctx)
		return err
	}
}

// Scheduler runs jobs on cron schedules. A job whose previous run is still
// in progress is skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*entry
	startup []string
	logger  *slog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

type entry struct {
	id      cron.EntryID
	timeout time.Duration
	job     Job
}

func New(logger *slog.Logger, opts ...cron.Option) *Scheduler {
	cl := cronLogger{logger: logger}
	opts = append([]cron.Option{
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}, opts...)

	return &Scheduler{
		cron:   cron.New(opts...),
		jobs:   make(map[string]*entry),
		logger: logger,
		ctx:    context.Background(),
	}
}

// AddJob registers job under name. schedule accepts standard five-field cron
// specs and descriptors such as "@every 30s".
func (s *Scheduler) AddJob(name, schedule string, timeout time.Duration, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.run(name, timeout, job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = &entry{id: entryID, timeout: timeout, job: job}
	s.logger.Info("job scheduled", "job", name, "schedule", schedule, "timeout", timeout)
	return nil
}

// RunNow runs a registered job once on ctx, with the job's timeout, and
// returns its error. It does not wait for the schedule and is not skipped
// while a scheduled run is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.execute(ctx, name, e.timeout, e.job)
}

// RunOnStart marks a registered job to be triggered once as soon as Start
// is called, in addition to its schedule.
func (s *Scheduler) RunOnStart(name string) error {
	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	s.startup = append(s.startup, name)
	return nil
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	s.cron.Start()

	var startup sync.WaitGroup
	for _, name := range s.startup {
		job := s.cron.Entry(s.jobs[name].id).WrappedJob
		startup.Add(1)
		go func() {
			defer startup.Done()
			job.Run()
		}()
	}

	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	startup.Wait()
	s.logger.Info("scheduler stopped")

	return ctx.Err()
}

func (s *Scheduler) run(name string, timeout time.Duration, job Job) {
	s.mu.RLock()
	parent := s.ctx
	s.mu.RUnlock()

	if parent.Err() != nil {
		return
	}
	_ = s.execute(parent, name, timeout, job)
}

func (s *Scheduler) execute(parent context.Context, name string, timeout time.Duration, job Job) error {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return err
	}
	s.logger.Debug("job completed", "job", name, "duration", time.Since(start))
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
