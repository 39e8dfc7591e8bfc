// Package sweep runs periodic cleanup jobs on a cron scheduler owned by the
// process lifecycle.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 10 * time.Second

var (
	ErrInvalidJob     = errors.New("invalid sweep job")
	ErrDuplicateJob   = errors.New("duplicate sweep job")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Job deletes whatever is stale at now and reports how many rows it removed.
type Job func(ctx context.Context, now time.Time) (int, error)

// Scheduler runs named Jobs on fixed intervals. Overlapping runs of the same
// job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	started bool
	jobs    map[string]cron.EntryID
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source passed to jobs.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New constructs a stopped Scheduler.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: defaultJobTimeout,
		baseCtx: ctx,
		cancel:  cancel,
		jobs:    make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Add registers job under name, run every interval. The interval is rounded
// down to whole seconds and must be at least one second.
func (s *Scheduler) Add(name string, every time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" || job == nil || every < time.Second {
		return ErrInvalidJob
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	id := s.cron.Schedule(cron.Every(every), cron.FuncJob(func() { s.run(name, job) }))
	s.jobs[name] = id

	s.log.Info("sweep.registered", "job", name, "every", every.String())
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.cron.Start()
	return nil
}

// Stop prevents new runs, cancels in-flight ones and waits for them to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	defer cancel()

	log := s.log.With("job", name)
	start := time.Now()
	n, err := job(ctx, s.now())
	dur := time.Since(start).Milliseconds()

	switch {
	case err != nil && errors.Is(err, context.Canceled) && s.baseCtx.Err() != nil:
		log.Debug("sweep."+name+".canceled", "duration_ms", dur)
	case err != nil:
		log.Error("sweep."+name+".fail", "err", err, "duration_ms", dur)
	case n > 0:
		log.Info("sweep."+name+".deleted", "deleted", n, "duration_ms", dur)
	default:
		log.Debug("sweep."+name+".noop", "duration_ms", dur)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron."+msg, append([]any{"err", err}, keysAndValues...)...)
}
