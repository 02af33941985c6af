// Package sweeper periodically removes expired mappings from the store.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultSchedule runs the cleanup daily at 03:00. Six fields, seconds first.
	DefaultSchedule = "0 0 3 * * *"
	DefaultTimeout  = 5 * time.Minute
)

// Parser accepts six-field expressions with seconds and descriptors such as @hourly.
var Parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Purger deletes every mapping whose expiry is strictly before cutoff and
// reports how many were removed.
type Purger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds sweeper settings.
type Config struct {
	Schedule string           // cron expression; DefaultSchedule when empty
	Timeout  time.Duration    // per run; DefaultTimeout when zero
	Clock    func() time.Time // defaults to time.Now
}

// Sweeper runs the purge on a cron schedule. Runs never overlap.
type Sweeper struct {
	purger  Purger
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates cfg and returns a stopped Sweeper.
func New(purger Purger, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	if purger == nil {
		return nil, errors.New("sweeper: nil purger")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	schedule, err := Parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", cfg.Schedule, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		purger:  purger,
		timeout: cfg.Timeout,
		now:     cfg.Clock,
		logger:  logger.With("component", "sweeper"),
		ctx:     ctx,
		cancel:  cancel,
	}

	cronLogger := slogAdapter{logger: s.logger}
	s.cron = cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	s.cron.Schedule(schedule, cron.FuncJob(s.tick))

	s.logger.Info("expired mapping cleanup scheduled",
		"schedule", cfg.Schedule,
		"timeout", cfg.Timeout.String(),
	)
	return s, nil
}

// Start begins running on the schedule. It does not block.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight run to finish. If ctx
// ends first the run is canceled and ctx's error is returned.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Next reports when the next scheduled run will happen. It is the zero time
// until Start has been called.
func (s *Sweeper) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Sweeper) tick() {
	// failures are logged by RunOnce and retried on the next tick
	_, _ = s.RunOnce(s.ctx)
}

// RunOnce deletes mappings that expired before now. It can be called
// directly for on-demand sweeps.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	cutoff := s.now()

	s.logger.InfoContext(ctx, "running expired mapping cleanup", "cutoff", cutoff)

	deleted, err := s.purger.DeleteExpiredBefore(ctx, cutoff)
	duration := time.Since(start)
	if err != nil {
		s.logger.ErrorContext(ctx, "expired mapping cleanup failed",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return 0, err
	}

	s.logger.InfoContext(ctx, "expired mapping cleanup completed",
		"deleted", deleted,
		"duration_ms", duration.Milliseconds(),
	)
	return deleted, nil
}

// slogAdapter lets cron report skipped runs and recovered panics through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
