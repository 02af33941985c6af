package sweeper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

/***************
 * Mocks
 ***************/

// mockPurger implements Purger for testing.
type mockPurger struct {
	mu        sync.Mutex
	purgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
	cutoffs   []time.Time
}

func (m *mockPurger) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, cutoff)
	m.mu.Unlock()

	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, cutoff)
	}
	return 0, nil
}

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

var now = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

/***************
 * Constructor Tests
 ***************/

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		s, err := New(&mockPurger{}, Config{}, nil)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}
		if s.timeout != DefaultTimeout {
			t.Errorf("timeout = %v, want %v", s.timeout, DefaultTimeout)
		}
	})

	t.Run("rejects invalid schedule", func(t *testing.T) {
		for _, expr := range []string{"not a cron", "0 3 * * *", "61 0 3 * * *"} {
			if _, err := New(&mockPurger{}, Config{Schedule: expr}, nil); err == nil {
				t.Errorf("New(schedule=%q) expected error, got nil", expr)
			}
		}
	})

	t.Run("accepts descriptors", func(t *testing.T) {
		if _, err := New(&mockPurger{}, Config{Schedule: "@hourly"}, nil); err != nil {
			t.Errorf("New(@hourly) unexpected error: %v", err)
		}
	})

	t.Run("rejects nil purger", func(t *testing.T) {
		if _, err := New(nil, Config{}, nil); err == nil {
			t.Error("New(nil) expected error, got nil")
		}
	})
}

func TestDefaultSchedule_RunsDailyAtThree(t *testing.T) {
	schedule, err := Parser.Parse(DefaultSchedule)
	if err != nil {
		t.Fatalf("Parse(DefaultSchedule) unexpected error: %v", err)
	}

	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	if got := schedule.Next(from); !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", from, got, want)
	}
}

/***************
 * RunOnce Tests
 ***************/

func TestRunOnce(t *testing.T) {
	t.Run("purges with clock as cutoff", func(t *testing.T) {
		purger := &mockPurger{
			purgeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
				return 4, nil
			},
		}
		logger, logs := newTestLogger()
		s, err := New(purger, Config{Clock: func() time.Time { return now }}, logger)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		n, err := s.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce() unexpected error: %v", err)
		}
		if n != 4 {
			t.Errorf("RunOnce() = %d, want 4", n)
		}
		if len(purger.cutoffs) != 1 || !purger.cutoffs[0].Equal(now) {
			t.Errorf("cutoffs = %v, want [%v]", purger.cutoffs, now)
		}

		out := logs.String()
		for _, want := range []string{"running expired mapping cleanup", "expired mapping cleanup completed", `"deleted":4`, "duration_ms"} {
			if !strings.Contains(out, want) {
				t.Errorf("log output missing %q: %s", want, out)
			}
		}
	})

	t.Run("failure is logged and returned", func(t *testing.T) {
		boom := errors.New("connection reset")
		purger := &mockPurger{
			purgeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
				return 0, boom
			},
		}
		logger, logs := newTestLogger()
		s, _ := New(purger, Config{}, logger)

		if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("RunOnce() error = %v, want %v", err, boom)
		}
		out := logs.String()
		if !strings.Contains(out, `"level":"ERROR"`) || !strings.Contains(out, "connection reset") {
			t.Errorf("expected error log, got %s", out)
		}
		if strings.Contains(out, "expired mapping cleanup completed") {
			t.Errorf("failed run must not log completion: %s", out)
		}
	})

	t.Run("run is bounded by timeout", func(t *testing.T) {
		purger := &mockPurger{
			purgeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
				deadline, ok := ctx.Deadline()
				if !ok {
					t.Error("expected a deadline on the purge context")
				} else if time.Until(deadline) > time.Minute {
					t.Errorf("deadline %v is further away than the configured timeout", deadline)
				}
				return 0, nil
			},
		}
		s, _ := New(purger, Config{Timeout: time.Minute}, nil)

		if _, err := s.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() unexpected error: %v", err)
		}
	})
}

/***************
 * Schedule Tests
 ***************/

func TestSweeper_RunsOnSchedule(t *testing.T) {
	ran := make(chan struct{}, 1)
	purger := &mockPurger{
		purgeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return 0, nil
		},
	}
	s, err := New(purger, Config{Schedule: "* * * * * *"}, nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled cleanup did not run")
	}

	if s.Next().IsZero() {
		t.Error("Next() is zero after Start")
	}
}

func TestSweeper_StopCancelsInFlightRunOnDeadline(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	purger := &mockPurger{
		purgeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	s, err := New(purger, Config{Schedule: "* * * * * *", Timeout: time.Hour}, nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled cleanup did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	s, err := New(&mockPurger{}, Config{}, nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() unexpected error: %v", err)
	}
}
