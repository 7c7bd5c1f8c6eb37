package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("* * * * *", time.Minute); !errors.Is(err, ErrCronAndInterval) {
		t.Errorf("both set: err = %v, want ErrCronAndInterval", err)
	}
	if _, err := New("", 0); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("neither set: err = %v, want ErrNoSchedule", err)
	}
	if _, err := New("not a cron", 0); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if _, err := New("0 2 * * *", 0); err != nil {
		t.Errorf("valid cron rejected: %v", err)
	}
	if _, err := New("", time.Hour); err != nil {
		t.Errorf("valid interval rejected: %v", err)
	}
}

func TestRunIntervalTicks(t *testing.T) {
	s, err := New("", 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context) {
			if ticks.Add(1) >= 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if ticks.Load() < 3 {
		t.Errorf("ticks = %d, want >= 3", ticks.Load())
	}
}

func TestRunStopsWithoutTick(t *testing.T) {
	s, err := New("", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context) {
		t.Error("job must not run after cancellation")
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
