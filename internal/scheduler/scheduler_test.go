package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerMaxCycles(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, MaxCycles: 3}, zerolog.Nop())

	ticks := 0
	err := s.Run(context.Background(), func(ctx context.Context, bucket time.Time) error {
		ticks++
		return nil
	})
	if err != nil {
		t.Fatalf("bounded run should stop cleanly: %v", err)
	}
	if ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks)
	}
}

func TestSchedulerTickErrorContinues(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, MaxCycles: 2}, zerolog.Nop())

	ticks := 0
	err := s.Run(context.Background(), func(ctx context.Context, bucket time.Time) error {
		ticks++
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("tick errors are logged, not fatal: %v", err)
	}
	if ticks != 2 {
		t.Fatalf("expected 2 ticks despite errors, got %d", ticks)
	}
}

func TestSchedulerCancellation(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			t.Error("tick should not fire before the first interval")
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not honour cancellation")
	}
}

func TestSchedulerInvalidInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("non-positive interval must panic at construction")
		}
	}()
	New(Options{Interval: 0}, zerolog.Nop())
}
