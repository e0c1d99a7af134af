package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanicAndCancels(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.Go("boom", func(ctx context.Context) error {
		panic("kaboom")
	})

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor was not canceled after panic")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatalf("expected first error to be recorded")
	}
	if c := s.Counters(); c.Panics != 1 || c.Active != 0 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestGoIgnoresContextCanceled(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("clean stop returned %v", err)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithPublishFirstError(true))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("restart loop did not reach a successful run (runs=%d)", runs.Load())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if err == nil {
		t.Fatalf("expected published first error")
	}
	if got := s.Counters().Restarts; got != 2 {
		t.Fatalf("restarts=%d want 2", got)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.GoRestart("always-fails", func(ctx context.Context) error {
		return errors.New("nope")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor should cancel after exhausting restarts")
	}
	if s.Err() == nil {
		t.Fatalf("expected error after giving up")
	}
}
