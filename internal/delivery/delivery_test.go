package delivery

import (
	"context"
	"testing"
	"time"

	"animefinder/internal/eventbus"
	"animefinder/internal/transport/transporttest"
	logx "animefinder/pkg/logx"
)

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", within)
}

func TestScheduleDeletion(t *testing.T) {
	ad := transporttest.New()
	s := New(Config{}, ad, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.ScheduleDeletion(7, 100, 30*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if c := s.Counters(); c.InFlight != 1 || c.Scheduled != 1 {
		t.Fatalf("counters=%+v", c)
	}
	waitFor(t, 2*time.Second, func() bool { return len(ad.DeletedSnapshot()) == 1 })
	if d := ad.DeletedSnapshot()[0]; d.ChatID != 7 || d.MessageID != 100 {
		t.Fatalf("deleted=%+v", d)
	}
	waitFor(t, time.Second, func() bool { return s.Counters().Succeeded == 1 })
	if c := s.Counters(); c.InFlight != 0 {
		t.Fatalf("in flight=%d", c.InFlight)
	}
}

func TestDeletionFailureIsSwallowed(t *testing.T) {
	ad := transporttest.New()
	ad.FailDelete = true
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1, eventbus.DeliveryFailed)
	defer unsub()

	s := New(Config{}, ad, bus, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.ScheduleDeletion(1, 2, 10*time.Millisecond)
	waitFor(t, 2*time.Second, func() bool { return s.Counters().Failed == 1 })
	select {
	case e := <-events:
		if d := e.Data.(eventbus.DeliveryData); d.ChatID != 1 || d.MessageID != 2 || d.Err == "" {
			t.Fatalf("event=%+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("no failure event")
	}
}

func TestCancel(t *testing.T) {
	ad := transporttest.New()
	s := New(Config{}, ad, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.ScheduleDeletion(1, 5, 50*time.Millisecond)
	if !s.Cancel(1, 5) {
		t.Fatalf("cancel reported nothing pending")
	}
	if s.Cancel(1, 5) {
		t.Fatalf("second cancel reported pending")
	}
	time.Sleep(120 * time.Millisecond)
	if n := len(ad.DeletedSnapshot()); n != 0 {
		t.Fatalf("cancelled message deleted (%d)", n)
	}
	if c := s.Counters(); c.InFlight != 0 || c.Cancelled != 1 {
		t.Fatalf("counters=%+v", c)
	}
}

func TestDefaultDelay(t *testing.T) {
	s := New(Config{}, transporttest.New(), nil, logx.Nop())
	if s.DefaultDelay() != 900*time.Second {
		t.Fatalf("default=%s", s.DefaultDelay())
	}
	s.Apply(Config{DeleteAfter: time.Minute})
	if s.DefaultDelay() != time.Minute {
		t.Fatalf("applied=%s", s.DefaultDelay())
	}
	if err := s.ScheduleDeletion(1, 1, 0); err != ErrNotRunning {
		t.Fatalf("err=%v", err)
	}
}
