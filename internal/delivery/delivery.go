// Package delivery removes delivered copies after a delay.
//
// Deletions are best effort: a message the user already deleted, or a chat
// that blocked the bot, only bumps the failure counter. Pending deletions
// live in memory and are lost on restart.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"animefinder/internal/catalog"
	"animefinder/internal/eventbus"
	rtsup "animefinder/internal/runtime/supervisor"
	"animefinder/internal/telemetry"
	kit "animefinder/internal/transport"
	logx "animefinder/pkg/logx"
)

// DefaultDelay is how long a delivered copy stays visible.
const DefaultDelay = 900 * time.Second

var ErrNotRunning = errors.New("delivery: scheduler not running")

type Config struct {
	DeleteAfter time.Duration
	Workers     int
	// Timeout bounds one delete call.
	Timeout time.Duration
}

// Counters is a point-in-time view of the scheduler.
type Counters struct {
	InFlight  int64
	Scheduled uint64
	Succeeded uint64
	Failed    uint64
	Cancelled uint64
}

type Scheduler struct {
	adapter kit.Adapter
	bus     eventbus.Bus
	log     logx.Logger

	delay   atomic.Int64
	timeout time.Duration
	workers int

	mu      sync.Mutex
	pending map[kit.MessageRef]*time.Timer
	queue   chan kit.MessageRef
	stopCh  chan struct{}
	sup     *rtsup.Supervisor

	inFlight  atomic.Int64
	scheduled atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
}

func New(cfg Config, adapter kit.Adapter, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		adapter: adapter,
		bus:     bus,
		log:     log.With(logx.String("comp", "delivery")),
		timeout: cfg.Timeout,
		workers: cfg.Workers,
		pending: map[kit.MessageRef]*time.Timer{},
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.workers <= 0 {
		s.workers = 2
	}
	s.Apply(cfg)
	return s
}

// Apply changes the default delay for future schedules.
func (s *Scheduler) Apply(cfg Config) {
	d := cfg.DeleteAfter
	if d <= 0 {
		d = DefaultDelay
	}
	s.delay.Store(int64(d))
}

func (s *Scheduler) DefaultDelay() time.Duration { return time.Duration(s.delay.Load()) }

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.queue = make(chan kit.MessageRef, 256)
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	stopCh, queue := s.stopCh, s.queue
	for i := 0; i < s.workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("delete.%d", i), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			return c.Err()
		})
	}
	s.log.Info("scheduler started", logx.Int("workers", s.workers), logx.Duration("delay", s.DefaultDelay()))
}

// Stop stops the workers and drops deletions that have not fired yet.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	dropped := len(s.pending)
	for ref, t := range s.pending {
		t.Stop()
		delete(s.pending, ref)
	}
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()

	s.inFlight.Store(0)
	telemetry.DeletionsInFlight.Set(0)
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler stop", logx.Err(err))
	}
	s.log.Info("scheduler stopped", logx.Int("dropped", dropped))
}

// ScheduleDeletion deletes msgID in chatID after delay, or after the default
// delay when delay <= 0. Scheduling the same message again resets its timer.
func (s *Scheduler) ScheduleDeletion(chatID int64, msgID int, delay time.Duration) error {
	if delay <= 0 {
		delay = s.DefaultDelay()
	}
	ref := kit.MessageRef{ChatID: chatID, MessageID: msgID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return ErrNotRunning
	}
	if old, ok := s.pending[ref]; ok && old.Stop() {
		s.inFlight.Add(-1)
	}
	stopCh, queue := s.stopCh, s.queue
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.pending[ref] == timer {
			delete(s.pending, ref)
		}
		s.mu.Unlock()
		select {
		case queue <- ref:
		case <-stopCh:
		}
	})
	s.pending[ref] = timer
	s.inFlight.Add(1)
	s.scheduled.Add(1)
	telemetry.Deletions.WithLabelValues("scheduled").Inc()
	telemetry.DeletionsInFlight.Set(float64(s.inFlight.Load()))
	return nil
}

// Cancel unschedules a pending deletion. It reports whether one was pending.
func (s *Scheduler) Cancel(chatID int64, msgID int) bool {
	ref := kit.MessageRef{ChatID: chatID, MessageID: msgID}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[ref]
	if !ok || !t.Stop() {
		return false
	}
	delete(s.pending, ref)
	s.inFlight.Add(-1)
	s.cancelled.Add(1)
	telemetry.Deletions.WithLabelValues("cancelled").Inc()
	telemetry.DeletionsInFlight.Set(float64(s.inFlight.Load()))
	return true
}

func (s *Scheduler) Counters() Counters {
	return Counters{
		InFlight:  s.inFlight.Load(),
		Scheduled: s.scheduled.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Cancelled: s.cancelled.Load(),
	}
}

func (s *Scheduler) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan kit.MessageRef) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ref := <-queue:
			s.deleteOne(ctx, ref)
		}
	}
}

func (s *Scheduler) deleteOne(ctx context.Context, ref kit.MessageRef) {
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.adapter.DeleteMessage(dctx, ref)
	cancel()

	s.inFlight.Add(-1)
	telemetry.DeletionsInFlight.Set(float64(s.inFlight.Load()))
	if err == nil {
		s.succeeded.Add(1)
		telemetry.Deletions.WithLabelValues("ok").Inc()
		return
	}

	err = catalog.Transport("delete", ref.ChatID, err)
	s.failed.Add(1)
	telemetry.Deletions.WithLabelValues("failed").Inc()
	s.log.Debug("scheduled delete failed", logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID), logx.Err(err))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.DeliveryFailed, Data: eventbus.DeliveryData{
			ChatID: ref.ChatID, MessageID: ref.MessageID, Err: err.Error(),
		}})
	}
}
