package broadcast

import (
	"context"
	"runtime/debug"
	"time"

	logx "animefinder/pkg/logx"

	"golang.org/x/time/rate"
)

func New(cfg Config, opts Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = normalize(cfg)
	return &Service{
		cfg:       cfg,
		opts:      opts,
		log:       log.With(logx.String("comp", "broadcast")),
		limiter:   rate.NewLimiter(rate.Every(cfg.Interval), 1),
		queue:     make(chan job, cfg.QueueSize),
		status:    map[string]*JobStatus{},
		statusMax: 100,
		statusTTL: 24 * time.Hour,
	}
}

func normalize(cfg Config) Config {
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	return cfg
}

// Apply updates pacing and retries. Queue size changes need a restart.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Interval != s.cfg.Interval {
		s.limiter.SetLimit(rate.Every(cfg.Interval))
	}
	s.cfg.Interval = cfg.Interval
	s.cfg.RetryMax = cfg.RetryMax
}

// Start launches the single delivery worker. One worker keeps the pacing
// global across overlapping jobs.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in broadcast worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.worker(ctx, stopCh)
	}()
	s.log.Info("service started", logx.Duration("interval", s.cfg.Interval), logx.Int("retry_max", s.cfg.RetryMax))
}

// Stop ends the worker. A job in progress is abandoned at its next recipient.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("stop timed out; worker still draining")
	}
}

// Totals returns lifetime counters.
func (s *Service) Totals() Totals {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.totals
}
