package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	logx "animefinder/pkg/logx"
)

// A run that lasted this long resets the backoff.
const stableRun = 30 * time.Second

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	minWait, maxWait time.Duration
	maxRestarts      int // 0 = unlimited
	stopOnCleanExit  bool
	recordFirstErr   bool
}

func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if min > 0 {
			p.minWait = min
		}
		if max > 0 {
			p.maxWait = max
		}
	}
}

// WithMaxRestarts gives up, failing the supervisor, after n restarts.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.maxRestarts = n } }

// WithPublishFirstError records the first failure in Err even though the
// goroutine keeps being restarted.
func WithPublishFirstError(on bool) RestartOption {
	return func(p *restartPolicy) { p.recordFirstErr = on }
}

// WithStopOnCleanExit controls whether a nil return ends the loop (the
// default) or is treated as a failure and restarted.
func WithStopOnCleanExit(on bool) RestartOption {
	return func(p *restartPolicy) { p.stopOnCleanExit = on }
}

func (s *Supervisor) GoRestart0(name string, fn func(ctx context.Context), opts ...RestartOption) {
	if fn == nil {
		return
	}
	s.GoRestart(name, func(ctx context.Context) error { fn(ctx); return nil }, opts...)
}

// GoRestart keeps fn running until the supervisor context ends, restarting
// it after errors and panics with jittered exponential backoff.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{minWait: 250 * time.Millisecond, maxWait: 30 * time.Second, stopOnCleanExit: true}
	for _, o := range opts {
		o(&p)
	}
	p.maxWait = max(p.maxWait, p.minWait)

	s.spawn(func() {
		wait := p.minWait
		for n := 1; s.ctx.Err() == nil; n++ {
			began := time.Now()
			err := s.call(name, fn)
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if err == nil {
				if p.stopOnCleanExit {
					return
				}
				err = errors.New("returned without error")
			}
			err = fmt.Errorf("%s: %w", name, err)
			if p.recordFirstErr {
				s.record(err)
			}
			if p.maxRestarts > 0 && n > p.maxRestarts {
				s.log.Error("giving up on goroutine", logx.String("name", name), logx.Int("restarts", n-1), logx.Err(err))
				s.fail(err)
				return
			}
			s.restarts.Add(1)

			if time.Since(began) >= stableRun {
				wait = p.minWait
			}
			d := jitter(wait)
			s.log.Warn("restarting goroutine", logx.String("name", name), logx.Duration("backoff", d), logx.Err(err))
			if !sleep(s.ctx, d) {
				return
			}
			wait = min(wait*2, p.maxWait)
		}
	})
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if j := int64(d) / 5; j > 0 {
		return d + time.Duration(rand.Int64N(j+1))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
