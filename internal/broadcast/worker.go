package broadcast

import (
	"context"
	"time"

	"animefinder/internal/eventbus"
	"animefinder/internal/telemetry"
	kit "animefinder/internal/transport"
	logx "animefinder/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-s.queue:
			s.execJob(ctx, stopCh, j)
		}
	}
}

func (s *Service) execJob(ctx context.Context, stopCh <-chan struct{}, j job) {
	start := time.Now()
	s.setRunning(j.id)
	s.log.Info("broadcast job started", logx.String("job", j.id), logx.String("name", j.name), logx.Int("total", len(j.targets)))

	caption := ""
	if s.opts.Caption != nil {
		caption = s.opts.Caption(j.name)
	}

	for _, uid := range j.targets {
		select {
		case <-ctx.Done():
			s.finish(j, start)
			return
		case <-stopCh:
			s.finish(j, start)
			return
		default:
		}
		err := s.sendOne(ctx, j, uid, caption)
		s.mark(j.id, uid, err)
	}
	s.finish(j, start)
}

// sendOne copies the post to one user. Its failure never affects the others.
func (s *Service) sendOne(ctx context.Context, j job, uid int64, caption string) error {
	s.mu.Lock()
	lim := s.limiter
	retry := s.cfg.RetryMax
	s.mu.Unlock()

	from := kit.MessageRef{ChatID: s.opts.ChannelID, MessageID: j.postID}
	opt := &kit.CopyOptions{Caption: caption, ParseMode: "HTML"}

	var last error
	for i := 0; i <= retry; i++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		_, err := s.opts.Adapter.CopyMessage(ctx, kit.ChatTarget{ChatID: uid}, from, opt)
		if err == nil {
			return nil
		}
		last = err
		if i < retry {
			s.log.Debug("broadcast send retry", logx.String("job", j.id), logx.Int64("chat_id", uid), logx.Int("attempt", i+2), logx.Err(err))
		}
	}
	s.log.Warn("broadcast send failed", logx.String("job", j.id), logx.String("name", j.name), logx.Int64("chat_id", uid), logx.Err(last))
	return last
}

func (s *Service) setRunning(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.StartedAt = time.Now()
		st.Running = true
	}
	s.totals.Jobs++
}

func (s *Service) mark(id string, uid int64, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	if err != nil {
		telemetry.BroadcastSends.WithLabelValues("failed").Inc()
		s.totals.Failed++
		if st != nil {
			st.Failed++
			if len(st.Failures) < 200 {
				st.Failures = append(st.Failures, uid)
			}
		}
	} else {
		telemetry.BroadcastSends.WithLabelValues("ok").Inc()
		s.totals.Sent++
	}
	if st != nil {
		st.Done++
	}
}

func (s *Service) finish(j job, start time.Time) {
	s.statusMu.Lock()
	st := s.status[j.id]
	var snap JobStatus
	if st != nil {
		st.DoneAt = time.Now()
		st.Running = false
		snap = *st
	}
	s.statusMu.Unlock()

	fields := []logx.Field{
		logx.String("job", j.id),
		logx.String("name", j.name),
		logx.Int("total", snap.Total),
		logx.Int("done", snap.Done),
		logx.Int("failed", snap.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if snap.Failed > 0 {
		s.log.Warn("broadcast job finished with failures", fields...)
	} else {
		s.log.Info("broadcast job finished", fields...)
	}
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Data: eventbus.BroadcastData{
			JobID: j.id, Name: j.name, Total: snap.Total, Sent: snap.Done - snap.Failed, Failed: snap.Failed,
		}})
	}
}
