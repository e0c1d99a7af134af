package broadcast

import (
	"context"
	"fmt"
	"time"

	logx "animefinder/pkg/logx"

	"github.com/google/uuid"
)

// Broadcast snapshots the current users and queues a job that copies the
// channel post to each of them. It returns as soon as the job is queued.
func (s *Service) Broadcast(ctx context.Context, name string, channelPostID int) (string, error) {
	s.mu.Lock()
	running := s.stopCh != nil
	s.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	targets, err := s.opts.Recipients.ListAllUserIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list recipients: %w", err)
	}

	now := time.Now()
	id := "bc-" + uuid.NewString()
	s.pruneStatus(now)
	s.statusMu.Lock()
	s.status[id] = &JobStatus{ID: id, Name: name, PostID: channelPostID, Total: len(targets), CreatedAt: now}
	s.statusMu.Unlock()

	select {
	case s.queue <- job{id: id, name: name, postID: channelPostID, targets: targets}:
		s.log.Debug("broadcast job enqueued",
			logx.String("job", id), logx.String("name", name), logx.Int("total", len(targets)),
			logx.Int("queue_len", len(s.queue)), logx.Int("queue_cap", cap(s.queue)))
		return id, nil
	default:
		s.log.Warn("broadcast queue full; dropping job", logx.String("job", id), logx.String("name", name))
		s.statusMu.Lock()
		if st := s.status[id]; st != nil {
			st.DoneAt = time.Now()
			st.Failed = st.Total
		}
		s.statusMu.Unlock()
		return id, ErrQueueFull
	}
}

// Status returns a copy of a job's progress.
func (s *Service) Status(jobID string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[jobID]
	if !ok || st == nil {
		return JobStatus{}, false
	}
	cp := *st
	cp.Failures = append([]int64(nil), st.Failures...)
	return cp, true
}

// pruneStatus drops finished entries older than statusTTL, then the oldest
// finished entries beyond statusMax.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if !st.Running && !st.DoneAt.IsZero() && now.Sub(st.DoneAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	for len(s.status) > s.statusMax {
		var (
			oldestID string
			oldest   time.Time
		)
		for id, st := range s.status {
			if st.Running || st.DoneAt.IsZero() {
				continue
			}
			if oldestID == "" || st.DoneAt.Before(oldest) {
				oldestID, oldest = id, st.DoneAt
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.status, oldestID)
	}
}
