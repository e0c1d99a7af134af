package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "animefinder/pkg/logx"
)

var (
	// ErrUnknownJob is returned by RunNow for a name that was never added.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	ErrSkipped    = errors.New("scheduler: previous run still in flight")
)

// Add parses schedule and registers job under name, replacing any job with
// the same name. A run that would overlap the previous one is skipped.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "0 30 3 * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) Add(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	sc, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := sc.Expr()
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &jobDef{name: name, spec: spec, timeout: timeout, run: job}
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("job registered", args...)
	return nil
}

// Remove unregisters a job. It reports whether one existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var d *jobDef
	for _, cur := range s.defs {
		if cur.name == name {
			d = cur
			break
		}
	}
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, d)
}

// Jobs lists registered jobs sorted by name.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := JobInfo{
			Name:     d.name,
			Spec:     d.spec,
			Timeout:  d.timeout,
			Runs:     d.runs.Load(),
			Failures: d.failures.Load(),
			Skipped:  d.skipped.Load(),
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	for i := n; i < len(s.defs); i++ {
		s.defs[i] = nil
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *jobDef) error {
	ctx := s.ctx
	job := cron.FuncJob(func() {
		if err := s.execute(ctx, d); err != nil && !errors.Is(err, ErrSkipped) {
			s.log.Warn("job failed", logx.String("name", d.name), logx.Err(err))
		}
	})

	// Interval jobs get a startup spread so they do not all fire together.
	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(strings.TrimSpace(every)); err == nil && dur > 0 {
			sched, jitter := spreadInterval(dur, time.Now().In(s.loc), d.name)
			d.startupSpread = jitter
			d.entryID = s.c.Schedule(sched, job)
			return nil
		}
	}
	d.startupSpread = 0
	eid, err := s.c.AddJob(d.spec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) execute(ctx context.Context, d *jobDef) error {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		s.log.Debug("job skipped; still running", logx.String("name", d.name))
		return ErrSkipped
	}
	defer d.running.Store(false)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	start := time.Now()
	d.runs.Add(1)
	err := d.run(ctx)
	if err != nil {
		d.failures.Add(1)
		return err
	}
	s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", time.Since(start)))
	return nil
}

// previewNextRunsLocked returns upcoming run times for debug logging.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
