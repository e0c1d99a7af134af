package scheduler

import (
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedFirst fires once at first, then follows base.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (d *delayedFirst) Next(t time.Time) time.Time {
	if t.Before(d.first) {
		return d.first
	}
	return d.base.Next(t)
}

// spreadInterval returns an interval schedule whose first run is pushed back
// by an offset below min(every, 30s). The offset is a hash of name, so the
// same job lands on the same offset across restarts.
func spreadInterval(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	window := min(every, maxStartupSpread)
	if window <= 0 {
		return base, 0
	}
	offset := time.Duration(xxhash.Sum64String(name) % uint64(window))
	return &delayedFirst{base: base, first: now.Add(every + offset)}, offset
}
