package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "animefinder/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Kolkata"; empty means Local
}

type jobDef struct {
	name          string
	spec          string // normalized cron spec or "@every <d>"
	timeout       time.Duration
	run           func(ctx context.Context) error
	entryID       cron.EntryID
	startupSpread time.Duration
	running       atomic.Bool
	runs          atomic.Uint64
	failures      atomic.Uint64
	skipped       atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	defs   []*jobDef
}

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Failures uint64
	Skipped  uint64
}
