package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"animefinder/internal/eventbus"
	kit "animefinder/internal/transport"
	logx "animefinder/pkg/logx"

	"golang.org/x/time/rate"
)

// MinInterval is the smallest allowed gap between two deliveries.
const MinInterval = 500 * time.Millisecond

var (
	ErrNotRunning = errors.New("broadcast: service not running")
	ErrQueueFull  = errors.New("broadcast: queue full")
)

type Config struct {
	// Interval between consecutive deliveries, clamped to MinInterval.
	Interval time.Duration
	RetryMax int
	// QueueSize bounds jobs waiting behind the running one.
	QueueSize int
}

// Recipients lists every user to announce to.
type Recipients interface {
	ListAllUserIDs(ctx context.Context) ([]int64, error)
}

// Options wires the service to its collaborators.
type Options struct {
	Adapter    kit.Adapter
	Recipients Recipients
	Bus        eventbus.Bus
	// ChannelID is the chat the announced posts live in.
	ChannelID int64
	// Caption renders the HTML caption for a copied post.
	Caption func(name string) string
}

type job struct {
	id      string
	name    string
	postID  int
	targets []int64
}

type JobStatus struct {
	ID       string
	Name     string
	PostID   int
	Total    int
	Done     int
	Failed   int
	Failures []int64

	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

// Totals are lifetime counters across all jobs.
type Totals struct {
	Jobs   uint64
	Sent   uint64
	Failed uint64
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	opts    Options
	log     logx.Logger
	limiter *rate.Limiter

	queue    chan job
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	statusMax int
	statusTTL time.Duration

	totals Totals
}
