package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "animefinder/pkg/logx"
)

// Settings is Tuning with defaults applied and durations parsed.
type Settings struct {
	Log logx.Config

	PollTimeout    time.Duration
	Workers        int
	HandlerTimeout time.Duration

	OracleTimeout     time.Duration
	OracleRatePerSec  float64
	NegativeCacheTTL  time.Duration
	NegativeCacheSize int

	SessionTTL time.Duration
	PendingTTL time.Duration

	BroadcastInterval  time.Duration
	BroadcastRetryMax  int
	BroadcastQueueSize int

	DeleteAfter     time.Duration
	DeliveryWorkers int

	Timezone     string
	PendingSweep string
	StatsRefresh string
}

const minBroadcastInterval = 500 * time.Millisecond

// Resolve validates t and fills defaults. A nil t yields pure defaults.
func Resolve(t *Tuning) (Settings, error) {
	if t == nil {
		t = &Tuning{}
	}
	var (
		s    Settings
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, set, err := parseDuration(path, raw)
		if err != nil {
			errs = append(errs, err)
		}
		if !set || d == 0 {
			return def
		}
		return d
	}

	// logging
	lvl := strings.TrimSpace(t.Logging.Level)
	if lvl == "" {
		lvl = "info"
	}
	if !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	alertLvl := strings.TrimSpace(t.Logging.AdminAlerts.MinLevel)
	if alertLvl == "" {
		alertLvl = "error"
	}
	if !logx.ValidLevel(alertLvl) {
		errs = append(errs, fmt.Errorf("logging.admin_alerts.min_level: unknown level %q", alertLvl))
	}
	if t.Logging.File.Enabled && strings.TrimSpace(t.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when the file sink is enabled"))
	}
	rate := t.Logging.AdminAlerts.RatePerSec
	if rate <= 0 {
		rate = 0.2
	}
	console := true
	if t.Logging.Console != nil {
		console = *t.Logging.Console
	}
	s.Log = logx.Config{
		Level:   lvl,
		Console: console,
		File:    logx.FileConfig{Enabled: t.Logging.File.Enabled, Path: strings.TrimSpace(t.Logging.File.Path)},
		AdminAlerts: logx.AlertConfig{
			Enabled:    t.Logging.AdminAlerts.Enabled,
			MinLevel:   alertLvl,
			RatePerSec: rate,
		},
	}

	// telegram
	s.PollTimeout = dur("telegram.poll_timeout", t.Telegram.PollTimeout, 10*time.Second)
	s.Workers = t.Telegram.Workers
	if s.Workers <= 0 {
		s.Workers = 8
	}
	s.HandlerTimeout = dur("telegram.handler_timeout", t.Telegram.HandlerTimeout, 30*time.Second)

	// oracle
	s.OracleTimeout = dur("oracle.timeout", t.Oracle.Timeout, 20*time.Second)
	s.OracleRatePerSec = t.Oracle.RatePerSec
	if s.OracleRatePerSec <= 0 {
		s.OracleRatePerSec = 2
	}
	s.NegativeCacheTTL = 10 * time.Minute
	if t.Oracle.NegativeCacheTTL != nil {
		d, _, err := parseDuration("oracle.negative_cache_ttl", *t.Oracle.NegativeCacheTTL)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.NegativeCacheTTL = d
		}
	}
	s.NegativeCacheSize = t.Oracle.NegativeCacheSize
	if s.NegativeCacheSize <= 0 {
		s.NegativeCacheSize = 1024
	}

	// publish
	s.SessionTTL = dur("publish.session_ttl", t.Publish.SessionTTL, 30*time.Minute)
	s.PendingTTL = dur("publish.pending_ttl", t.Publish.PendingTTL, 72*time.Hour)

	// broadcast
	s.BroadcastInterval = dur("broadcast.interval", t.Broadcast.Interval, minBroadcastInterval)
	if s.BroadcastInterval < minBroadcastInterval {
		s.BroadcastInterval = minBroadcastInterval
	}
	s.BroadcastRetryMax = 1
	if t.Broadcast.RetryMax != nil {
		if *t.Broadcast.RetryMax < 0 {
			errs = append(errs, errors.New("broadcast.retry_max must be >= 0"))
		} else {
			s.BroadcastRetryMax = *t.Broadcast.RetryMax
		}
	}
	s.BroadcastQueueSize = t.Broadcast.QueueSize
	if s.BroadcastQueueSize <= 0 {
		s.BroadcastQueueSize = 32
	}

	// delivery
	s.DeleteAfter = dur("delivery.delete_after", t.Delivery.DeleteAfter, 15*time.Minute)
	s.DeliveryWorkers = t.Delivery.Workers
	if s.DeliveryWorkers <= 0 {
		s.DeliveryWorkers = 2
	}

	// maintenance
	s.Timezone = strings.TrimSpace(t.Maintenance.Timezone)
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.timezone: %w", err))
		}
	}
	s.PendingSweep = strings.TrimSpace(t.Maintenance.PendingSweep)
	if s.PendingSweep == "" {
		s.PendingSweep = "@every 1h"
	}
	s.StatsRefresh = strings.TrimSpace(t.Maintenance.Stats)
	if s.StatsRefresh == "" {
		s.StatsRefresh = "@every 5m"
	}

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

// RestartRequired lists changed settings that only take effect after a
// restart. Everything else is applied live.
func RestartRequired(old, cur Settings) []string {
	var out []string
	add := func(changed bool, name string) {
		if changed {
			out = append(out, name)
		}
	}
	add(old.PollTimeout != cur.PollTimeout, "telegram.poll_timeout")
	add(old.Workers != cur.Workers, "telegram.workers")
	add(old.HandlerTimeout != cur.HandlerTimeout, "telegram.handler_timeout")
	add(old.OracleRatePerSec != cur.OracleRatePerSec, "oracle.rate_per_sec")
	add(old.NegativeCacheTTL != cur.NegativeCacheTTL, "oracle.negative_cache_ttl")
	add(old.NegativeCacheSize != cur.NegativeCacheSize, "oracle.negative_cache_size")
	add(old.SessionTTL != cur.SessionTTL, "publish.session_ttl")
	add(old.BroadcastQueueSize != cur.BroadcastQueueSize, "broadcast.queue_size")
	add(old.DeliveryWorkers != cur.DeliveryWorkers, "delivery.workers")
	return out
}
