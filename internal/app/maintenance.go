package app

import (
	"context"
	"time"

	"animefinder/internal/catalog"
	"animefinder/internal/telemetry"
	logx "animefinder/pkg/logx"
)

type pendingPurger interface {
	PurgePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type statser interface {
	Stats(ctx context.Context) (catalog.Stats, error)
}

// sweepPendingJob removes pending records older than ttl(). ttl is read on
// every run so reloads apply without re-registering.
func sweepPendingJob(st pendingPurger, ttl func() time.Duration, now func() time.Time, log logx.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		cutoff := now().Add(-ttl())
		n, err := st.PurgePendingBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("abandoned pending records purged", logx.Int("count", n), logx.Time("cutoff", cutoff))
		}
		return nil
	}
}

func refreshStatsJob(st statser, log logx.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		s, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		telemetry.SetCatalogStats(s)
		log.Debug("catalog stats", logx.Int("published", s.Published), logx.Int("pending", s.Pending), logx.Int("users", s.Users))
		return nil
	}
}
