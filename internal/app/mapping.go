package app

import (
	"net"
	"time"

	"animefinder/internal/broadcast"
	"animefinder/internal/config"
	"animefinder/internal/delivery"
	"animefinder/internal/resolver"
	"animefinder/internal/storage"
	"animefinder/internal/task/scheduler"
)

func mapStorageConfig(env config.Env) storage.Config {
	switch env.DatabaseDriver {
	case "postgres", "postgresql", "pgx":
		return storage.Config{Driver: "postgres", DSN: env.DatabaseURL}
	case "memory":
		return storage.Config{Driver: "memory"}
	case "file":
		return storage.Config{Driver: "file", Path: env.SQLitePath}
	default:
		return storage.Config{Driver: "sqlite", Path: env.SQLitePath, BusyTimeout: 5 * time.Second}
	}
}

func mapBroadcastConfig(s config.Settings) broadcast.Config {
	return broadcast.Config{
		Interval:  s.BroadcastInterval,
		RetryMax:  s.BroadcastRetryMax,
		QueueSize: s.BroadcastQueueSize,
	}
}

func mapDeliveryConfig(s config.Settings) delivery.Config {
	return delivery.Config{
		DeleteAfter: s.DeleteAfter,
		Workers:     s.DeliveryWorkers,
		Timeout:     10 * time.Second,
	}
}

func mapResolverConfig(s config.Settings) resolver.Config {
	return resolver.Config{NegativeTTL: s.NegativeCacheTTL, NegativeSize: s.NegativeCacheSize}
}

func mapSchedulerConfig(s config.Settings) scheduler.Config {
	return scheduler.Config{Timezone: s.Timezone}
}

func healthAddr(port string) string {
	return net.JoinHostPort("", port)
}
