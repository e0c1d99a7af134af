package config

// Tuning is the optional hot-reloadable configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Omitted fields take the defaults documented on each section.
type Tuning struct {
	Logging     LoggingConfig     `json:"logging"`
	Telegram    TelegramConfig    `json:"telegram"`
	Oracle      OracleConfig      `json:"oracle"`
	Publish     PublishConfig     `json:"publish"`
	Broadcast   BroadcastConfig   `json:"broadcast"`
	Delivery    DeliveryConfig    `json:"delivery"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

type LoggingConfig struct {
	Level       string             `json:"level"`
	Console     *bool              `json:"console,omitempty"` // default true
	File        LoggingFile        `json:"file"`
	AdminAlerts LoggingAdminAlerts `json:"admin_alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAdminAlerts forwards log lines at or above MinLevel to the
// administrator's private chat.
type LoggingAdminAlerts struct {
	Enabled    bool    `json:"enabled"`
	MinLevel   string  `json:"min_level"`    // default "error"
	RatePerSec float64 `json:"rate_per_sec"` // default 0.2
}

// TelegramConfig defaults: poll_timeout 10s, workers 8, handler_timeout 30s.
type TelegramConfig struct {
	PollTimeout    string `json:"poll_timeout"`
	Workers        int    `json:"workers"`
	HandlerTimeout string `json:"handler_timeout"`
}

// OracleConfig defaults: timeout 20s, rate_per_sec 2, negative_cache_ttl 10m,
// negative_cache_size 1024. A "0s" negative_cache_ttl disables the cache.
type OracleConfig struct {
	Timeout           string  `json:"timeout"`
	RatePerSec        float64 `json:"rate_per_sec"`
	NegativeCacheTTL  *string `json:"negative_cache_ttl,omitempty"`
	NegativeCacheSize int     `json:"negative_cache_size"`
}

// PublishConfig defaults: session_ttl 30m, pending_ttl 72h.
type PublishConfig struct {
	SessionTTL string `json:"session_ttl"`
	PendingTTL string `json:"pending_ttl"`
}

// BroadcastConfig defaults: interval 500ms (also the minimum), retry_max 1.
type BroadcastConfig struct {
	Interval  string `json:"interval"`
	RetryMax  *int   `json:"retry_max,omitempty"`
	QueueSize int    `json:"queue_size"`
}

// DeliveryConfig defaults: delete_after 15m, workers 2.
type DeliveryConfig struct {
	DeleteAfter string `json:"delete_after"`
	Workers     int    `json:"workers"`
}

// MaintenanceConfig schedules accept 5/6-field cron specs and descriptors
// such as "@every 1h". Defaults: pending_sweep "@every 1h", stats "@every 5m".
type MaintenanceConfig struct {
	Timezone     string `json:"timezone"`
	PendingSweep string `json:"pending_sweep"`
	Stats        string `json:"stats"`
}
