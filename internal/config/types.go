package config

// Config is the daemon configuration, loaded from JSON or YAML.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	Storage  *StorageConfig  `json:"storage,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the evaluation tick loop.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone for tick scheduling. Empty means the process-wide
	// scheduling config (or Local) decides.
	Timezone string `json:"timezone,omitempty"`

	// Tick is the evaluation interval. Defaults to "1m"; alarms whose
	// adjusted fire time lands inside the next tick window are handed
	// to the notifier.
	Tick string `json:"tick,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig controls the persistence layer. Omitting the section
// disables persistence entirely (useful for tests and dry runs).
//
// Example:
//
//	"storage": { "driver": "file", "path": "./alarmkit_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the async wake-notification pipeline.
// If the whole section is omitted, the notifier defaults to enabled
// with the log channel.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Channel         string `json:"channel,omitempty"` // "log" (default) or "telegram"
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// TelegramConfig configures the telegram notification channel.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}
