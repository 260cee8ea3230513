package notify

import "time"

// Config controls the async wake-notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Notification is one wake-up delivery request produced by the
// scheduler for an alarm whose adjusted fire time came due.
type Notification struct {
	AlarmID  string
	Label    string
	Body     string
	Priority int // 0 low .. 10 high
	FireAt   time.Time
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// DeliveryEvent is emitted on the event bus for notification lifecycle
// events. Keep it small; Data may be logged/serialized by subscribers.
type DeliveryEvent struct {
	AlarmID string    `json:"alarmId"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

// Event bus types published by the service.
const (
	EventQueued  = "notify.queued"
	EventSent    = "notify.sent"
	EventFailed  = "notify.failed"
	EventDropped = "notify.dropped"
	EventDeduped = "notify.deduped"
)
