package notify

import (
	"context"

	logx "alarmkit/pkg/logx"
)

// Adapter delivers one rendered notification to a channel (telegram,
// process log, a future push gateway). Implementations must be safe
// for concurrent use and should bound their own network calls.
type Adapter interface {
	Send(ctx context.Context, text string, n Notification) error
}

// LogAdapter writes notifications to the structured log. It is the
// default channel and the fallback when no external channel is
// configured.
type LogAdapter struct {
	Log logx.Logger
}

func (a LogAdapter) Send(_ context.Context, text string, n Notification) error {
	log := a.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("alarm notification",
		logx.String("alarm", n.AlarmID),
		logx.Time("fire_at", n.FireAt),
		logx.String("text", text),
	)
	return nil
}
