package app

import (
	"fmt"
	"strings"
	"time"

	"alarmkit/internal/config"
	"alarmkit/internal/dispatch"
	"alarmkit/internal/notify"
	"alarmkit/internal/storage"
	logx "alarmkit/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.TrimSpace(sc.Driver)
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: sc.Path, BusyTimeout: busy}, true, nil
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	// Omitted section: enabled with the log channel.
	n := cfg.Notifier
	if n == nil {
		return notify.Config{Enabled: true}, nil
	}

	retryBase, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	dedupWindow, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RetryMax < 0 {
		return notify.Config{}, fmt.Errorf("notifier: counts must be >= 0")
	}

	return notify.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: n.DedupMaxEntries,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}
	if cfg.Scheduler.HistorySize < 0 {
		return dispatch.Config{}, fmt.Errorf("scheduler.history_size must be >= 0")
	}
	return dispatch.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Timezone:    strings.TrimSpace(cfg.Scheduler.Timezone),
		Tick:        tick,
		HistorySize: cfg.Scheduler.HistorySize,
	}, nil
}

// buildAdapter picks the notification channel: telegram when the
// notifier asks for it and a token is configured, the structured log
// otherwise.
func buildAdapter(cfg *config.Config, log logx.Logger) (notify.Adapter, error) {
	channel := "log"
	if cfg.Notifier != nil && strings.TrimSpace(cfg.Notifier.Channel) != "" {
		channel = strings.ToLower(strings.TrimSpace(cfg.Notifier.Channel))
	}
	switch channel {
	case "log":
		return notify.LogAdapter{Log: log.With(logx.String("comp", "notify.log"))}, nil
	case "telegram":
		if cfg.Telegram == nil {
			return nil, fmt.Errorf("notifier.channel is telegram but the telegram section is missing")
		}
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return notify.NewTelegram(notify.TelegramConfig{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			ThreadID:    cfg.Telegram.ThreadID,
			PollTimeout: pollTimeout,
		}, log.With(logx.String("comp", "notify.telegram")))
	default:
		return nil, fmt.Errorf("unknown notifier.channel %q", channel)
	}
}
