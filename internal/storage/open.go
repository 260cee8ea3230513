package storage

import (
	"context"
	"errors"
	"strings"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

// Store is the persistence API used by the engine and schedule layer.
//
// Update replaces the stored alarm with the given id wholesale; partial
// patches are composed by the caller on a loaded value.
type Store interface {
	Load(ctx context.Context) ([]alarm.AdvancedAlarm, error)
	Get(ctx context.Context, id string) (alarm.AdvancedAlarm, bool, error)
	Create(ctx context.Context, a alarm.AdvancedAlarm) error
	Update(ctx context.Context, id string, a alarm.AdvancedAlarm) error
	Delete(ctx context.Context, id string) error

	// KV persists small serialized blobs (scheduling config/stats).
	GetKV(ctx context.Context, key string) (value string, ok bool, err error)
	SetKV(ctx context.Context, key, value string) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// KVAdapter exposes a Store's KV surface under the settings.KV shape.
type KVAdapter struct{ Store Store }

func (a KVAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	if a.Store == nil {
		return "", false, nil
	}
	return a.Store.GetKV(ctx, key)
}

func (a KVAdapter) Set(ctx context.Context, key, value string) error {
	if a.Store == nil {
		return nil
	}
	return a.Store.SetKV(ctx, key, value)
}
