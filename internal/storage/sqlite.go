//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]alarm.AdvancedAlarm, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM alarms ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarm.AdvancedAlarm
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a alarm.AdvancedAlarm
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			s.log.Warn("skipping undecodable alarm row", logx.Err(err))
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (alarm.AdvancedAlarm, bool, error) {
	if s == nil || s.db == nil {
		return alarm.AdvancedAlarm{}, false, ErrDisabled
	}
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM alarms WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.AdvancedAlarm{}, false, nil
	}
	if err != nil {
		return alarm.AdvancedAlarm{}, false, err
	}
	var a alarm.AdvancedAlarm
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return alarm.AdvancedAlarm{}, false, err
	}
	return a, true, nil
}

func (s *sqliteStore) Create(ctx context.Context, a alarm.AdvancedAlarm) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("alarm id is required")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	now := time.Now().Format(time.RFC3339Nano)
	created := now
	if !a.CreatedAt.IsZero() {
		created = a.CreatedAt.Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alarms(id, label, time, enabled, payload, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)`,
		a.ID, a.Label, a.Time.String(), boolInt(a.Enabled), string(payload), created, now,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrExists
	}
	return err
}

func (s *sqliteStore) Update(ctx context.Context, id string, a alarm.AdvancedAlarm) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	a.ID = id
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alarms SET label=?, time=?, enabled=?, payload=?, updated_at=? WHERE id=?`,
		a.Label, a.Time.String(), boolInt(a.Enabled), string(payload),
		time.Now().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) GetKV(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrDisabled
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) SetKV(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
