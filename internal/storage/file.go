package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json  (full state, rewritten on compaction)
//   - <prefix>.journal.jsonl  (append-only change journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	alarms map[string]alarm.AdvancedAlarm
	kv     map[string]string

	writes int
}

const compactEvery = 256

type fileSnapshot struct {
	Alarms map[string]alarm.AdvancedAlarm `json:"alarms"`
	KV     map[string]string              `json:"kv"`
}

// journalRecord is one change. Op selects which fields are meaningful.
type journalRecord struct {
	Op    string               `json:"op"` // put | delete | kv
	ID    string               `json:"id,omitempty"`
	Alarm *alarm.AdvancedAlarm `json:"alarm,omitempty"`
	Key   string               `json:"key,omitempty"`
	Value string               `json:"value,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	st := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		alarms:       map[string]alarm.AdvancedAlarm{},
		kv:           map[string]string{},
	}
	_ = st.loadSnapshot(snapPath)
	_ = st.replayJournal(journalPath)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	st.journalFile = jf
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	// Fold the journal into the snapshot on clean shutdown.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("compact on close failed", logx.Err(err))
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Load(ctx context.Context) ([]alarm.AdvancedAlarm, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alarm.AdvancedAlarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a.Clone())
	}
	sortAlarms(out)
	return out, nil
}

func (s *fileStore) Get(ctx context.Context, id string) (alarm.AdvancedAlarm, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return alarm.AdvancedAlarm{}, false, nil
	}
	return a.Clone(), true, nil
}

func (s *fileStore) Create(ctx context.Context, a alarm.AdvancedAlarm) error {
	_ = ctx
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("alarm id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[a.ID]; ok {
		return ErrExists
	}
	return s.putLocked(a)
}

func (s *fileStore) Update(ctx context.Context, id string, a alarm.AdvancedAlarm) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[id]; !ok {
		return ErrNotFound
	}
	a.ID = id
	return s.putLocked(a)
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[id]; !ok {
		return ErrNotFound
	}
	delete(s.alarms, id)
	return s.appendLocked(journalRecord{Op: "delete", ID: id})
}

func (s *fileStore) GetKV(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *fileStore) SetKV(ctx context.Context, key, value string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return s.appendLocked(journalRecord{Op: "kv", Key: key, Value: value})
}

func (s *fileStore) putLocked(a alarm.AdvancedAlarm) error {
	cp := a.Clone()
	s.alarms[cp.ID] = cp
	return s.appendLocked(journalRecord{Op: "put", ID: cp.ID, Alarm: &cp})
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journalFile == nil {
		return errors.New("journal closed")
	}
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	snap := fileSnapshot{Alarms: s.alarms, KV: s.kv}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	if snap.Alarms != nil {
		s.alarms = snap.Alarms
	}
	if snap.KV != nil {
		s.kv = snap.KV
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "put":
			if r.Alarm != nil && r.Alarm.ID != "" {
				s.alarms[r.Alarm.ID] = *r.Alarm
			}
		case "delete":
			delete(s.alarms, r.ID)
		case "kv":
			if r.Key != "" {
				s.kv[r.Key] = r.Value
			}
		}
	}
	return sc.Err()
}

// sortAlarms gives callers a stable order: creation time, then id.
func sortAlarms(xs []alarm.AdvancedAlarm) {
	sort.Slice(xs, func(i, j int) bool {
		if !xs[i].CreatedAt.Equal(xs[j].CreatedAt) {
			return xs[i].CreatedAt.Before(xs[j].CreatedAt)
		}
		return xs[i].ID < xs[j].ID
	})
}
