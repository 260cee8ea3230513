package settings

import (
	"context"
	"errors"
	"testing"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

// memKV is an in-memory KV with optional fault injection.
type memKV struct {
	m      map[string]string
	getErr error
	setErr error
}

func newMemKV() *memKV { return &memKV{m: map[string]string{}} }

func (kv *memKV) Get(_ context.Context, key string) (string, bool, error) {
	if kv.getErr != nil {
		return "", false, kv.getErr
	}
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *memKV) Set(_ context.Context, key, value string) error {
	if kv.setErr != nil {
		return kv.setErr
	}
	kv.m[key] = value
	return nil
}

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore(newMemKV(), logx.Nop())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := s.Config()
	if cfg.TimeZone != "UTC" || cfg.MaxDailyAdjustment != 30 || !cfg.EnableSmartAdjustments {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestUpdateConfigMergesAndPersists(t *testing.T) {
	t.Parallel()
	kv := newMemKV()
	s := NewStore(kv, logx.Nop())
	_ = s.Load(context.Background())

	tz := "Europe/Berlin"
	maxAdj := 45
	got := s.UpdateConfig(context.Background(), Patch{TimeZone: &tz, MaxDailyAdjustment: &maxAdj})
	if got.TimeZone != tz || got.MaxDailyAdjustment != 45 {
		t.Fatalf("merge failed: %+v", got)
	}
	// Untouched fields survive the merge.
	if got.DefaultWakeWindow != 30 {
		t.Fatalf("unrelated field changed: %+v", got)
	}

	// A fresh store sees the persisted value.
	s2 := NewStore(kv, logx.Nop())
	if err := s2.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Config().TimeZone != tz {
		t.Fatalf("persisted config not reloaded: %+v", s2.Config())
	}
}

func TestPersistFailureKeepsInMemoryValue(t *testing.T) {
	t.Parallel()
	kv := newMemKV()
	kv.setErr = errors.New("disk full")
	s := NewStore(kv, logx.Nop())
	_ = s.Load(context.Background())

	tz := "Asia/Jakarta"
	got := s.UpdateConfig(context.Background(), Patch{TimeZone: &tz})
	if got.TimeZone != tz {
		t.Fatalf("in-memory value lost on persist failure: %+v", got)
	}
	if s.Config().TimeZone != tz {
		t.Fatalf("store should keep serving the merged value")
	}
}

func TestRecordOutcomeRollsStats(t *testing.T) {
	t.Parallel()
	s := NewStore(newMemKV(), logx.Nop())
	_ = s.Load(context.Background())

	s.RecordOutcome(context.Background(), Outcome{Scheduled: true, WakeSuccessful: true, AdjustmentMinutes: 10, Optimization: alarm.OptSleepCycle})
	s.RecordOutcome(context.Background(), Outcome{Scheduled: true, AdjustmentMinutes: -20, Optimization: alarm.OptSleepCycle})
	st := s.RecordOutcome(context.Background(), Outcome{Scheduled: true, WakeSuccessful: true, Optimization: alarm.OptTraffic})

	if st.TotalScheduledAlarms != 3 || st.SuccessfulWakeUps != 2 {
		t.Fatalf("counters wrong: %+v", st)
	}
	if st.AverageAdjustment != 15 { // (10 + 20) / 2, magnitudes
		t.Fatalf("average adjustment = %v, want 15", st.AverageAdjustment)
	}
	if st.MostEffectiveOptimization != alarm.OptSleepCycle {
		t.Fatalf("most effective = %q, want sleep_cycle", st.MostEffectiveOptimization)
	}
}

func TestLoadSurvivesKVError(t *testing.T) {
	t.Parallel()
	kv := newMemKV()
	kv.getErr = errors.New("kv offline")
	s := NewStore(kv, logx.Nop())
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected load error to be reported")
	}
	// Still serves defaults.
	if s.Config().TimeZone != "UTC" {
		t.Fatalf("expected defaults after failed load: %+v", s.Config())
	}
}
