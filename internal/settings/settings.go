// Package settings holds the process-wide scheduling configuration and
// rolling statistics.
//
// Lifecycle contract: loaded once at engine start, mutated only through
// UpdateConfig (merge + immediate persist), read concurrently by the
// evaluation pipeline. Persistence is best-effort: a failed save is
// logged and the in-memory value keeps serving.
package settings

import (
	"context"
	"encoding/json"
	"sync"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

// Well-known KV keys for the serialized blobs.
const (
	keyConfig = "scheduling:config"
	keyStats  = "scheduling:stats"
)

// KV is the narrow persistence interface settings are stored through.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Config is the process-wide scheduling configuration.
type Config struct {
	TimeZone               string `json:"timeZone"`
	DefaultWakeWindow      int    `json:"defaultWakeWindow"` // minutes
	EnableSmartAdjustments bool   `json:"enableSmartAdjustments"`
	MaxDailyAdjustment     int    `json:"maxDailyAdjustment"` // minutes
	LearningMode           bool   `json:"learningMode"`
	PrivacyMode            bool   `json:"privacyMode"`
	BackupAlarms           bool   `json:"backupAlarms"`
	AdvancedLogging        bool   `json:"advancedLogging"`
}

func DefaultConfig() Config {
	return Config{
		TimeZone:               "UTC",
		DefaultWakeWindow:      30,
		EnableSmartAdjustments: true,
		MaxDailyAdjustment:     30,
		LearningMode:           true,
	}
}

// Patch updates a subset of Config fields. Nil pointers leave the
// current value untouched.
type Patch struct {
	TimeZone               *string `json:"timeZone,omitempty"`
	DefaultWakeWindow      *int    `json:"defaultWakeWindow,omitempty"`
	EnableSmartAdjustments *bool   `json:"enableSmartAdjustments,omitempty"`
	MaxDailyAdjustment     *int    `json:"maxDailyAdjustment,omitempty"`
	LearningMode           *bool   `json:"learningMode,omitempty"`
	PrivacyMode            *bool   `json:"privacyMode,omitempty"`
	BackupAlarms           *bool   `json:"backupAlarms,omitempty"`
	AdvancedLogging        *bool   `json:"advancedLogging,omitempty"`
}

func (p Patch) apply(c Config) Config {
	if p.TimeZone != nil {
		c.TimeZone = *p.TimeZone
	}
	if p.DefaultWakeWindow != nil {
		c.DefaultWakeWindow = *p.DefaultWakeWindow
	}
	if p.EnableSmartAdjustments != nil {
		c.EnableSmartAdjustments = *p.EnableSmartAdjustments
	}
	if p.MaxDailyAdjustment != nil {
		c.MaxDailyAdjustment = *p.MaxDailyAdjustment
	}
	if p.LearningMode != nil {
		c.LearningMode = *p.LearningMode
	}
	if p.PrivacyMode != nil {
		c.PrivacyMode = *p.PrivacyMode
	}
	if p.BackupAlarms != nil {
		c.BackupAlarms = *p.BackupAlarms
	}
	if p.AdvancedLogging != nil {
		c.AdvancedLogging = *p.AdvancedLogging
	}
	return c
}

// Stats are rolling counters updated by callers reporting outcomes.
type Stats struct {
	TotalScheduledAlarms      int                    `json:"totalScheduledAlarms"`
	SuccessfulWakeUps         int                    `json:"successfulWakeUps"`
	AverageAdjustment         float64                `json:"averageAdjustment"` // minutes, magnitude
	MostEffectiveOptimization alarm.OptimizationKind `json:"mostEffectiveOptimization,omitempty"`
	WakePatterns              []string               `json:"wakePatterns,omitempty"`
	Recommendations           []string               `json:"recommendations,omitempty"`

	// Bookkeeping for the rolling average and the effectiveness ranking.
	AdjustmentSamples int                            `json:"adjustmentSamples,omitempty"`
	OptimizationHits  map[alarm.OptimizationKind]int `json:"optimizationHits,omitempty"`
}

// Outcome is a caller-reported wake result.
type Outcome struct {
	Scheduled         bool
	WakeSuccessful    bool
	AdjustmentMinutes int // signed shift the engine applied
	Optimization      alarm.OptimizationKind
}

// Store holds the scheduling config and rolling stats, persisted as
// JSON blobs through the KV surface.
type Store struct {
	kv  KV
	log logx.Logger

	mu     sync.RWMutex
	cfg    Config
	stats  Stats
	loaded bool
}

func NewStore(kv KV, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{kv: kv, log: log, cfg: DefaultConfig()}
}

// Load reads both blobs once. Missing or unparseable blobs fall back to
// defaults; only a failing KV read is an error, and even then the store
// stays usable with in-memory defaults.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.loaded = true
	if s.kv == nil {
		return nil
	}

	var firstErr error
	if raw, ok, err := s.kv.Get(ctx, keyConfig); err != nil {
		firstErr = err
		s.log.Warn("scheduling config load failed, using defaults", logx.Err(err))
	} else if ok {
		var cfg Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			s.log.Warn("scheduling config blob malformed, using defaults", logx.Err(err))
		} else {
			s.cfg = cfg
		}
	}

	if raw, ok, err := s.kv.Get(ctx, keyStats); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		s.log.Warn("scheduling stats load failed, starting empty", logx.Err(err))
	} else if ok {
		var st Stats
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			s.log.Warn("scheduling stats blob malformed, starting empty", logx.Err(err))
		} else {
			s.stats = st
		}
	}
	return firstErr
}

// Config returns the current configuration snapshot.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Stats returns a copy of the current statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.WakePatterns = append([]string(nil), s.stats.WakePatterns...)
	st.Recommendations = append([]string(nil), s.stats.Recommendations...)
	if s.stats.OptimizationHits != nil {
		st.OptimizationHits = make(map[alarm.OptimizationKind]int, len(s.stats.OptimizationHits))
		for k, v := range s.stats.OptimizationHits {
			st.OptimizationHits[k] = v
		}
	}
	return st
}

// UpdateConfig merges the patch and persists immediately. Concurrent
// updates are last-write-wins. The merged config is returned even when
// persistence fails.
func (s *Store) UpdateConfig(ctx context.Context, p Patch) Config {
	s.mu.Lock()
	s.cfg = p.apply(s.cfg)
	cfg := s.cfg
	s.mu.Unlock()

	s.persist(ctx, keyConfig, cfg)
	return cfg
}

// RecordOutcome folds a caller-reported wake result into the rolling
// statistics and persists them best-effort.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) Stats {
	s.mu.Lock()
	if o.Scheduled {
		s.stats.TotalScheduledAlarms++
	}
	if o.WakeSuccessful {
		s.stats.SuccessfulWakeUps++
	}
	if o.AdjustmentMinutes != 0 {
		mag := float64(o.AdjustmentMinutes)
		if mag < 0 {
			mag = -mag
		}
		n := float64(s.stats.AdjustmentSamples)
		s.stats.AverageAdjustment = (s.stats.AverageAdjustment*n + mag) / (n + 1)
		s.stats.AdjustmentSamples++
	}
	if o.Optimization != "" {
		if s.stats.OptimizationHits == nil {
			s.stats.OptimizationHits = map[alarm.OptimizationKind]int{}
		}
		s.stats.OptimizationHits[o.Optimization]++
		best, bestN := s.stats.MostEffectiveOptimization, 0
		if best != "" {
			bestN = s.stats.OptimizationHits[best]
		}
		if s.stats.OptimizationHits[o.Optimization] > bestN {
			s.stats.MostEffectiveOptimization = o.Optimization
		}
	}
	st := s.stats
	s.mu.Unlock()

	s.persist(ctx, keyStats, st)
	return st
}

func (s *Store) persist(ctx context.Context, key string, v any) {
	if s.kv == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("settings marshal failed", logx.String("key", key), logx.Err(err))
		return
	}
	if err := s.kv.Set(ctx, key, string(b)); err != nil {
		s.log.Warn("settings persist failed, keeping in-memory value",
			logx.String("key", key), logx.Err(err))
	}
}
