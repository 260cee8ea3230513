// Package dispatch is the background tick loop: every tick it loads the
// enabled alarms, runs the evaluation pipeline on each, and hands
// alarms whose adjusted fire time falls inside the tick window to the
// notify pipeline.
//
// Dispatch never fires OS-level alarms itself; it feeds the external
// notification channel and records outcomes in the scheduling stats.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"alarmkit/internal/alarm"
	"alarmkit/internal/engine"
	"alarmkit/internal/eventbus"
	"alarmkit/internal/notify"
	"alarmkit/internal/settings"
	"alarmkit/internal/storage"
	logx "alarmkit/pkg/logx"
)

// Event bus types published by the service.
const (
	EventEvaluated = "dispatch.evaluated"
	EventFired     = "dispatch.fired"
	EventSkipped   = "dispatch.skipped"
)

// Config controls the tick loop.
type Config struct {
	Enabled     bool
	Timezone    string        // cron location; empty = Local
	Tick        time.Duration // evaluation interval, default 1m
	HistorySize int           // bounded fire history, default 200
}

// FireRecord is one dispatched (or skipped) alarm occurrence.
type FireRecord struct {
	AlarmID    string    `json:"alarmId"`
	Label      string    `json:"label,omitempty"`
	FireAt     time.Time `json:"fireAt,omitempty"`
	Fired      bool      `json:"fired"`
	SkipReason string    `json:"skipReason,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier is the slice of the notify pipeline dispatch needs.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

type Service struct {
	mu sync.Mutex

	cfg      Config
	log      logx.Logger
	store    storage.Store
	engine   *engine.Engine
	notifier Notifier
	settings *settings.Store
	bus      eventbus.Bus

	c       *cron.Cron
	entryID cron.EntryID

	// fired tracks occurrences already handed to the notifier so a
	// tick overlap never double-fires one occurrence.
	fired map[string]time.Time

	hmu     sync.Mutex
	history []FireRecord

	now func() time.Time
}

func New(cfg Config, eng *engine.Engine, store storage.Store, notifier Notifier,
	st *settings.Store, bus eventbus.Bus, log logx.Logger) *Service {

	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		store:    store,
		engine:   eng,
		notifier: notifier,
		settings: st,
		bus:      bus,
		fired:    map[string]time.Time{},
		now:      time.Now,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Start begins the tick loop. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("dispatch timezone: %w", err)
		}
		loc = l
	}

	c := cron.New(cron.WithLocation(loc))
	spec := fmt.Sprintf("@every %s", s.cfg.Tick)
	id, err := c.AddFunc(spec, func() { s.RunOnce(ctx) })
	if err != nil {
		return err
	}
	s.c = c
	s.entryID = id
	c.Start()
	s.log.Info("dispatch started", logx.Duration("tick", s.cfg.Tick), logx.String("tz", loc.String()))
	return nil
}

// Stop halts the tick loop and waits for an in-flight tick.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// RunOnce executes one evaluation tick. Exposed for manual triggering
// and tests; the cron loop calls it on every tick.
func (s *Service) RunOnce(ctx context.Context) {
	if s.store == nil || s.engine == nil {
		return
	}
	now := s.now()

	alarms, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("alarm load failed, skipping tick", logx.Err(err))
		return
	}

	s.mu.Lock()
	tick := s.cfg.Tick
	s.mu.Unlock()
	windowEnd := now.Add(tick)

	for _, a := range alarms {
		if !a.Enabled {
			continue
		}
		s.evaluateOne(ctx, a, now, windowEnd)
	}
	s.pruneFired(now)
}

func (s *Service) evaluateOne(ctx context.Context, a alarm.AdvancedAlarm, now, windowEnd time.Time) {
	plan, err := s.engine.Evaluate(ctx, a, now)
	if err != nil {
		s.log.Warn("alarm evaluation failed",
			logx.String("alarm", a.ID), logx.Err(err))
		return
	}
	s.publish(EventEvaluated, plan, a.ID)

	if !plan.Proceed {
		// Rule and geofence vetoes are recorded once per day per alarm
		// so a one-minute tick doesn't flood the history.
		if plan.SkipReason != engine.SkipNoOccurrence && s.firstSeen(skipKey(a.ID, plan.SkipReason, now), now) {
			s.record(FireRecord{
				AlarmID: a.ID, Label: a.Label,
				SkipReason: plan.SkipReason, Degraded: plan.Degraded, At: now,
			})
			s.publish(EventSkipped, plan, a.ID)
		}
		return
	}
	if plan.FireAt.After(windowEnd) {
		return
	}

	key := a.ID + "|" + plan.FireAt.UTC().Format(time.RFC3339)
	if !s.firstSeen(key, plan.FireAt) {
		return
	}

	if s.notifier != nil {
		n := notify.Notification{
			AlarmID:  a.ID,
			Label:    plan.Alarm.Label,
			Priority: 5,
			FireAt:   plan.FireAt,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn("wake notification rejected",
				logx.String("alarm", a.ID), logx.Err(err))
		}
	}

	if s.settings != nil {
		opt := alarm.OptimizationKind("")
		if len(plan.Alarm.Optimizations) > 0 && plan.Shift != 0 {
			opt = plan.Alarm.Optimizations[0].Kind
		}
		s.settings.RecordOutcome(ctx, settings.Outcome{
			Scheduled:         true,
			AdjustmentMinutes: plan.Shift,
			Optimization:      opt,
		})
	}

	s.record(FireRecord{
		AlarmID: a.ID, Label: plan.Alarm.Label,
		FireAt: plan.FireAt, Fired: true, Degraded: plan.Degraded, At: now,
	})
	s.publish(EventFired, plan, a.ID)
}

// firstSeen marks the key and reports whether it was new.
func (s *Service) firstSeen(key string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.fired[key]; dup {
		return false
	}
	s.fired[key] = at
	return true
}

func skipKey(alarmID, reason string, now time.Time) string {
	return alarmID + "|skip|" + reason + "|" + now.UTC().Format("2006-01-02")
}

// pruneFired drops dedup entries once their occurrence is safely past.
func (s *Service) pruneFired(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	s.mu.Lock()
	for k, at := range s.fired {
		if at.Before(cutoff) {
			delete(s.fired, k)
		}
	}
	s.mu.Unlock()
}

func (s *Service) record(r FireRecord) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, r)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

// History returns a copy of the bounded fire history, newest last.
func (s *Service) History() []FireRecord {
	s.hmu.Lock()
	out := append([]FireRecord(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) publish(typ string, plan engine.Plan, alarmID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: FireRecord{
		AlarmID:    alarmID,
		Label:      plan.Alarm.Label,
		FireAt:     plan.FireAt,
		Fired:      typ == EventFired,
		SkipReason: plan.SkipReason,
		Degraded:   plan.Degraded,
		At:         time.Now(),
	}})
}
