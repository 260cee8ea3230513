// Package engine wires the pure evaluators into the "what should alarm
// A do around time T" pipeline: resolve the next raw occurrence, narrow
// it through conditional rules and geofence triggers (either may veto
// or rewrite), then apply seasonal and smart adjustments.
//
// The caller hands the resulting plan to the external notification
// scheduler; the engine never schedules OS-level delivery itself.
package engine

import (
	"context"
	"strings"
	"time"

	"alarmkit/internal/alarm"
	"alarmkit/internal/conditions"
	"alarmkit/internal/geofence"
	"alarmkit/internal/optimize"
	"alarmkit/internal/recurrence"
	"alarmkit/internal/settings"
	"alarmkit/internal/suncalc"
	logx "alarmkit/pkg/logx"
)

// PositionSource supplies the most recent device position sample, or
// nil when none is available. The engine only consumes samples; it
// never requests geolocation itself.
type PositionSource interface {
	Current(ctx context.Context) (*alarm.GeoPoint, error)
}

// Plan is the evaluation outcome for one alarm around one instant.
type Plan struct {
	Alarm   alarm.AdvancedAlarm // final adjusted value
	FireAt  time.Time           // zero when Proceed is false
	Proceed bool
	// SkipReason explains a false Proceed ("no_occurrence",
	// "rule_skip", "geofence_block").
	SkipReason string
	// Shift is the total signed minute adjustment relative to the
	// alarm's declared time.
	Shift int
	// Degraded marks that some provider failed or the recurrence
	// resolver fell back; the plan is still usable.
	Degraded bool
}

const (
	SkipNoOccurrence  = "no_occurrence"
	SkipRule          = "rule_skip"
	SkipGeofenceBlock = "geofence_block"
)

type Engine struct {
	log      logx.Logger
	settings *settings.Store
	rules    *conditions.Evaluator
	optim    *optimize.Engine
	sun      *suncalc.Calculator
	position PositionSource
}

func New(st *settings.Store, rules *conditions.Evaluator, optim *optimize.Engine, sun *suncalc.Calculator, pos PositionSource, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		log:      log,
		settings: st,
		rules:    rules,
		optim:    optim,
		sun:      sun,
		position: pos,
	}
}

// Location resolves the configured scheduling timezone, falling back to
// Local on a bad value.
func (e *Engine) Location() *time.Location {
	tz := ""
	if e.settings != nil {
		tz = strings.TrimSpace(e.settings.Config().TimeZone)
	}
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// NextOccurrences exposes raw occurrence resolution (before conditional
// or optimization adjustment) in the configured timezone.
func (e *Engine) NextOccurrences(a alarm.AdvancedAlarm, from time.Time, count int) (recurrence.Result, error) {
	return recurrence.New(e.Location()).Next(a, from, count)
}

// Evaluate runs the full pipeline for one alarm around one instant.
//
// Provider failures and resolver fallbacks degrade the plan instead of
// failing it; only malformed alarm data returns an error.
func (e *Engine) Evaluate(ctx context.Context, a alarm.AdvancedAlarm, around time.Time) (Plan, error) {
	loc := e.Location()
	cur := a.Clone()
	degraded := false

	// A sun schedule overrides the declared wall time for the day.
	if cur.Sun != nil && e.sun != nil {
		t, err := e.sun.TimeFor(ctx, *cur.Sun, alarm.DateOf(around.In(loc)))
		if err != nil {
			e.log.Debug("sun schedule unavailable, keeping declared time",
				logx.String("alarm", cur.ID), logx.Err(err))
			degraded = true
		} else {
			cur.Time = t
		}
	}

	res, err := recurrence.New(loc).Next(cur, around, 1)
	if err != nil {
		return Plan{}, err
	}
	degraded = degraded || res.Degraded
	if len(res.Times) == 0 {
		return Plan{Alarm: cur, SkipReason: SkipNoOccurrence, Degraded: degraded}, nil
	}
	occurrence := res.Times[0]

	// Conditional rules: first match wins, ordered by priority.
	if e.rules != nil {
		sorted := cur.Clone()
		sorted.Rules = alarm.SortRulesByPriority(cur.Rules)
		dec := e.rules.Evaluate(ctx, sorted, occurrence)
		degraded = degraded || dec.Degraded
		if !dec.Proceed {
			return Plan{Alarm: cur, SkipReason: SkipRule, Degraded: degraded}, nil
		}
		if dec.Applied != nil {
			cur = applyAction(cur, *dec.Applied)
		}
	}

	// Geofence triggers against the latest position sample.
	if e.position != nil && len(cur.Triggers) > 0 {
		pos, perr := e.position.Current(ctx)
		if perr != nil {
			e.log.Debug("position unavailable, skipping geofence",
				logx.String("alarm", cur.ID), logx.Err(perr))
			degraded = true
		} else {
			dec := geofence.Evaluate(cur, pos)
			if !dec.Proceed {
				return Plan{Alarm: cur, SkipReason: SkipGeofenceBlock, Degraded: degraded}, nil
			}
			if dec.Applied != nil {
				cur = applyAction(cur, *dec.Applied)
			}
		}
	}

	cur = optimize.ApplySeasonal(cur, occurrence)

	if e.optim != nil {
		lim := optimize.Limits{}
		if e.settings != nil {
			cfg := e.settings.Config()
			lim = optimize.Limits{Enabled: cfg.EnableSmartAdjustments, DefaultMax: cfg.MaxDailyAdjustment}
		}
		out := e.optim.Apply(ctx, cur, occurrence, lim)
		degraded = degraded || out.Degraded
		cur = out.Alarm
	}

	fireAt := cur.Time.On(alarm.DateOf(occurrence), loc)
	return Plan{
		Alarm:    cur,
		FireAt:   fireAt,
		Proceed:  true,
		Shift:    int(cur.Time) - int(a.Time),
		Degraded: degraded,
	}, nil
}

// applyAction folds a matched rule/trigger action into the alarm copy.
// Suppression kinds are handled by the callers; unknown kinds were
// already logged by the evaluator.
func applyAction(a alarm.AdvancedAlarm, act alarm.Action) alarm.AdvancedAlarm {
	switch act.Kind {
	case alarm.ActionAdjustTime:
		return a.WithTime(a.Time.Add(act.AdjustMinutes))
	case alarm.ActionChangeSound:
		cp := a.Clone()
		cp.Sound = act.Sound
		return cp
	case alarm.ActionChangeDifficulty:
		cp := a.Clone()
		cp.Difficulty = act.Difficulty
		return cp
	case alarm.ActionDisableAlarm:
		cp := a.Clone()
		cp.Enabled = false
		return cp
	case alarm.ActionEnableAlarm:
		cp := a.Clone()
		cp.Enabled = true
		return cp
	default:
		return a
	}
}
