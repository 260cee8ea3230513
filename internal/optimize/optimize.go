// Package optimize applies bounded, signal-driven time shifts to an
// alarm (smart optimizations) and fixed seasonal adjustments.
//
// Optimizations compose sequentially: each one computes its delta
// against the alarm as already adjusted by the ones before it, so the
// persisted list order is part of the alarm's semantics.
package optimize

import (
	"context"
	"time"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

// Signals supplies the per-kind minute deltas from external sources.
// ok=false means no data; the optimization contributes zero rather than
// failing the pass.
type Signals interface {
	SleepCycleDelta(ctx context.Context, a alarm.AdvancedAlarm, at time.Time) (minutes int, ok bool, err error)
	SunriseSunsetDelta(ctx context.Context, a alarm.AdvancedAlarm, at time.Time) (minutes int, ok bool, err error)
	TrafficDelta(ctx context.Context, a alarm.AdvancedAlarm, at time.Time) (minutes int, ok bool, err error)
	WeatherForecastDelta(ctx context.Context, a alarm.AdvancedAlarm, at time.Time) (minutes int, ok bool, err error)
	EnergyLevelDelta(ctx context.Context, a alarm.AdvancedAlarm, at time.Time) (minutes int, ok bool, err error)
}

// Limits carries the config knobs the engine needs per pass.
type Limits struct {
	Enabled    bool // SchedulingConfig.enableSmartAdjustments
	DefaultMax int  // SchedulingConfig.maxDailyAdjustment, minutes
}

// Outcome reports an optimization pass over one alarm.
type Outcome struct {
	Alarm      alarm.AdvancedAlarm
	TotalShift int // signed minutes relative to the input alarm
	Applied    []alarm.OptimizationKind
	Degraded   bool // at least one signal source failed
}

type Engine struct {
	signals Signals
	log     logx.Logger
	now     func() time.Time
}

func New(signals Signals, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{signals: signals, log: log, now: time.Now}
}

// Apply runs every enabled optimization in list order and returns a new
// alarm value; the input is never mutated. Each applied optimization
// gets LastApplied stamped on the returned copy.
func (e *Engine) Apply(ctx context.Context, a alarm.AdvancedAlarm, at time.Time, lim Limits) Outcome {
	if !lim.Enabled || len(a.Optimizations) == 0 {
		return Outcome{Alarm: a}
	}

	cur := a.Clone()
	out := Outcome{}
	for i := range cur.Optimizations {
		opt := cur.Optimizations[i]
		if !opt.Enabled {
			continue
		}

		delta, ok, err := e.delta(ctx, opt.Kind, cur, at)
		if err != nil {
			e.log.Debug("optimization signal unavailable",
				logx.String("alarm", a.ID), logx.String("kind", string(opt.Kind)), logx.Err(err))
			out.Degraded = true
			continue
		}
		if !ok || delta == 0 {
			continue
		}

		effMax := opt.Params.MaxAdjustment
		if effMax <= 0 {
			effMax = lim.DefaultMax
		}
		delta = clamp(delta, effMax)
		if delta == 0 {
			continue
		}

		cur.Time = cur.Time.Add(delta)
		stamp := e.now()
		cur.Optimizations[i].LastApplied = &stamp
		out.TotalShift += delta
		out.Applied = append(out.Applied, opt.Kind)
	}

	out.Alarm = cur
	return out
}

// delta dispatches on the closed optimization kind set.
func (e *Engine) delta(ctx context.Context, kind alarm.OptimizationKind, a alarm.AdvancedAlarm, at time.Time) (int, bool, error) {
	if e.signals == nil {
		return 0, false, nil
	}
	switch kind {
	case alarm.OptSleepCycle:
		return e.signals.SleepCycleDelta(ctx, a, at)
	case alarm.OptSunriseSunset:
		return e.signals.SunriseSunsetDelta(ctx, a, at)
	case alarm.OptTraffic:
		return e.signals.TrafficDelta(ctx, a, at)
	case alarm.OptWeather:
		return e.signals.WeatherForecastDelta(ctx, a, at)
	case alarm.OptEnergyLevels:
		return e.signals.EnergyLevelDelta(ctx, a, at)
	default:
		e.log.Warn("unknown optimization kind, skipping",
			logx.String("alarm", a.ID), logx.String("kind", string(kind)))
		return 0, false, nil
	}
}

func clamp(v, max int) int {
	if max <= 0 {
		return 0
	}
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// ApplySeasonal adds the first active adjustment matching the date's
// season to the alarm time. At most one adjustment is applied even if
// several entries share a season.
func ApplySeasonal(a alarm.AdvancedAlarm, date time.Time) alarm.AdvancedAlarm {
	season := alarm.SeasonOf(date.Month())
	for _, adj := range a.Seasonal {
		if !adj.Active || adj.Season != season {
			continue
		}
		return a.WithTime(a.Time.Add(adj.AdjustmentMinutes))
	}
	return a
}
