// Package conditions decides whether a scheduled occurrence proceeds,
// is modified, or is suppressed by the alarm's conditional rules.
//
// External signals (weather, calendar, sleep data) come in through the
// Providers interface. Provider failures never fail the evaluation:
// the condition counts as false and the decision is flagged degraded.
package conditions

import (
	"context"
	"time"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

// Providers supplies the narrow read-only signals conditions consume.
// Implementations must be time-bounded by their own contract; the
// evaluator adds no timeouts of its own.
type Providers interface {
	// WeatherMatches reports whether current/forecast weather satisfies
	// the condition's operator and value.
	WeatherMatches(ctx context.Context, cond alarm.Condition, at time.Time) (bool, error)
	// CalendarMatches reports whether a calendar event relevant to the
	// alarm satisfies the condition.
	CalendarMatches(ctx context.Context, cond alarm.Condition, a alarm.AdvancedAlarm, at time.Time) (bool, error)
	// SleepQuality returns last night's sleep score; ok=false means no
	// data is available.
	SleepQuality(ctx context.Context, date alarm.CivilDate) (score float64, ok bool, err error)
	// LastFired returns when the alarm previously fired; ok=false means
	// there is no record.
	LastFired(ctx context.Context, alarmID string) (at time.Time, ok bool, err error)
}

// Notifier delivers fire-and-forget rule notifications.
type Notifier func(ctx context.Context, a alarm.AdvancedAlarm, message string)

// Decision is the evaluation outcome.
//
// Applied carries the action of the first rule whose condition held;
// the caller applies time/sound/difficulty adjustments itself. Degraded
// is set when at least one provider failed and its condition defaulted
// to false.
type Decision struct {
	Proceed  bool
	Applied  *alarm.Action
	Degraded bool
}

type Evaluator struct {
	providers Providers
	notify    Notifier
	log       logx.Logger
}

func New(providers Providers, notify Notifier, log logx.Logger) *Evaluator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Evaluator{providers: providers, notify: notify, log: log}
}

// Evaluate walks the alarm's active rules in the given order and stops
// at the first rule whose condition holds (first-match-wins; order by
// priority before calling). The alarm proceeds unless that rule's
// action suppresses it.
func (e *Evaluator) Evaluate(ctx context.Context, a alarm.AdvancedAlarm, at time.Time) Decision {
	if len(a.Rules) == 0 {
		return Decision{Proceed: true}
	}

	degraded := false
	for _, rule := range a.Rules {
		if !rule.Active {
			continue
		}
		matched, deg := e.conditionHolds(ctx, a, rule.Condition, at)
		degraded = degraded || deg
		if !matched {
			continue
		}

		action := rule.Action
		switch action.Kind {
		case alarm.ActionSkipAlarm:
			return Decision{Proceed: false, Applied: &action, Degraded: degraded}
		case alarm.ActionSendNotification:
			if e.notify != nil {
				e.notify(ctx, a, action.Message)
			}
			return Decision{Proceed: true, Applied: &action, Degraded: degraded}
		case alarm.ActionAdjustTime, alarm.ActionChangeSound, alarm.ActionChangeDifficulty,
			alarm.ActionDisableAlarm, alarm.ActionEnableAlarm:
			return Decision{Proceed: true, Applied: &action, Degraded: degraded}
		default:
			e.log.Warn("unknown rule action, ignoring",
				logx.String("alarm", a.ID), logx.String("action", string(action.Kind)))
			return Decision{Proceed: true, Degraded: degraded}
		}
	}
	return Decision{Proceed: true, Degraded: degraded}
}

// conditionHolds evaluates a single condition. Provider errors resolve
// to (false, degraded=true): fail open toward "proceed normally".
func (e *Evaluator) conditionHolds(ctx context.Context, a alarm.AdvancedAlarm, c alarm.Condition, at time.Time) (bool, bool) {
	switch c.Kind {
	case alarm.CondWeather:
		if e.providers == nil {
			return false, true
		}
		ok, err := e.providers.WeatherMatches(ctx, c, at)
		if err != nil {
			e.log.Debug("weather provider unavailable", logx.String("alarm", a.ID), logx.Err(err))
			return false, true
		}
		return ok, false

	case alarm.CondCalendarEvent:
		if e.providers == nil {
			return false, true
		}
		ok, err := e.providers.CalendarMatches(ctx, c, a, at)
		if err != nil {
			e.log.Debug("calendar provider unavailable", logx.String("alarm", a.ID), logx.Err(err))
			return false, true
		}
		return ok, false

	case alarm.CondSleepQuality:
		if e.providers == nil {
			return false, true
		}
		score, ok, err := e.providers.SleepQuality(ctx, alarm.DateOf(at))
		if err != nil {
			e.log.Debug("sleep provider unavailable", logx.String("alarm", a.ID), logx.Err(err))
			return false, true
		}
		if !ok {
			return false, false
		}
		return compare(c.Operator, score, c.Threshold), false

	case alarm.CondDayOfWeek:
		today := int(at.Weekday())
		for _, d := range c.Weekdays {
			if d == today {
				return true, false
			}
		}
		return false, false

	case alarm.CondTimeSinceLast:
		if e.providers == nil {
			return false, true
		}
		last, ok, err := e.providers.LastFired(ctx, a.ID)
		if err != nil {
			e.log.Debug("firing history unavailable", logx.String("alarm", a.ID), logx.Err(err))
			return false, true
		}
		if !ok {
			// No previous firing on record: no elapsed interval to compare.
			return false, false
		}
		return at.Sub(last) >= c.MinGap, false

	default:
		e.log.Warn("unknown condition kind, treating as false",
			logx.String("alarm", a.ID), logx.String("kind", string(c.Kind)))
		return false, false
	}
}

func compare(op alarm.Operator, value, threshold float64) bool {
	switch op {
	case alarm.OpGreaterThan:
		return value > threshold
	case alarm.OpLessThan:
		return value < threshold
	case alarm.OpEquals:
		return value == threshold
	case alarm.OpNotEquals:
		return value != threshold
	default:
		return false
	}
}
