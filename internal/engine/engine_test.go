package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"alarmkit/internal/alarm"
	"alarmkit/internal/conditions"
	"alarmkit/internal/optimize"
	"alarmkit/internal/settings"
	"alarmkit/internal/suncalc"
	logx "alarmkit/pkg/logx"
)

type fakeSignals struct {
	sleep   int
	sleepOK bool
	err     error
}

func (f fakeSignals) SleepCycleDelta(context.Context, alarm.AdvancedAlarm, time.Time) (int, bool, error) {
	return f.sleep, f.sleepOK, f.err
}
func (f fakeSignals) SunriseSunsetDelta(context.Context, alarm.AdvancedAlarm, time.Time) (int, bool, error) {
	return 0, false, nil
}
func (f fakeSignals) TrafficDelta(context.Context, alarm.AdvancedAlarm, time.Time) (int, bool, error) {
	return 0, false, nil
}
func (f fakeSignals) WeatherForecastDelta(context.Context, alarm.AdvancedAlarm, time.Time) (int, bool, error) {
	return 0, false, nil
}
func (f fakeSignals) EnergyLevelDelta(context.Context, alarm.AdvancedAlarm, time.Time) (int, bool, error) {
	return 0, false, nil
}

type fakePosition struct {
	pt  *alarm.GeoPoint
	err error
}

func (f fakePosition) Current(context.Context) (*alarm.GeoPoint, error) { return f.pt, f.err }

type fixedSun struct {
	sunrise time.Time
	sunset  time.Time
}

func (f fixedSun) SunTimes(_ context.Context, _ alarm.GeoPoint, _ alarm.CivilDate) (time.Time, time.Time, error) {
	return f.sunrise, f.sunset, nil
}

func newTestEngine(t *testing.T, sig optimize.Signals, sun suncalc.Provider, pos PositionSource) *Engine {
	t.Helper()
	st := settings.NewStore(nil, logx.Nop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("settings load: %v", err)
	}
	var calc *suncalc.Calculator
	if sun != nil {
		calc = suncalc.New(sun, time.UTC)
	}
	return New(st,
		conditions.New(nil, nil, logx.Nop()),
		optimize.New(sig, logx.Nop()),
		calc, pos, logx.Nop())
}

func dailyAlarm(clock string) alarm.AdvancedAlarm {
	return alarm.AdvancedAlarm{
		ID:      "alarm:test",
		Label:   "wake",
		Time:    alarm.MustClockTime(clock),
		Enabled: true,
		Recurrence: &alarm.RecurrencePattern{
			Type:     alarm.RecurrenceDaily,
			Interval: 1,
		},
	}
}

// Seasonal and smart adjustments stack on top of the resolved
// occurrence, both bounded by the configured daily maximum.
func TestEvaluateComposesAdjustments(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, fakeSignals{sleep: 15, sleepOK: true}, nil, nil)

	a := dailyAlarm("07:00")
	a.Seasonal = []alarm.SeasonalAdjustment{
		{Season: alarm.SeasonWinter, AdjustmentMinutes: 30, Active: true},
	}
	a.Optimizations = []alarm.SmartOptimization{
		{Kind: alarm.OptSleepCycle, Enabled: true},
	}

	around := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !plan.Proceed {
		t.Fatalf("plan should proceed, skipped with %q", plan.SkipReason)
	}
	want := time.Date(2025, time.January, 11, 7, 45, 0, 0, time.UTC)
	if !plan.FireAt.Equal(want) {
		t.Fatalf("FireAt = %v, want %v", plan.FireAt, want)
	}
	if plan.Shift != 45 {
		t.Fatalf("Shift = %d, want 45", plan.Shift)
	}
	if plan.Degraded {
		t.Fatal("plan should not be degraded")
	}
}

func TestEvaluateRuleSkip(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, fakeSignals{}, nil, nil)

	a := dailyAlarm("07:00")
	a.Rules = []alarm.ConditionalRule{{
		Condition: alarm.Condition{
			Kind:     alarm.CondDayOfWeek,
			Weekdays: []int{0, 1, 2, 3, 4, 5, 6},
		},
		Action: alarm.Action{Kind: alarm.ActionSkipAlarm},
		Active: true,
	}}

	around := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if plan.Proceed || plan.SkipReason != SkipRule {
		t.Fatalf("plan = %+v, want rule skip", plan)
	}
}

// Rules are evaluated in priority order and the first matching one
// wins, so a low-priority skip never fires behind a matching adjust.
func TestEvaluateRulePriorityOrder(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, fakeSignals{}, nil, nil)

	everyDay := alarm.Condition{Kind: alarm.CondDayOfWeek, Weekdays: []int{0, 1, 2, 3, 4, 5, 6}}
	a := dailyAlarm("07:00")
	a.Rules = []alarm.ConditionalRule{
		{Condition: everyDay, Action: alarm.Action{Kind: alarm.ActionSkipAlarm}, Priority: 5, Active: true},
		{Condition: everyDay, Action: alarm.Action{Kind: alarm.ActionAdjustTime, AdjustMinutes: 10}, Priority: 1, Active: true},
	}

	around := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !plan.Proceed {
		t.Fatalf("adjust rule should win over lower-priority skip, got %+v", plan)
	}
	if plan.Alarm.Time.String() != "07:10" {
		t.Fatalf("adjusted time = %s, want 07:10", plan.Alarm.Time)
	}
}

func TestEvaluateGeofenceBlock(t *testing.T) {
	t.Parallel()
	home := alarm.GeoPoint{Latitude: 52.52, Longitude: 13.405}
	e := newTestEngine(t, fakeSignals{}, nil, fakePosition{pt: &home})

	a := dailyAlarm("07:00")
	a.Triggers = []alarm.LocationTrigger{{
		Kind:     alarm.TriggerEnter,
		Location: home,
		RadiusM:  100,
		Action:   alarm.Action{Kind: alarm.ActionDisableAlarm},
		Active:   true,
	}}

	around := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if plan.Proceed || plan.SkipReason != SkipGeofenceBlock {
		t.Fatalf("plan = %+v, want geofence block", plan)
	}
}

// A failing position source degrades the plan but never blocks it.
func TestEvaluatePositionFailureDegrades(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, fakeSignals{}, nil, fakePosition{err: errors.New("gps timeout")})

	a := dailyAlarm("07:00")
	a.Triggers = []alarm.LocationTrigger{{
		Kind:    alarm.TriggerEnter,
		RadiusM: 100,
		Action:  alarm.Action{Kind: alarm.ActionDisableAlarm},
		Active:  true,
	}}

	around := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !plan.Proceed || !plan.Degraded {
		t.Fatalf("plan = %+v, want degraded proceed", plan)
	}
}

func TestEvaluateNoOccurrence(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, fakeSignals{}, nil, nil)

	a := alarm.AdvancedAlarm{
		ID:      "alarm:oneshot",
		Time:    alarm.MustClockTime("07:00"),
		Enabled: true,
	}
	// One-time alarm whose wall time already passed today.
	around := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if plan.Proceed || plan.SkipReason != SkipNoOccurrence {
		t.Fatalf("plan = %+v, want no occurrence", plan)
	}
}

// A sun schedule replaces the declared wall time before resolution.
func TestEvaluateSunSchedule(t *testing.T) {
	t.Parallel()
	sunrise := time.Date(2025, time.June, 10, 6, 20, 0, 0, time.UTC)
	e := newTestEngine(t, fakeSignals{}, fixedSun{sunrise: sunrise, sunset: sunrise.Add(14 * time.Hour)}, nil)

	a := dailyAlarm("07:00")
	a.Sun = &alarm.SunSchedule{Mode: alarm.SunModeSunrise, OffsetMinutes: 10}

	around := time.Date(2025, time.June, 10, 5, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !plan.Proceed {
		t.Fatalf("plan should proceed, skipped with %q", plan.SkipReason)
	}
	want := time.Date(2025, time.June, 10, 6, 30, 0, 0, time.UTC)
	if !plan.FireAt.Equal(want) {
		t.Fatalf("FireAt = %v, want %v", plan.FireAt, want)
	}
}

func TestEvaluateOptimizationClampedByConfig(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, fakeSignals{sleep: 90, sleepOK: true}, nil, nil)

	a := dailyAlarm("07:00")
	a.Optimizations = []alarm.SmartOptimization{
		{Kind: alarm.OptSleepCycle, Enabled: true},
	}

	around := time.Date(2025, time.June, 10, 8, 0, 0, 0, time.UTC)
	plan, err := e.Evaluate(context.Background(), a, around)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// Default config caps daily adjustment at 30 minutes.
	if plan.Shift != 30 {
		t.Fatalf("Shift = %d, want 30", plan.Shift)
	}
	if plan.Alarm.Time.String() != "07:30" {
		t.Fatalf("time = %s, want 07:30", plan.Alarm.Time)
	}
}
