package alarm

import (
	"fmt"
	"sort"
	"time"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AdvancedAlarm is the full declarative alarm definition.
//
// Alarms are value objects: the engine never mutates a caller's copy.
// Adjustments flow through the With* helpers, which return deep copies
// of the slices they touch.
type AdvancedAlarm struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Time       ClockTime `json:"time"`
	Enabled    bool      `json:"enabled"`
	Sound      string    `json:"sound,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`

	Recurrence    *RecurrencePattern   `json:"recurrencePattern,omitempty"`
	Rules         []ConditionalRule    `json:"conditionalRules,omitempty"`
	Optimizations []SmartOptimization  `json:"smartOptimizations,omitempty"`
	Seasonal      []SeasonalAdjustment `json:"seasonalAdjustments,omitempty"`
	Triggers      []LocationTrigger    `json:"locationTriggers,omitempty"`
	Sun           *SunSchedule         `json:"sunSchedule,omitempty"`
	Calendar      *CalendarIntegration `json:"calendarIntegration,omitempty"`
	DependsOn     []string             `json:"dependencies,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RecurrencePattern describes how occurrences repeat.
//
// Both EndDate and EndAfterOccurrences may be set; generation stops at
// whichever end condition is hit first.
type RecurrencePattern struct {
	Type         RecurrenceType `json:"type"`
	Interval     int            `json:"interval,omitempty"` // every-N multiplier, >= 1
	DaysOfWeek   []int          `json:"daysOfWeek,omitempty"`  // 0=Sunday .. 6=Saturday
	DaysOfMonth  []int          `json:"daysOfMonth,omitempty"` // 1..31
	WeeksOfMonth []int          `json:"weeksOfMonth,omitempty"` // 1..5, Nth weekday of month
	MonthsOfYear []int          `json:"monthsOfYear,omitempty"` // 1..12

	// StartDate anchors custom interval offsets and the first cursor.
	// Defaults to the alarm's creation date when zero.
	StartDate CivilDate `json:"startDate,omitempty"`

	EndDate             CivilDate   `json:"endDate,omitempty"`
	EndAfterOccurrences int         `json:"endAfterOccurrences,omitempty"`
	Exceptions          []CivilDate `json:"exceptions,omitempty"`

	Custom *CustomPattern `json:"customPattern,omitempty"`
}

// CustomPattern matches explicit dates first; when none remain in the
// future, Intervals (day offsets from StartDate) take over.
type CustomPattern struct {
	Dates     []CivilDate `json:"dates,omitempty"`
	Intervals []int       `json:"intervals,omitempty"`
}

// EffectiveInterval returns the every-N multiplier, defaulting to 1.
func (p *RecurrencePattern) EffectiveInterval() int {
	if p == nil || p.Interval < 1 {
		return 1
	}
	return p.Interval
}

// IsException reports whether the date is explicitly skipped.
func (p *RecurrencePattern) IsException(d CivilDate) bool {
	if p == nil {
		return false
	}
	for _, e := range p.Exceptions {
		if e == d {
			return true
		}
	}
	return false
}

// Condition is the closed variant for conditional rules. Kind selects
// which of the remaining fields are meaningful.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Operator  Operator      `json:"operator,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`
	Value     string        `json:"value,omitempty"`
	Weekdays  []int         `json:"weekdays,omitempty"` // day_of_week: 0=Sunday..6=Saturday
	MinGap    time.Duration `json:"minGap,omitempty"`   // time_since_last
}

// Action is the closed variant for rule and trigger actions.
type Action struct {
	Kind          ActionKind `json:"kind"`
	AdjustMinutes int        `json:"adjustMinutes,omitempty"`
	Sound         string     `json:"sound,omitempty"`
	Difficulty    string     `json:"difficulty,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// ConditionalRule pairs a condition with the action taken when it holds.
// Rules are immutable value objects; evaluation order is the slice order
// (sort by Priority before evaluating).
type ConditionalRule struct {
	Condition Condition `json:"condition"`
	Action    Action    `json:"action"`
	Priority  int       `json:"priority"`
	Active    bool      `json:"isActive"`
}

// SortRulesByPriority orders rules ascending by priority, preserving the
// relative order of equal priorities.
func SortRulesByPriority(rules []ConditionalRule) []ConditionalRule {
	out := append([]ConditionalRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// LocationTrigger gates or modifies an alarm based on device position.
type LocationTrigger struct {
	Kind     TriggerKind `json:"type"`
	Location GeoPoint    `json:"location"`
	RadiusM  float64     `json:"radius"` // meters
	Action   Action      `json:"action"`
	Active   bool        `json:"isActive"`
}

// SmartOptimization is a bounded, signal-driven time shift.
type SmartOptimization struct {
	Kind    OptimizationKind   `json:"type"`
	Enabled bool               `json:"isEnabled"`
	Params  OptimizationParams `json:"parameters"`

	// LastApplied is the only field the engine writes, and only on the
	// returned copy after a successful non-zero adjustment.
	LastApplied *time.Time `json:"lastApplied,omitempty"`
}

type OptimizationParams struct {
	Sensitivity     float64           `json:"sensitivity,omitempty"`
	MaxAdjustment   int               `json:"maxAdjustment,omitempty"` // minutes; 0 = use config default
	LearningEnabled bool              `json:"learningEnabled,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
}

type SeasonalAdjustment struct {
	Season            Season `json:"season"`
	AdjustmentMinutes int    `json:"adjustmentMinutes"`
	Active            bool   `json:"isActive"`
}

type SunSchedule struct {
	Mode           SunMode  `json:"mode"`
	OffsetMinutes  int      `json:"offsetMinutes,omitempty"`
	SeasonalAdjust bool     `json:"seasonalAdjust,omitempty"`
	Location       GeoPoint `json:"location"`
}

type CalendarIntegration struct {
	CalendarID    string `json:"calendarId"`
	SkipOnAllDay  bool   `json:"skipOnAllDay,omitempty"`
	LookaheadMins int    `json:"lookaheadMinutes,omitempty"`
}

// NewID mints a process-unique alarm id.
func NewID() string {
	return fmt.Sprintf("alarm:%d", time.Now().UnixNano())
}

// Clone returns a deep copy of the alarm.
func (a AdvancedAlarm) Clone() AdvancedAlarm {
	cp := a
	if a.Recurrence != nil {
		r := *a.Recurrence
		r.DaysOfWeek = append([]int(nil), a.Recurrence.DaysOfWeek...)
		r.DaysOfMonth = append([]int(nil), a.Recurrence.DaysOfMonth...)
		r.WeeksOfMonth = append([]int(nil), a.Recurrence.WeeksOfMonth...)
		r.MonthsOfYear = append([]int(nil), a.Recurrence.MonthsOfYear...)
		r.Exceptions = append([]CivilDate(nil), a.Recurrence.Exceptions...)
		if a.Recurrence.Custom != nil {
			c := *a.Recurrence.Custom
			c.Dates = append([]CivilDate(nil), a.Recurrence.Custom.Dates...)
			c.Intervals = append([]int(nil), a.Recurrence.Custom.Intervals...)
			r.Custom = &c
		}
		cp.Recurrence = &r
	}
	cp.Rules = append([]ConditionalRule(nil), a.Rules...)
	cp.Optimizations = append([]SmartOptimization(nil), a.Optimizations...)
	cp.Seasonal = append([]SeasonalAdjustment(nil), a.Seasonal...)
	cp.Triggers = append([]LocationTrigger(nil), a.Triggers...)
	cp.DependsOn = append([]string(nil), a.DependsOn...)
	if a.Sun != nil {
		s := *a.Sun
		cp.Sun = &s
	}
	if a.Calendar != nil {
		c := *a.Calendar
		cp.Calendar = &c
	}
	return cp
}

// WithTime returns a copy of the alarm with the given wall time.
func (a AdvancedAlarm) WithTime(t ClockTime) AdvancedAlarm {
	cp := a.Clone()
	cp.Time = t
	return cp
}

// WithOptimizationApplied returns a copy with LastApplied stamped on the
// optimization at index i.
func (a AdvancedAlarm) WithOptimizationApplied(i int, at time.Time) AdvancedAlarm {
	cp := a.Clone()
	if i >= 0 && i < len(cp.Optimizations) {
		stamp := at
		cp.Optimizations[i].LastApplied = &stamp
	}
	return cp
}
