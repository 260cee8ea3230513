package alarm

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed alarm data. It is returned as a
// value the caller inspects; bulk/import paths record its message
// instead of propagating it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the alarm definition for structural problems.
// It stops at the first error.
func (a AdvancedAlarm) Validate() error {
	if strings.TrimSpace(a.Label) == "" && strings.TrimSpace(a.ID) == "" {
		return invalid("label", "alarm needs a label or an id")
	}
	if err := a.Recurrence.Validate(); err != nil {
		return err
	}
	for i, r := range a.Rules {
		if err := r.Validate(); err != nil {
			return invalid(fmt.Sprintf("conditionalRules[%d]", i), "%v", err)
		}
	}
	for i, tr := range a.Triggers {
		if !tr.Kind.Valid() {
			return invalid(fmt.Sprintf("locationTriggers[%d].type", i), "unknown trigger type %q", tr.Kind)
		}
		if tr.RadiusM <= 0 {
			return invalid(fmt.Sprintf("locationTriggers[%d].radius", i), "radius must be > 0")
		}
		if tr.Location.Latitude < -90 || tr.Location.Latitude > 90 {
			return invalid(fmt.Sprintf("locationTriggers[%d].location", i), "latitude out of range")
		}
		if tr.Location.Longitude < -180 || tr.Location.Longitude > 180 {
			return invalid(fmt.Sprintf("locationTriggers[%d].location", i), "longitude out of range")
		}
	}
	for i, o := range a.Optimizations {
		if !o.Kind.Valid() {
			return invalid(fmt.Sprintf("smartOptimizations[%d].type", i), "unknown optimization type %q", o.Kind)
		}
		if o.Params.MaxAdjustment < 0 {
			return invalid(fmt.Sprintf("smartOptimizations[%d].parameters.maxAdjustment", i), "must be >= 0")
		}
	}
	for i, s := range a.Seasonal {
		if !s.Season.Valid() {
			return invalid(fmt.Sprintf("seasonalAdjustments[%d].season", i), "unknown season %q", s.Season)
		}
	}
	if a.Sun != nil && !a.Sun.Mode.Valid() {
		return invalid("sunSchedule.mode", "unknown mode %q", a.Sun.Mode)
	}
	return nil
}

// Validate checks recurrence pattern bounds.
func (p *RecurrencePattern) Validate() error {
	if p == nil {
		return nil
	}
	if !p.Type.Valid() {
		return invalid("recurrencePattern.type", "unknown recurrence type %q", p.Type)
	}
	if p.Interval < 0 {
		return invalid("recurrencePattern.interval", "must be >= 1")
	}
	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("recurrencePattern.daysOfWeek", "day %d out of range 0..6", d)
		}
	}
	for _, d := range p.DaysOfMonth {
		if d < 1 || d > 31 {
			return invalid("recurrencePattern.daysOfMonth", "day %d out of range 1..31", d)
		}
	}
	for _, w := range p.WeeksOfMonth {
		if w < 1 || w > 5 {
			return invalid("recurrencePattern.weeksOfMonth", "week %d out of range 1..5", w)
		}
	}
	for _, m := range p.MonthsOfYear {
		if m < 1 || m > 12 {
			return invalid("recurrencePattern.monthsOfYear", "month %d out of range 1..12", m)
		}
	}
	if p.EndAfterOccurrences < 0 {
		return invalid("recurrencePattern.endAfterOccurrences", "must be >= 0")
	}
	if p.Type == RecurrenceCustom && p.Custom == nil {
		return invalid("recurrencePattern.customPattern", "required for custom type")
	}
	return nil
}

// Validate checks a single conditional rule.
func (r ConditionalRule) Validate() error {
	if !r.Condition.Kind.Valid() {
		return invalid("condition.kind", "unknown condition kind %q", r.Condition.Kind)
	}
	if r.Condition.Operator != "" && !r.Condition.Operator.Valid() {
		return invalid("condition.operator", "unknown operator %q", r.Condition.Operator)
	}
	if r.Condition.Kind == CondDayOfWeek {
		for _, d := range r.Condition.Weekdays {
			if d < 0 || d > 6 {
				return invalid("condition.weekdays", "day %d out of range 0..6", d)
			}
		}
	}
	if !r.Action.Kind.Valid() {
		return invalid("action.kind", "unknown action kind %q", r.Action.Kind)
	}
	return nil
}
