package alarm

import "time"

// Closed kind sets. Every switch over these carries a default arm:
// validation errors for inputs, log-and-ignore for actions.

type RecurrenceType string

const (
	RecurrenceDaily    RecurrenceType = "daily"
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
	RecurrenceYearly   RecurrenceType = "yearly"
	RecurrenceWorkdays RecurrenceType = "workdays"
	RecurrenceWeekends RecurrenceType = "weekends"
	RecurrenceCustom   RecurrenceType = "custom"
)

func (t RecurrenceType) Valid() bool {
	switch t {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly,
		RecurrenceWorkdays, RecurrenceWeekends, RecurrenceCustom:
		return true
	}
	return false
}

type ConditionKind string

const (
	CondWeather       ConditionKind = "weather"
	CondCalendarEvent ConditionKind = "calendar_event"
	CondSleepQuality  ConditionKind = "sleep_quality"
	CondDayOfWeek     ConditionKind = "day_of_week"
	CondTimeSinceLast ConditionKind = "time_since_last"
)

func (k ConditionKind) Valid() bool {
	switch k {
	case CondWeather, CondCalendarEvent, CondSleepQuality, CondDayOfWeek, CondTimeSinceLast:
		return true
	}
	return false
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains:
		return true
	}
	return false
}

type ActionKind string

const (
	ActionAdjustTime       ActionKind = "adjust_time"
	ActionChangeSound      ActionKind = "change_sound"
	ActionChangeDifficulty ActionKind = "change_difficulty"
	ActionSkipAlarm        ActionKind = "skip_alarm"
	ActionSendNotification ActionKind = "send_notification"
	ActionDisableAlarm     ActionKind = "disable_alarm"
	ActionEnableAlarm      ActionKind = "enable_alarm"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionAdjustTime, ActionChangeSound, ActionChangeDifficulty,
		ActionSkipAlarm, ActionSendNotification, ActionDisableAlarm, ActionEnableAlarm:
		return true
	}
	return false
}

type OptimizationKind string

const (
	OptSleepCycle    OptimizationKind = "sleep_cycle"
	OptSunriseSunset OptimizationKind = "sunrise_sunset"
	OptTraffic       OptimizationKind = "traffic_conditions"
	OptWeather       OptimizationKind = "weather_forecast"
	OptEnergyLevels  OptimizationKind = "energy_levels"
)

func (k OptimizationKind) Valid() bool {
	switch k {
	case OptSleepCycle, OptSunriseSunset, OptTraffic, OptWeather, OptEnergyLevels:
		return true
	}
	return false
}

type TriggerKind string

const (
	TriggerEnter      TriggerKind = "enter_location"
	TriggerExit       TriggerKind = "exit_location"
	TriggerArriveHome TriggerKind = "arrive_home"
	TriggerLeaveHome  TriggerKind = "leave_home"
	TriggerArriveWork TriggerKind = "arrive_work"
	TriggerLeaveWork  TriggerKind = "leave_work"
)

func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerEnter, TriggerExit, TriggerArriveHome, TriggerLeaveHome,
		TriggerArriveWork, TriggerLeaveWork:
		return true
	}
	return false
}

// Normalized reduces the semantic arrive/leave kinds to their
// enter/exit geometry.
func (k TriggerKind) Normalized() TriggerKind {
	switch k {
	case TriggerArriveHome, TriggerArriveWork:
		return TriggerEnter
	case TriggerLeaveHome, TriggerLeaveWork:
		return TriggerExit
	default:
		return k
	}
}

type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
	SeasonWinter Season = "winter"
)

func (s Season) Valid() bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonFall, SeasonWinter:
		return true
	}
	return false
}

// SeasonOf maps a month to its season: Mar-May spring, Jun-Aug summer,
// Sep-Nov fall, everything else winter.
func SeasonOf(m time.Month) Season {
	switch {
	case m >= time.March && m <= time.May:
		return SeasonSpring
	case m >= time.June && m <= time.August:
		return SeasonSummer
	case m >= time.September && m <= time.November:
		return SeasonFall
	default:
		return SeasonWinter
	}
}

type SunMode string

const (
	SunModeSunrise SunMode = "sunrise"
	SunModeSunset  SunMode = "sunset"
)

func (m SunMode) Valid() bool { return m == SunModeSunrise || m == SunModeSunset }
