package recurrence

import (
	"errors"
	"sort"
	"time"

	"alarmkit/internal/alarm"
)

// DefaultCount is the occurrence window returned when the caller does
// not ask for a specific amount.
const DefaultCount = 10

// maxSteps bounds the generation loop so a degenerate pattern (e.g. all
// dates excepted) cannot spin forever.
const maxSteps = 1000

var ErrInvalidPattern = errors.New("invalid recurrence pattern")

// Result is an ordered list of future occurrences.
//
// Degraded is set when the weekly lookahead window found no matching
// day and the resolver fell back to the pattern's base time. The
// fallback value may be stale; callers that care should treat a
// degraded result as "no reliable further occurrences".
type Result struct {
	Times    []time.Time
	Degraded bool
}

// Resolver turns a recurrence pattern into concrete future instants.
// It holds only a location and is safe for concurrent use.
type Resolver struct {
	loc *time.Location
}

func New(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{loc: loc}
}

// Next computes up to count occurrences strictly after from.
//
// The returned times are strictly increasing. Exceptions (exact
// calendar-date matches) are skipped; generation stops at whichever end
// condition (endDate / endAfterOccurrences) is hit first.
func (r *Resolver) Next(a alarm.AdvancedAlarm, from time.Time, count int) (Result, error) {
	if count <= 0 {
		count = DefaultCount
	}
	from = from.In(r.loc)

	p := a.Recurrence
	if p == nil {
		// One-time alarm: fires today at its wall time or not at all.
		cand := a.Time.On(alarm.DateOf(from), r.loc)
		if cand.After(from) {
			return Result{Times: []time.Time{cand}}, nil
		}
		return Result{}, nil
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	base := r.baseDate(a, from)

	// endAfterOccurrences counts occurrences since the pattern's start,
	// not since from. When set, replay generation from the base date so
	// historical occurrences consume the budget.
	cursor := from
	if p.EndAfterOccurrences > 0 {
		start := a.Time.On(base, r.loc).Add(-time.Minute)
		if start.Before(cursor) {
			cursor = start
		}
	}

	var (
		out      []time.Time
		total    int
		degraded bool
	)
	for steps := 0; steps < maxSteps && len(out) < count; steps++ {
		occ, ok, deg := r.nextOfType(p, a.Time, base, cursor)
		if !ok {
			break
		}
		if deg {
			degraded = true
			if occ.After(from) && !p.IsException(alarm.DateOf(occ)) {
				out = append(out, occ)
			}
			// The fallback is not anchored to the cursor; advancing past
			// it would loop. Stop here.
			break
		}
		d := alarm.DateOf(occ)
		if !p.EndDate.IsZero() && p.EndDate.Before(d) {
			break
		}
		total++
		if p.EndAfterOccurrences > 0 && total > p.EndAfterOccurrences {
			break
		}
		if occ.After(from) && !p.IsException(d) {
			out = append(out, occ)
		}
		// Advance to the start of the day after the occurrence.
		cursor = startOfDay(d.AddDays(1), r.loc)
	}

	return Result{Times: out, Degraded: degraded}, nil
}

// baseDate picks the pattern's anchor: its declared start date, the
// alarm's creation date, or the query instant when both are unset.
// Next stays a pure function of its inputs either way.
func (r *Resolver) baseDate(a alarm.AdvancedAlarm, from time.Time) alarm.CivilDate {
	if a.Recurrence != nil && !a.Recurrence.StartDate.IsZero() {
		return a.Recurrence.StartDate
	}
	if !a.CreatedAt.IsZero() {
		return alarm.DateOf(a.CreatedAt.In(r.loc))
	}
	return alarm.DateOf(from)
}

// nextOfType computes the next occurrence at/after cursor for the
// pattern's type. ok=false means the pattern yields no further
// occurrences; deg=true marks the weekly base-time fallback.
func (r *Resolver) nextOfType(p *alarm.RecurrencePattern, t alarm.ClockTime, base alarm.CivilDate, cursor time.Time) (occ time.Time, ok bool, deg bool) {
	switch p.Type {
	case alarm.RecurrenceDaily:
		return r.nextDaily(p, t, base, cursor), true, false
	case alarm.RecurrenceWeekly:
		return r.nextWeekly(p, t, base, cursor)
	case alarm.RecurrenceMonthly:
		return r.nextMonthly(p, t, base, cursor)
	case alarm.RecurrenceYearly:
		return r.nextYearly(p, t, base, cursor)
	case alarm.RecurrenceWorkdays:
		return r.nextByWeekdayPredicate(t, cursor, isWorkday), true, false
	case alarm.RecurrenceWeekends:
		return r.nextByWeekdayPredicate(t, cursor, isWeekend), true, false
	case alarm.RecurrenceCustom:
		return r.nextCustom(p, t, base, cursor)
	default:
		return time.Time{}, false, false
	}
}

// nextDaily lands on the smallest multiple of interval days (counted
// from the base date) at/after the cursor.
func (r *Resolver) nextDaily(p *alarm.RecurrencePattern, t alarm.ClockTime, base alarm.CivilDate, cursor time.Time) time.Time {
	n := p.EffectiveInterval()
	d := alarm.DateOf(cursor)
	if d.Before(base) {
		d = base
	}
	since := daysBetween(base, d)
	if rem := since % n; rem != 0 {
		d = d.AddDays(n - rem)
	}
	cand := t.On(d, r.loc)
	if cand.Before(cursor) {
		cand = t.On(d.AddDays(n), r.loc)
	}
	return cand
}

// nextWeekly scans forward day-by-day up to 14 days for a weekday in
// daysOfWeek. When nothing matches in the window it falls back to the
// pattern's base time and flags the result degraded.
func (r *Resolver) nextWeekly(p *alarm.RecurrencePattern, t alarm.ClockTime, base alarm.CivilDate, cursor time.Time) (time.Time, bool, bool) {
	if len(p.DaysOfWeek) > 0 {
		start := alarm.DateOf(cursor)
		for i := 0; i < 14; i++ {
			d := start.AddDays(i)
			if containsInt(p.DaysOfWeek, int(d.Weekday())) {
				if cand := t.On(d, r.loc); cand.After(cursor) {
					return cand, true, false
				}
			}
		}
	}
	return t.On(base, r.loc), true, true
}

func (r *Resolver) nextMonthly(p *alarm.RecurrencePattern, t alarm.ClockTime, base alarm.CivilDate, cursor time.Time) (time.Time, bool, bool) {
	switch {
	case len(p.DaysOfMonth) > 0:
		days := sortedCopy(p.DaysOfMonth)
		y, m := cursor.Year(), cursor.Month()
		for i := 0; i < 24; i++ {
			for _, dom := range days {
				if dom > daysInMonth(y, m) {
					continue
				}
				cand := t.On(alarm.CivilDate{Year: y, Month: m, Day: dom}, r.loc)
				if cand.After(cursor) {
					return cand, true, false
				}
			}
			y, m = nextMonth(y, m)
		}
		return time.Time{}, false, false

	case len(p.WeeksOfMonth) > 0 && len(p.DaysOfWeek) > 0:
		weeks := sortedCopy(p.WeeksOfMonth)
		dows := sortedCopy(p.DaysOfWeek)
		y, m := cursor.Year(), cursor.Month()
		for i := 0; i < 24; i++ {
			var best time.Time
			for _, w := range weeks {
				for _, dow := range dows {
					d, ok := nthWeekdayOfMonth(y, m, w, time.Weekday(dow))
					if !ok {
						continue
					}
					cand := t.On(d, r.loc)
					if cand.After(cursor) && (best.IsZero() || cand.Before(best)) {
						best = cand
					}
				}
			}
			if !best.IsZero() {
				return best, true, false
			}
			y, m = nextMonth(y, m)
		}
		return time.Time{}, false, false

	default:
		// Same day-of-month as the base date, every interval months.
		n := p.EffectiveInterval()
		y, m := cursor.Year(), cursor.Month()
		cand := t.On(clampedDate(y, m, base.Day), r.loc)
		if !cand.After(cursor) {
			y, m = addMonths(y, m, n)
			cand = t.On(clampedDate(y, m, base.Day), r.loc)
		}
		return cand, true, false
	}
}

// nextYearly advances whole years by interval and picks the earliest
// month in monthsOfYear that lands after the cursor.
func (r *Resolver) nextYearly(p *alarm.RecurrencePattern, t alarm.ClockTime, base alarm.CivilDate, cursor time.Time) (time.Time, bool, bool) {
	months := sortedCopy(p.MonthsOfYear)
	if len(months) == 0 {
		months = []int{int(base.Month)}
	}
	n := p.EffectiveInterval()
	for k := 0; k < 10; k++ {
		y := cursor.Year() + k*n
		for _, m := range months {
			cand := t.On(clampedDate(y, time.Month(m), base.Day), r.loc)
			if cand.After(cursor) {
				return cand, true, false
			}
		}
	}
	return time.Time{}, false, false
}

func (r *Resolver) nextByWeekdayPredicate(t alarm.ClockTime, cursor time.Time, pred func(time.Weekday) bool) time.Time {
	d := alarm.DateOf(cursor)
	for i := 0; i < 8; i++ {
		day := d.AddDays(i)
		if !pred(day.Weekday()) {
			continue
		}
		if cand := t.On(day, r.loc); cand.After(cursor) {
			return cand
		}
	}
	// Unreachable: every 8-day window contains both workdays and weekend
	// days at a fixed wall time after the cursor.
	return t.On(d.AddDays(8), r.loc)
}

// nextCustom matches explicit dates first, then interval offsets from
// the base date. ok=false means no further occurrences.
func (r *Resolver) nextCustom(p *alarm.RecurrencePattern, t alarm.ClockTime, base alarm.CivilDate, cursor time.Time) (time.Time, bool, bool) {
	if p.Custom == nil {
		return time.Time{}, false, false
	}
	var best time.Time
	for _, d := range p.Custom.Dates {
		cand := t.On(d, r.loc)
		if cand.After(cursor) && (best.IsZero() || cand.Before(best)) {
			best = cand
		}
	}
	if !best.IsZero() {
		return best, true, false
	}
	for _, off := range p.Custom.Intervals {
		cand := t.On(base.AddDays(off), r.loc)
		if cand.After(cursor) && (best.IsZero() || cand.Before(best)) {
			best = cand
		}
	}
	if !best.IsZero() {
		return best, true, false
	}
	return time.Time{}, false, false
}

// ---- calendar helpers ----

func startOfDay(d alarm.CivilDate, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func daysBetween(a, b alarm.CivilDate) int {
	ta := time.Date(a.Year, a.Month, a.Day, 0, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	return int(tb.Sub(ta).Hours() / 24)
}

func daysInMonth(y int, m time.Month) int {
	// Day 0 of the next month normalizes to the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextMonth(y int, m time.Month) (int, time.Month) {
	return addMonths(y, m, 1)
}

func addMonths(y int, m time.Month, n int) (int, time.Month) {
	total := y*12 + int(m) - 1 + n
	return total / 12, time.Month(total%12 + 1)
}

// clampedDate clamps the day to the target month's length so that e.g.
// "the 31st" of a 30-day month becomes the 30th rather than rolling
// into the next month.
func clampedDate(y int, m time.Month, day int) alarm.CivilDate {
	if max := daysInMonth(y, m); day > max {
		day = max
	}
	if day < 1 {
		day = 1
	}
	return alarm.CivilDate{Year: y, Month: m, Day: day}
}

// nthWeekdayOfMonth returns the nth (1..5) given weekday of the month.
// ok=false when the month has no nth such weekday.
func nthWeekdayOfMonth(y int, m time.Month, nth int, dow time.Weekday) (alarm.CivilDate, bool) {
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(dow) - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (nth-1)*7
	if day > daysInMonth(y, m) {
		return alarm.CivilDate{}, false
	}
	return alarm.CivilDate{Year: y, Month: m, Day: day}, true
}

func isWorkday(d time.Weekday) bool { return d >= time.Monday && d <= time.Friday }
func isWeekend(d time.Weekday) bool { return d == time.Saturday || d == time.Sunday }

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func sortedCopy(xs []int) []int {
	out := append([]int(nil), xs...)
	sort.Ints(out)
	return out
}
