package recurrence

import (
	"testing"
	"time"

	"alarmkit/internal/alarm"
)

func mkAlarm(t string, p *alarm.RecurrencePattern) alarm.AdvancedAlarm {
	return alarm.AdvancedAlarm{
		ID:         "alarm:test",
		Label:      "test",
		Time:       alarm.MustClockTime(t),
		Enabled:    true,
		Recurrence: p,
		CreatedAt:  time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestOneTimeAlarm(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)

	// Still in the future today: included.
	res, err := r.Next(mkAlarm("07:00", nil), at(2025, 3, 11, 6, 0), 10)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(res.Times) != 1 || !res.Times[0].Equal(at(2025, 3, 11, 7, 0)) {
		t.Fatalf("unexpected occurrences: %v", res.Times)
	}

	// The day has passed: no rollover to tomorrow.
	res, err = r.Next(mkAlarm("07:00", nil), at(2025, 3, 11, 7, 30), 10)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(res.Times) != 0 {
		t.Fatalf("expected no occurrences, got %v", res.Times)
	}
}

func TestDailyRollsToNextDay(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{Type: alarm.RecurrenceDaily, Interval: 1})

	res, err := r.Next(a, at(2025, 3, 11, 7, 30), 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []time.Time{
		at(2025, 3, 12, 7, 0),
		at(2025, 3, 13, 7, 0),
		at(2025, 3, 14, 7, 0),
	}
	assertTimes(t, res.Times, want)
}

func TestDailyIntervalFromBase(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:      alarm.RecurrenceDaily,
		Interval:  3,
		StartDate: alarm.MustCivilDate("2025-03-01"),
	})

	// Multiples of 3 days from Mar 1: Mar 1, 4, 7, 10, 13, ...
	res, err := r.Next(a, at(2025, 3, 11, 12, 0), 2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 13, 7, 0), at(2025, 3, 16, 7, 0)})
}

func TestWeeklyMonWedFri(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("06:30", &alarm.RecurrencePattern{
		Type:       alarm.RecurrenceWeekly,
		DaysOfWeek: []int{1, 3, 5}, // Mon/Wed/Fri
	})

	// 2025-03-11 is a Tuesday; first hit is Wednesday at the alarm time.
	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 4)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []time.Time{
		at(2025, 3, 12, 6, 30), // Wed
		at(2025, 3, 14, 6, 30), // Fri
		at(2025, 3, 17, 6, 30), // Mon
		at(2025, 3, 19, 6, 30), // Wed
	}
	assertTimes(t, res.Times, want)
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
}

func TestWeeklyFallbackIsDegraded(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("06:30", &alarm.RecurrencePattern{
		Type:      alarm.RecurrenceWeekly,
		StartDate: alarm.MustCivilDate("2025-01-06"),
	})

	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 5)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result when no weekday matches")
	}
	// The stale base-time fallback is not after from, so nothing is emitted.
	if len(res.Times) != 0 {
		t.Fatalf("expected no occurrences, got %v", res.Times)
	}
}

func TestMonthlyDaysOfMonth(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("08:00", &alarm.RecurrencePattern{
		Type:        alarm.RecurrenceMonthly,
		DaysOfMonth: []int{1, 15},
	})

	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []time.Time{
		at(2025, 3, 15, 8, 0),
		at(2025, 4, 1, 8, 0),
		at(2025, 4, 15, 8, 0),
	}
	assertTimes(t, res.Times, want)
}

func TestMonthlyNthWeekday(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("08:00", &alarm.RecurrencePattern{
		Type:         alarm.RecurrenceMonthly,
		WeeksOfMonth: []int{2},
		DaysOfWeek:   []int{2}, // second Tuesday
	})

	res, err := r.Next(a, at(2025, 3, 1, 0, 0), 2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// Second Tuesday of March 2025 is the 11th, of April the 8th.
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 11, 8, 0), at(2025, 4, 8, 8, 0)})
}

func TestMonthlyDefaultClampsShortMonths(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("08:00", &alarm.RecurrencePattern{
		Type:      alarm.RecurrenceMonthly,
		Interval:  1,
		StartDate: alarm.MustCivilDate("2025-01-31"),
	})

	res, err := r.Next(a, at(2025, 1, 31, 9, 0), 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// 2025 is not a leap year: Feb clamps to the 28th.
	want := []time.Time{
		at(2025, 2, 28, 8, 0),
		at(2025, 3, 31, 8, 0),
		at(2025, 4, 30, 8, 0),
	}
	assertTimes(t, res.Times, want)
}

func TestYearlyMonths(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("09:00", &alarm.RecurrencePattern{
		Type:         alarm.RecurrenceYearly,
		Interval:     1,
		MonthsOfYear: []int{3, 9},
		StartDate:    alarm.MustCivilDate("2024-03-05"),
	})

	res, err := r.Next(a, at(2025, 4, 1, 0, 0), 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []time.Time{
		at(2025, 9, 5, 9, 0),
		at(2026, 3, 5, 9, 0),
		at(2026, 9, 5, 9, 0),
	}
	assertTimes(t, res.Times, want)
}

func TestWorkdaysSkipWeekend(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{Type: alarm.RecurrenceWorkdays})

	// 2025-03-14 is a Friday.
	res, err := r.Next(a, at(2025, 3, 14, 8, 0), 2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 17, 7, 0), at(2025, 3, 18, 7, 0)})
}

func TestWeekends(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("09:30", &alarm.RecurrencePattern{Type: alarm.RecurrenceWeekends})

	// 2025-03-11 is a Tuesday.
	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 15, 9, 30), at(2025, 3, 16, 9, 30)})
}

func TestExceptionsAreSkipped(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:       alarm.RecurrenceDaily,
		Interval:   1,
		Exceptions: []alarm.CivilDate{alarm.MustCivilDate("2025-03-13")},
	})

	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []time.Time{
		at(2025, 3, 12, 7, 0),
		at(2025, 3, 14, 7, 0),
		at(2025, 3, 15, 7, 0),
	}
	assertTimes(t, res.Times, want)
}

func TestEndDateStopsGeneration(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:     alarm.RecurrenceDaily,
		Interval: 1,
		EndDate:  alarm.MustCivilDate("2025-03-13"),
	})

	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 10)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 12, 7, 0), at(2025, 3, 13, 7, 0)})
}

func TestEndAfterOccurrencesCountsHistory(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:                alarm.RecurrenceDaily,
		Interval:            1,
		StartDate:           alarm.MustCivilDate("2025-03-10"),
		EndAfterOccurrences: 5,
	})

	// Occurrences run Mar 10..14; asking from Mar 12 only two remain.
	res, err := r.Next(a, at(2025, 3, 12, 8, 0), 10)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 13, 7, 0), at(2025, 3, 14, 7, 0)})
}

func TestCustomDatesThenIntervals(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)

	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:      alarm.RecurrenceCustom,
		StartDate: alarm.MustCivilDate("2025-03-01"),
		Custom: &alarm.CustomPattern{
			Dates:     []alarm.CivilDate{alarm.MustCivilDate("2025-03-20")},
			Intervals: []int{30, 60},
		},
	})

	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 5)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// Explicit date first, then base+30d and base+60d.
	want := []time.Time{
		at(2025, 3, 20, 7, 0),
		at(2025, 3, 31, 7, 0),
		at(2025, 4, 30, 7, 0),
	}
	assertTimes(t, res.Times, want)
}

func TestCustomExhaustedYieldsNothing(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:      alarm.RecurrenceCustom,
		StartDate: alarm.MustCivilDate("2025-01-01"),
		Custom: &alarm.CustomPattern{
			Dates: []alarm.CivilDate{alarm.MustCivilDate("2025-01-10")},
		},
	})

	res, err := r.Next(a, at(2025, 3, 11, 8, 0), 5)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(res.Times) != 0 {
		t.Fatalf("expected no occurrences, got %v", res.Times)
	}
}

func TestStrictlyIncreasingAndAfterFrom(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	from := at(2025, 3, 11, 7, 30)

	patterns := []*alarm.RecurrencePattern{
		{Type: alarm.RecurrenceDaily, Interval: 2},
		{Type: alarm.RecurrenceWeekly, DaysOfWeek: []int{0, 6}},
		{Type: alarm.RecurrenceMonthly, DaysOfMonth: []int{5, 20}},
		{Type: alarm.RecurrenceWorkdays},
		{Type: alarm.RecurrenceWeekends},
		{Type: alarm.RecurrenceYearly, MonthsOfYear: []int{6}},
	}
	for _, p := range patterns {
		res, err := r.Next(mkAlarm("07:00", p), from, 8)
		if err != nil {
			t.Fatalf("Next(%s): %v", p.Type, err)
		}
		prev := from
		for _, occ := range res.Times {
			if !occ.After(prev) {
				t.Fatalf("%s: occurrences not strictly increasing past from: %v", p.Type, res.Times)
			}
			prev = occ
		}
	}
}

// An alarm carrying neither a start date nor a creation date anchors
// its pattern to the query instant, so resolution for a past instant
// returns the same occurrences no matter when it runs.
func TestMissingBaseDateAnchorsToFrom(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)

	daily := mkAlarm("07:00", &alarm.RecurrencePattern{Type: alarm.RecurrenceDaily, Interval: 1})
	daily.CreatedAt = time.Time{}
	res, err := r.Next(daily, at(2025, 3, 11, 7, 30), 1)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 3, 12, 7, 0)})

	// The monthly default branch reuses the anchor's day of month.
	monthly := mkAlarm("07:00", &alarm.RecurrencePattern{Type: alarm.RecurrenceMonthly, Interval: 1})
	monthly.CreatedAt = time.Time{}
	res, err = r.Next(monthly, at(2025, 3, 11, 7, 30), 2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	assertTimes(t, res.Times, []time.Time{at(2025, 4, 11, 7, 0), at(2025, 5, 11, 7, 0)})
}

func TestInvalidPatternRejected(t *testing.T) {
	t.Parallel()
	r := New(time.UTC)
	a := mkAlarm("07:00", &alarm.RecurrencePattern{
		Type:       alarm.RecurrenceWeekly,
		DaysOfWeek: []int{9},
	})
	if _, err := r.Next(a, at(2025, 3, 11, 8, 0), 5); err == nil {
		t.Fatal("expected validation error for weekday 9")
	}
}

func assertTimes(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
