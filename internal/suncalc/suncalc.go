// Package suncalc turns a sun schedule (sunrise/sunset anchor plus
// offset) into a concrete wall time for a given date and location.
//
// Sun times come from a Provider. The default provider computes them
// locally with the NOAA solar position approximation, so no network is
// needed; a remote provider can be swapped in for higher accuracy.
package suncalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alarmkit/internal/alarm"
)

// ErrNoSunEvent is returned for dates/latitudes where the requested sun
// event does not occur (polar day or polar night).
var ErrNoSunEvent = errors.New("sun does not rise or set at this location on this date")

// Provider supplies sunrise and sunset instants for a date at a point.
type Provider interface {
	SunTimes(ctx context.Context, pt alarm.GeoPoint, date alarm.CivilDate) (sunrise, sunset time.Time, err error)
}

type Calculator struct {
	provider Provider
	loc      *time.Location
}

func New(provider Provider, loc *time.Location) *Calculator {
	if provider == nil {
		provider = SolarProvider{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{provider: provider, loc: loc}
}

// TimeFor resolves the sun schedule to a wall time on the given date.
//
// With SeasonalAdjust set, the anchor is nudged toward a steadier wake
// time across the year: 15 minutes later in winter, 15 minutes earlier
// in summer.
func (c *Calculator) TimeFor(ctx context.Context, s alarm.SunSchedule, date alarm.CivilDate) (alarm.ClockTime, error) {
	if !s.Mode.Valid() {
		return 0, fmt.Errorf("unknown sun schedule mode %q", s.Mode)
	}
	sunrise, sunset, err := c.provider.SunTimes(ctx, s.Location, date)
	if err != nil {
		return 0, err
	}

	anchor := sunrise
	if s.Mode == alarm.SunModeSunset {
		anchor = sunset
	}
	anchor = anchor.In(c.loc).Add(time.Duration(s.OffsetMinutes) * time.Minute)

	if s.SeasonalAdjust {
		switch alarm.SeasonOf(date.Month) {
		case alarm.SeasonWinter:
			anchor = anchor.Add(15 * time.Minute)
		case alarm.SeasonSummer:
			anchor = anchor.Add(-15 * time.Minute)
		}
	}

	return alarm.ClockTime(anchor.Hour()*60 + anchor.Minute()), nil
}
