package suncalc

import (
	"context"
	"math"
	"time"

	"alarmkit/internal/alarm"
)

// SolarProvider computes sunrise/sunset with the NOAA solar position
// approximation (fractional-year form). Accuracy is within a few
// minutes, which is plenty for wake scheduling.
type SolarProvider struct{}

// zenith for official sunrise/sunset: 90°50' accounts for refraction
// and the solar disc radius.
const zenithDeg = 90.833

func (SolarProvider) SunTimes(_ context.Context, pt alarm.GeoPoint, date alarm.CivilDate) (time.Time, time.Time, error) {
	noon := time.Date(date.Year, date.Month, date.Day, 12, 0, 0, 0, time.UTC)
	yday := float64(noon.YearDay())

	// Fractional year in radians, evaluated at solar noon.
	gamma := 2 * math.Pi / 365 * (yday - 1)

	// Equation of time (minutes) and solar declination (radians).
	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(gamma) - 0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) - 0.040849*math.Sin(2*gamma))
	decl := 0.006918 -
		0.399912*math.Cos(gamma) + 0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) + 0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) + 0.00148*math.Sin(3*gamma)

	lat := pt.Latitude * math.Pi / 180
	cosHA := (math.Cos(zenithDeg*math.Pi/180) - math.Sin(lat)*math.Sin(decl)) /
		(math.Cos(lat) * math.Cos(decl))
	if cosHA < -1 || cosHA > 1 {
		return time.Time{}, time.Time{}, ErrNoSunEvent
	}
	haDeg := math.Acos(cosHA) * 180 / math.Pi

	// Minutes after 00:00 UTC.
	sunriseMin := 720 - 4*(pt.Longitude+haDeg) - eqTime
	sunsetMin := 720 - 4*(pt.Longitude-haDeg) - eqTime

	midnight := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC)
	sunrise := midnight.Add(time.Duration(sunriseMin * float64(time.Minute)))
	sunset := midnight.Add(time.Duration(sunsetMin * float64(time.Minute)))
	return sunrise, sunset, nil
}
