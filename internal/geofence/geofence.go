// Package geofence gates alarms on device position.
//
// Evaluation is pure: it takes a position sample supplied by the caller
// (the engine never requests geolocation itself) and matches it against
// the alarm's location triggers.
package geofence

import (
	"math"

	"alarmkit/internal/alarm"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// Decision is the outcome of matching triggers against a position.
// Applied is the action of the first matching trigger, if any.
type Decision struct {
	Proceed bool
	Applied *alarm.Action
}

// Evaluate checks the alarm's active location triggers against the
// current position. No position or no triggers means proceed.
//
// The first matching trigger wins; later triggers are not evaluated.
// A matched trigger allows proceeding unless its action disables the
// alarm.
func Evaluate(a alarm.AdvancedAlarm, pos *alarm.GeoPoint) Decision {
	if pos == nil || len(a.Triggers) == 0 {
		return Decision{Proceed: true}
	}
	for _, tr := range a.Triggers {
		if !tr.Active {
			continue
		}
		within := Distance(*pos, tr.Location) <= tr.RadiusM
		var matched bool
		switch tr.Kind.Normalized() {
		case alarm.TriggerEnter:
			matched = within
		case alarm.TriggerExit:
			matched = !within
		default:
			continue
		}
		if !matched {
			continue
		}
		action := tr.Action
		return Decision{
			Proceed: action.Kind != alarm.ActionDisableAlarm,
			Applied: &action,
		}
	}
	return Decision{Proceed: true}
}

// Distance returns the great-circle distance between two points in
// meters (haversine formula).
func Distance(a, b alarm.GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
