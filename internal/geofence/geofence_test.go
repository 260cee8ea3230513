package geofence

import (
	"testing"

	"alarmkit/internal/alarm"
)

// moveNorth returns a point approximately meters north of p.
// One degree of latitude is ~111 195 m on the sphere used by Distance.
func moveNorth(p alarm.GeoPoint, meters float64) alarm.GeoPoint {
	return alarm.GeoPoint{
		Latitude:  p.Latitude + meters/111195.0,
		Longitude: p.Longitude,
	}
}

func TestDistanceRadius(t *testing.T) {
	t.Parallel()
	home := alarm.GeoPoint{Latitude: 52.52, Longitude: 13.405}

	d50 := Distance(home, moveNorth(home, 50))
	if d50 < 45 || d50 > 55 {
		t.Fatalf("expected ~50m, got %.1f", d50)
	}
	if d50 > 100 {
		t.Fatal("50m offset should be within a 100m radius")
	}

	d150 := Distance(home, moveNorth(home, 150))
	if d150 <= 100 {
		t.Fatalf("150m offset should be outside a 100m radius, got %.1f", d150)
	}
}

func TestEvaluateNoPositionOrTriggers(t *testing.T) {
	t.Parallel()
	a := alarm.AdvancedAlarm{ID: "a1"}
	if d := Evaluate(a, nil); !d.Proceed || d.Applied != nil {
		t.Fatalf("expected plain proceed, got %+v", d)
	}

	pos := alarm.GeoPoint{Latitude: 1, Longitude: 1}
	if d := Evaluate(a, &pos); !d.Proceed {
		t.Fatal("no triggers should proceed")
	}
}

func TestEnterTrigger(t *testing.T) {
	t.Parallel()
	home := alarm.GeoPoint{Latitude: 52.52, Longitude: 13.405}
	a := alarm.AdvancedAlarm{
		ID: "a1",
		Triggers: []alarm.LocationTrigger{{
			Kind:     alarm.TriggerEnter,
			Location: home,
			RadiusM:  100,
			Action:   alarm.Action{Kind: alarm.ActionSendNotification, Message: "home"},
			Active:   true,
		}},
	}

	inside := moveNorth(home, 50)
	d := Evaluate(a, &inside)
	if !d.Proceed || d.Applied == nil || d.Applied.Kind != alarm.ActionSendNotification {
		t.Fatalf("expected matched enter trigger, got %+v", d)
	}

	outside := moveNorth(home, 150)
	d = Evaluate(a, &outside)
	if !d.Proceed || d.Applied != nil {
		t.Fatalf("expected no match outside radius, got %+v", d)
	}
}

func TestExitTriggerDisables(t *testing.T) {
	t.Parallel()
	work := alarm.GeoPoint{Latitude: 48.8566, Longitude: 2.3522}
	a := alarm.AdvancedAlarm{
		ID: "a1",
		Triggers: []alarm.LocationTrigger{{
			Kind:     alarm.TriggerLeaveWork,
			Location: work,
			RadiusM:  200,
			Action:   alarm.Action{Kind: alarm.ActionDisableAlarm},
			Active:   true,
		}},
	}

	away := moveNorth(work, 500)
	d := Evaluate(a, &away)
	if d.Proceed {
		t.Fatalf("disable_alarm on exit should block, got %+v", d)
	}

	near := moveNorth(work, 50)
	d = Evaluate(a, &near)
	if !d.Proceed || d.Applied != nil {
		t.Fatalf("still inside: exit trigger must not match, got %+v", d)
	}
}

func TestFirstMatchingTriggerWins(t *testing.T) {
	t.Parallel()
	p := alarm.GeoPoint{Latitude: 10, Longitude: 10}
	a := alarm.AdvancedAlarm{
		ID: "a1",
		Triggers: []alarm.LocationTrigger{
			{Kind: alarm.TriggerEnter, Location: p, RadiusM: 100,
				Action: alarm.Action{Kind: alarm.ActionAdjustTime, AdjustMinutes: 10}, Active: true},
			{Kind: alarm.TriggerEnter, Location: p, RadiusM: 100,
				Action: alarm.Action{Kind: alarm.ActionDisableAlarm}, Active: true},
		},
	}
	d := Evaluate(a, &p)
	if !d.Proceed || d.Applied == nil || d.Applied.Kind != alarm.ActionAdjustTime {
		t.Fatalf("expected first trigger to win, got %+v", d)
	}
}

func TestInactiveTriggersIgnored(t *testing.T) {
	t.Parallel()
	p := alarm.GeoPoint{Latitude: 10, Longitude: 10}
	a := alarm.AdvancedAlarm{
		ID: "a1",
		Triggers: []alarm.LocationTrigger{{
			Kind: alarm.TriggerEnter, Location: p, RadiusM: 100,
			Action: alarm.Action{Kind: alarm.ActionDisableAlarm}, Active: false,
		}},
	}
	if d := Evaluate(a, &p); !d.Proceed {
		t.Fatal("inactive trigger must not block")
	}
}
