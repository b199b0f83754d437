package rules

import (
	"io"
	"log/slog"
	"testing"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

func newEngine() *Engine {
	return NewEngine(DefaultLimits(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fixAt(speed float64) *domain.GPSFix {
	return &domain.GPSFix{
		VehicleID: "veh-1",
		Latitude:  -34.9011,
		Longitude: -56.1645,
		SpeedKmh:  speed,
	}
}

func activeTrip() *domain.Trip {
	return &domain.Trip{ID: "trip-1", VehicleID: "veh-1", Status: domain.TripInProgress}
}

func matchesOfType(matches []domain.RuleMatch, t domain.AlertType) []domain.RuleMatch {
	var out []domain.RuleMatch
	for _, m := range matches {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func TestSpeedRuleThresholds(t *testing.T) {
	e := newEngine()
	cases := []struct {
		speed    float64
		fires    bool
		severity domain.AlertSeverity
	}{
		{speed: 8, fires: false},
		{speed: 99, fires: false},  // under limit+tolerance
		{speed: 100, fires: false}, // exactly limit+tolerance does not fire
		{speed: 101, fires: true, severity: domain.SeverityMedium},
		{speed: 120, fires: true, severity: domain.SeverityMedium}, // high only above 120
		{speed: 121, fires: true, severity: domain.SeverityHigh},
	}

	for _, c := range cases {
		got := matchesOfType(e.Evaluate(Input{Fix: fixAt(c.speed), Trip: activeTrip()}), domain.AlertSpeedViolation)
		if !c.fires {
			if len(got) != 0 {
				t.Errorf("speed %.0f: expected no match, got %v", c.speed, got)
			}
			continue
		}
		if len(got) != 1 {
			t.Errorf("speed %.0f: expected exactly one match, got %d", c.speed, len(got))
			continue
		}
		if got[0].Severity != c.severity {
			t.Errorf("speed %.0f: severity %s, want %s", c.speed, got[0].Severity, c.severity)
		}
	}
}

func TestUnauthorizedMovementOnlyWithoutTrip(t *testing.T) {
	e := newEngine()

	// No trip, 8 km/h: exactly one unauthorized_movement match, severity high.
	got := e.Evaluate(Input{Fix: fixAt(8)})
	if len(got) != 1 || got[0].Type != domain.AlertUnauthorizedMovement {
		t.Fatalf("expected single unauthorized_movement match, got %v", got)
	}
	if got[0].Severity != domain.SeverityHigh {
		t.Fatalf("expected high severity, got %s", got[0].Severity)
	}

	// Same fix with an active trip: trip context suppresses the rule, and
	// 8 km/h is far under the speed limit.
	got = e.Evaluate(Input{Fix: fixAt(8), Trip: activeTrip()})
	if len(got) != 0 {
		t.Fatalf("expected no matches with trip context, got %v", got)
	}

	// Parked vehicle without a trip stays quiet.
	if got := e.Evaluate(Input{Fix: fixAt(3)}); len(got) != 0 {
		t.Fatalf("expected no match under 5 km/h, got %v", got)
	}
}

func TestRouteDeviation(t *testing.T) {
	e := newEngine()
	trip := activeTrip()
	trip.PlannedRoute = []domain.LatLng{
		{Lat: -34.90, Lng: -56.16},
		{Lat: -34.88, Lng: -56.08},
	}

	// ~0.1° of latitude north of the route is roughly 11 km off.
	far := &domain.GPSFix{VehicleID: "veh-1", Latitude: -34.79, Longitude: -56.12, SpeedKmh: 60}
	got := matchesOfType(e.Evaluate(Input{Fix: far, Trip: trip}), domain.AlertRouteDeviation)
	if len(got) != 1 {
		t.Fatalf("expected one route_deviation match, got %v", got)
	}
	if got[0].Severity != domain.SeverityMedium {
		t.Fatalf("expected medium severity, got %s", got[0].Severity)
	}
	if got[0].TriggerValue < 5000 {
		t.Fatalf("trigger value should carry the deviation distance, got %.0f", got[0].TriggerValue)
	}

	// On the route itself: no match.
	on := &domain.GPSFix{VehicleID: "veh-1", Latitude: -34.89, Longitude: -56.12, SpeedKmh: 60}
	if got := matchesOfType(e.Evaluate(Input{Fix: on, Trip: trip}), domain.AlertRouteDeviation); len(got) != 0 {
		t.Fatalf("expected no deviation on route, got %v", got)
	}
}

func TestRouteDeviationSkippedWithoutRoute(t *testing.T) {
	e := newEngine()
	got := matchesOfType(e.Evaluate(Input{Fix: fixAt(60), Trip: activeTrip()}), domain.AlertRouteDeviation)
	if len(got) != 0 {
		t.Fatalf("trip without planned route must not deviate, got %v", got)
	}
}

func TestGeofenceRule(t *testing.T) {
	e := newEngine()
	zone := &domain.Geofence{
		ID:   "gf-1",
		Name: "Port restricted area",
		Kind: domain.GeofenceRestricted,
		Polygon: []domain.LatLng{
			{Lat: -35.0, Lng: -56.5},
			{Lat: -35.0, Lng: -56.0},
			{Lat: -34.5, Lng: -56.0},
			{Lat: -34.5, Lng: -56.5},
		},
	}
	authorized := &domain.Geofence{
		ID:      "gf-2",
		Name:    "Depot",
		Kind:    domain.GeofenceAuthorized,
		Polygon: zone.Polygon,
	}

	inside := &domain.GPSFix{VehicleID: "veh-1", Latitude: -34.75, Longitude: -56.25, SpeedKmh: 40}
	got := matchesOfType(
		e.Evaluate(Input{Fix: inside, Trip: activeTrip(), Geofences: []*domain.Geofence{zone, authorized}}),
		domain.AlertGeofenceViolation)
	if len(got) != 1 {
		t.Fatalf("expected one geofence match (authorized zones ignored), got %v", got)
	}
	if got[0].Severity != domain.SeverityHigh {
		t.Fatalf("expected high severity, got %s", got[0].Severity)
	}

	outside := &domain.GPSFix{VehicleID: "veh-1", Latitude: -30.0, Longitude: -50.0, SpeedKmh: 40}
	if got := matchesOfType(e.Evaluate(Input{Fix: outside, Trip: activeTrip(), Geofences: []*domain.Geofence{zone}}), domain.AlertGeofenceViolation); len(got) != 0 {
		t.Fatalf("expected no match outside zone, got %v", got)
	}
}

func TestMultipleSimultaneousMatches(t *testing.T) {
	e := newEngine()
	trip := activeTrip()
	trip.PlannedRoute = []domain.LatLng{{Lat: -31.38, Lng: -57.96}, {Lat: -31.30, Lng: -57.90}}
	zone := &domain.Geofence{
		ID:   "gf-1",
		Name: "zone",
		Kind: domain.GeofenceRestricted,
		Polygon: []domain.LatLng{
			{Lat: -35.0, Lng: -56.5},
			{Lat: -35.0, Lng: -56.0},
			{Lat: -34.5, Lng: -56.0},
			{Lat: -34.5, Lng: -56.5},
		},
	}

	// Speeding, far off route, and inside a restricted zone all at once.
	fix := &domain.GPSFix{VehicleID: "veh-1", Latitude: -34.75, Longitude: -56.25, SpeedKmh: 130}
	got := e.Evaluate(Input{Fix: fix, Trip: trip, Geofences: []*domain.Geofence{zone}})
	if len(got) != 3 {
		t.Fatalf("expected three independent matches, got %d: %v", len(got), got)
	}
}

func TestMalformedReferenceDataDoesNotPoisonOtherRules(t *testing.T) {
	e := newEngine()
	trip := activeTrip()
	trip.PlannedRoute = []domain.LatLng{{Lat: -31.38, Lng: -57.96}, {Lat: -31.30, Lng: -57.90}}

	// A nil geofence in the registry panics inside the geofence rule; the
	// speed and deviation rules must still report.
	fix := &domain.GPSFix{VehicleID: "veh-1", Latitude: -34.75, Longitude: -56.25, SpeedKmh: 130}
	got := e.Evaluate(Input{Fix: fix, Trip: trip, Geofences: []*domain.Geofence{nil}})

	if len(matchesOfType(got, domain.AlertSpeedViolation)) != 1 {
		t.Fatalf("speed rule should survive a geofence failure, got %v", got)
	}
	if len(matchesOfType(got, domain.AlertRouteDeviation)) != 1 {
		t.Fatalf("deviation rule should survive a geofence failure, got %v", got)
	}
}
