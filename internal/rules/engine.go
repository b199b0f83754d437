// Package rules applies the safety rule set to one resolved fix at a time.
// Evaluation is side-effect-free apart from reference-data reads, so it may
// run on any worker.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/geo"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// Limits holds the tunable rule thresholds. The speed tolerance absorbs
// GPS/CAN jitter; it is not a legal threshold.
type Limits struct {
	SpeedLimitKmh        float64
	SpeedToleranceKmh    float64
	HighSpeedKmh         float64
	RouteDeviationM      float64
	UnauthorizedSpeedKmh float64
}

func DefaultLimits() Limits {
	return Limits{
		SpeedLimitKmh:        90,
		SpeedToleranceKmh:    10,
		HighSpeedKmh:         120,
		RouteDeviationM:      5000,
		UnauthorizedSpeedKmh: 5,
	}
}

// Input is the fully resolved context for one fix. Trip is nil when the
// vehicle has no active trip; that routes the fix to the
// unauthorized-movement check only, since route and geofence context are
// trip-scoped.
type Input struct {
	Fix       *domain.GPSFix
	Vehicle   *domain.Vehicle
	Trip      *domain.Trip
	Geofences []*domain.Geofence
}

type Engine struct {
	limits Limits
	log    *slog.Logger
}

func NewEngine(limits Limits, log *slog.Logger) *Engine {
	return &Engine{limits: limits, log: log}
}

// Evaluate runs every applicable rule independently; multiple simultaneous
// matches each produce their own match record. A rule that panics on
// malformed reference data is skipped for this fix and the rest still run.
func (e *Engine) Evaluate(in Input) []domain.RuleMatch {
	var matches []domain.RuleMatch

	if in.Trip == nil {
		e.runRule("unauthorized_movement", in, &matches, e.unauthorizedMovement)
		return matches
	}

	e.runRule("speed", in, &matches, e.speed)
	e.runRule("route_deviation", in, &matches, e.routeDeviation)
	e.runRule("geofence", in, &matches, e.geofence)
	return matches
}

func (e *Engine) runRule(name string, in Input, out *[]domain.RuleMatch, rule func(Input) []domain.RuleMatch) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RuleFailures.Add(1)
			e.log.Error("rule evaluation failed",
				"rule", name, "vehicle_id", in.Fix.VehicleID, "panic", fmt.Sprint(r))
		}
	}()
	*out = append(*out, rule(in)...)
}

func (e *Engine) speed(in Input) []domain.RuleMatch {
	if in.Fix.SpeedKmh <= e.limits.SpeedLimitKmh+e.limits.SpeedToleranceKmh {
		return nil
	}
	severity := domain.SeverityMedium
	if in.Fix.SpeedKmh > e.limits.HighSpeedKmh {
		severity = domain.SeverityHigh
	}
	return []domain.RuleMatch{{
		Type:     domain.AlertSpeedViolation,
		Severity: severity,
		Title:    "Speed limit exceeded",
		Description: fmt.Sprintf("vehicle at %.1f km/h, limit %.0f km/h",
			in.Fix.SpeedKmh, e.limits.SpeedLimitKmh),
		TriggerValue: in.Fix.SpeedKmh,
	}}
}

func (e *Engine) routeDeviation(in Input) []domain.RuleMatch {
	if len(in.Trip.PlannedRoute) == 0 {
		return nil
	}
	p := domain.LatLng{Lat: in.Fix.Latitude, Lng: in.Fix.Longitude}
	dist := geo.DistanceToPolyline(p, in.Trip.PlannedRoute)
	if dist <= e.limits.RouteDeviationM {
		return nil
	}
	return []domain.RuleMatch{{
		Type:     domain.AlertRouteDeviation,
		Severity: domain.SeverityMedium,
		Title:    "Route deviation",
		Description: fmt.Sprintf("vehicle %.0f m off the planned route of trip %s",
			dist, in.Trip.ID),
		TriggerValue: dist,
	}}
}

func (e *Engine) geofence(in Input) []domain.RuleMatch {
	p := domain.LatLng{Lat: in.Fix.Latitude, Lng: in.Fix.Longitude}

	var matches []domain.RuleMatch
	for _, gf := range in.Geofences {
		if gf.Kind != domain.GeofenceRestricted {
			continue
		}
		if !geo.PointInPolygon(p, gf.Polygon) {
			continue
		}
		matches = append(matches, domain.RuleMatch{
			Type:        domain.AlertGeofenceViolation,
			Severity:    domain.SeverityHigh,
			Title:       "Restricted zone entered",
			Description: fmt.Sprintf("vehicle inside restricted zone %q", gf.Name),
		})
	}
	return matches
}

func (e *Engine) unauthorizedMovement(in Input) []domain.RuleMatch {
	if in.Fix.SpeedKmh <= e.limits.UnauthorizedSpeedKmh {
		return nil
	}
	return []domain.RuleMatch{{
		Type:     domain.AlertUnauthorizedMovement,
		Severity: domain.SeverityHigh,
		Title:    "Unauthorized movement",
		Description: fmt.Sprintf("vehicle moving at %.1f km/h with no active trip",
			in.Fix.SpeedKmh),
		TriggerValue: in.Fix.SpeedKmh,
	}}
}
