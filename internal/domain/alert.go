package domain

import "time"

type AlertType string

const (
	AlertSpeedViolation       AlertType = "speed_violation"
	AlertRouteDeviation       AlertType = "route_deviation"
	AlertGeofenceViolation    AlertType = "geofence_violation"
	AlertUnauthorizedMovement AlertType = "unauthorized_movement"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// RuleMatch is the output of one rule firing against one fix. It carries
// everything the emitter needs to mint an Alert without re-reading the fix.
type RuleMatch struct {
	Type         AlertType
	Severity     AlertSeverity
	Title        string
	Description  string
	TriggerValue float64
}

// Alert is append-only: created exactly once per non-suppressed match and
// never mutated by the engine. Acknowledgement state belongs downstream.
type Alert struct {
	ID           string
	Type         AlertType
	Severity     AlertSeverity
	VehicleID    string
	TripID       string
	Title        string
	Description  string
	Latitude     float64
	Longitude    float64
	TriggerValue float64
	CreatedAt    time.Time
}

// DeliveryIntent asks the external notification collaborator to deliver an
// alert. Delivery is best-effort and retried over there, never here.
type DeliveryIntent struct {
	AlertID  string   `json:"alert_id"`
	Channels []string `json:"channels"`
}
