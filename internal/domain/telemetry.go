package domain

import "time"

// LatLng is a WGS84 coordinate pair. Geofence polygons and planned routes
// are ordered sequences of these.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GPSFix is one validated telemetry sample from a vehicle device.
// Immutable once it passes the validator.
type GPSFix struct {
	ReceivedAt time.Time

	Timestamp time.Time
	DeviceID  string
	VehicleID string

	Latitude  float64
	Longitude float64

	SpeedKmh   float64
	HeadingDeg float64

	// Optional device-quality fields, zero when the device does not report them.
	AltitudeM  float64
	Satellites int
	HDOP       float64

	RawPayload []byte
}

type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleInactive    VehicleStatus = "inactive"
)

// Vehicle is owned by the external fleet registry; the engine only reads it.
type Vehicle struct {
	ID        string
	CompanyID string
	Status    VehicleStatus
}

type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

type Trip struct {
	ID              string
	VehicleID       string
	Status          TripStatus
	PlannedRoute    []LatLng
	ActualDeparture time.Time
}

type GeofenceKind string

const (
	GeofenceRestricted GeofenceKind = "restricted"
	GeofenceAuthorized GeofenceKind = "authorized"
)

type Geofence struct {
	ID      string
	Name    string
	Polygon []LatLng
	Kind    GeofenceKind
}

// VehiclePosition is the short-TTL latest-known state kept per vehicle.
type VehiclePosition struct {
	VehicleID string
	Latitude  float64
	Longitude float64
	SpeedKmh  float64
	Timestamp time.Time
}
