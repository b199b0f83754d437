// Package telemetry guards the ingestion boundary. Device firmware is
// untrusted input: a rejected fix is counted and logged but never raises
// an alert or touches the position store.
package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// RejectionError carries the reason a fix was dropped, for logging only.
// Devices cannot meaningfully retry a rejected fix, so nothing propagates
// back to the source.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "fix rejected: " + e.Reason
}

func reject(format string, args ...any) error {
	metrics.FixesRejected.Add(1)
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks structural and range constraints on a raw fix. On success
// the fix is stamped with ReceivedAt and immutable from here on.
func Validate(fix *domain.GPSFix, now time.Time) error {
	if fix.Timestamp.IsZero() {
		return reject("missing timestamp")
	}
	if fix.DeviceID == "" {
		return reject("missing device id")
	}
	if fix.Latitude < -90 || fix.Latitude > 90 {
		return reject("latitude out of range: %v", fix.Latitude)
	}
	if fix.Longitude < -180 || fix.Longitude > 180 {
		return reject("longitude out of range: %v", fix.Longitude)
	}
	if math.IsNaN(fix.SpeedKmh) || math.IsInf(fix.SpeedKmh, 0) || fix.SpeedKmh < 0 {
		return reject("invalid speed: %v", fix.SpeedKmh)
	}
	if math.IsNaN(fix.Latitude) || math.IsNaN(fix.Longitude) {
		return reject("non-numeric coordinates")
	}
	if math.IsNaN(fix.HeadingDeg) || fix.HeadingDeg < 0 || fix.HeadingDeg >= 360 {
		return reject("heading out of range: %v", fix.HeadingDeg)
	}

	fix.ReceivedAt = now
	return nil
}
