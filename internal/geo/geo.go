// Package geo holds the pure geometric primitives used by rule evaluation.
// All distances are meters on a spherical earth model.
package geo

import (
	"math"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

const earthRadiusMeters = 6371000

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(a, b domain.LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceToPolyline returns the minimum distance in meters from p to any
// segment of the polyline, minimized over consecutive waypoint pairs. This
// is true segment distance, not nearest-vertex: a point alongside the middle
// of a long segment measures its perpendicular offset, not the distance to
// the segment's far-away endpoints. Segment projection happens in a local
// equirectangular plane around p, which is accurate to well under 1% at the
// few-kilometer scales the deviation threshold operates on.
//
// A single-waypoint route degenerates to point distance. An empty polyline
// returns +Inf so callers treat it as "no route to deviate from".
func DistanceToPolyline(p domain.LatLng, line []domain.LatLng) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return Haversine(p, line[0])
	}

	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		d := distanceToSegment(p, line[i], line[i+1])
		if d < min {
			min = d
		}
	}
	return min
}

// distanceToSegment projects p onto the segment [a,b] in a local plane
// centered on p and returns the haversine distance to the closest point.
func distanceToSegment(p, a, b domain.LatLng) float64 {
	cosLat := math.Cos(toRad(p.Lat))

	ax := (a.Lng - p.Lng) * cosLat
	ay := a.Lat - p.Lat
	bx := (b.Lng - p.Lng) * cosLat
	by := b.Lat - p.Lat

	dx := bx - ax
	dy := by - ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return Haversine(p, a)
	}

	// t is the projection of the origin (p) onto the segment, clamped to it.
	t := -(ax*dx + ay*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := domain.LatLng{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
	return Haversine(p, closest)
}

// PointInPolygon runs the even-odd ray-casting test over the polygon's
// vertex list, treating (lng, lat) as the 2D plane. Polygons with fewer
// than three vertices contain nothing.
func PointInPolygon(p domain.LatLng, polygon []domain.LatLng) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		vi, vj := polygon[i], polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lng < (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
		j = i
	}
	return inside
}
