// Package resolver maps a device identifier to its vehicle and the
// vehicle's currently active trip, if any.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// ErrUnknownDevice means no vehicle is bound to the device. The fix is
// dropped and logged; processing of other devices continues.
var ErrUnknownDevice = errors.New("no vehicle bound to device")

type VehicleRegistry interface {
	VehicleByDevice(ctx context.Context, deviceID string) (*domain.Vehicle, error)
}

type TripRegistry interface {
	// TripsByVehicle returns all non-terminal trips for the vehicle.
	TripsByVehicle(ctx context.Context, vehicleID string) ([]*domain.Trip, error)
}

type Resolver struct {
	vehicles VehicleRegistry
	trips    TripRegistry
	log      *slog.Logger
}

func New(vehicles VehicleRegistry, trips TripRegistry, log *slog.Logger) *Resolver {
	return &Resolver{vehicles: vehicles, trips: trips, log: log}
}

// Resolve returns the vehicle bound to the fix's device and its active trip.
// A nil trip is a valid result: the caller routes such fixes to the
// unauthorized-movement check only.
//
// At most one in_progress trip should exist per vehicle. When the registry
// holds more than one, the most recently departed wins and the rest are
// logged as a data anomaly, never an error.
func (r *Resolver) Resolve(ctx context.Context, fix *domain.GPSFix) (*domain.Vehicle, *domain.Trip, error) {
	vehicle, err := r.vehicles.VehicleByDevice(ctx, fix.DeviceID)
	if err != nil {
		metrics.ResolutionMiss.Add(1)
		return nil, nil, err
	}
	if vehicle == nil {
		metrics.ResolutionMiss.Add(1)
		return nil, nil, ErrUnknownDevice
	}

	trips, err := r.trips.TripsByVehicle(ctx, vehicle.ID)
	if err != nil {
		// Best-available context: the vehicle resolved, so evaluation
		// proceeds without trip scope.
		metrics.ResolutionMiss.Add(1)
		r.log.Warn("trip lookup failed", "vehicle_id", vehicle.ID, "error", err)
		return vehicle, nil, nil
	}

	var active *domain.Trip
	count := 0
	for _, t := range trips {
		if t.Status != domain.TripInProgress {
			continue
		}
		count++
		if active == nil || t.ActualDeparture.After(active.ActualDeparture) {
			active = t
		}
	}
	if count > 1 {
		metrics.TripAnomalies.Add(1)
		r.log.Warn("multiple in_progress trips for vehicle",
			"vehicle_id", vehicle.ID, "count", count, "selected_trip", active.ID)
	}

	return vehicle, active, nil
}
