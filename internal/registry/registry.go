// Package registry caches reference data owned by external registries:
// geofences, trips with their planned routes, and device bindings. The
// cache refreshes on a schedule; the pipeline only ever reads it.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

type Source interface {
	LoadGeofences(ctx context.Context) ([]*domain.Geofence, error)
	LoadActiveTrips(ctx context.Context) (map[string][]*domain.Trip, error)
	LoadDeviceBindings(ctx context.Context) (map[string]*domain.Vehicle, error)
}

type Cache struct {
	mu        sync.RWMutex
	geofences []*domain.Geofence
	trips     map[string][]*domain.Trip
	devices   map[string]*domain.Vehicle

	source   Source
	interval time.Duration
	log      *slog.Logger
}

func NewCache(source Source, interval time.Duration, log *slog.Logger) *Cache {
	return &Cache{
		trips:    make(map[string][]*domain.Trip),
		devices:  make(map[string]*domain.Vehicle),
		source:   source,
		interval: interval,
		log:      log,
	}
}

// Refresh pulls all three data sets. A failure on one set keeps that set's
// previous snapshot; stale reference data beats none.
func (c *Cache) Refresh(ctx context.Context) error {
	var firstErr error

	geofences, err := c.source.LoadGeofences(ctx)
	if err != nil {
		firstErr = fmt.Errorf("geofences: %w", err)
	}
	trips, err := c.source.LoadActiveTrips(ctx)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("trips: %w", err)
	}
	devices, err := c.source.LoadDeviceBindings(ctx)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("devices: %w", err)
	}

	c.mu.Lock()
	if geofences != nil {
		c.geofences = geofences
	}
	if trips != nil {
		c.trips = trips
	}
	if devices != nil {
		c.devices = devices
	}
	c.mu.Unlock()

	return firstErr
}

// Run refreshes on the configured interval until the context ends.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn("registry refresh incomplete", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ActiveGeofences implements pipeline.GeofenceSource.
func (c *Cache) ActiveGeofences(_ context.Context) []*domain.Geofence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.geofences
}

// VehicleByDevice implements resolver.VehicleRegistry. A nil vehicle with a
// nil error means the device is unbound.
func (c *Cache) VehicleByDevice(_ context.Context, deviceID string) (*domain.Vehicle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices[deviceID], nil
}

// TripsByVehicle implements resolver.TripRegistry.
func (c *Cache) TripsByVehicle(_ context.Context, vehicleID string) ([]*domain.Trip, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trips[vehicleID], nil
}

// StaticSource serves fixed reference data, used in tests and local runs.
type StaticSource struct {
	Geofences []*domain.Geofence
	Trips     map[string][]*domain.Trip
	Devices   map[string]*domain.Vehicle
}

func (s *StaticSource) LoadGeofences(context.Context) ([]*domain.Geofence, error) {
	return s.Geofences, nil
}

func (s *StaticSource) LoadActiveTrips(context.Context) (map[string][]*domain.Trip, error) {
	return s.Trips, nil
}

func (s *StaticSource) LoadDeviceBindings(context.Context) (map[string]*domain.Vehicle, error) {
	return s.Devices, nil
}
