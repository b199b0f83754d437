package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chevastian666/sistrau-sub000/internal/alerting"
	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/position"
	"github.com/chevastian666/sistrau-sub000/internal/resolver"
	"github.com/chevastian666/sistrau-sub000/internal/rules"
)

// GeofenceSource serves the active geofence set, refreshed out-of-band from
// the external registry.
type GeofenceSource interface {
	ActiveGeofences(ctx context.Context) []*domain.Geofence
}

// Processor is the per-fix processing chain run on a vehicle worker:
// resolve, evaluate, emit alerts, update the position cache, archive.
type Processor struct {
	resolver  *resolver.Resolver
	rules     *rules.Engine
	emitter   *alerting.Emitter
	positions position.Store
	geofences GeofenceSource
	archive   *ArchiveWriter // nil disables archiving
	log       *slog.Logger
}

func NewProcessor(
	res *resolver.Resolver,
	engine *rules.Engine,
	emitter *alerting.Emitter,
	positions position.Store,
	geofences GeofenceSource,
	archive *ArchiveWriter,
	log *slog.Logger,
) *Processor {
	return &Processor{
		resolver:  res,
		rules:     engine,
		emitter:   emitter,
		positions: positions,
		geofences: geofences,
		archive:   archive,
		log:       log,
	}
}

func (p *Processor) Process(ctx context.Context, fix *domain.GPSFix) {
	vehicle, trip, err := p.resolver.Resolve(ctx, fix)
	if err != nil {
		if errors.Is(err, resolver.ErrUnknownDevice) {
			p.log.Warn("fix dropped, unknown device", "device_id", fix.DeviceID)
		} else {
			p.log.Error("resolution failed", "device_id", fix.DeviceID, "error", err)
		}
		return
	}
	fix.VehicleID = vehicle.ID

	matches := p.rules.Evaluate(rules.Input{
		Fix:       fix,
		Vehicle:   vehicle,
		Trip:      trip,
		Geofences: p.geofences.ActiveGeofences(ctx),
	})
	if len(matches) > 0 {
		p.emitter.Emit(ctx, fix, trip, matches)
	}

	if err := p.positions.Update(ctx, &domain.VehiclePosition{
		VehicleID: vehicle.ID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		SpeedKmh:  fix.SpeedKmh,
		Timestamp: fix.Timestamp,
	}); err != nil {
		p.log.Error("position update failed", "vehicle_id", vehicle.ID, "error", err)
	}

	if p.archive != nil {
		p.archive.Enqueue(fix)
	}
}
