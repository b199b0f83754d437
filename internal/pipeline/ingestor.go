package pipeline

import (
	"context"
	"log/slog"

	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
	"github.com/chevastian666/sistrau-sub000/internal/resolver"
	"github.com/chevastian666/sistrau-sub000/internal/telemetry"
)

// Ingestor is the submitFix entry point. It validates the fix, routes it to
// its vehicle's worker and returns immediately; the error return exists for
// logging only, devices cannot meaningfully retry.
type Ingestor struct {
	vehicles   resolver.VehicleRegistry
	dispatcher *Dispatcher
	clock      clockz.Clock
	log        *slog.Logger
}

func NewIngestor(vehicles resolver.VehicleRegistry, dispatcher *Dispatcher, log *slog.Logger) *Ingestor {
	return &Ingestor{
		vehicles:   vehicles,
		dispatcher: dispatcher,
		clock:      clockz.RealClock,
		log:        log,
	}
}

func (i *Ingestor) WithClock(clock clockz.Clock) *Ingestor {
	i.clock = clock
	return i
}

func (i *Ingestor) SubmitFix(ctx context.Context, deviceID string, fix *domain.GPSFix) error {
	metrics.FixesReceived.Add(1)
	fix.DeviceID = deviceID

	if err := telemetry.Validate(fix, i.clock.Now()); err != nil {
		i.log.Debug("fix rejected", "device_id", deviceID, "reason", err)
		return err
	}

	// The worker queue is keyed by vehicle id, so the binding is resolved
	// before enqueueing; full trip resolution stays on the worker where it
	// is serialized per vehicle.
	vehicle, err := i.vehicles.VehicleByDevice(ctx, deviceID)
	if err != nil {
		metrics.ResolutionMiss.Add(1)
		i.log.Error("vehicle lookup failed", "device_id", deviceID, "error", err)
		return err
	}
	if vehicle == nil {
		metrics.ResolutionMiss.Add(1)
		i.log.Warn("fix dropped, unknown device", "device_id", deviceID)
		return resolver.ErrUnknownDevice
	}
	fix.VehicleID = vehicle.ID

	i.dispatcher.Dispatch(fix)
	return nil
}
