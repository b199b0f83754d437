// Package alerting turns rule matches into immutable alert records and
// hands them to the notification collaborator.
package alerting

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// CooldownGuard tracks the last alert time per (vehicleId, type) pair. The
// emitter may be invoked from multiple vehicle workers concurrently, so
// Acquire must be atomic: check the window and claim it in one step, with
// exactly one winner per window.
type CooldownGuard interface {
	Acquire(ctx context.Context, vehicleID string, t domain.AlertType) (bool, error)
}

// RecordStore is the append-only alert sink.
type RecordStore interface {
	InsertAlert(ctx context.Context, alert *domain.Alert) error
}

// Notifier publishes outbound events. Delivery is best-effort: a publish
// failure never rolls back the alert record and is retried downstream,
// never by re-evaluating the fix.
type Notifier interface {
	PublishAlertCreated(ctx context.Context, alert *domain.Alert) error
	PublishDeliveryIntent(ctx context.Context, intent domain.DeliveryIntent) error
}

type Emitter struct {
	records  RecordStore
	guard    CooldownGuard
	notifier Notifier
	channels []string
	clock    clockz.Clock
	timeout  time.Duration
	log      *slog.Logger
}

func NewEmitter(records RecordStore, guard CooldownGuard, notifier Notifier, log *slog.Logger) *Emitter {
	return &Emitter{
		records:  records,
		guard:    guard,
		notifier: notifier,
		channels: []string{"email", "push"},
		clock:    clockz.RealClock,
		timeout:  5 * time.Second,
		log:      log,
	}
}

func (e *Emitter) WithClock(clock clockz.Clock) *Emitter {
	e.clock = clock
	return e
}

// Emit converts each non-suppressed match into one Alert, persists it and
// publishes the delivery intent. Returns the alerts actually created.
func (e *Emitter) Emit(ctx context.Context, fix *domain.GPSFix, trip *domain.Trip, matches []domain.RuleMatch) []*domain.Alert {
	var created []*domain.Alert

	for _, m := range matches {
		acquired, err := e.guard.Acquire(ctx, fix.VehicleID, m.Type)
		if err != nil {
			e.log.Error("cooldown check failed",
				"vehicle_id", fix.VehicleID, "type", m.Type, "error", err)
			continue
		}
		if !acquired {
			metrics.AlertsSuppress.Add(1)
			continue
		}

		alert := &domain.Alert{
			ID:           uuid.New().String(),
			Type:         m.Type,
			Severity:     m.Severity,
			VehicleID:    fix.VehicleID,
			Title:        m.Title,
			Description:  m.Description,
			Latitude:     fix.Latitude,
			Longitude:    fix.Longitude,
			TriggerValue: m.TriggerValue,
			CreatedAt:    e.clock.Now().UTC(),
		}
		if trip != nil {
			alert.TripID = trip.ID
		}

		// The claimed window stands even if the insert fails: a broken
		// record store must not turn into an alert storm.
		if err := e.records.InsertAlert(ctx, alert); err != nil {
			e.log.Error("alert insert failed",
				"vehicle_id", fix.VehicleID, "type", m.Type, "error", err)
			continue
		}
		metrics.AlertsEmitted.Add(1)

		e.publish(alert)
		created = append(created, alert)
	}

	return created
}

// publish is fire-and-forget with respect to the ingestion path; only the
// external publish call carries a timeout.
func (e *Emitter) publish(alert *domain.Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.notifier.PublishAlertCreated(ctx, alert); err != nil {
			metrics.PublishFailures.Add(1)
			e.log.Warn("alert publish failed", "alert_id", alert.ID, "error", err)
		}
		intent := domain.DeliveryIntent{AlertID: alert.ID, Channels: e.channels}
		if err := e.notifier.PublishDeliveryIntent(ctx, intent); err != nil {
			metrics.PublishFailures.Add(1)
			e.log.Warn("delivery intent publish failed", "alert_id", alert.ID, "error", err)
		}
	}()
}
