package alerting

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

type memRecords struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (r *memRecords) InsertAlert(_ context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *memRecords) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type stubNotifier struct {
	mu      sync.Mutex
	intents []domain.DeliveryIntent
	done    chan struct{}
}

func newStubNotifier(expected int) *stubNotifier {
	return &stubNotifier{done: make(chan struct{}, expected)}
}

func (n *stubNotifier) PublishAlertCreated(context.Context, *domain.Alert) error { return nil }

func (n *stubNotifier) PublishDeliveryIntent(_ context.Context, i domain.DeliveryIntent) error {
	n.mu.Lock()
	n.intents = append(n.intents, i)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func speedMatch() []domain.RuleMatch {
	return []domain.RuleMatch{{
		Type:         domain.AlertSpeedViolation,
		Severity:     domain.SeverityMedium,
		Title:        "Speed limit exceeded",
		TriggerValue: 105,
	}}
}

func testFix() *domain.GPSFix {
	return &domain.GPSFix{VehicleID: "veh-1", Latitude: -34.9, Longitude: -56.1, SpeedKmh: 105}
}

func TestEmitCreatesAlertAndIntent(t *testing.T) {
	records := &memRecords{}
	notifier := newStubNotifier(1)
	guard := NewMemoryCooldownGuard(5 * time.Minute)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := NewEmitter(records, guard, notifier, log)
	trip := &domain.Trip{ID: "trip-1"}

	created := e.Emit(context.Background(), testFix(), trip, speedMatch())
	if len(created) != 1 {
		t.Fatalf("expected one alert, got %d", len(created))
	}
	a := created[0]
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatalf("alert missing identity or timestamp: %+v", a)
	}
	if a.TripID != "trip-1" {
		t.Fatalf("trip id not carried: %+v", a)
	}
	if records.count() != 1 {
		t.Fatalf("alert not persisted")
	}

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery intent never published")
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.intents) != 1 || notifier.intents[0].AlertID != a.ID {
		t.Fatalf("unexpected intents: %v", notifier.intents)
	}
}

func TestCooldownSuppressesAndExpires(t *testing.T) {
	records := &memRecords{}
	notifier := newStubNotifier(2)
	clock := clockz.NewFakeClock()
	guard := NewMemoryCooldownGuard(5 * time.Minute).WithClock(clock)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := NewEmitter(records, guard, notifier, log).WithClock(clock)
	ctx := context.Background()

	// First match alerts, second within the window is suppressed.
	e.Emit(ctx, testFix(), nil, speedMatch())
	clock.Advance(1 * time.Minute)
	e.Emit(ctx, testFix(), nil, speedMatch())
	if records.count() != 1 {
		t.Fatalf("expected suppression inside cooldown, got %d alerts", records.count())
	}

	// Third match after the window alerts again.
	clock.Advance(5 * time.Minute)
	e.Emit(ctx, testFix(), nil, speedMatch())
	if records.count() != 2 {
		t.Fatalf("expected second alert after cooldown, got %d", records.count())
	}
}

func TestConcurrentMatchesOneWinner(t *testing.T) {
	// Several vehicle workers can hit the same (vehicle, type) pair at the
	// same instant; claiming the window is atomic, so exactly one alerts.
	records := &memRecords{}
	notifier := newStubNotifier(1)
	guard := NewMemoryCooldownGuard(5 * time.Minute)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmitter(records, guard, notifier, log)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit(ctx, testFix(), nil, speedMatch())
		}()
	}
	wg.Wait()

	if records.count() != 1 {
		t.Fatalf("expected exactly one winner inside the window, got %d alerts", records.count())
	}
}

func TestCooldownKeyedByVehicleAndType(t *testing.T) {
	records := &memRecords{}
	notifier := newStubNotifier(3)
	guard := NewMemoryCooldownGuard(5 * time.Minute)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmitter(records, guard, notifier, log)
	ctx := context.Background()

	e.Emit(ctx, testFix(), nil, speedMatch())

	// Different vehicle, same type: not suppressed.
	other := testFix()
	other.VehicleID = "veh-2"
	e.Emit(ctx, other, nil, speedMatch())

	// Same vehicle, different type: not suppressed.
	e.Emit(ctx, testFix(), nil, []domain.RuleMatch{{
		Type:     domain.AlertGeofenceViolation,
		Severity: domain.SeverityHigh,
	}})

	if records.count() != 3 {
		t.Fatalf("cooldown must be keyed by (vehicle, type), got %d alerts", records.count())
	}
}
