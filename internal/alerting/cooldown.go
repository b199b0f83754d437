package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

// MemoryCooldownGuard keeps last-alert times in process memory. Suitable for
// a single engine instance; multi-instance deployments use the Redis-backed
// guard so suppression survives restarts and is shared across workers.
type MemoryCooldownGuard struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration
	clock    clockz.Clock
}

func NewMemoryCooldownGuard(cooldown time.Duration) *MemoryCooldownGuard {
	return &MemoryCooldownGuard{
		last:     make(map[string]time.Time),
		cooldown: cooldown,
		clock:    clockz.RealClock,
	}
}

func (g *MemoryCooldownGuard) WithClock(clock clockz.Clock) *MemoryCooldownGuard {
	g.clock = clock
	return g
}

func cooldownKey(vehicleID string, t domain.AlertType) string {
	return vehicleID + "|" + string(t)
}

// Acquire claims the cooldown window for the pair under one lock, so two
// concurrent matches for the same pair can never both win.
func (g *MemoryCooldownGuard) Acquire(_ context.Context, vehicleID string, t domain.AlertType) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := cooldownKey(vehicleID, t)
	now := g.clock.Now()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.cooldown {
		return false, nil
	}
	g.last[key] = now
	return true, nil
}
