// Package position holds the short-TTL latest-position cache. A vehicle
// that goes silent expires out of the cache, which downstream consumers
// read as stale/offline.
package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

// ErrNoPosition is the "no data" answer for a vehicle with no fresh fix.
// Absence is an expected state, not a failure.
var ErrNoPosition = errors.New("no recent position for vehicle")

const DefaultTTL = 5 * time.Minute

type Store interface {
	Update(ctx context.Context, pos *domain.VehiclePosition) error
	Latest(ctx context.Context, vehicleID string) (*domain.VehiclePosition, error)
}

// MemoryStore is the in-process implementation, used in tests and
// single-node deployments. Expiry is lazy: entries are judged against the
// TTL on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clockz.Clock
}

type memoryEntry struct {
	pos      domain.VehiclePosition
	storedAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   clockz.RealClock,
	}
}

func (s *MemoryStore) WithClock(clock clockz.Clock) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) Update(_ context.Context, pos *domain.VehiclePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[pos.VehicleID] = memoryEntry{pos: *pos, storedAt: s.clock.Now()}
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, vehicleID string) (*domain.VehiclePosition, error) {
	s.mu.RLock()
	entry, ok := s.entries[vehicleID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoPosition
	}
	if s.clock.Now().Sub(entry.storedAt) > s.ttl {
		s.mu.Lock()
		delete(s.entries, vehicleID)
		s.mu.Unlock()
		return nil, ErrNoPosition
	}
	pos := entry.pos
	return &pos, nil
}
