package auth

import (
	"context"
	"sync"
	"time"

	"github.com/chevastian666/sistrau-sub000/internal/config"
)

// KeyStore resolves an API key to the device it credentials; empty means
// unknown key.
type KeyStore interface {
	DeviceByAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	deviceID  string
	expiresAt time.Time
}

// Authenticator validates device API keys in three levels: static config
// keys, an in-memory cache, then the shared key store.
type Authenticator struct {
	localCache sync.Map
	keys       KeyStore
	ttl        time.Duration
	staticKeys map[string]bool
}

func NewAuthenticator(cfg *config.Config, keys KeyStore) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		keys:       keys,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
	}
}

func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	if a.staticKeys[apiKey] {
		return true
	}

	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(apiKey)
	}

	deviceID, err := a.keys.DeviceByAPIKey(ctx, apiKey)
	if err != nil || deviceID == "" {
		return false
	}

	a.localCache.Store(apiKey, cacheEntry{
		deviceID:  deviceID,
		expiresAt: time.Now().Add(a.ttl),
	})

	return true
}
