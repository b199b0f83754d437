package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chevastian666/sistrau-sub000/internal/config"
	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/position"
)

// RedisStore backs the position cache, the alert cooldown guard and the
// device credential lookup.
type RedisStore struct {
	client      *redis.Client
	positionTTL time.Duration
	cooldown    time.Duration
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:      client,
		positionTTL: time.Duration(cfg.PositionTTLSeconds) * time.Second,
		cooldown:    time.Duration(cfg.AlertCooldownMinutes) * time.Minute,
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func positionKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:position", vehicleID)
}

// Update implements position.Store. The hash expires after the position TTL
// so a silent vehicle reads as stale, and the geo set keeps a fleet-wide
// "where is everyone" index.
func (r *RedisStore) Update(ctx context.Context, pos *domain.VehiclePosition) error {
	data := map[string]interface{}{
		"vehicle_id": pos.VehicleID,
		"lat":        pos.Latitude,
		"lng":        pos.Longitude,
		"speed_kmh":  pos.SpeedKmh,
		"timestamp":  pos.Timestamp.Unix(),
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, positionKey(pos.VehicleID), data)
	pipe.Expire(ctx, positionKey(pos.VehicleID), r.positionTTL)
	pipe.GeoAdd(ctx, "vehicles:geo", &redis.GeoLocation{
		Name:      pos.VehicleID,
		Longitude: pos.Longitude,
		Latitude:  pos.Latitude,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis position update failed: %w", err)
	}
	return nil
}

// Latest implements position.Store; an expired or missing hash is
// position.ErrNoPosition, not a failure.
func (r *RedisStore) Latest(ctx context.Context, vehicleID string) (*domain.VehiclePosition, error) {
	vals, err := r.client.HGetAll(ctx, positionKey(vehicleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis position read failed: %w", err)
	}
	if len(vals) == 0 {
		return nil, position.ErrNoPosition
	}

	pos := &domain.VehiclePosition{VehicleID: vehicleID}
	pos.Latitude, _ = strconv.ParseFloat(vals["lat"], 64)
	pos.Longitude, _ = strconv.ParseFloat(vals["lng"], 64)
	pos.SpeedKmh, _ = strconv.ParseFloat(vals["speed_kmh"], 64)
	if ts, err := strconv.ParseInt(vals["timestamp"], 10, 64); err == nil {
		pos.Timestamp = time.Unix(ts, 0).UTC()
	}
	return pos, nil
}

func cooldownKey(vehicleID string, t domain.AlertType) string {
	return fmt.Sprintf("cooldown:%s:%s", vehicleID, string(t))
}

// Acquire implements alerting.CooldownGuard across engine instances. SET NX
// makes the check-and-claim a single Redis operation, so concurrent matches
// for the same (vehicle, type) pair race to exactly one winner.
func (r *RedisStore) Acquire(ctx context.Context, vehicleID string, t domain.AlertType) (bool, error) {
	ok, err := r.client.SetNX(ctx, cooldownKey(vehicleID, t), "1", r.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown acquire failed: %w", err)
	}
	return ok, nil
}

// DeviceByAPIKey returns the device id bound to an API key, empty when the
// key is unknown.
func (r *RedisStore) DeviceByAPIKey(ctx context.Context, apiKey string) (string, error) {
	val, err := r.client.Get(ctx, fmt.Sprintf("device:auth:%s", apiKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}
