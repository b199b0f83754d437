package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chevastian666/sistrau-sub000/internal/config"
	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

// PostgresStore is the append-only record store (fix archive, alerts,
// activities, finalized daily records) and the source the reference-data
// registries refresh from.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var fixColumns = []string{
	"timestamp",
	"received_at",
	"device_id",
	"vehicle_id",
	"latitude",
	"longitude",
	"speed_kmh",
	"heading_deg",
	"altitude_m",
	"satellites",
	"hdop",
}

// BatchInsertFixes archives accepted fixes with a single CopyFrom.
func (s *PostgresStore) BatchInsertFixes(ctx context.Context, fixes []*domain.GPSFix) error {
	if len(fixes) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(fixes))
	for i, f := range fixes {
		rows[i] = []interface{}{
			f.Timestamp,
			f.ReceivedAt,
			f.DeviceID,
			f.VehicleID,
			f.Latitude,
			f.Longitude,
			f.SpeedKmh,
			f.HeadingDeg,
			f.AltitudeM,
			f.Satellites,
			f.HDOP,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"vehicle_fixes"},
		fixColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(fixes), err)
	}

	return nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a *domain.Alert) error {
	query := `
		INSERT INTO alerts
			(id, alert_type, severity, vehicle_id, trip_id, title, description,
			 latitude, longitude, trigger_value, created_at)
		VALUES
			($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		string(a.Type),
		string(a.Severity),
		a.VehicleID,
		a.TripID,
		a.Title,
		a.Description,
		a.Latitude,
		a.Longitude,
		a.TriggerValue,
		a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) InsertActivity(ctx context.Context, act *domain.DriverActivity) error {
	query := `
		INSERT INTO driver_activities
			(id, driver_id, activity_type, start_time, end_time, vehicle_id)
		VALUES
			($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id) DO UPDATE SET end_time = EXCLUDED.end_time
	`
	_, err := s.pool.Exec(ctx, query,
		act.ID,
		act.DriverID,
		string(act.Type),
		act.StartTime,
		act.EndTime,
		act.VehicleID,
	)
	return err
}

// SaveDailyRecord hands a finalized day to the record store. Violations are
// stored as a JSON document alongside the totals.
func (s *PostgresStore) SaveDailyRecord(ctx context.Context, rec *domain.DailyRecord) error {
	violations, err := json.Marshal(rec.Compliance.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	query := `
		INSERT INTO daily_records
			(driver_id, record_date, total_driving_sec, total_work_sec,
			 total_rest_sec, total_break_sec, status, violations)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (driver_id, record_date) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		rec.DriverID,
		rec.Date,
		int64(rec.TotalDriving.Seconds()),
		int64(rec.TotalWork.Seconds()),
		int64(rec.TotalRest.Seconds()),
		int64(rec.TotalBreak.Seconds()),
		string(rec.Compliance.Status),
		violations,
	)
	return err
}

// LoadGeofences reads the active geofence set for the registry cache.
func (s *PostgresStore) LoadGeofences(ctx context.Context) ([]*domain.Geofence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, kind, polygon FROM geofences WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("load geofences: %w", err)
	}
	defer rows.Close()

	var out []*domain.Geofence
	for rows.Next() {
		var gf domain.Geofence
		var kind string
		var polygon []byte
		if err := rows.Scan(&gf.ID, &gf.Name, &kind, &polygon); err != nil {
			return nil, fmt.Errorf("scan geofence: %w", err)
		}
		gf.Kind = domain.GeofenceKind(kind)
		if err := json.Unmarshal(polygon, &gf.Polygon); err != nil {
			return nil, fmt.Errorf("decode polygon for %s: %w", gf.ID, err)
		}
		out = append(out, &gf)
	}
	return out, rows.Err()
}

// LoadActiveTrips reads non-terminal trips keyed by vehicle.
func (s *PostgresStore) LoadActiveTrips(ctx context.Context) (map[string][]*domain.Trip, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, vehicle_id, status, planned_route, actual_departure
		FROM trips
		WHERE status IN ('scheduled', 'in_progress')`)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*domain.Trip)
	for rows.Next() {
		var t domain.Trip
		var status string
		var route []byte
		if err := rows.Scan(&t.ID, &t.VehicleID, &status, &route, &t.ActualDeparture); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		t.Status = domain.TripStatus(status)
		if len(route) > 0 {
			if err := json.Unmarshal(route, &t.PlannedRoute); err != nil {
				return nil, fmt.Errorf("decode route for %s: %w", t.ID, err)
			}
		}
		out[t.VehicleID] = append(out[t.VehicleID], &t)
	}
	return out, rows.Err()
}

// LoadDeviceBindings reads the device to vehicle map.
func (s *PostgresStore) LoadDeviceBindings(ctx context.Context) (map[string]*domain.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.device_id, v.id, v.company_id, v.status
		FROM devices d
		JOIN vehicles v ON v.id = d.vehicle_id`)
	if err != nil {
		return nil, fmt.Errorf("load device bindings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Vehicle)
	for rows.Next() {
		var deviceID, status string
		var v domain.Vehicle
		if err := rows.Scan(&deviceID, &v.ID, &v.CompanyID, &status); err != nil {
			return nil, fmt.Errorf("scan device binding: %w", err)
		}
		v.Status = domain.VehicleStatus(status)
		out[deviceID] = &v
	}
	return out, rows.Err()
}
