package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "engine_user"),
		dbGetEnv("DB_PASSWORD", "engine_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "telemetry_engine"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_extensions(ctx, conn)
	step2_reference_tables(ctx, conn)
	step3_fixes_table(ctx, conn)
	step4_alerts_table(ctx, conn)
	step5_compliance_tables(ctx, conn)
	step6_indexes(ctx, conn)
	step7_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for the vehicle_fixes hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2 — Reference tables (vehicles, devices, trips, geofences)
// ─────────────────────────────────────────────────────────────
func step2_reference_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: Reference tables ────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicles (
			id          TEXT PRIMARY KEY,
			company_id  TEXT NOT NULL,

			-- Must exactly match domain.VehicleStatus constants
			status      TEXT NOT NULL DEFAULT 'active',

			CONSTRAINT chk_vehicle_status CHECK (
				status IN ('active', 'maintenance', 'inactive')
			)
		);
	`, "vehicles table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS devices (
			device_id   TEXT PRIMARY KEY,
			vehicle_id  TEXT NOT NULL REFERENCES vehicles(id)
		);
	`, "devices table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS trips (
			id                TEXT PRIMARY KEY,
			vehicle_id        TEXT NOT NULL REFERENCES vehicles(id),

			-- Must exactly match domain.TripStatus constants
			status            TEXT NOT NULL DEFAULT 'scheduled',

			-- Planned route as a JSON array of {lat, lng} waypoints,
			-- decoded by the registry cache on refresh
			planned_route     JSONB,

			actual_departure  TIMESTAMPTZ,

			CONSTRAINT chk_trip_status CHECK (
				status IN ('scheduled', 'in_progress', 'completed', 'cancelled')
			)
		);
	`, "trips table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS geofences (
			id       TEXT PRIMARY KEY,
			name     TEXT NOT NULL,

			-- Must exactly match domain.GeofenceKind constants
			kind     TEXT NOT NULL,

			-- Polygon as a JSON array of {lat, lng} vertices
			polygon  JSONB NOT NULL,

			active   BOOLEAN NOT NULL DEFAULT true,

			CONSTRAINT chk_geofence_kind CHECK (
				kind IN ('restricted', 'authorized')
			)
		);
	`, "geofences table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — vehicle_fixes table (fix archive)
// ─────────────────────────────────────────────────────────────
func step3_fixes_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: vehicle_fixes table ─────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_fixes (

			-- Device clock — TimescaleDB partitions data by this
			timestamp    TIMESTAMPTZ      NOT NULL,

			-- Server receipt time — separate from device clock.
			-- Device clocks drift; received_at is always accurate
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- Identity
			device_id    TEXT             NOT NULL,
			vehicle_id   TEXT             NOT NULL,

			-- GPS
			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,
			speed_kmh    DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading_deg  DOUBLE PRECISION NOT NULL DEFAULT 0,
			altitude_m   DOUBLE PRECISION NOT NULL DEFAULT 0,

			-- Fix quality
			satellites   INTEGER          NOT NULL DEFAULT 0,
			hdop         DOUBLE PRECISION NOT NULL DEFAULT 0
		);
	`, "vehicle_fixes table created")

	// Convert to TimescaleDB hypertable
	// Queries on recent data only touch the latest chunk — very fast
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'vehicle_fixes',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "vehicle_fixes converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — alerts table
// ─────────────────────────────────────────────────────────────
func step4_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: alerts table ────────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS alerts (

			-- UUID assigned by the emitter, so re-delivered alerts
			-- hit ON CONFLICT DO NOTHING instead of duplicating
			id             TEXT             PRIMARY KEY,

			-- Must exactly match domain.AlertType constants
			alert_type     TEXT             NOT NULL,

			-- Must exactly match domain.AlertSeverity constants
			severity       TEXT             NOT NULL,

			vehicle_id     TEXT             NOT NULL,
			trip_id        TEXT,

			title          TEXT             NOT NULL,
			description    TEXT             NOT NULL,

			-- Where the vehicle was when the rule matched
			latitude       DOUBLE PRECISION NOT NULL,
			longitude      DOUBLE PRECISION NOT NULL,

			-- The measured value that triggered the rule
			-- e.g. speed was 127.5 km/h, or deviation was 6200 m
			trigger_value  DOUBLE PRECISION NOT NULL,

			created_at     TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_alert_type CHECK (
				alert_type IN (
					'speed_violation', 'route_deviation',
					'geofence_violation', 'unauthorized_movement'
				)
			),

			CONSTRAINT chk_severity CHECK (
				severity IN ('low', 'medium', 'high', 'critical')
			)
		);
	`, "alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — driver_activities + daily_records tables
// ─────────────────────────────────────────────────────────────
func step5_compliance_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Compliance tables ───────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS driver_activities (
			id             TEXT        PRIMARY KEY,
			driver_id      TEXT        NOT NULL,

			-- Must exactly match domain.ActivityType constants
			activity_type  TEXT        NOT NULL,

			start_time     TIMESTAMPTZ NOT NULL,

			-- NULL while the activity is still open
			end_time       TIMESTAMPTZ,

			vehicle_id     TEXT,

			CONSTRAINT chk_activity_type CHECK (
				activity_type IN ('driving', 'other_work', 'break', 'daily_rest')
			)
		);
	`, "driver_activities table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS daily_records (
			driver_id          TEXT   NOT NULL,

			-- Calendar day as YYYY-MM-DD, matching the ledger's day keys
			record_date        TEXT   NOT NULL,

			total_driving_sec  BIGINT NOT NULL DEFAULT 0,
			total_work_sec     BIGINT NOT NULL DEFAULT 0,
			total_rest_sec     BIGINT NOT NULL DEFAULT 0,
			total_break_sec    BIGINT NOT NULL DEFAULT 0,

			-- Must exactly match domain.ComplianceStatus constants
			status             TEXT   NOT NULL,

			-- Violation list as a JSON document — written once at
			-- finalization, never updated
			violations         JSONB,

			PRIMARY KEY (driver_id, record_date),

			CONSTRAINT chk_compliance_status CHECK (
				status IN ('compliant', 'violation')
			)
		);
	`, "daily_records table created")
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Indexes
// ─────────────────────────────────────────────────────────────
func step6_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_fixes_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_fixes_vehicle_time
				  ON vehicle_fixes (vehicle_id, timestamp DESC);`,
			why: "query: fix history for one vehicle",
		},
		{
			name: "idx_alerts_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_vehicle
				  ON alerts (vehicle_id, created_at DESC);`,
			why: "query: alerts for one vehicle",
		},
		{
			name: "idx_alerts_type",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_type
				  ON alerts (alert_type, created_at DESC);`,
			why: "query: all alerts of one type",
		},
		{
			name: "idx_activities_driver_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_activities_driver_time
				  ON driver_activities (driver_id, start_time DESC);`,
			why: "query: activity history for one driver",
		},
		{
			name: "idx_activities_open",
			sql: `CREATE INDEX IF NOT EXISTS idx_activities_open
				  ON driver_activities (driver_id)
				  WHERE end_time IS NULL;`,
			why: "query: open activities only (partial index)",
		},
		{
			name: "idx_trips_vehicle_status",
			sql: `CREATE INDEX IF NOT EXISTS idx_trips_vehicle_status
				  ON trips (vehicle_id, status);`,
			why: "query: active trips per vehicle (registry refresh)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 7 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step7_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 7: Verification ────────────────────────")

	tables := []string{
		"vehicles", "devices", "trips", "geofences",
		"vehicle_fixes", "alerts", "driver_activities", "daily_records",
	}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	// Check hypertable
	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'vehicle_fixes'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("vehicle_fixes is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)

	// Check indexes
	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN (
			'vehicle_fixes', 'alerts', 'driver_activities', 'trips'
		)
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
