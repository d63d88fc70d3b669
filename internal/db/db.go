package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transit-map/internal/transit"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

func Open(dsn string) (*sql.DB, error) {
	driver, source, err := Driver(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared across queries.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// LoadDataset reads stops, routes with their ordered stop lists, and vehicles.
// The queries take no parameters so they run unchanged on PostgreSQL and
// SQLite.
func LoadDataset(ctx context.Context, db *sql.DB) (*transit.Dataset, error) {
	stops, err := fetchStops(ctx, db)
	if err != nil {
		return nil, err
	}
	routes, err := fetchRoutes(ctx, db)
	if err != nil {
		return nil, err
	}
	vehicles, err := fetchVehicles(ctx, db)
	if err != nil {
		return nil, err
	}
	return &transit.Dataset{Stops: stops, Routes: routes, Vehicles: vehicles}, nil
}

func fetchStops(ctx context.Context, db *sql.DB) (map[string]transit.Stop, error) {
	rows, err := db.QueryContext(ctx, `SELECT stop_id, name, x, y FROM stops`)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	stops := make(map[string]transit.Stop)
	for rows.Next() {
		var s transit.Stop
		if err := rows.Scan(&s.ID, &s.Name, &s.X, &s.Y); err != nil {
			return nil, err
		}
		stops[s.ID] = s
	}
	return stops, rows.Err()
}

func fetchRoutes(ctx context.Context, db *sql.DB) ([]transit.Route, error) {
	rows, err := db.QueryContext(ctx, `SELECT route_id, name FROM routes ORDER BY sort_order, route_id`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var routes []transit.Route
	index := make(map[string]int)
	for rows.Next() {
		var r transit.Route
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		index[r.ID] = len(routes)
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	seqRows, err := db.QueryContext(ctx, `SELECT route_id, stop_id FROM route_stops ORDER BY route_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer seqRows.Close()
	for seqRows.Next() {
		var routeID, stopID string
		if err := seqRows.Scan(&routeID, &stopID); err != nil {
			return nil, err
		}
		i, ok := index[routeID]
		if !ok {
			return nil, fmt.Errorf("route_stops references unknown route %q", routeID)
		}
		routes[i].Stops = append(routes[i].Stops, stopID)
	}
	return routes, seqRows.Err()
}

func fetchVehicles(ctx context.Context, db *sql.DB) ([]transit.Vehicle, error) {
	q := `SELECT vehicle_id, route_id, x, y, current_stop_index, next_stop_index, speed, COALESCE(status, '')
          FROM vehicles ORDER BY sort_order, vehicle_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()
	var vehicles []transit.Vehicle
	for rows.Next() {
		var v transit.Vehicle
		if err := rows.Scan(&v.ID, &v.RouteID, &v.Position.X, &v.Position.Y, &v.CurrentStopIndex, &v.NextStopIndex, &v.Speed, &v.Status); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// Schema creates the tables LoadDataset reads. It is used to seed SQLite
// files and by tests.
const Schema = `
CREATE TABLE IF NOT EXISTS stops (
  stop_id TEXT PRIMARY KEY,
  name    TEXT NOT NULL,
  x       DOUBLE PRECISION NOT NULL,
  y       DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS routes (
  route_id   TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  sort_order INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS route_stops (
  route_id TEXT NOT NULL REFERENCES routes(route_id),
  seq      INTEGER NOT NULL,
  stop_id  TEXT NOT NULL REFERENCES stops(stop_id),
  PRIMARY KEY (route_id, seq)
);
CREATE TABLE IF NOT EXISTS vehicles (
  vehicle_id         TEXT PRIMARY KEY,
  route_id           TEXT NOT NULL REFERENCES routes(route_id),
  x                  DOUBLE PRECISION NOT NULL,
  y                  DOUBLE PRECISION NOT NULL,
  current_stop_index INTEGER NOT NULL,
  next_stop_index    INTEGER NOT NULL,
  speed              DOUBLE PRECISION NOT NULL,
  status             TEXT,
  sort_order         INTEGER NOT NULL DEFAULT 0
);
`
