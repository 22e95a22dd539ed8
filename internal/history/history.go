// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package history keeps a local sqlite log of scored segments, so the status
// page has data even while the broker is unreachable.
package history

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/road_qualifier/internal/quality"
	"github.com/relabs-tech/road_qualifier/internal/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the segment log.
type DB struct {
	*sql.DB
	deviceID string
}

var _ telemetry.Sink = (*DB)(nil)

// Open opens (creating if needed) the log at path and applies pending migrations.
func Open(path, deviceID string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: pragmas: %w", err)
	}

	h := &DB{DB: db, deviceID: deviceID}
	if err := h.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// MigrateUp applies every embedded migration not yet applied.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version, 0 when none.
func (db *DB) Version() (uint, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("history: schema version %d is dirty", v)
	}
	return v, nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("history: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("history: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("history: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("history: [migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Publish stores one segment. A zero ts is stored as 0.
func (db *DB) Publish(q quality.SegmentQuality, ts time.Time) error {
	r := telemetry.NewRecord(q, ts, db.deviceID)
	_, err := db.Exec(
		`INSERT INTO segments (device_id, latitude, longitude, quality, measured_at) VALUES (?, ?, ?, ?, ?)`,
		r.DeviceID, r.Lat, r.Lon, int(r.Bumpiness), int64(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Entry is one logged segment.
type Entry struct {
	ID int64 `json:"id"`
	telemetry.Record
}

// Recent returns up to limit segments, newest first.
func (db *DB) Recent(limit int) ([]Entry, error) {
	rows, err := db.Query(
		`SELECT segment_id, device_id, latitude, longitude, quality, measured_at
		   FROM segments ORDER BY segment_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			q        int
			measured int64
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Lat, &e.Lon, &q, &measured); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Bumpiness = uint8(q)
		e.Timestamp = uint64(measured)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary aggregates the whole log.
type Summary struct {
	Segments    int     `json:"segments"`
	MeanQuality float64 `json:"mean_quality"`
	MaxQuality  int     `json:"max_quality"`
}

func (db *DB) Summary() (Summary, error) {
	var (
		s    Summary
		mean sql.NullFloat64
		max  sql.NullInt64
	)
	err := db.QueryRow(`SELECT COUNT(*), AVG(quality), MAX(quality) FROM segments`).Scan(&s.Segments, &mean, &max)
	if err != nil {
		return Summary{}, fmt.Errorf("history: summary: %w", err)
	}
	s.MeanQuality = mean.Float64
	s.MaxQuality = int(max.Int64)
	return s, nil
}
