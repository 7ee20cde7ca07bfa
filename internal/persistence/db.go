// Package persistence provides SQLite-based storage for exported runs and
// farm state.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/harvestor/internal/engine"
	"github.com/talgya/harvestor/internal/simlog"
)

// DB wraps a SQLite connection for farm persistence.
type DB struct {
	conn       *sqlx.DB
	eventsSeen int // simulation events already written by this process
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		clock REAL NOT NULL,
		records INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maturity_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		land_index INTEGER NOT NULL,
		tile_x REAL NOT NULL,
		tile_y REAL NOT NULL,
		crop_name TEXT NOT NULL,
		growth REAL NOT NULL,
		time_to_mature REAL NOT NULL,
		soil_quality REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tile_state (
		idx INTEGER PRIMARY KEY,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		crop TEXT NOT NULL,
		water_level REAL NOT NULL,
		growth REAL NOT NULL,
		time_to_mature REAL NOT NULL,
		last_quality REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		clock REAL NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS farm_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON maturity_records(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_clock ON events(clock);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one persisted log export.
type Run struct {
	ID        string  `db:"id" json:"id"`
	CreatedAt string  `db:"created_at" json:"created_at"`
	Clock     float64 `db:"clock" json:"clock"`
	Records   int     `db:"records" json:"records"`
}

// SaveRun stores one export batch under a new run ID and returns the ID.
func (db *DB) SaveRun(clock float64, recs []simlog.Record) (string, error) {
	id := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO runs (id, created_at, clock, records) VALUES (?, ?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), clock, len(recs))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Preparex(`INSERT INTO maturity_records
		(run_id, land_index, tile_x, tile_y, crop_name, growth, time_to_mature, soil_quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, r := range recs {
		_, err := stmt.Exec(id, r.LandIndex, r.TileX, r.TileY, r.CropName, r.Growth, r.TimeToMature, r.SoilQuality)
		if err != nil {
			return "", fmt.Errorf("insert record (%.2f, %.2f): %w", r.TileX, r.TileY, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, created_at, clock, records FROM runs ORDER BY rowid DESC LIMIT ?", limit)
	return runs, err
}

// LoadRecords returns every persisted maturity record, oldest first.
func (db *DB) LoadRecords() ([]simlog.Record, error) {
	var recs []simlog.Record
	err := db.conn.Select(&recs, `SELECT land_index, tile_x, tile_y, crop_name, growth, time_to_mature, soil_quality
		FROM maturity_records ORDER BY id`)
	return recs, err
}

// ClearRuns deletes every persisted run and its records.
func (db *DB) ClearRuns() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM maturity_records"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM runs"); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveTileStates writes the planted tiles (full replace).
func (db *DB) SaveTileStates(states []engine.TileState) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tile_state"); err != nil {
		return err
	}

	for _, s := range states {
		_, err := tx.NamedExec(`INSERT INTO tile_state
			(idx, pos_x, pos_y, crop, water_level, growth, time_to_mature, last_quality)
			VALUES (:idx, :pos_x, :pos_y, :crop, :water_level, :growth, :time_to_mature, :last_quality)`, s)
		if err != nil {
			return fmt.Errorf("insert tile %d: %w", s.Index, err)
		}
	}

	return tx.Commit()
}

// LoadTileStates returns the saved planted tiles in index order.
func (db *DB) LoadTileStates() ([]engine.TileState, error) {
	var states []engine.TileState
	err := db.conn.Select(&states, `SELECT idx, pos_x, pos_y, crop, water_level, growth, time_to_mature, last_quality
		FROM tile_state ORDER BY idx`)
	return states, err
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (clock, description, category) VALUES (?, ?, ?)",
			e.Clock, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first. An empty
// category matches every event.
func (db *DB) RecentEvents(limit int, category string) ([]engine.Event, error) {
	var events []engine.Event
	var err error
	if category == "" {
		err = db.conn.Select(&events,
			"SELECT clock, description, category FROM events ORDER BY id DESC LIMIT ?",
			limit,
		)
	} else {
		err = db.conn.Select(&events,
			"SELECT clock, description, category FROM events WHERE category = ? ORDER BY id DESC LIMIT ?",
			category, limit,
		)
	}
	return events, err
}

// SaveMeta stores a key-value pair in farm metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO farm_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM farm_meta WHERE key = ?", key)
	return value, err
}

// HasFarmState reports whether a previous run left a farm to resume.
func (db *DB) HasFarmState() bool {
	_, err := db.GetMeta("clock")
	return err == nil
}

// SaveFarmState performs a full save of the planted tiles, recent events and
// the simulation clock.
func (db *DB) SaveFarmState(sim *engine.Simulation) error {
	states := sim.TileStates()
	slog.Info("saving farm state", "planted", len(states))

	if err := db.SaveTileStates(states); err != nil {
		return fmt.Errorf("save tiles: %w", err)
	}
	if err := db.saveNewEvents(sim); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("clock", strconv.FormatFloat(sim.Clock(), 'g', -1, 64)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("farm state saved")
	return nil
}

// saveNewEvents stores the events recorded since the previous save.
func (db *DB) saveNewEvents(sim *engine.Simulation) error {
	total, events := sim.EventLog(db.eventsSeen)
	if err := db.SaveEvents(events); err != nil {
		return err
	}
	db.eventsSeen = total
	return nil
}

// LoadFarmState returns the saved tiles and clock. A database without saved
// state yields no tiles and a zero clock.
func (db *DB) LoadFarmState() ([]engine.TileState, float64, error) {
	v, err := db.GetMeta("clock")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	clock, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse saved clock %q: %w", v, err)
	}
	states, err := db.LoadTileStates()
	if err != nil {
		return nil, 0, err
	}
	return states, clock, nil
}
