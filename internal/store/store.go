// Package store persists audit events and recovery strategy statistics in
// SQLite so breaker history and strategy success rates survive restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"toolgate/internal/logging"
)

// Store is a SQLite-backed audit sink and strategy statistics repository.
// It implements logging.AuditSink.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (or opens) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// SQLite only supports one writer; serialize through a single conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Store opened: %s", path)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		ts          INTEGER NOT NULL,
		event       TEXT NOT NULL,
		category    TEXT,
		severity    TEXT,
		request_id  TEXT,
		tool        TEXT,
		resource    TEXT,
		success     INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error       TEXT,
		message     TEXT,
		sanitized   INTEGER NOT NULL DEFAULT 0,
		fields      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_request ON audit_events(request_id);

	CREATE TABLE IF NOT EXISTS strategy_rates (
		key        TEXT PRIMARY KEY,
		rate       REAL NOT NULL,
		updated_at INTEGER NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to init store schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements logging.AuditSink. Write failures are logged and
// dropped; the audit file remains the primary record.
func (s *Store) Record(e logging.AuditEvent) {
	fields := ""
	if len(e.Fields) > 0 {
		if data, err := json.Marshal(e.Fields); err == nil {
			fields = string(data)
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_events
			(ts, event, category, severity, request_id, tool, resource, success, duration_ms, error, message, sanitized, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, string(e.EventType), e.Category, e.Severity, e.RequestID,
		e.Tool, e.Resource, boolInt(e.Success), e.DurationMs, e.Error, e.Message,
		boolInt(e.Sanitized), fields)
	if err != nil {
		logging.StoreDebug("Failed to record audit event: %v", err)
	}
}

// SaveStrategyRates upserts the full strategy rate snapshot.
func (s *Store) SaveStrategyRates(rates map[string]float64, now int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rates tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO strategy_rates (key, rate, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare rates upsert: %w", err)
	}
	defer stmt.Close()

	for key, rate := range rates {
		if _, err := stmt.Exec(key, rate, now); err != nil {
			return fmt.Errorf("failed to save rate %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// LoadStrategyRates reads every persisted strategy rate.
func (s *Store) LoadStrategyRates() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT key, rate FROM strategy_rates`)
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[string]float64)
	for rows.Next() {
		var key string
		var rate float64
		if err := rows.Scan(&key, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rates[key] = rate
	}
	return rates, rows.Err()
}

// RecentEvents returns the newest audit events, newest first.
func (s *Store) RecentEvents(limit int) ([]logging.AuditEvent, error) {
	rows, err := s.db.Query(`
		SELECT ts, event, category, severity, request_id, tool, resource, success, duration_ms, error, message, sanitized
		FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []logging.AuditEvent
	for rows.Next() {
		var e logging.AuditEvent
		var event string
		var success, sanitized int
		if err := rows.Scan(&e.Timestamp, &event, &e.Category, &e.Severity, &e.RequestID,
			&e.Tool, &e.Resource, &success, &e.DurationMs, &e.Error, &e.Message, &sanitized); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventType = logging.AuditEventType(event)
		e.Success = success == 1
		e.Sanitized = sanitized == 1
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByEvent returns event counts grouped by event type, for the stats
// surface.
func (s *Store) CountByEvent() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT event, COUNT(*) FROM audit_events GROUP BY event`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[event] = n
	}
	return counts, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
