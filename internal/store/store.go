// Package store provides SQLite persistence for scan history and captures.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a scan id has no row.
var ErrNotFound = errors.New("store: not found")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Scan is one scan job row.
type Scan struct {
	ID         string
	State      string // "running", "completed", "cancelled", "failed"
	Total      int
	Scanned    int
	Found      int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Service is one discovered endpoint of a scan.
type Service struct {
	ScanID  string
	Address string
	Port    int
	Hint    string
	FoundAt time.Time
}

// Capture is one saved still.
type Capture struct {
	Path    string
	URL     string
	Width   int
	Height  int
	Format  string
	SavedAt time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		scanned INTEGER NOT NULL DEFAULT 0,
		found INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS services (
		scan_id TEXT NOT NULL,
		address TEXT NOT NULL,
		port INTEGER NOT NULL,
		hint TEXT NOT NULL DEFAULT '',
		found_at DATETIME NOT NULL,
		PRIMARY KEY (scan_id, address, port)
	);

	CREATE TABLE IF NOT EXISTS captures (
		path TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_captures_saved ON captures(saved_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveScan inserts or updates a scan row. A row that already reached a
// terminal state is left unchanged.
func (s *Store) SaveScan(sc Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO scans (id, state, total, scanned, found, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			total = excluded.total,
			scanned = excluded.scanned,
			found = excluded.found,
			error = excluded.error,
			finished_at = excluded.finished_at
		WHERE scans.state = 'running'
	`, sc.ID, sc.State, sc.Total, sc.Scanned, sc.Found, sc.Error, sc.StartedAt, nullTime(sc.FinishedAt))
	if err != nil {
		return fmt.Errorf("save scan %s: %w", sc.ID, err)
	}
	return nil
}

// SaveService records a discovered service. Returns false if the service was
// already recorded for the scan.
func (s *Store) SaveService(svc Service) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO services (scan_id, address, port, hint, found_at)
		VALUES (?, ?, ?, ?, ?)
	`, svc.ScanID, svc.Address, svc.Port, svc.Hint, svc.FoundAt)
	if err != nil {
		return false, fmt.Errorf("save service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveCapture records a saved still.
func (s *Store) SaveCapture(c Capture) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO captures (path, url, width, height, format, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.Path, c.URL, c.Width, c.Height, c.Format, c.SavedAt)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	return nil
}

// GetScan returns one scan by id.
func (s *Store) GetScan(id string) (Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scans, err := s.queryScans(`
		SELECT id, state, total, scanned, found, error, started_at, finished_at
		FROM scans WHERE id = ?
	`, id)
	if err != nil {
		return Scan{}, err
	}
	if len(scans) == 0 {
		return Scan{}, fmt.Errorf("%w: scan %s", ErrNotFound, id)
	}
	return scans[0], nil
}

// RecentScans returns up to limit scans, newest first.
func (s *Store) RecentScans(limit int) ([]Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryScans(`
		SELECT id, state, total, scanned, found, error, started_at, finished_at
		FROM scans
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
}

// ServicesForScan returns a scan's services in discovery order.
func (s *Store) ServicesForScan(scanID string) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT scan_id, address, port, hint, found_at
		FROM services
		WHERE scan_id = ?
		ORDER BY rowid
	`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ScanID, &svc.Address, &svc.Port, &svc.Hint, &svc.FoundAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// RecentCaptures returns up to limit captures, newest first.
func (s *Store) RecentCaptures(limit int) ([]Capture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT path, url, width, height, format, saved_at
		FROM captures
		ORDER BY saved_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.Path, &c.URL, &c.Width, &c.Height, &c.Format, &c.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// queryScans runs a scans query. Caller must hold s.mu.
func (s *Store) queryScans(query string, args ...any) ([]Scan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var sc Scan
		var finished sql.NullTime
		if err := rows.Scan(&sc.ID, &sc.State, &sc.Total, &sc.Scanned, &sc.Found, &sc.Error, &sc.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			sc.FinishedAt = finished.Time
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
