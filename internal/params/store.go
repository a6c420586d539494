// Package params persists per-image placement parameters and resolves the
// final target point and opacity for a run from explicit flags, the cache
// and defaults.
package params

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rcrosshair/rcrosshair/internal/db"
)

const (
	appName    = "rcrosshair"
	dbFileName = "params.db"
)

// Entry is the cached record for one image path. All fields are optional;
// a missing row is represented by a nil *Entry, not a zero Entry.
type Entry struct {
	TargetX *int
	TargetY *int
	Opacity *float64
}

// Store is the file-backed parameter cache. Keys are canonicalized image
// paths; canonicalization is the caller's job, the store treats keys as
// opaque strings. Last writer wins; the tool is single-user by design.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database in the user's cache directory.
func Open() (*Store, error) {
	dbPath, err := xdg.CacheFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenAt(dbPath)
}

// OpenAt opens the cache at an explicit location. Tests use ":memory:".
func OpenAt(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}

	d, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(d); err != nil {
		d.Close()
		return nil, err
	}

	return &Store{db: d}, nil
}

func initSchema(d *sql.DB) error {
	_, err := d.Exec(`
		CREATE TABLE IF NOT EXISTS image_params (
			path TEXT PRIMARY KEY,
			target_x INTEGER,
			target_y INTEGER,
			opacity REAL
		);
	`)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached entry for path, or nil when none exists.
func (s *Store) Lookup(path string) (*Entry, error) {
	var x, y sql.NullInt64
	var o sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT target_x, target_y, opacity FROM image_params WHERE path = ?
	`, path).Scan(&x, &y, &o)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", path, err)
	}

	return &Entry{
		TargetX: db.NullInt64ToIntPtr(x),
		TargetY: db.NullInt64ToIntPtr(y),
		Opacity: db.NullFloat64ToPtr(o),
	}, nil
}

// Save upserts the entry for path, replacing any prior record whole.
func (s *Store) Save(path string, e Entry) error {
	err := db.WithTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO image_params (path, target_x, target_y, opacity)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				target_x = excluded.target_x,
				target_y = excluded.target_y,
				opacity = excluded.opacity
		`, path, intPtrValue(e.TargetX), intPtrValue(e.TargetY), floatPtrValue(e.Opacity))
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Clear removes the entry for path. The bool reports whether a record
// existed; clearing an absent key is a no-op, not an error.
func (s *Store) Clear(path string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM image_params WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("clear %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func intPtrValue(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func floatPtrValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
