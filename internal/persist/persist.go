// Package persist keeps user intent (visibility/opacity/name overrides
// and custom-layer tombstones) in a local SQLite file so a reattached
// engine can restore it. Everything here is best-effort: callers log
// failures and continue.
package persist

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Override is a persisted partial layer state; nil fields were never set
// by the user.
type Override struct {
	Visible *bool
	Opacity *float64
	Name    *string
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS layer_overrides (
			layer_id TEXT PRIMARY KEY,
			visible  INTEGER,
			opacity  REAL,
			name     TEXT
		);
		CREATE TABLE IF NOT EXISTS tombstones (
			layer_id TEXT PRIMARY KEY
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveOverride merges o into the stored override for id; nil fields leave
// the stored value untouched.
func (s *Store) SaveOverride(ctx context.Context, id string, o Override) error {
	if s == nil || s.db == nil {
		return nil
	}
	var visible any
	if o.Visible != nil {
		if *o.Visible {
			visible = int64(1)
		} else {
			visible = int64(0)
		}
	}
	var opacity any
	if o.Opacity != nil {
		opacity = *o.Opacity
	}
	var name any
	if o.Name != nil {
		name = *o.Name
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO layer_overrides (layer_id, visible, opacity, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (layer_id) DO UPDATE SET
			visible = COALESCE(excluded.visible, layer_overrides.visible),
			opacity = COALESCE(excluded.opacity, layer_overrides.opacity),
			name    = COALESCE(excluded.name, layer_overrides.name)
	`, id, visible, opacity, name)
	return err
}

// Overrides loads every stored override keyed by layer ID.
func (s *Store) Overrides(ctx context.Context) (map[string]Override, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT layer_id, visible, opacity, name FROM layer_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Override)
	for rows.Next() {
		var id string
		var visible sql.NullInt64
		var opacity sql.NullFloat64
		var name sql.NullString
		if err := rows.Scan(&id, &visible, &opacity, &name); err != nil {
			return nil, err
		}
		var o Override
		if visible.Valid {
			v := visible.Int64 != 0
			o.Visible = &v
		}
		if opacity.Valid {
			op := opacity.Float64
			o.Opacity = &op
		}
		if name.Valid {
			n := name.String
			o.Name = &n
		}
		out[id] = o
	}
	return out, rows.Err()
}

// DeleteOverride drops the stored override for id.
func (s *Store) DeleteOverride(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM layer_overrides WHERE layer_id = ?`, id)
	return err
}

func (s *Store) AddTombstone(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO tombstones (layer_id) VALUES (?)`, id)
	return err
}

func (s *Store) RemoveTombstone(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE layer_id = ?`, id)
	return err
}

func (s *Store) Tombstones(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT layer_id FROM tombstones ORDER BY layer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
