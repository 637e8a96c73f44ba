// Package store keeps named scene layouts (such as the scene-only sensor
// list) in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned by LoadLayout for unknown names.
var ErrNotFound = errors.New("layout not found")

// Store is a layout database.
type Store struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// Layout is one stored payload.
type Layout struct {
	Name    string
	Payload []byte
	SavedAt time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" keeps
// everything in memory.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if path != ":memory:" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		path = expanded
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps a single shared :memory: database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	logger.WithField("path", path).Debug("Layout store opened")
	return &Store{db: db, path: path, logger: logger}, nil
}

// SaveLayout creates or replaces the layout called name.
func (s *Store) SaveLayout(ctx context.Context, name string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO layouts (name, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		name, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save layout %s: %w", name, err)
	}
	s.logger.WithFields(logrus.Fields{"layout": name, "bytes": len(payload)}).Debug("Layout saved")
	return nil
}

// LoadLayout returns the layout called name, or ErrNotFound.
func (s *Store) LoadLayout(ctx context.Context, name string) (*Layout, error) {
	l := &Layout{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, saved_at FROM layouts WHERE name = ?`, name).Scan(&l.Payload, &l.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load layout %s: %w", name, err)
	}
	return l, nil
}

// DeleteLayout removes a layout. Unknown names are ignored.
func (s *Store) DeleteLayout(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layouts WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete layout %s: %w", name, err)
	}
	return nil
}

// Names lists stored layouts, most recent first.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM layouts ORDER BY saved_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("Closing layout store")
	return s.db.Close()
}
