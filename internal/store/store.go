// Package store keeps named snapshots of project documents in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ivlev/nlecore/internal/project"
	"github.com/ivlev/nlecore/internal/timeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot describes a stored project document.
type Snapshot struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Duration  int64     `json:"duration"`
	Clips     int       `json:"clips"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New opens (creating if needed) the database at dbPath and applies pending
// migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var exists int
	if err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// Save stores the persistent part of state as a new snapshot of projectName.
func (s *Store) Save(ctx context.Context, projectName string, state *timeline.State) (Snapshot, error) {
	doc, err := project.Export(state)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	clips := 0
	for _, t := range state.Tracks {
		clips += len(t.Clips)
	}
	snap := Snapshot{
		ID:        uuid.NewString(),
		Project:   projectName,
		Duration:  state.Duration,
		Clips:     clips,
		CreatedAt: s.now().UTC(),
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO snapshots (id, project, duration, clips, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Project, snap.Duration, snap.Clips, doc, snap.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "project_id", projectName, "snapshot_id", snap.ID, "bytes", len(doc))
	return snap, nil
}

// Get returns a snapshot and its decoded document.
func (s *Store) Get(ctx context.Context, id string) (Snapshot, timeline.State, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, project, duration, clips, created_at, document
		FROM snapshots WHERE id = ?
	`, id)
	return scanDocument(row)
}

// Latest returns the most recent snapshot of projectName.
func (s *Store) Latest(ctx context.Context, projectName string) (Snapshot, timeline.State, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, project, duration, clips, created_at, document
		FROM snapshots WHERE project = ?
		ORDER BY rowid DESC LIMIT 1
	`, projectName)
	return scanDocument(row)
}

// List returns the snapshots of projectName, newest first. An empty name
// lists every project.
func (s *Store) List(ctx context.Context, projectName string) ([]Snapshot, error) {
	query := `SELECT id, project, duration, clips, created_at FROM snapshots`
	var args []any
	if projectName != "" {
		query += ` WHERE project = ?`
		args = append(args, projectName)
	}
	query += ` ORDER BY rowid DESC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var createdAt string
		if err := rows.Scan(&snap.ID, &snap.Project, &snap.Duration, &snap.Clips, &createdAt); err != nil {
			return nil, err
		}
		snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func scanDocument(row *sql.Row) (Snapshot, timeline.State, error) {
	var snap Snapshot
	var createdAt string
	var doc []byte
	err := row.Scan(&snap.ID, &snap.Project, &snap.Duration, &snap.Clips, &createdAt, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, timeline.State{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, timeline.State{}, err
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	state, err := project.Import(doc)
	if err != nil {
		return Snapshot{}, timeline.State{}, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return snap, state, nil
}
