// Package state persists sync snapshots in an embedded SQLite database.
//
// A snapshot is the merge base of the next sync: every file below a base
// path as last seen on both sides, with its remote blob id, plus the commit
// id and time of that sync. Snapshots are keyed by profile and base path and
// are always replaced whole inside one transaction.
//
// Schema:
//   - snapshots:      one row per (profile, base_path), commit id and time
//   - snapshot_files: the files of each snapshot
//   - settings:       process-wide values such as the replica id
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gitmarks/gitmarks/internal/filemap"
)

// Key identifies one synchronized path set.
type Key struct {
	Profile  string
	BasePath string
}

func (k Key) String() string {
	return k.Profile + ":" + k.BasePath
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path and initializes the schema.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.conn.ExecContext(ctx, p); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close state database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		profile TEXT NOT NULL,
		base_path TEXT NOT NULL,
		commit_id TEXT NOT NULL DEFAULT '',
		synced_at TEXT NOT NULL,
		PRIMARY KEY (profile, base_path)
	);

	CREATE TABLE IF NOT EXISTS snapshot_files (
		profile TEXT NOT NULL,
		base_path TEXT NOT NULL,
		path TEXT NOT NULL,
		object_id TEXT,  -- NULL when the path was not present remotely
		content TEXT NOT NULL,
		PRIMARY KEY (profile, base_path, path),
		FOREIGN KEY (profile, base_path)
		    REFERENCES snapshots(profile, base_path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot for key, or nil if none was saved.
func (s *Store) LoadSnapshot(ctx context.Context, key Key) (*filemap.Snapshot, error) {
	var commitID, syncedAt string
	err := s.conn.QueryRowContext(ctx,
		`SELECT commit_id, synced_at FROM snapshots WHERE profile = ? AND base_path = ?`,
		key.Profile, key.BasePath,
	).Scan(&commitID, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}

	snap := &filemap.Snapshot{
		Entries:  make(map[string]filemap.Entry),
		CommitID: commitID,
	}
	if t, err := time.Parse(time.RFC3339Nano, syncedAt); err == nil {
		snap.SyncedAt = t
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT path, object_id, content FROM snapshot_files WHERE profile = ? AND base_path = ?`,
		key.Profile, key.BasePath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot files %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path     string
			objectID sql.NullString
			content  string
		)
		if err := rows.Scan(&path, &objectID, &content); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot file: %w", err)
		}
		snap.Entries[path] = filemap.Entry{ObjectID: objectID.String, Content: content}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot files: %w", err)
	}
	return snap, nil
}

// SaveSnapshot replaces the snapshot for key.
func (s *Store) SaveSnapshot(ctx context.Context, key Key, snap *filemap.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	syncedAt := snap.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE profile = ? AND base_path = ?`,
		key.Profile, key.BasePath,
	); err != nil {
		return fmt.Errorf("failed to clear snapshot %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (profile, base_path, commit_id, synced_at) VALUES (?, ?, ?, ?)`,
		key.Profile, key.BasePath, snap.CommitID, syncedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_files (profile, base_path, path, object_id, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for path, e := range snap.Entries {
		objectID := sql.NullString{String: e.ObjectID, Valid: e.ObjectID != ""}
		if _, err := stmt.ExecContext(ctx, key.Profile, key.BasePath, path, objectID, e.Content); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", key, err)
	}
	return nil
}

// TouchSyncTime records a sync that changed nothing.
func (s *Store) TouchSyncTime(ctx context.Context, key Key, at time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE snapshots SET synced_at = ? WHERE profile = ? AND base_path = ?`,
		at.UTC().Format(time.RFC3339Nano), key.Profile, key.BasePath,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync time %s: %w", key, err)
	}
	return nil
}

// DeleteSnapshot forgets the merge base for key, so the next sync runs the
// first-sync logic again.
func (s *Store) DeleteSnapshot(ctx context.Context, key Key) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM snapshots WHERE profile = ? AND base_path = ?`,
		key.Profile, key.BasePath,
	)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

const replicaIDKey = "replica_id"

// ReplicaID returns the id of this installation, creating it on first use.
func (s *Store) ReplicaID(ctx context.Context) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, replicaIDKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read replica id: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		replicaIDKey, id,
	); err != nil {
		return "", fmt.Errorf("failed to store replica id: %w", err)
	}
	// Another process may have won the insert.
	if err := s.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, replicaIDKey).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read replica id: %w", err)
	}
	return id, nil
}
