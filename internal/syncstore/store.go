// Package syncstore persists per-project sync metadata in an embedded
// SQLite database.
//
// The database runs in embedded mode (ncruces/go-sqlite3, cgo-free) with
// WAL enabled so UI reads never block the engine's writes. One database
// holds the sync state for every project the application has opened:
//
//   - sync_meta: one row per project (remote id, status, last synced)
//   - sync_queue: pending operation records, position-ordered
//   - id_map: local-to-remote identifier mappings per scope
//
// The aggregate is saved in a single transaction after every engine
// mutation, so a crash mid-cycle loses at most the in-flight attempt.
package syncstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inkwell-app/inkwell/internal/syncengine"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection and implements syncengine.Store.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the specified path, creating the database and
// schema if needed. The caller MUST call Close() when done.
//
// Example:
//
//	store, err := syncstore.Open(filepath.Join(dir, ".inkwell", "sync.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL for concurrent status reads during engine writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tables if they don't exist. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_meta (
		project_id        TEXT PRIMARY KEY,
		remote_project_id TEXT NOT NULL DEFAULT '',
		last_synced_at    TEXT,
		status            TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		project_id      TEXT NOT NULL,
		position        INTEGER NOT NULL,
		kind            TEXT NOT NULL,
		local_id        TEXT NOT NULL,
		payload         TEXT NOT NULL,
		retry_count     INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TEXT,
		failed          INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (project_id, local_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sync_queue_position
	    ON sync_queue(project_id, position);

	CREATE TABLE IF NOT EXISTS id_map (
		project_id TEXT NOT NULL,
		scope      TEXT NOT NULL,
		local_id   TEXT NOT NULL,
		remote_id  TEXT NOT NULL,
		PRIMARY KEY (project_id, scope, local_id),
		UNIQUE (project_id, scope, remote_id)
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Load implements syncengine.Store. A project that has never been synced
// yields a fresh empty aggregate.
func (s *Store) Load(ctx context.Context, projectID string) (*syncengine.Metadata, error) {
	meta := syncengine.NewMetadata()

	row := s.conn.QueryRowContext(ctx,
		`SELECT remote_project_id, last_synced_at, status FROM sync_meta WHERE project_id = ?`,
		projectID)

	var lastSynced sql.NullString
	var status string
	err := row.Scan(&meta.RemoteProjectID, &lastSynced, &status)
	if err == sql.ErrNoRows {
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync metadata: %w", err)
	}

	meta.LastSyncedAt = nullStringToTime(lastSynced)
	if st, err := syncengine.ParseStatus(status); err == nil {
		meta.Status = st
	}

	if err := s.loadQueue(ctx, projectID, meta); err != nil {
		return nil, err
	}
	if err := s.loadIDMaps(ctx, projectID, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// loadQueue restores the pending queue in position order.
func (s *Store) loadQueue(ctx context.Context, projectID string, meta *syncengine.Metadata) error {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT kind, local_id, payload, retry_count, last_attempt_at, failed
		FROM sync_queue
		WHERE project_id = ?
		ORDER BY position ASC`, projectID)
	if err != nil {
		return fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var records []syncengine.Record
	for rows.Next() {
		var kindStr, localID, payloadJSON string
		var retryCount, failed int
		var lastAttempt sql.NullString

		if err := rows.Scan(&kindStr, &localID, &payloadJSON, &retryCount, &lastAttempt, &failed); err != nil {
			return fmt.Errorf("failed to scan queue record: %w", err)
		}

		kind, err := syncengine.ParseOperationKind(kindStr)
		if err != nil {
			return fmt.Errorf("corrupt queue record %s: %w", localID, err)
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return fmt.Errorf("corrupt payload for %s: %w", localID, err)
		}

		records = append(records, syncengine.Record{
			Kind:          kind,
			LocalID:       localID,
			Payload:       payload,
			RetryCount:    retryCount,
			LastAttemptAt: nullStringToTime(lastAttempt),
			Failed:        failed != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating queue records: %w", err)
	}

	return meta.Queue.Restore(records)
}

// loadIDMaps restores both identifier maps.
func (s *Store) loadIDMaps(ctx context.Context, projectID string, meta *syncengine.Metadata) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT scope, local_id, remote_id FROM id_map WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to query id map: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scope, localID, remoteID string
		if err := rows.Scan(&scope, &localID, &remoteID); err != nil {
			return fmt.Errorf("failed to scan id mapping: %w", err)
		}
		m := meta.ChapterIDs
		if syncengine.Scope(scope) == syncengine.ScopeEntity {
			m = meta.EntityIDs
		}
		if err := m.Put(localID, remoteID); err != nil {
			return fmt.Errorf("corrupt id mapping %s/%s: %w", scope, localID, err)
		}
	}
	return rows.Err()
}

// Save implements syncengine.Store: the whole aggregate in one transaction.
func (s *Store) Save(ctx context.Context, projectID string, meta *syncengine.Metadata) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_meta (project_id, remote_project_id, last_synced_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			remote_project_id = excluded.remote_project_id,
			last_synced_at = excluded.last_synced_at,
			status = excluded.status`,
		projectID, meta.RemoteProjectID, timeToNullString(meta.LastSyncedAt), string(meta.Status))
	if err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}

	// Rewrite the queue wholesale. Queues are small (bounded by the user's
	// offline editing session), so this stays cheap and keeps positions
	// dense.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	for i, rec := range meta.Queue.Records() {
		payloadJSON, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", rec.LocalID, err)
		}
		failed := 0
		if rec.Failed {
			failed = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sync_queue (project_id, position, kind, local_id, payload, retry_count, last_attempt_at, failed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, i, rec.Kind.String(), rec.LocalID, string(payloadJSON),
			rec.RetryCount, timeToNullString(rec.LastAttemptAt), failed)
		if err != nil {
			return fmt.Errorf("failed to save queue record %s: %w", rec.LocalID, err)
		}
	}

	// Identifier maps are append-only, so INSERT OR IGNORE suffices.
	saveMap := func(scope syncengine.Scope, m *syncengine.IDMap) error {
		var mapErr error
		m.Each(func(localID, remoteID string) {
			if mapErr != nil {
				return
			}
			_, mapErr = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO id_map (project_id, scope, local_id, remote_id)
				VALUES (?, ?, ?, ?)`,
				projectID, string(scope), localID, remoteID)
		})
		if mapErr != nil {
			return fmt.Errorf("failed to save %s id map: %w", scope, mapErr)
		}
		return nil
	}
	if err := saveMap(syncengine.ScopeChapter, meta.ChapterIDs); err != nil {
		return err
	}
	if err := saveMap(syncengine.ScopeEntity, meta.EntityIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync metadata: %w", err)
	}
	return nil
}

// Reset implements syncengine.Store: deletes all persisted sync state for
// the project. Called when the user disconnects the project from the cloud.
func (s *Store) Reset(ctx context.Context, projectID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sync_meta", "sync_queue", "id_map"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
