package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by every method of a nil or closed DB.
var ErrNotInitialized = errors.New("database not initialized")

// ItemRow is one dataset record as stored locally.
type ItemRow struct {
	ID        int64
	URL       string
	VideoID   string
	Status    string
	ErrorKind string
	Error     string
	// Payload is the record exactly as it would be pushed to a remote dataset.
	Payload   []byte
	CreatedAt time.Time
}

// BlobRow indexes a media file written by the local key-value store.
type BlobRow struct {
	Key         string
	ContentType string
	Size        int64
	Path        string
	StoredAt    time.Time
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    url         TEXT NOT NULL DEFAULT '',
    video_id    TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'succeeded',
    error_kind  TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    payload     TEXT NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS blobs (
    key           TEXT PRIMARY KEY,
    content_type  TEXT NOT NULL DEFAULT '',
    size          INTEGER NOT NULL DEFAULT 0,
    path          TEXT NOT NULL DEFAULT '',
    stored_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_video_id ON items(video_id);
`

// DB wraps an SQLite connection holding the local dataset of one or more runs.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	// SQLite pragmas for performance and reliability
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := sqlDB.Exec(createTableSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// InsertItems appends rows in a single transaction and returns how many were written.
func (d *DB) InsertItems(ctx context.Context, rows ...ItemRow) (int, error) {
	if d == nil || d.db == nil {
		return 0, ErrNotInitialized
	}
	if len(rows) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (url, video_id, status, error_kind, error, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		status := r.Status
		if status == "" {
			status = StatusSucceeded
		}
		if _, err := stmt.ExecContext(ctx, r.URL, r.VideoID, status, r.ErrorKind, r.Error, string(r.Payload)); err != nil {
			return 0, fmt.Errorf("inserting item row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing items: %w", err)
	}
	return len(rows), nil
}

// ListItems returns dataset rows in insertion order.
func (d *DB) ListItems(ctx context.Context, limit, offset int) ([]ItemRow, error) {
	if d == nil || d.db == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, url, video_id, status, error_kind, error, payload, created_at
		FROM items
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []ItemRow
	for rows.Next() {
		var r ItemRow
		var payload string
		if err := rows.Scan(&r.ID, &r.URL, &r.VideoID, &r.Status, &r.ErrorKind, &r.Error, &payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		r.Payload = []byte(payload)
		items = append(items, r)
	}
	return items, rows.Err()
}

// CountItems returns the number of rows with the given status, or all rows when status is empty.
func (d *DB) CountItems(ctx context.Context, status string) (int, error) {
	if d == nil || d.db == nil {
		return 0, ErrNotInitialized
	}

	query := "SELECT COUNT(*) FROM items"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	var count int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return count, nil
}

// UpsertBlob records or replaces the index entry for a stored key.
func (d *DB) UpsertBlob(ctx context.Context, b BlobRow) error {
	if d == nil || d.db == nil {
		return ErrNotInitialized
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO blobs (key, content_type, size, path)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content_type=excluded.content_type, size=excluded.size,
			path=excluded.path, stored_at=datetime('now')
	`, b.Key, b.ContentType, b.Size, b.Path)
	if err != nil {
		return fmt.Errorf("upserting blob %s: %w", b.Key, err)
	}
	return nil
}

// GetBlob returns the index entry for key, or sql.ErrNoRows wrapped when absent.
func (d *DB) GetBlob(ctx context.Context, key string) (BlobRow, error) {
	if d == nil || d.db == nil {
		return BlobRow{}, ErrNotInitialized
	}
	var b BlobRow
	err := d.db.QueryRowContext(ctx,
		"SELECT key, content_type, size, path, stored_at FROM blobs WHERE key = ?", key,
	).Scan(&b.Key, &b.ContentType, &b.Size, &b.Path, &b.StoredAt)
	if err != nil {
		return BlobRow{}, fmt.Errorf("querying blob %s: %w", key, err)
	}
	return b, nil
}
