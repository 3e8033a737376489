// Package ledger records in-flight multipart uploads in SQLite so a
// restarted gateway can tell a stale staged part (left behind by a crash
// mid-upload) from one still legitimately in progress. The subnet is the
// object/bucket metadata store, but it has no notion of an upload that
// never completed; this is the one piece of durable local state the
// gateway keeps beyond the staged files themselves.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/google/uuid"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// Ledger is a SQLite-backed record of in-flight multipart uploads.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger database at dsn and
// applies its schema. Safe to call repeatedly, matching the gateway's
// crash-only startup: every boot reconciles state, there is no separate
// recovery codepath.
func Open(dsn string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", dsn, err)
	}
	l := &Ledger{db: db}
	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("ledger: %q: %w", p, err)
		}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS uploads (
			upload_id    TEXT PRIMARY KEY,
			bucket       TEXT NOT NULL,
			key          TEXT NOT NULL,
			started_at   TEXT NOT NULL
		);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("ledger: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// Begin records a newly created multipart upload.
func (l *Ledger) Begin(ctx context.Context, uploadID uuid.UUID, bucket, key string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO uploads (upload_id, bucket, key, started_at) VALUES (?, ?, ?, ?)`,
		uploadID.String(), bucket, key, time.Now().UTC().Format(timeFormat))
	return err
}

// End removes an upload from the ledger, called on both completion and
// abort; idempotent.
func (l *Ledger) End(ctx context.Context, uploadID uuid.UUID) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM uploads WHERE upload_id = ?`, uploadID.String())
	return err
}

// Expired describes one upload the sweep decided to reap.
type Expired struct {
	UploadID uuid.UUID
	Bucket   string
	Key      string
}

// ExpiredUploads lists every upload started more than ttl ago.
func (l *Ledger) ExpiredUploads(ctx context.Context, ttl time.Duration) ([]Expired, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(timeFormat)
	rows, err := l.db.QueryContext(ctx,
		`SELECT upload_id, bucket, key FROM uploads WHERE started_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expired
	for rows.Next() {
		var idStr, bucket, key string
		if err := rows.Scan(&idStr, &bucket, &key); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		out = append(out, Expired{UploadID: id, Bucket: bucket, Key: key})
	}
	return out, rows.Err()
}

// All lists every upload currently tracked, for the ledger export tool.
func (l *Ledger) All(ctx context.Context) ([]Expired, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT upload_id, bucket, key FROM uploads ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expired
	for rows.Next() {
		var idStr, bucket, key string
		if err := rows.Scan(&idStr, &bucket, &key); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		out = append(out, Expired{UploadID: id, Bucket: bucket, Key: key})
	}
	return out, rows.Err()
}
