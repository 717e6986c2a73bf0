package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Lllllllleong/scanrouter/internal/models"
)

// DBFile is the ledger file name inside the ledger directory.
const DBFile = "scanrouter.db"

// SQLite is a Ledger backed by a local database file.
type SQLite struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens or creates the ledger in dir.
func OpenSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	dbPath := filepath.Join(dir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// Workers record concurrently; SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	l := &SQLite{db: db, dbPath: dbPath}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := l.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

// Path is the database file location.
func (l *SQLite) Path() string {
	return l.dbPath
}

func (l *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		mode TEXT,
		status TEXT NOT NULL,
		destination TEXT,
		error_details TEXT,
		page_count INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_scans_hash ON scans(file_hash);
	CREATE INDEX IF NOT EXISTS idx_scans_run ON scans(run_id);
	`
	_, err := l.db.ExecContext(context.Background(), schema)
	return err
}

// Begin inserts rec as PROCESSING.
func (l *SQLite) Begin(ctx context.Context, rec models.ScanRecord) (string, error) {
	id := ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
	INSERT INTO scans (id, run_id, file_hash, original_filename, mode, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, rec.RunID, rec.FileHash, rec.OriginalFilename, rec.Mode, models.StatusProcessing, rec.CreatedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert scan record: %w", err)
	}
	return id, nil
}

// Finish updates the record with its outcome.
func (l *SQLite) Finish(ctx context.Context, id string, o Outcome) error {
	res, err := l.db.ExecContext(ctx, `
	UPDATE scans SET status = ?, destination = ?, error_details = ?, page_count = ?, updated_at = ?
	WHERE id = ?`,
		o.Status, o.Destination, o.ErrorDetails, o.PageCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update scan record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan record %s not found", id)
	}
	return nil
}

// FindByHash looks for a non-failed record with the given content hash.
func (l *SQLite) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	var id string
	err := l.db.QueryRowContext(ctx,
		`SELECT id FROM scans WHERE file_hash = ? AND status != ? ORDER BY created_at LIMIT 1`,
		hash, models.StatusFailed).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	return id, true, nil
}

// ListRun returns the records of one run in insertion order.
func (l *SQLite) ListRun(ctx context.Context, runID string) ([]models.ScanRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
	SELECT run_id, file_hash, original_filename, mode, status,
		COALESCE(destination, ''), COALESCE(error_details, ''), page_count, created_at
	FROM scans WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []models.ScanRecord
	for rows.Next() {
		var r models.ScanRecord
		if err := rows.Scan(&r.RunID, &r.FileHash, &r.OriginalFilename, &r.Mode, &r.Status,
			&r.Destination, &r.ErrorDetails, &r.PageCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (l *SQLite) Close() error {
	return l.db.Close()
}
