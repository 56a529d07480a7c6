package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/prodscrape/internal/model"
)

// DBFileName is the name of the history database inside the data directory.
const DBFileName = "prodscrape.db"

// Database errors.
var (
	// ErrRunNotFound is returned when no run matches the query.
	ErrRunNotFound = errors.New("run not found")

	// ErrDatabaseNotFound is returned when opening a missing database
	// without CreateIfNotExists.
	ErrDatabaseNotFound = errors.New("database not found")
)

// RunDB stores scrape runs in SQLite.
type RunDB struct {
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite: mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

func (rdb *RunDB) createTables() error {
	schema := `
	-- One row per scrape invocation
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		listing_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		links_json TEXT NOT NULL,
		failures_json TEXT NOT NULL,
		records_scraped INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		interrupted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_listing ON runs(listing_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Scraped records, fields stored as an ordered JSON object
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		fields_json TEXT NOT NULL,
		UNIQUE(run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_records_url ON records(url);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata is a saved run without its records.
type RunMetadata struct {
	ID             int64
	ListingURL     string
	StartedAt      time.Time
	FinishedAt     time.Time
	LinksFound     int
	RecordsScraped int
	PagesFailed    int
	Error          string
	Interrupted    bool
}

// SaveRun stores run and its records in one transaction and sets run.ID.
func (rdb *RunDB) SaveRun(ctx context.Context, run *model.Run) (int64, error) {
	linksJSON, err := json.Marshal(run.Links)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize links: %w", err)
	}
	failuresJSON, err := json.Marshal(run.Failures)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize failures: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (listing_url, started_at, finished_at, links_json, failures_json, records_scraped, error, interrupted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ListingURL,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		string(linksJSON),
		string(failuresJSON),
		run.RecordsScraped(),
		run.Error,
		run.Interrupted,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO records (run_id, position, url, fields_json) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	if run.Dataset != nil {
		for i, record := range run.Dataset.Records {
			fieldsJSON, err := json.Marshal(record)
			if err != nil {
				return 0, fmt.Errorf("failed to serialize record %d: %w", i+1, err)
			}
			if _, err := stmt.ExecContext(ctx, id, i, record.URL(), string(fieldsJSON)); err != nil {
				return 0, fmt.Errorf("failed to insert record %d: %w", i+1, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	run.ID = id
	return id, nil
}

// GetRun loads a run with all its records.
func (rdb *RunDB) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	var (
		run          model.Run
		startedAt    string
		finishedAt   sql.NullString
		linksJSON    string
		failuresJSON string
		errMsg       sql.NullString
	)

	err := rdb.db.QueryRowContext(ctx, `
	SELECT id, listing_url, started_at, finished_at, links_json, failures_json, error, interrupted
	FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.ListingURL, &startedAt, &finishedAt, &linksJSON, &failuresJSON, &errMsg, &run.Interrupted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: #%d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt.String)
	run.Error = errMsg.String
	if err := json.Unmarshal([]byte(linksJSON), &run.Links); err != nil {
		return nil, fmt.Errorf("failed to parse links of run #%d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(failuresJSON), &run.Failures); err != nil {
		return nil, fmt.Errorf("failed to parse failures of run #%d: %w", id, err)
	}

	dataset, err := rdb.loadRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Dataset = dataset

	return &run, nil
}

func (rdb *RunDB) loadRecords(ctx context.Context, runID int64) (*model.Dataset, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT fields_json FROM records WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	dataset := model.NewDataset()
	for rows.Next() {
		var fieldsJSON string
		if err := rows.Scan(&fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record := &model.Record{}
		if err := json.Unmarshal([]byte(fieldsJSON), record); err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		dataset.Append(record)
	}

	return dataset, rows.Err()
}

// LatestRun returns the most recent run for listingURL, or the most recent
// run overall when listingURL is empty.
func (rdb *RunDB) LatestRun(ctx context.Context, listingURL string) (*model.Run, error) {
	query := `SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`
	args := []any{}
	if listingURL != "" {
		query = `SELECT id FROM runs WHERE listing_url = ? ORDER BY started_at DESC, id DESC LIMIT 1`
		args = append(args, listingURL)
	}

	var id int64
	err := rdb.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return rdb.GetRun(ctx, id)
}

// ListRuns returns run metadata, newest first. limit <= 0 means no limit.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, listing_url, started_at, finished_at, links_json, failures_json, records_scraped, error, interrupted
	FROM runs ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMetadata
	for rows.Next() {
		var (
			meta         RunMetadata
			startedAt    string
			finishedAt   sql.NullString
			linksJSON    string
			failuresJSON string
			errMsg       sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.ListingURL, &startedAt, &finishedAt,
			&linksJSON, &failuresJSON, &meta.RecordsScraped, &errMsg, &meta.Interrupted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		var links []string
		if err := json.Unmarshal([]byte(linksJSON), &links); err != nil {
			return nil, fmt.Errorf("failed to parse links of run #%d: %w", meta.ID, err)
		}
		var failures []model.Failure
		if err := json.Unmarshal([]byte(failuresJSON), &failures); err != nil {
			return nil, fmt.Errorf("failed to parse failures of run #%d: %w", meta.ID, err)
		}

		meta.StartedAt = parseTimestamp(startedAt)
		meta.FinishedAt = parseTimestamp(finishedAt.String)
		meta.LinksFound = len(links)
		meta.PagesFailed = len(failures)
		meta.Error = errMsg.String
		runs = append(runs, meta)
	}

	return runs, rows.Err()
}

// DeleteRun removes a run and its records.
func (rdb *RunDB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: #%d", ErrRunNotFound, id)
	}

	return tx.Commit()
}

// ProductSnapshot is one record of a product as scraped in a given run.
type ProductSnapshot struct {
	RunID     int64
	ScrapedAt time.Time
	Record    *model.Record
}

// ProductHistory returns every saved record for a product URL, oldest
// first.
func (rdb *RunDB) ProductHistory(ctx context.Context, productURL string) ([]ProductSnapshot, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT r.run_id, runs.started_at, r.fields_json
	FROM records r JOIN runs ON runs.id = r.run_id
	WHERE r.url = ?
	ORDER BY runs.started_at ASC, r.run_id ASC
	`, productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query product history: %w", err)
	}
	defer rows.Close()

	var history []ProductSnapshot
	for rows.Next() {
		var (
			snap       ProductSnapshot
			startedAt  string
			fieldsJSON string
		)
		if err := rows.Scan(&snap.RunID, &startedAt, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan product history: %w", err)
		}
		snap.ScrapedAt = parseTimestamp(startedAt)
		snap.Record = &model.Record{}
		if err := json.Unmarshal([]byte(fieldsJSON), snap.Record); err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		history = append(history, snap)
	}

	return history, rows.Err()
}

// timestampLayout is how run times are stored. It sorts lexically in time
// order because every value is in UTC.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats the runs table may hold.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp parses a stored timestamp. Unknown or empty values yield
// the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
