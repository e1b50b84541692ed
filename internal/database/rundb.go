package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/earnscan/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "earnscan.db"

// storedTime keeps fractional seconds at a fixed width so that timestamps
// sort lexically.
const storedTime = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores runs and the records they produced.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
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

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a scan first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rwc"
	if !opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
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
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		base_urls TEXT NOT NULL,
		canceled INTEGER DEFAULT 0,
		records_written INTEGER DEFAULT 0,
		terminal_failures INTEGER DEFAULT 0,
		summary_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		code TEXT NOT NULL,
		name TEXT,
		stage TEXT NOT NULL,
		dividend_yield REAL,
		record_json TEXT NOT NULL,
		written_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, code)
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_code ON records(code);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// BeginRun registers a new run.
func (rdb *RunDB) BeginRun(ctx context.Context, runID string, startedAt time.Time, baseURLs []string) error {
	_, err := rdb.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, base_urls) VALUES (?, ?, ?)`,
		runID,
		startedAt.UTC().Format(storedTime),
		strings.Join(baseURLs, "\n"),
	)
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// InsertRecord inserts or updates a record of a run.
// Uses UPSERT so a record written twice in one run keeps its latest state.
func (rdb *RunDB) InsertRecord(ctx context.Context, runID string, rec *model.Record) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	query := `
	INSERT INTO records (run_id, code, name, stage, dividend_yield, record_json)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, code) DO UPDATE SET
		name = excluded.name,
		stage = excluded.stage,
		dividend_yield = excluded.dividend_yield,
		record_json = excluded.record_json,
		written_at = CURRENT_TIMESTAMP
	`

	var yield sql.NullFloat64
	if rec.DividendYield != nil {
		yield = sql.NullFloat64{Float64: *rec.DividendYield, Valid: true}
	}

	if _, err := rdb.db.ExecContext(ctx, query,
		runID,
		rec.Code(),
		rec.Name,
		string(rec.Stage),
		yield,
		string(recordJSON),
	); err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.Code(), err)
	}
	return nil
}

// FinishRun stores the final summary of a run.
func (rdb *RunDB) FinishRun(ctx context.Context, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	query := `
	UPDATE runs SET
		finished_at = ?,
		canceled = ?,
		records_written = ?,
		terminal_failures = ?,
		summary_json = ?
	WHERE id = ?
	`

	res, err := rdb.db.ExecContext(ctx, query,
		summary.FinishedAt.UTC().Format(storedTime),
		summary.Canceled,
		summary.RecordsWritten,
		summary.TerminalFailures,
		string(summaryJSON),
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, summary.RunID)
	}
	return nil
}

// RunMetadata describes a run without loading its records.
type RunMetadata struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	BaseURLs         []string
	Canceled         bool
	RecordsWritten   int
	TerminalFailures int64
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, started_at, finished_at, base_urls, canceled, records_written, terminal_failures
	FROM runs
	ORDER BY started_at DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta      RunMetadata
			started   string
			finished  sql.NullString
			baseURLs  string
			cancelled bool
		)
		if err := rows.Scan(&meta.ID, &started, &finished, &baseURLs, &cancelled,
			&meta.RecordsWritten, &meta.TerminalFailures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		if finished.Valid {
			meta.FinishedAt = parseTimestamp(finished.String)
		}
		if baseURLs != "" {
			meta.BaseURLs = strings.Split(baseURLs, "\n")
		}
		meta.Canceled = cancelled
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRun returns the stored summary of a run. A run that never finished
// has a summary with only its ID and start time set.
func (rdb *RunDB) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	var (
		started     string
		summaryJSON sql.NullString
	)
	err := rdb.db.QueryRowContext(ctx,
		`SELECT started_at, summary_json FROM runs WHERE id = ?`, runID,
	).Scan(&started, &summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if !summaryJSON.Valid || summaryJSON.String == "" {
		return &model.RunSummary{RunID: runID, StartedAt: parseTimestamp(started)}, nil
	}
	var summary model.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &summary, nil
}

// LatestRunID returns the ID of the most recently started run.
func (rdb *RunDB) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := rdb.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return id, nil
}

// TopRecords returns up to limit records of a run ordered by dividend yield,
// highest first. Records without a yield are not returned.
func (rdb *RunDB) TopRecords(ctx context.Context, runID string, limit int) ([]*model.Record, error) {
	query := `
	SELECT record_json FROM records
	WHERE run_id = ? AND dividend_yield IS NOT NULL
	ORDER BY dividend_yield DESC, code ASC
	LIMIT ?
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue // Skip malformed records
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountRecords returns how many records a run has stored.
func (rdb *RunDB) CountRecords(ctx context.Context, runID string) (int, error) {
	var n int
	if err := rdb.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE run_id = ?`, runID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
