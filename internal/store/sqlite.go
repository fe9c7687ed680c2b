package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the name of the run database inside the state directory.
const DBFile = "runs.db"

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (or creates) the run database under
// projectRoot/.neuronsim.
func NewSQLiteRunStore(projectRoot string) (*SQLiteRunStore, error) {
	dir := LocalPath(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}
	return OpenSQLiteRunStore(filepath.Join(dir, DBFile))
}

// OpenSQLiteRunStore opens the database at dbPath.
func OpenSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// SaveRun inserts or replaces a run and its histogram bins in one transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if len(run.Histogram.Times) != len(run.Histogram.Counts) {
		return fmt.Errorf("histogram has %d times but %d counts", len(run.Histogram.Times), len(run.Histogram.Counts))
	}

	seeds, err := json.Marshal(nonNilSeeds(run.Seeds))
	if err != nil {
		return fmt.Errorf("failed to marshal seeds: %w", err)
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Replacing the run row cascades to its old bins.
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, horizon_ms, refractory_ms, excitatory_prob, inhibitory_prob,
			mode, population, edge_count, rng_seed, seeds, event_count, truncated,
			duration_ns, config_yaml
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		created.UTC().Format(timeLayout),
		run.HorizonMS,
		run.RefractoryMS,
		run.ExcitatoryProb,
		run.InhibitoryProb,
		run.Mode,
		run.Population,
		run.EdgeCount,
		strconv.FormatUint(run.RNGSeed, 10),
		string(seeds),
		run.EventCount,
		boolToInt(run.Truncated),
		int64(run.Duration),
		nullString(run.Config),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO histogram_bins (run_id, bin_index, time, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bin insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range run.Histogram.Times {
		if _, err := stmt.ExecContext(ctx, run.ID, i, t, run.Histogram.Counts[i]); err != nil {
			return fmt.Errorf("failed to insert bin %d: %w", i, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, created_at, horizon_ms, refractory_ms, excitatory_prob, inhibitory_prob,
	mode, population, edge_count, rng_seed, seeds, event_count, truncated, duration_ns, config_yaml`

// GetRun returns a run with its histogram.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT time, count FROM histogram_bins WHERE run_id = ? ORDER BY bin_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query bins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t float64
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, fmt.Errorf("failed to scan bin: %w", err)
		}
		run.Histogram.Times = append(run.Histogram.Times, t)
		run.Histogram.Counts = append(run.Histogram.Counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bins: %w", err)
	}

	return run, nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run; its bins are removed by the foreign key cascade.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run       RunRecord
		created   string
		rngSeed   string
		seeds     string
		truncated int
		duration  int64
		config    sql.NullString
	)
	err := row.Scan(
		&run.ID, &created, &run.HorizonMS, &run.RefractoryMS, &run.ExcitatoryProb, &run.InhibitoryProb,
		&run.Mode, &run.Population, &run.EdgeCount, &rngSeed, &seeds, &run.EventCount, &truncated,
		&duration, &config,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", run.ID, created, err)
	}
	if run.RNGSeed, err = strconv.ParseUint(rngSeed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: bad rng_seed %q: %w", run.ID, rngSeed, err)
	}
	if err := json.Unmarshal([]byte(seeds), &run.Seeds); err != nil {
		return nil, fmt.Errorf("run %s: bad seeds: %w", run.ID, err)
	}
	run.Truncated = truncated != 0
	run.Duration = time.Duration(duration)
	run.Config = config.String
	run.Histogram = activity.Histogram{Times: []float64{}, Counts: []int{}}
	return &run, nil
}

func nonNilSeeds(seeds []int) []int {
	if seeds == nil {
		return []int{}
	}
	return seeds
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
