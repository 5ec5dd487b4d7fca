// Package storage persists pipeline runs in a SQLite database.
// Each run stores its summary, the annual proportions, the per-organization
// statistics and the fitted trend, so earlier runs can be listed and compared.
//
// Every stage is written in a single transaction: a run either has all rows
// of a stage or none of them. Old runs are rotated out once the configured
// maximum is exceeded.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/reappoint/internal/models"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		input TEXT NOT NULL,
		records INTEGER NOT NULL,
		reappointments INTEGER NOT NULL,
		invalid_years INTEGER NOT NULL,
		organizations INTEGER NOT NULL,
		trend_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS annual_proportions (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		year INTEGER NOT NULL,
		total_appointments INTEGER NOT NULL,
		total_reappointments INTEGER NOT NULL,
		proportion REAL,
		PRIMARY KEY (run_id, year)
	)`,
	`CREATE TABLE IF NOT EXISTS org_year_stats (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		organization TEXT NOT NULL,
		year INTEGER NOT NULL,
		appointments INTEGER NOT NULL,
		reappointments INTEGER NOT NULL,
		rate REAL,
		PRIMARY KEY (run_id, organization, year)
	)`,
	`CREATE TABLE IF NOT EXISTS trend_results (
		run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
		slope REAL NOT NULL,
		p_value REAL NOT NULL,
		r_squared REAL NOT NULL,
		direction TEXT NOT NULL,
		significant INTEGER NOT NULL,
		result TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// Storage is a SQLite-backed run store
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens (creating if needed) the database at path and applies the
// schema. maxRuns bounds the number of runs kept by RotateRuns; 0 keeps all.
func New(path string, maxRuns int) (*Storage, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "reappoint", "reappoint.db")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; an in-memory database also lives and dies
	// with its single connection.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn enables foreign keys through the connection string, so that every
// connection the pool opens enforces the cascades, not just the first one.
func dsn(path string) string {
	const params = "?_pragma=foreign_keys(1)"
	if path == MemoryPath {
		return "file::memory:" + params
	}
	return "file:" + filepath.ToSlash(path) + params
}

func (s *Storage) initialize() error {
	var fk int
	if err := s.db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	if fk != 1 {
		return errors.New("foreign keys are not enabled")
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run summary
func (s *Storage) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, input, records, reappointments, invalid_years, organizations, trend_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			input = excluded.input,
			records = excluded.records,
			reappointments = excluded.reappointments,
			invalid_years = excluded.invalid_years,
			organizations = excluded.organizations,
			trend_error = excluded.trend_error`,
		run.ID, run.StartedAt.UnixNano(), run.Input, run.Records, run.Reappointments,
		run.InvalidYears, run.Organizations, run.TrendError)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, input, records, reappointments, invalid_years, organizations, trend_error
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, input, records, reappointments, invalid_years, organizations, trend_error
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RunSummary, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.RunSummary, error) {
	var run models.RunSummary
	var startedAt int64
	err := sc.Scan(&run.ID, &startedAt, &run.Input, &run.Records, &run.Reappointments,
		&run.InvalidYears, &run.Organizations, &run.TrendError)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	return &run, nil
}

// SaveAnnual replaces the annual proportions of a run
func (s *Storage) SaveAnnual(ctx context.Context, runID string, years []models.AnnualProportion) error {
	for i := range years {
		if err := years[i].Validate(); err != nil {
			return fmt.Errorf("invalid annual proportion for %d: %w", years[i].Year, err)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM annual_proportions WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO annual_proportions (run_id, year, total_appointments, total_reappointments, proportion)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, y := range years {
			if _, err := stmt.ExecContext(ctx, runID, y.Year, y.TotalAppointments, y.TotalReappointments, y.Proportion); err != nil {
				return fmt.Errorf("year %d: %w", y.Year, err)
			}
		}
		return nil
	})
}

// GetAnnual returns the annual proportions of a run ordered by year
func (s *Storage) GetAnnual(ctx context.Context, runID string) ([]models.AnnualProportion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, total_appointments, total_reappointments
		FROM annual_proportions WHERE run_id = ? ORDER BY year`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get annual proportions: %w", err)
	}
	defer rows.Close()

	years := make([]models.AnnualProportion, 0)
	for rows.Next() {
		var year, appts, reapps int
		if err := rows.Scan(&year, &appts, &reapps); err != nil {
			return nil, fmt.Errorf("failed to scan annual proportion: %w", err)
		}
		years = append(years, models.NewAnnualProportion(year, appts, reapps))
	}
	return years, rows.Err()
}

// SaveOrgYear replaces the per-organization statistics of a run
func (s *Storage) SaveOrgYear(ctx context.Context, runID string, stats []models.OrgYearStat) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM org_year_stats WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO org_year_stats (run_id, organization, year, appointments, reappointments, rate)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, st := range stats {
			if _, err := stmt.ExecContext(ctx, runID, st.Organization, st.Year, st.Appointments, st.Reappointments, st.Rate); err != nil {
				return fmt.Errorf("%s %d: %w", st.Organization, st.Year, err)
			}
		}
		return nil
	})
}

// GetOrgYear returns the per-organization statistics of a run
func (s *Storage) GetOrgYear(ctx context.Context, runID string) ([]models.OrgYearStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization, year, appointments, reappointments
		FROM org_year_stats WHERE run_id = ? ORDER BY organization, year`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization statistics: %w", err)
	}
	defer rows.Close()

	stats := make([]models.OrgYearStat, 0)
	for rows.Next() {
		var st models.OrgYearStat
		if err := rows.Scan(&st.Organization, &st.Year, &st.Appointments, &st.Reappointments); err != nil {
			return nil, fmt.Errorf("failed to scan organization statistics: %w", err)
		}
		st.Rate = models.Rate(st.Reappointments, st.Appointments)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// SaveTrend stores the fitted trend of a run. The full result is kept as
// JSON next to the columns used for listing.
func (s *Storage) SaveTrend(ctx context.Context, runID string, result *models.TrendResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid trend: %w", err)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal trend: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trend_results (run_id, slope, p_value, r_squared, direction, significant, result)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				slope = excluded.slope,
				p_value = excluded.p_value,
				r_squared = excluded.r_squared,
				direction = excluded.direction,
				significant = excluded.significant,
				result = excluded.result`,
			runID, result.Slope, result.PValue, result.RSquared, result.Direction, result.Significant, string(payload))
		return err
	})
}

// GetTrend returns the fitted trend of a run
func (s *Storage) GetTrend(ctx context.Context, runID string) (*models.TrendResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM trend_results WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trend for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trend: %w", err)
	}

	var result models.TrendResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trend: %w", err)
	}
	return &result, nil
}

// RotateRuns removes the oldest runs beyond the configured maximum, along
// with their stage rows. It returns the number of runs removed.
func (s *Storage) RotateRuns(ctx context.Context) (int, error) {
	if s.maxRuns <= 0 {
		return 0, nil
	}

	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
			)`, s.maxRuns)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rotate runs: %w", err)
	}
	return int(removed), nil
}

func (s *Storage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
