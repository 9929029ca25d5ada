package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/stats"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	as_of       TEXT NOT NULL,
	jobs        INTEGER NOT NULL,
	failures    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bin_aggregates (
	run_id    TEXT NOT NULL,
	process   TEXT NOT NULL,
	cohort    TEXT NOT NULL,
	bin       TEXT NOT NULL,
	bin_index INTEGER NOT NULL,
	count     INTEGER NOT NULL,
	percent   DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bin_aggregates_run ON bin_aggregates(run_id);
CREATE TABLE IF NOT EXISTS bin_transitions (
	run_id     TEXT NOT NULL,
	process    TEXT NOT NULL,
	cohort     TEXT NOT NULL,
	bin        TEXT NOT NULL,
	transition TEXT NOT NULL,
	direction  TEXT NOT NULL,
	from_level INTEGER NOT NULL,
	to_level   INTEGER NOT NULL,
	percent    DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bin_transitions_run ON bin_transitions(run_id);
CREATE TABLE IF NOT EXISTS period_stats (
	run_id      TEXT NOT NULL,
	job         TEXT NOT NULL,
	period      TEXT NOT NULL,
	group_name  TEXT NOT NULL,
	count       INTEGER NOT NULL,
	mean_days   DOUBLE PRECISION NOT NULL,
	median_days DOUBLE PRECISION NOT NULL,
	std_days    DOUBLE PRECISION NOT NULL,
	min_days    DOUBLE PRECISION NOT NULL,
	max_days    DOUBLE PRECISION NOT NULL,
	p25_days    DOUBLE PRECISION NOT NULL,
	p75_days    DOUBLE PRECISION NOT NULL,
	p90_days    DOUBLE PRECISION NOT NULL,
	p95_days    DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_period_stats_run ON period_stats(run_id);
`

// SQLStore is a Store over database/sql for SQLite and Postgres.
type SQLStore struct {
	db          *sql.DB
	driver      string
	labelPrefix string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database and creates missing tables.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := NewSQLStore(db, driver, opts...)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database; call Open to also create the tables.
func NewSQLStore(db *sql.DB, driver string, opts ...Option) *SQLStore {
	s := &SQLStore{db: db, driver: driver, labelPrefix: "L"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveRun writes the run header and every aggregate row in one transaction.
func (s *SQLStore) SaveRun(ctx context.Context, run Run) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	jobs := len(run.Workflow) + len(run.Periods)
	if _, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (id, started_at, finished_at, as_of, jobs, failures) VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.AsOf, jobs, run.Failures); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	binStmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO bin_aggregates (run_id, process, cohort, bin, bin_index, count, percent) VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare bins: %w", err)
	}
	defer func() { _ = binStmt.Close() }()
	trStmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO bin_transitions (run_id, process, cohort, bin, transition, direction, from_level, to_level, percent) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare transitions: %w", err)
	}
	defer func() { _ = trStmt.Close() }()

	for _, w := range run.Workflow {
		for i, b := range w.Distribution.Bins {
			if _, err = binStmt.ExecContext(ctx, run.ID, w.Process, w.Cohort, b.Label, i, b.Count, b.Percent); err != nil {
				return fmt.Errorf("insert bin: %w", err)
			}
		}
		for _, a := range w.Aggregates {
			for _, k := range aggregate.SortedKeys(a.Transitions) {
				if _, err = trStmt.ExecContext(ctx, run.ID, w.Process, w.Cohort, a.Label,
					k.Label(s.labelPrefix), k.Direction.String(), k.From, k.To, a.Transitions[k]); err != nil {
					return fmt.Errorf("insert transition: %w", err)
				}
			}
		}
	}

	stStmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO period_stats (run_id, job, period, group_name, count, mean_days, median_days, std_days, min_days, max_days, p25_days, p75_days, p90_days, p95_days)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare period stats: %w", err)
	}
	defer func() { _ = stStmt.Close() }()

	for _, p := range run.Periods {
		for _, sp := range p.Spans {
			if err = insertStats(ctx, stStmt, run.ID, p.Job.Name, sp.Span.Label, "", sp.Summary); err != nil {
				return err
			}
			for _, g := range sp.Groups {
				if err = insertStats(ctx, stStmt, run.ID, p.Job.Name, sp.Span.Label, g.Group, g.Summary); err != nil {
					return err
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertStats(ctx context.Context, stmt *sql.Stmt, runID, job, label, group string, st stats.Summary) error {
	_, err := stmt.ExecContext(ctx, runID, job, label, group, st.Count,
		st.Mean, st.Median, st.Std, st.Min, st.Max, st.P25, st.P75, st.P90, st.P95)
	if err != nil {
		return fmt.Errorf("insert period stats: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *SQLStore) LastRun(ctx context.Context) (RunSummary, error) {
	var r RunSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, as_of, jobs, failures FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.AsOf, &r.Jobs, &r.Failures)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("last run: %w", err)
	}
	return r, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }
