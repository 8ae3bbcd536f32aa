package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/churn-radar/internal/service/runs"
)

// RunRepo implements runs.Repository against PostgreSQL.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed run-history repository.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

// EnsureSchema creates the churn_runs table if it does not exist.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS churn_runs (
			id               TEXT PRIMARY KEY,
			fingerprint      TEXT NOT NULL,
			rows             INTEGER NOT NULL,
			active_customers INTEGER NOT NULL,
			primary_cohorts  INTEGER NOT NULL,
			micro_cohorts    INTEGER NOT NULL,
			cohort_sizes     JSONB NOT NULL DEFAULT '{}',
			diagnostics      INTEGER NOT NULL DEFAULT 0,
			roi_available    BOOLEAN NOT NULL,
			net_profit       DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at       TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure churn_runs: %w", err)
	}
	return nil
}

func (r *RunRepo) Save(ctx context.Context, s *runs.Summary) error {
	sizes, err := json.Marshal(s.CohortSizes)
	if err != nil {
		return fmt.Errorf("encode cohort sizes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO churn_runs
			(id, fingerprint, rows, active_customers, primary_cohorts, micro_cohorts,
			 cohort_sizes, diagnostics, roi_available, net_profit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = $2, rows = $3, active_customers = $4, primary_cohorts = $5,
			micro_cohorts = $6, cohort_sizes = $7, diagnostics = $8,
			roi_available = $9, net_profit = $10
	`, s.ID, s.Fingerprint, s.Rows, s.ActiveCustomers, s.PrimaryCohorts, s.MicroCohorts,
		sizes, s.Diagnostics, s.ROIAvailable, s.NetProfit, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

const runColumns = `id, fingerprint, rows, active_customers, primary_cohorts, micro_cohorts, cohort_sizes, diagnostics, roi_available, net_profit, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*runs.Summary, error) {
	var (
		s     runs.Summary
		sizes []byte
	)
	if err := row.Scan(
		&s.ID, &s.Fingerprint, &s.Rows, &s.ActiveCustomers, &s.PrimaryCohorts, &s.MicroCohorts,
		&sizes, &s.Diagnostics, &s.ROIAvailable, &s.NetProfit, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(sizes) > 0 {
		if err := json.Unmarshal(sizes, &s.CohortSizes); err != nil {
			return nil, fmt.Errorf("decode cohort sizes: %w", err)
		}
	}
	return &s, nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*runs.Summary, error) {
	s, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM churn_runs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return s, nil
}

func (r *RunRepo) List(ctx context.Context, limit int) ([]runs.Summary, error) {
	if limit <= 0 {
		limit = runs.DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM churn_runs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []runs.Summary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
