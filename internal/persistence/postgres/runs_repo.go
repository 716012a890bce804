// Package postgres implements result persistence on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/irrbb/internal/engine"
	"github.com/sawpanic/irrbb/internal/persistence"
)

// Schema creates the result tables. Applied by operators, not at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id         UUID PRIMARY KEY,
    analysis_date  DATE NOT NULL,
    scenarios      INTEGER NOT NULL,
    worst_scenario TEXT NOT NULL DEFAULT '',
    elapsed_ms     BIGINT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scenario_results (
    run_id      UUID NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
    scenario_id TEXT NOT NULL,
    eve_total   DOUBLE PRECISION NOT NULL,
    nii_income  DOUBLE PRECISION NOT NULL,
    nii_expense DOUBLE PRECISION NOT NULL,
    delta_eve   DOUBLE PRECISION NOT NULL,
    delta_nii   DOUBLE PRECISION NOT NULL,
    is_worst    BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, scenario_id)
);`

type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a PostgreSQL-backed runs repository.
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunsRepo {
	return &runsRepo{db: db, timeout: timeout}
}

// SaveReport persists a run and its scenario rows in one transaction.
func (r *runsRepo) SaveReport(ctx context.Context, report *engine.Report) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	run, rows := persistence.RowsFromReport(report)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, analysis_date, scenarios, worst_scenario, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5)`,
		run.RunID, run.AnalysisDate, run.Scenarios, run.WorstID, run.ElapsedMS)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate run %s: %w", run.RunID, err)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenario_results (run_id, scenario_id, eve_total, nii_income, nii_expense, delta_eve, delta_nii, is_worst)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx,
			row.RunID, row.ScenarioID, row.EVETotal, row.NIIIncome,
			row.NIIExpense, row.DeltaEVE, row.DeltaNII, row.IsWorst)
		if err != nil {
			return fmt.Errorf("failed to insert scenario result %s: %w", row.ScenarioID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves one run with its scenario rows, scenario id ordered.
func (r *runsRepo) GetRun(ctx context.Context, runID string) (*persistence.Run, []persistence.ScenarioRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var run persistence.Run
	err := r.db.GetContext(ctx, &run, `
		SELECT run_id, analysis_date, scenarios, worst_scenario, elapsed_ms, created_at
		FROM runs WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query run: %w", err)
	}

	var rows []persistence.ScenarioRow
	err = r.db.SelectContext(ctx, &rows, `
		SELECT run_id, scenario_id, eve_total, nii_income, nii_expense, delta_eve, delta_nii, is_worst
		FROM scenario_results WHERE run_id = $1 ORDER BY scenario_id`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query scenario results: %w", err)
	}

	return &run, rows, nil
}

// ListRuns retrieves the most recent runs.
func (r *runsRepo) ListRuns(ctx context.Context, limit int) ([]persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	var runs []persistence.Run
	err := r.db.SelectContext(ctx, &runs, `
		SELECT run_id, analysis_date, scenarios, worst_scenario, elapsed_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Ping tests connectivity.
func (r *runsRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}
