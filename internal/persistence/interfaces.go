// Package persistence stores calculation results. Persistence is optional:
// when disabled the engine runs exactly the same and results only reach the
// caller.
package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/irrbb/internal/engine"
)

// Run is one persisted calculation run.
type Run struct {
	RunID        string    `db:"run_id"`
	AnalysisDate time.Time `db:"analysis_date"`
	Scenarios    int       `db:"scenarios"`
	WorstID      string    `db:"worst_scenario"`
	ElapsedMS    int64     `db:"elapsed_ms"`
	CreatedAt    time.Time `db:"created_at"`
}

// ScenarioRow is one scenario's summary inside a persisted run.
type ScenarioRow struct {
	RunID      string  `db:"run_id"`
	ScenarioID string  `db:"scenario_id"`
	EVETotal   float64 `db:"eve_total"`
	NIIIncome  float64 `db:"nii_income"`
	NIIExpense float64 `db:"nii_expense"`
	DeltaEVE   float64 `db:"delta_eve"`
	DeltaNII   float64 `db:"delta_nii"`
	IsWorst    bool    `db:"is_worst"`
}

// RowsFromReport flattens a report into its persisted scenario rows.
func RowsFromReport(r *engine.Report) (Run, []ScenarioRow) {
	run := Run{
		RunID:        r.RunID,
		AnalysisDate: r.AnalysisDate,
		Scenarios:    len(r.Results),
		ElapsedMS:    r.Elapsed.Milliseconds(),
	}
	if worst := r.WorstScenario(); worst != nil {
		run.WorstID = worst.ScenarioID
	}

	rows := make([]ScenarioRow, 0, len(r.Results))
	for i, res := range r.Results {
		s := r.Summary[i]
		rows = append(rows, ScenarioRow{
			RunID:      r.RunID,
			ScenarioID: res.ScenarioID,
			EVETotal:   res.EVE.Total,
			NIIIncome:  res.NII.Income,
			NIIExpense: res.NII.Expense,
			DeltaEVE:   s.DeltaEVE,
			DeltaNII:   s.DeltaNII,
			IsWorst:    s.IsWorst,
		})
	}
	return run, rows
}

// RunsRepo stores and retrieves calculation runs.
type RunsRepo interface {
	SaveReport(ctx context.Context, report *engine.Report) error
	GetRun(ctx context.Context, runID string) (*Run, []ScenarioRow, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Ping(ctx context.Context) error
}
