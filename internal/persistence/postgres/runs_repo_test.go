package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/irrbb/internal/analytics"
	"github.com/sawpanic/irrbb/internal/engine"
)

func mockRepo(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func sampleReport() *engine.Report {
	return &engine.Report{
		RunID:        "7b3f8d1e-0000-0000-0000-000000000001",
		AnalysisDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Results: []engine.ScenarioResult{
			{ScenarioID: "base", EVE: analytics.EVEResult{Total: 1000}, NII: analytics.NIIResult{Income: 50, Expense: -10}},
			{ScenarioID: "parallel-up", EVE: analytics.EVEResult{Total: 900}, NII: analytics.NIIResult{Income: 55, Expense: -12}},
		},
		Summary: []engine.Summary{
			{ScenarioID: "base", EVE: 1000, NetNII: 40},
			{ScenarioID: "parallel-up", EVE: 900, NetNII: 43, DeltaEVE: -100, DeltaNII: 3, IsWorst: true},
		},
		Elapsed: 125 * time.Millisecond,
	}
}

func TestSaveReport(t *testing.T) {
	db, mock := mockRepo(t)
	repo := NewRunsRepo(db, 5*time.Second)
	report := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(report.RunID, report.AnalysisDate, 2, "parallel-up", int64(125)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO scenario_results")
	mock.ExpectExec("INSERT INTO scenario_results").
		WithArgs(report.RunID, "base", 1000.0, 50.0, -10.0, 0.0, 0.0, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO scenario_results").
		WithArgs(report.RunID, "parallel-up", 900.0, 55.0, -12.0, -100.0, 3.0, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveReport(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReport_RollbackOnFailure(t *testing.T) {
	db, mock := mockRepo(t)
	repo := NewRunsRepo(db, 5*time.Second)
	report := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.SaveReport(context.Background(), report)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	db, mock := mockRepo(t)
	repo := NewRunsRepo(db, 5*time.Second)

	runID := "7b3f8d1e-0000-0000-0000-000000000001"
	created := time.Now()
	mock.ExpectQuery("SELECT run_id, analysis_date, scenarios").
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "analysis_date", "scenarios", "worst_scenario", "elapsed_ms", "created_at"}).
			AddRow(runID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 2, "parallel-up", int64(125), created))
	mock.ExpectQuery("SELECT run_id, scenario_id, eve_total").
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "scenario_id", "eve_total", "nii_income", "nii_expense", "delta_eve", "delta_nii", "is_worst"}).
			AddRow(runID, "base", 1000.0, 50.0, -10.0, 0.0, 0.0, false).
			AddRow(runID, "parallel-up", 900.0, 55.0, -12.0, -100.0, 3.0, true))

	run, rows, err := repo.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "parallel-up", run.WorstID)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].IsWorst)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun_NotFound(t *testing.T) {
	db, mock := mockRepo(t)
	repo := NewRunsRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT run_id, analysis_date, scenarios").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, _, err := repo.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListRuns(t *testing.T) {
	db, mock := mockRepo(t)
	repo := NewRunsRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT run_id, analysis_date, scenarios").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "analysis_date", "scenarios", "worst_scenario", "elapsed_ms", "created_at"}).
			AddRow("a", time.Now(), 7, "parallel-up", int64(10), time.Now()))

	runs, err := repo.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 7, runs[0].Scenarios)
}
