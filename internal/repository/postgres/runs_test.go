package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/churn-radar/internal/service/runs"
)

var runCols = []string{
	"id", "fingerprint", "rows", "active_customers", "primary_cohorts", "micro_cohorts",
	"cohort_sizes", "diagnostics", "roi_available", "net_profit", "created_at",
}

func TestRunRepoSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &runs.Summary{
		ID: "r1", Fingerprint: "fp", Rows: 10, ActiveCustomers: 8, PrimaryCohorts: 1,
		MicroCohorts: 3, CohortSizes: map[string]int{"Payment-sensitive churners": 4},
		Diagnostics: 2, ROIAvailable: true, NetProfit: 99.5, CreatedAt: at,
	}

	mock.ExpectExec("INSERT INTO churn_runs").
		WithArgs("r1", "fp", 10, 8, 1, 3, []byte(`{"Payment-sensitive churners":4}`), 2, true, 99.5, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRunRepo(db).Save(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRunRepo(db)
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM churn_runs WHERE id").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("r1", "fp", 10, 8, 1, 3, []byte(`{"A":4}`), 0, false, 0.0, at))

	s, err := repo.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "fp", s.Fingerprint)
	assert.Equal(t, map[string]int{"A": 4}, s.CohortSizes)
	assert.False(t, s.ROIAvailable)
	assert.Equal(t, at, s.CreatedAt)

	mock.ExpectQuery("SELECT (.+) FROM churn_runs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runCols))

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, runs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM churn_runs ORDER BY created_at DESC").
		WithArgs(runs.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("r2", "fp2", 5, 5, 2, 2, []byte(`{}`), 0, true, 10.0, at.Add(time.Hour)).
			AddRow("r1", "fp1", 10, 8, 1, 3, []byte(`{}`), 1, true, 5.0, at))

	list, err := NewRunRepo(db).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)
	assert.Equal(t, "r1", list[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS churn_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewRunRepo(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
