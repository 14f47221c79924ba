package predictions

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketmind/internal/database"
	"marketmind/internal/domain"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_predictions_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "core",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	cleanup := func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
	}

	return db, cleanup
}

func newPrediction(symbol string, weekStart time.Time) domain.WeeklyPrediction {
	return domain.WeeklyPrediction{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		PredictionDate: weekStart.AddDate(0, 0, -2),
		WeekStart:      weekStart,
		WeekEnd:        weekStart.AddDate(0, 0, 4),
		Forecast: []domain.DayForecast{
			{Day: "Monday", PredictedClose: 24500},
			{Day: "Tuesday", PredictedClose: 24550},
			{Day: "Wednesday", PredictedClose: 24600},
			{Day: "Thursday", PredictedClose: 24580},
			{Day: "Friday", PredictedClose: 24650},
		},
		Reasoning: "Range-bound week expected",
		Status:    domain.PredictionPending,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestRepository_CreateAndForWeek(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())
	weekStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	p := newPrediction("^NSEI", weekStart)
	require.NoError(t, repo.Create(p))

	got, err := repo.ForWeek("^NSEI", weekStart)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, domain.PredictionPending, got.Status)
	assert.Equal(t, "Range-bound week expected", got.Reasoning)
	require.Len(t, got.Forecast, 5)
	assert.Equal(t, "Wednesday", got.Forecast[2].Day)
	assert.InDelta(t, 24600, got.Forecast[2].PredictedClose, 1e-9)
	assert.Nil(t, got.ActualClose)
	assert.Nil(t, got.ReconciledAt)
}

func TestRepository_ForWeekMissingIsNotError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.ForWeek("^NSEI", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_CreateRejectsDuplicateWeek(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())
	weekStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(newPrediction("^NSEI", weekStart)))

	err := repo.Create(newPrediction("^NSEI", weekStart))
	require.ErrorIs(t, err, ErrDuplicateWeek)

	// Same week for a different symbol is fine.
	require.NoError(t, repo.Create(newPrediction("^BSESN", weekStart)))
}

func TestRepository_CreateRejectsEmptyForecast(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())

	p := newPrediction("^NSEI", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	p.Forecast = nil
	require.Error(t, repo.Create(p))
}

func TestRepository_ReconcileIsExactlyOnce(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())
	weekStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	p := newPrediction("^NSEI", weekStart)
	require.NoError(t, repo.Create(p))

	at := weekStart.AddDate(0, 0, 7)
	require.NoError(t, repo.Reconcile(p.ID, 24612.5, "Average absolute error 0.4%", at))

	got, err := repo.ForWeek("^NSEI", weekStart)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PredictionReconciled, got.Status)
	require.NotNil(t, got.ActualClose)
	assert.InDelta(t, 24612.5, *got.ActualClose, 1e-9)
	require.NotNil(t, got.PerformanceSummary)
	assert.Contains(t, *got.PerformanceSummary, "0.4%")
	require.NotNil(t, got.ReconciledAt)

	// A second reconciliation must not overwrite the first.
	err = repo.Reconcile(p.ID, 99999, "overwrite attempt", at.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already reconciled")

	again, err := repo.ForWeek("^NSEI", weekStart)
	require.NoError(t, err)
	assert.InDelta(t, 24612.5, *again.ActualClose, 1e-9)
}

func TestRepository_ReconcileUnknownID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())
	require.Error(t, repo.Reconcile(uuid.NewString(), 1000, "summary", time.Now()))
}

func TestRepository_PendingEnded(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())

	ended := newPrediction("^NSEI", time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC))
	current := newPrediction("^NSEI", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	endedOther := newPrediction("^BSESN", time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ended))
	require.NoError(t, repo.Create(current))
	require.NoError(t, repo.Create(endedOther))

	// Reconciled rows drop out of the pending set.
	require.NoError(t, repo.Reconcile(endedOther.ID, 81000, "done", time.Now()))

	pending, err := repo.PendingEnded(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ended.ID, pending[0].ID)
}

func TestRepository_PendingForWeekAndRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, zerolog.Nop())

	weekA := time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC)
	weekB := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	pA := newPrediction("^NSEI", weekA)
	pB := newPrediction("^NSEI", weekB)
	require.NoError(t, repo.Create(pA))
	require.NoError(t, repo.Create(pB))

	pendingA, err := repo.PendingForWeek(weekA)
	require.NoError(t, err)
	require.Len(t, pendingA, 1)
	assert.Equal(t, pA.ID, pendingA[0].ID)

	recent, err := repo.RecentForSymbol("^NSEI", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, pB.ID, recent[0].ID)

	require.NoError(t, repo.Reconcile(pA.ID, 24400, "ok", time.Now()))
	evals, err := repo.RecentEvaluations(10)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, pA.ID, evals[0].ID)
}
