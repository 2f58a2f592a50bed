package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// testRun builds a run fixture with warnings populated.
func testRun(runID string, startedAt time.Time) *domain.RunResult {
	return &domain.RunResult{
		RunID:          runID,
		StrategyID:     "momentum-breakout-v1",
		Symbol:         "ETHUSDT",
		Timeframe:      "4h",
		State:          domain.RunStateFinished,
		InitialCapital: decimal.NewFromInt(10000),
		FinalEquity:    decimal.NewFromFloat(11234.56),
		BarsProcessed:  1200,
		SignalsSeen:    48,
		OrdersRejected: 2,
		OrdersDropped:  1,
		Warnings:       []string{"bar 17: gap exceeds timeframe"},
		StartedAt:      startedAt,
		FinishedAt:     startedAt.Add(3 * time.Second),
	}
}

func TestRunStore_SaveAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := testRun("run-get", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	err := store.SaveRun(ctx, run)
	require.NoError(t, err)

	got, err := store.GetRun(ctx, "run-get")
	require.NoError(t, err)

	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, run.StrategyID, got.StrategyID)
	assert.Equal(t, run.Symbol, got.Symbol)
	assert.Equal(t, run.Timeframe, got.Timeframe)
	assert.Equal(t, run.State, got.State)
	assert.Equal(t, run.BarsProcessed, got.BarsProcessed)
	assert.Equal(t, run.SignalsSeen, got.SignalsSeen)
	assert.Equal(t, run.OrdersRejected, got.OrdersRejected)
	assert.Equal(t, run.OrdersDropped, got.OrdersDropped)
	assert.Equal(t, run.Warnings, got.Warnings)
	assert.Equal(t, run.Err, got.Err)
	assert.True(t, run.InitialCapital.Equal(got.InitialCapital), "initial capital: want %s, got %s", run.InitialCapital, got.InitialCapital)
	assert.True(t, run.FinalEquity.Equal(got.FinalEquity), "final equity: want %s, got %s", run.FinalEquity, got.FinalEquity)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
	assert.WithinDuration(t, run.FinishedAt, got.FinishedAt, time.Second)

	// Trades and equity curve stay in their own stores.
	assert.Nil(t, got.Trades)
	assert.Nil(t, got.EquityCurve)
}

func TestRunStore_SaveFailedRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := testRun("run-failed", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	run.State = domain.RunStateFailed
	run.Err = "backtest failed during simulate: context canceled"
	run.Warnings = nil

	err := store.SaveRun(ctx, run)
	require.NoError(t, err)

	got, err := store.GetRun(ctx, "run-failed")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Equal(t, run.Err, got.Err)
	assert.Nil(t, got.Warnings)
}

func TestRunStore_SaveDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := testRun("run-dup", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	err := store.SaveRun(ctx, run)
	require.NoError(t, err)

	err = store.SaveRun(ctx, run)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	_, err := store.GetRun(ctx, "missing-run")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_ListRuns(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-list-old", "run-list-mid", "run-list-new"} {
		run := testRun(runID, base.Add(time.Duration(i)*time.Hour))
		err := store.SaveRun(ctx, run)
		require.NoError(t, err)
	}

	// Newest first.
	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-list-new", runs[0].RunID)
	assert.Equal(t, "run-list-mid", runs[1].RunID)
	assert.Equal(t, "run-list-old", runs[2].RunID)

	// Limit applies after ordering.
	limited, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "run-list-new", limited[0].RunID)
	assert.Equal(t, "run-list-mid", limited[1].RunID)
}

func TestRunStore_EquityCurveRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runID := createTestRun(t, ctx, pool, "run-equity")

	store := NewRunStore(pool)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	points := []domain.EquityPoint{
		{Time: base, Bar: 0, Equity: decimal.NewFromInt(10000)},
		{Time: base.Add(time.Hour), Bar: 1, Equity: decimal.NewFromFloat(10012.5)},
		{Time: base.Add(2 * time.Hour), Bar: 2, Equity: decimal.NewFromFloat(9987.25)},
	}

	err := store.SaveEquityCurve(ctx, runID, points)
	require.NoError(t, err)

	got, err := store.GetEquityCurve(ctx, runID)
	require.NoError(t, err)

	require.Len(t, got, 3)
	for i, p := range points {
		assert.Equal(t, p.Bar, got[i].Bar)
		assert.True(t, p.Equity.Equal(got[i].Equity), "point %d: want %s, got %s", i, p.Equity, got[i].Equity)
		assert.WithinDuration(t, p.Time, got[i].Time, time.Second)
	}
}

func TestRunStore_EquityCurveDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runID := createTestRun(t, ctx, pool, "run-equity-dup")

	store := NewRunStore(pool)
	points := []domain.EquityPoint{
		{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Bar: 0, Equity: decimal.NewFromInt(10000)},
	}

	err := store.SaveEquityCurve(ctx, runID, points)
	require.NoError(t, err)

	err = store.SaveEquityCurve(ctx, runID, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_EquityCurveNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	_, err := store.GetEquityCurve(ctx, "missing-run")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
