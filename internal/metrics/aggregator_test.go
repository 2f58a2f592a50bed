package metrics

import (
	"math"
	"testing"

	"chart-strategy-lab/internal/domain"
)

func makeSummary(runID, strategyID string, totalPnL float64, trades, wins, losses int) domain.Summary {
	return domain.Summary{
		RunID:       runID,
		StrategyID:  strategyID,
		Symbol:      "BTCUSDT",
		TotalTrades: trades,
		Wins:        wins,
		Losses:      losses,
		TotalPnL:    totalPnL,
	}
}

func TestAggregate_Empty(t *testing.T) {
	if got := Aggregate(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := Aggregate([]domain.Summary{}); got != nil {
		t.Errorf("expected nil for empty slice, got %v", got)
	}
}

func TestAggregate_GroupsByStrategy(t *testing.T) {
	summaries := []domain.Summary{
		makeSummary("run-1", "momentum-breakout-v1", 100, 10, 6, 4),
		makeSummary("run-2", "bollinger-fade-v1", 50, 8, 4, 4),
		makeSummary("run-3", "momentum-breakout-v1", -30, 12, 5, 7),
	}

	rollups := Aggregate(summaries)

	if len(rollups) != 2 {
		t.Fatalf("expected 2 rollups, got %d", len(rollups))
	}
	// Sorted by StrategyID ASC
	if rollups[0].StrategyID != "bollinger-fade-v1" {
		t.Errorf("expected first rollup bollinger-fade-v1, got %s", rollups[0].StrategyID)
	}
	if rollups[1].StrategyID != "momentum-breakout-v1" {
		t.Errorf("expected second rollup momentum-breakout-v1, got %s", rollups[1].StrategyID)
	}
	if rollups[0].Runs != 1 {
		t.Errorf("expected 1 run for bollinger-fade-v1, got %d", rollups[0].Runs)
	}
	if rollups[1].Runs != 2 {
		t.Errorf("expected 2 runs for momentum-breakout-v1, got %d", rollups[1].Runs)
	}
}

func TestAggregate_MergesCounts(t *testing.T) {
	summaries := []domain.Summary{
		makeSummary("run-1", "s1", 100, 10, 6, 4),
		makeSummary("run-2", "s1", -40, 20, 8, 12),
	}

	rollups := Aggregate(summaries)

	if len(rollups) != 1 {
		t.Fatalf("expected 1 rollup, got %d", len(rollups))
	}
	r := rollups[0]

	if r.TotalTrades != 30 {
		t.Errorf("expected TotalTrades 30, got %d", r.TotalTrades)
	}
	if r.Wins != 14 {
		t.Errorf("expected Wins 14, got %d", r.Wins)
	}
	if r.Losses != 16 {
		t.Errorf("expected Losses 16, got %d", r.Losses)
	}
	// WinRate = 14/30, recomputed from merged counts rather than averaging rates
	if math.Abs(r.WinRate-14.0/30.0) > 0.0001 {
		t.Errorf("expected WinRate %.4f, got %.4f", 14.0/30.0, r.WinRate)
	}
	if math.Abs(r.TotalPnL-60) > 0.0001 {
		t.Errorf("expected TotalPnL 60, got %f", r.TotalPnL)
	}
	// AvgRunPnL = 60/2 = 30
	if math.Abs(r.AvgRunPnL-30) > 0.0001 {
		t.Errorf("expected AvgRunPnL 30, got %f", r.AvgRunPnL)
	}
	if r.ProfitableRuns != 1 {
		t.Errorf("expected ProfitableRuns 1, got %d", r.ProfitableRuns)
	}
}

func TestAggregate_BestWorstRun(t *testing.T) {
	summaries := []domain.Summary{
		makeSummary("run-mid", "s1", 20, 5, 3, 2),
		makeSummary("run-best", "s1", 150, 5, 4, 1),
		makeSummary("run-worst", "s1", -80, 5, 1, 4),
	}

	rollups := Aggregate(summaries)
	r := rollups[0]

	if r.BestRunID != "run-best" || math.Abs(r.BestRunPnL-150) > 0.0001 {
		t.Errorf("expected best run-best with 150, got %s with %f", r.BestRunID, r.BestRunPnL)
	}
	if r.WorstRunID != "run-worst" || math.Abs(r.WorstRunPnL-(-80)) > 0.0001 {
		t.Errorf("expected worst run-worst with -80, got %s with %f", r.WorstRunID, r.WorstRunPnL)
	}
}

func TestAggregate_WorstDrawdownAndAvgReturn(t *testing.T) {
	a := makeSummary("run-1", "s1", 10, 5, 3, 2)
	a.MaxDrawdown = 0.12
	a.TotalReturn = 0.05
	b := makeSummary("run-2", "s1", 20, 5, 3, 2)
	b.MaxDrawdown = 0.31
	b.TotalReturn = -0.01

	rollups := Aggregate([]domain.Summary{a, b})
	r := rollups[0]

	if math.Abs(r.MaxDrawdown-0.31) > 0.0001 {
		t.Errorf("expected MaxDrawdown 0.31 (worst across runs), got %f", r.MaxDrawdown)
	}
	// AvgReturn = (0.05 + -0.01) / 2 = 0.02
	if math.Abs(r.AvgReturn-0.02) > 0.0001 {
		t.Errorf("expected AvgReturn 0.02, got %f", r.AvgReturn)
	}
}
