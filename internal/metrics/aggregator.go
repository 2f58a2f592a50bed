package metrics

import (
	"sort"

	"chart-strategy-lab/internal/domain"
)

// StrategyRollup merges summaries of every run a strategy appeared in.
// Sweeps execute the same strategy across symbols or parameter sets; the
// rollup answers how the strategy did overall.
type StrategyRollup struct {
	StrategyID string
	Runs       int

	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // total wins / total trades across runs

	TotalPnL       float64 // summed across runs
	AvgRunPnL      float64 // TotalPnL / Runs
	BestRunID      string  // run with the highest TotalPnL
	BestRunPnL     float64
	WorstRunID     string // run with the lowest TotalPnL
	WorstRunPnL    float64
	MaxDrawdown    float64 // worst fraction across runs
	AvgReturn      float64 // mean TotalReturn across runs
	ProfitableRuns int     // runs with TotalPnL > 0
}

// Aggregate groups summaries by strategy and merges each group into a rollup.
// Result is sorted by StrategyID ASC for deterministic output.
func Aggregate(summaries []domain.Summary) []StrategyRollup {
	if len(summaries) == 0 {
		return nil
	}

	byStrategy := make(map[string][]domain.Summary)
	for _, s := range summaries {
		byStrategy[s.StrategyID] = append(byStrategy[s.StrategyID], s)
	}

	ids := make([]string, 0, len(byStrategy))
	for id := range byStrategy {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rollups := make([]StrategyRollup, 0, len(ids))
	for _, id := range ids {
		rollups = append(rollups, mergeSummaries(id, byStrategy[id]))
	}
	return rollups
}

// mergeSummaries folds one strategy's run summaries into a rollup.
func mergeSummaries(strategyID string, group []domain.Summary) StrategyRollup {
	r := StrategyRollup{
		StrategyID:  strategyID,
		Runs:        len(group),
		BestRunPnL:  group[0].TotalPnL,
		BestRunID:   group[0].RunID,
		WorstRunPnL: group[0].TotalPnL,
		WorstRunID:  group[0].RunID,
	}

	returnSum := 0.0
	for _, s := range group {
		r.TotalTrades += s.TotalTrades
		r.Wins += s.Wins
		r.Losses += s.Losses
		r.TotalPnL += s.TotalPnL
		returnSum += s.TotalReturn

		if s.TotalPnL > r.BestRunPnL {
			r.BestRunPnL = s.TotalPnL
			r.BestRunID = s.RunID
		}
		if s.TotalPnL < r.WorstRunPnL {
			r.WorstRunPnL = s.TotalPnL
			r.WorstRunID = s.RunID
		}
		if s.MaxDrawdown > r.MaxDrawdown {
			r.MaxDrawdown = s.MaxDrawdown
		}
		if s.TotalPnL > 0 {
			r.ProfitableRuns++
		}
	}

	r.WinRate = computeWinRate(r.Wins, r.TotalTrades)
	r.AvgRunPnL = r.TotalPnL / float64(r.Runs)
	r.AvgReturn = returnSum / float64(r.Runs)
	return r
}
