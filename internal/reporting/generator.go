package reporting

import (
	"sort"
	"time"

	"chart-strategy-lab/internal/decision"
	"chart-strategy-lab/internal/domain"
)

// Generator assembles render-ready reports from run output.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for one run. verdict may be nil when no
// acceptance gate was applied. The input is not mutated; trades are copied
// and sorted by entry time, then trade ID.
func (g *Generator) Generate(result *domain.RunResult, summary domain.Summary, verdict *decision.Verdict) *Report {
	trades := make([]domain.Trade, len(result.Trades))
	copy(trades, result.Trades)
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].EntryTime.Equal(trades[j].EntryTime) {
			return trades[i].EntryTime.Before(trades[j].EntryTime)
		}
		return trades[i].TradeID < trades[j].TradeID
	})

	return &Report{
		GeneratedAt: g.now(),
		Run: RunFacts{
			RunID:          result.RunID,
			StrategyID:     result.StrategyID,
			Symbol:         result.Symbol,
			Timeframe:      result.Timeframe,
			State:          string(result.State),
			InitialCapital: result.InitialCapital,
			FinalEquity:    result.FinalEquity,
			BarsProcessed:  result.BarsProcessed,
			SignalsSeen:    result.SignalsSeen,
			OrdersRejected: result.OrdersRejected,
			OrdersDropped:  result.OrdersDropped,
			StartedAt:      result.StartedAt,
			FinishedAt:     result.FinishedAt,
			Err:            result.Err,
		},
		Summary:  summary,
		Verdict:  verdict,
		Trades:   trades,
		Warnings: append([]string(nil), result.Warnings...),
	}
}
