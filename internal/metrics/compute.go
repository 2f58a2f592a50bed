package metrics

import (
	"math"
	"sort"

	"chart-strategy-lab/internal/domain"
)

// Compute calculates a performance summary from a run's closed trades and
// equity curve. Trades are sorted by EntryTime ASC, TradeID ASC before
// computing order-dependent metrics (MaxConsecutiveLosses). Works on failed
// runs too; it summarizes whatever the run recorded.
func Compute(result *domain.RunResult) domain.Summary {
	s := domain.Summary{
		RunID:       result.RunID,
		StrategyID:  result.StrategyID,
		Symbol:      result.Symbol,
		FinalEquity: result.FinalEquity.InexactFloat64(),
	}

	initial := result.InitialCapital.InexactFloat64()
	if initial != 0 {
		s.TotalReturn = (s.FinalEquity - initial) / initial
	}

	s.MaxDrawdown, s.MaxDrawdownAbs = computeMaxDrawdown(result.EquityCurve)

	n := len(result.Trades)
	s.TotalTrades = n
	if n == 0 {
		return s
	}

	// Sort trades deterministically by EntryTime ASC, TradeID ASC
	sortedTrades := make([]domain.Trade, n)
	copy(sortedTrades, result.Trades)
	sort.Slice(sortedTrades, func(i, j int) bool {
		if !sortedTrades[i].EntryTime.Equal(sortedTrades[j].EntryTime) {
			return sortedTrades[i].EntryTime.Before(sortedTrades[j].EntryTime)
		}
		return sortedTrades[i].TradeID < sortedTrades[j].TradeID
	})

	// Decimal PnL converts to float64 at this analytics boundary.
	pnls := make([]float64, n)
	grossWins := 0.0
	grossLosses := 0.0
	holdingBars := 0
	for i, t := range sortedTrades {
		pnl := t.PnL.InexactFloat64()
		pnls[i] = pnl
		switch {
		case pnl > 0:
			s.Wins++
			grossWins += pnl
		case pnl < 0:
			s.Losses++
			grossLosses += -pnl
		}
		holdingBars += t.HoldingBars
	}

	sortedPnLs := make([]float64, n)
	copy(sortedPnLs, pnls)
	sort.Float64s(sortedPnLs)

	s.WinRate = computeWinRate(s.Wins, n)
	s.TotalPnL = computeSum(pnls)
	s.Expectancy = s.TotalPnL / float64(n)
	s.PnLStddev = computeStddev(pnls, s.Expectancy)
	s.PnLMedian = computePercentile(sortedPnLs, 0.50)
	s.PnLP25 = computePercentile(sortedPnLs, 0.25)
	s.PnLP75 = computePercentile(sortedPnLs, 0.75)
	s.BestTrade = sortedPnLs[n-1]
	s.WorstTrade = sortedPnLs[0]
	s.AvgHoldingBars = float64(holdingBars) / float64(n)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(pnls)

	if s.Wins > 0 {
		s.AvgWin = grossWins / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -grossLosses / float64(s.Losses)
	}
	s.ProfitFactor = computeProfitFactor(grossWins, grossLosses)

	return s
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeSum adds the values.
func computeSum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// computeProfitFactor calculates gross wins / gross losses. A run with wins
// and no losses yields +Inf; a run with neither yields 0.
func computeProfitFactor(grossWins, grossLosses float64) float64 {
	if grossLosses == 0 {
		if grossWins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossWins / grossLosses
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0 // Need at least 2 samples for sample stddev
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.25 = 25th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	// Linear interpolation
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown finds the worst peak-to-trough decline on the equity
// curve. Returns the decline as a fraction of the peak and in capital units.
// Points must be in chronological order.
func computeMaxDrawdown(curve []domain.EquityPoint) (float64, float64) {
	if len(curve) == 0 {
		return 0, 0
	}

	peak := math.Inf(-1)
	maxFrac := 0.0
	maxAbs := 0.0

	for _, p := range curve {
		equity := p.Equity.InexactFloat64()
		if equity > peak {
			peak = equity
		}
		drop := peak - equity
		if drop > maxAbs {
			maxAbs = drop
		}
		if peak > 0 && drop/peak > maxFrac {
			maxFrac = drop / peak
		}
	}
	return maxFrac, maxAbs
}

// computeMaxConsecutiveLosses finds the longest streak of pnl <= 0.
// PnLs must be in chronological order.
func computeMaxConsecutiveLosses(pnls []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, pnl := range pnls {
		if pnl <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
