package decision

import (
	"fmt"

	"chart-strategy-lab/internal/domain"
)

// Evaluate judges a run summary against the thresholds.
// Every check is always evaluated so the verdict shows the full picture even
// when an early check already failed.
func (t Thresholds) Evaluate(summary domain.Summary) Verdict {
	checks := []Check{
		{
			Name: "trade count",
			Want: fmt.Sprintf(">= %d", t.MinTrades),
			Got:  fmt.Sprintf("%d", summary.TotalTrades),
			Pass: summary.TotalTrades >= t.MinTrades,
		},
		{
			Name: "win rate",
			Want: fmt.Sprintf(">= %.2f", t.MinWinRate),
			Got:  fmt.Sprintf("%.4f", summary.WinRate),
			Pass: summary.WinRate >= t.MinWinRate,
		},
		{
			Name: "max drawdown",
			Want: fmt.Sprintf("<= %.2f", t.MaxDrawdown),
			Got:  fmt.Sprintf("%.4f", summary.MaxDrawdown),
			Pass: summary.MaxDrawdown <= t.MaxDrawdown,
		},
		{
			// +Inf profit factor (no losing trades) formats as "+Inf" and passes
			Name: "profit factor",
			Want: fmt.Sprintf(">= %.2f", t.MinProfitFactor),
			Got:  fmt.Sprintf("%.2f", summary.ProfitFactor),
			Pass: summary.ProfitFactor >= t.MinProfitFactor,
		},
	}

	pass := true
	for _, c := range checks {
		if !c.Pass {
			pass = false
			break
		}
	}

	return Verdict{
		RunID:      summary.RunID,
		StrategyID: summary.StrategyID,
		Pass:       pass,
		Checks:     checks,
	}
}
