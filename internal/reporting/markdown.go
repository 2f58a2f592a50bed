package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"chart-strategy-lab/internal/decision"
)

const tradeTimeLayout = "2006-01-02 15:04"

// RenderMarkdown writes the report as Markdown.
func RenderMarkdown(w io.Writer, r *Report) error {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run facts
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", r.Run.RunID))
	sb.WriteString(fmt.Sprintf("| Strategy | %s |\n", r.Run.StrategyID))
	sb.WriteString(fmt.Sprintf("| Symbol | %s |\n", r.Run.Symbol))
	sb.WriteString(fmt.Sprintf("| Timeframe | %s |\n", r.Run.Timeframe))
	sb.WriteString(fmt.Sprintf("| State | %s |\n", r.Run.State))
	sb.WriteString(fmt.Sprintf("| Initial Capital | %s |\n", r.Run.InitialCapital))
	sb.WriteString(fmt.Sprintf("| Final Equity | %s |\n", r.Run.FinalEquity))
	sb.WriteString(fmt.Sprintf("| Bars Processed | %d |\n", r.Run.BarsProcessed))
	sb.WriteString(fmt.Sprintf("| Signals Seen | %d |\n", r.Run.SignalsSeen))
	sb.WriteString(fmt.Sprintf("| Orders Rejected | %d |\n", r.Run.OrdersRejected))
	sb.WriteString(fmt.Sprintf("| Orders Dropped | %d |\n", r.Run.OrdersDropped))
	sb.WriteString(fmt.Sprintf("| Started | %s |\n", r.Run.StartedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Finished | %s |\n", r.Run.FinishedAt.Format(time.RFC3339)))
	if r.Run.Err != "" {
		sb.WriteString(fmt.Sprintf("| Error | %s |\n", r.Run.Err))
	}
	sb.WriteString("\n")

	// Performance metrics
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", r.Summary.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Wins | %d |\n", r.Summary.Wins))
	sb.WriteString(fmt.Sprintf("| Losses | %d |\n", r.Summary.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", r.Summary.WinRate))
	sb.WriteString(fmt.Sprintf("| Total PnL | %.4f |\n", r.Summary.TotalPnL))
	sb.WriteString(fmt.Sprintf("| Avg Win | %.4f |\n", r.Summary.AvgWin))
	sb.WriteString(fmt.Sprintf("| Avg Loss | %.4f |\n", r.Summary.AvgLoss))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %.4f |\n", r.Summary.ProfitFactor))
	sb.WriteString(fmt.Sprintf("| Expectancy | %.4f |\n", r.Summary.Expectancy))
	sb.WriteString(fmt.Sprintf("| PnL Stddev | %.4f |\n", r.Summary.PnLStddev))
	sb.WriteString(fmt.Sprintf("| PnL Median | %.4f |\n", r.Summary.PnLMedian))
	sb.WriteString(fmt.Sprintf("| Best Trade | %.4f |\n", r.Summary.BestTrade))
	sb.WriteString(fmt.Sprintf("| Worst Trade | %.4f |\n", r.Summary.WorstTrade))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.4f |\n", r.Summary.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", r.Summary.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Avg Holding Bars | %.2f |\n", r.Summary.AvgHoldingBars))
	sb.WriteString(fmt.Sprintf("| Total Return | %.4f |\n", r.Summary.TotalReturn))
	sb.WriteString("\n")

	// Verdict
	if r.Verdict != nil {
		sb.WriteString(decision.RenderMarkdown(*r.Verdict))
		sb.WriteString("\n")
	}

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| # | Trade ID | Dir | Size | Entry | Entry Px | Exit | Exit Px | Reason | PnL | Bars | Outcome |\n")
		sb.WriteString("|---|----------|-----|------|-------|----------|------|---------|--------|-----|------|--------|\n")
		for i, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s | %s | %s | %d | %s |\n",
				i+1, t.TradeID, t.Direction, t.Size,
				t.EntryTime.Format(tradeTimeLayout), t.EntryPrice,
				t.ExitTime.Format(tradeTimeLayout), t.ExitPrice,
				t.ExitReason, t.PnL, t.HoldingBars, t.Outcome))
		}
	} else {
		sb.WriteString("No trades closed.\n")
	}
	sb.WriteString("\n")

	// Warnings
	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, warning := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", warning))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
