package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// RenderCSV writes one row per trade followed by a summary stanza in
// comment lines.
func RenderCSV(w io.Writer, r *Report) error {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,direction,size,entry_time,entry_price,exit_time,exit_price,")
	sb.WriteString("exit_reason,pnl,fees,pattern,confidence,holding_bars,outcome\n")

	// Rows
	for _, t := range r.Trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%.4f,%d,%s\n",
			t.TradeID,
			t.Direction,
			t.Size,
			t.EntryTime.Format(time.RFC3339),
			t.EntryPrice,
			t.ExitTime.Format(time.RFC3339),
			t.ExitPrice,
			t.ExitReason,
			t.PnL,
			t.Fees,
			t.Pattern,
			t.Confidence,
			t.HoldingBars,
			t.Outcome,
		))
	}

	// Summary stanza
	sb.WriteString("# summary\n")
	sb.WriteString(fmt.Sprintf("# run_id,%s\n", r.Run.RunID))
	sb.WriteString(fmt.Sprintf("# strategy_id,%s\n", r.Run.StrategyID))
	sb.WriteString(fmt.Sprintf("# symbol,%s\n", r.Run.Symbol))
	sb.WriteString(fmt.Sprintf("# timeframe,%s\n", r.Run.Timeframe))
	sb.WriteString(fmt.Sprintf("# total_trades,%d\n", r.Summary.TotalTrades))
	sb.WriteString(fmt.Sprintf("# wins,%d\n", r.Summary.Wins))
	sb.WriteString(fmt.Sprintf("# losses,%d\n", r.Summary.Losses))
	sb.WriteString(fmt.Sprintf("# win_rate,%.6f\n", r.Summary.WinRate))
	sb.WriteString(fmt.Sprintf("# total_pnl,%.6f\n", r.Summary.TotalPnL))
	sb.WriteString(fmt.Sprintf("# profit_factor,%.6f\n", r.Summary.ProfitFactor))
	sb.WriteString(fmt.Sprintf("# expectancy,%.6f\n", r.Summary.Expectancy))
	sb.WriteString(fmt.Sprintf("# max_drawdown,%.6f\n", r.Summary.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("# max_consecutive_losses,%d\n", r.Summary.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("# total_return,%.6f\n", r.Summary.TotalReturn))
	sb.WriteString(fmt.Sprintf("# final_equity,%.6f\n", r.Summary.FinalEquity))

	_, err := io.WriteString(w, sb.String())
	return err
}
