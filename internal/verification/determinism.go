package verification

import (
	"context"
	"fmt"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/domain"
)

// DeterminismReport is the outcome of executing the same backtest twice.
type DeterminismReport struct {
	RunID       string
	Match       bool
	Divergences []FieldDivergence
}

// VerifyDeterminism executes two independent backtests from identical inputs
// and compares the results field by field. Each execution gets a fresh
// strategy and backtester; the series is shared read-only.
func VerifyDeterminism(ctx context.Context, series *domain.Series, cfg backtest.Config, strategyCfg domain.StrategyConfig) (*DeterminismReport, error) {
	a, err := runOnce(ctx, series, cfg, strategyCfg)
	if err != nil {
		return nil, fmt.Errorf("first run: %w", err)
	}
	b, err := runOnce(ctx, series, cfg, strategyCfg)
	if err != nil {
		return nil, fmt.Errorf("second run: %w", err)
	}

	divs := compareResults(a, b)
	return &DeterminismReport{
		RunID:       a.RunID,
		Match:       len(divs) == 0,
		Divergences: divs,
	}, nil
}

// compareResults compares two run results. Decimal fields compare exactly;
// float fields within floatTolerance.
func compareResults(a, b *domain.RunResult) []FieldDivergence {
	var d diff

	d.strings("run_id", a.RunID, b.RunID)
	d.strings("state", string(a.State), string(b.State))
	d.decimals("final_equity", a.FinalEquity, b.FinalEquity)
	d.ints("bars_processed", a.BarsProcessed, b.BarsProcessed)
	d.ints("signals_seen", a.SignalsSeen, b.SignalsSeen)
	d.ints("orders_rejected", a.OrdersRejected, b.OrdersRejected)
	d.ints("orders_dropped", a.OrdersDropped, b.OrdersDropped)

	d.ints("trades.count", len(a.Trades), len(b.Trades))
	for i := 0; i < len(a.Trades) && i < len(b.Trades); i++ {
		compareTrade(&d, i, a.Trades[i], b.Trades[i])
	}

	d.ints("equity.count", len(a.EquityCurve), len(b.EquityCurve))
	for i := 0; i < len(a.EquityCurve) && i < len(b.EquityCurve); i++ {
		pa, pb := a.EquityCurve[i], b.EquityCurve[i]
		d.ints(fmt.Sprintf("equity[%d].bar", i), pa.Bar, pb.Bar)
		d.times(fmt.Sprintf("equity[%d].time", i), pa.Time, pb.Time)
		d.decimals(fmt.Sprintf("equity[%d].equity", i), pa.Equity, pb.Equity)
	}

	return d.divs
}

func compareTrade(d *diff, i int, a, b domain.Trade) {
	prefix := fmt.Sprintf("trade[%d].", i)
	d.strings(prefix+"trade_id", a.TradeID, b.TradeID)
	d.strings(prefix+"direction", string(a.Direction), string(b.Direction))
	d.decimals(prefix+"size", a.Size, b.Size)
	d.times(prefix+"entry_time", a.EntryTime, b.EntryTime)
	d.decimals(prefix+"entry_price", a.EntryPrice, b.EntryPrice)
	d.times(prefix+"exit_time", a.ExitTime, b.ExitTime)
	d.decimals(prefix+"exit_price", a.ExitPrice, b.ExitPrice)
	d.strings(prefix+"exit_reason", a.ExitReason, b.ExitReason)
	d.decimals(prefix+"pnl", a.PnL, b.PnL)
	d.decimals(prefix+"fees", a.Fees, b.Fees)
	d.strings(prefix+"pattern", a.Pattern, b.Pattern)
	d.floats(prefix+"confidence", a.Confidence, b.Confidence)
	d.ints(prefix+"holding_bars", a.HoldingBars, b.HoldingBars)
	d.strings(prefix+"outcome", a.Outcome, b.Outcome)
}
