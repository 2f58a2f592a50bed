// Package backtest simulates strategy execution over historical candle
// series: a decimal cash ledger, a run-once bar loop, and a storage-wired
// runner.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/idhash"
	"chart-strategy-lab/internal/observability"
	"chart-strategy-lab/internal/strategy"
)

// Backtester errors
var (
	ErrAlreadyRun = errors.New("backtester has already run")
)

// RunFailure wraps an error that aborted a run. The RunResult returned
// alongside keeps the trades and equity points recorded before the abort.
type RunFailure struct {
	Stage string // "config", "enrich", "preflight" or "simulate"
	Err   error
}

func (e *RunFailure) Error() string {
	return fmt.Sprintf("backtest failed during %s: %v", e.Stage, e.Err)
}

func (e *RunFailure) Unwrap() error { return e.Err }

// Config parameterizes a single backtest run.
type Config struct {
	InitialCapital      decimal.Decimal
	FeeBps              int64   // per-fill fee in basis points
	ConfidenceThreshold float64 // minimum signal confidence to act on, [0, 1]
	Logger              *log.Logger
	Metrics             *observability.Metrics // optional, nil-safe
}

func (c *Config) validate() error {
	if !c.InitialCapital.IsPositive() {
		return &domain.PreconditionError{Op: "backtest.config", Reason: "initial capital must be positive"}
	}
	if c.FeeBps < 0 {
		return &domain.PreconditionError{Op: "backtest.config", Reason: "fee bps must not be negative"}
	}
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &domain.PreconditionError{Op: "backtest.config", Reason: "confidence threshold must be within [0, 1]"}
	}
	return nil
}

// Backtester executes one strategy over one enriched series, bar by bar.
// An instance runs exactly once; build a fresh one per run.
type Backtester struct {
	cfg    Config
	logger *log.Logger
	state  domain.RunState
}

// New creates a backtester. A nil Logger falls back to log.Default().
func New(cfg Config) *Backtester {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Backtester{cfg: cfg, logger: logger, state: domain.RunStateIdle}
}

// Run executes the backtest over the series.
// Steps:
//  1. Gate the run-once state
//  2. Validate config, preflight the series against strategy requirements
//  3. Skip the warm-up prefix
//  4. Walk bars in order: exit check first, then entry signals, then equity
//  5. Force-close any open position at the final bar
//  6. Assemble the RunResult
//
// Per-bar order failures (validation, insufficient capital) are counted and
// skipped. Precondition failures and context cancellation abort the run with
// a *RunFailure; the returned RunResult keeps partial history either way.
func (b *Backtester) Run(ctx context.Context, series *domain.Series, strat strategy.Strategy) (*domain.RunResult, error) {
	// 1. Gate the run-once state
	if b.state != domain.RunStateIdle {
		return nil, ErrAlreadyRun
	}
	b.state = domain.RunStateRunning

	started := time.Now()
	result := &domain.RunResult{
		StrategyID:     strat.ID(),
		Symbol:         series.Symbol,
		Timeframe:      series.Timeframe,
		State:          domain.RunStateRunning,
		InitialCapital: b.cfg.InitialCapital,
		FinalEquity:    b.cfg.InitialCapital,
		StartedAt:      started,
	}

	// 2. Validate config, preflight the series
	if err := b.cfg.validate(); err != nil {
		return b.fail(result, "config", err)
	}
	req := strat.Requirements()
	if err := series.Check(req); err != nil {
		return b.fail(result, "preflight", err)
	}
	result.RunID = idhash.ComputeRunID(
		result.StrategyID,
		series.Symbol,
		series.Timeframe,
		series.Len(),
		series.Times[0].UnixMilli(),
		series.Times[series.Len()-1].UnixMilli(),
	)

	account := NewAccount(b.cfg.InitialCapital, b.cfg.FeeBps, b.logger)

	// 3. Skip the warm-up prefix. Detectors need at least one prior bar, so
	// the loop never starts before index 1.
	start := req.MinBars - 1
	if start < 1 {
		start = 1
	}
	if start >= series.Len() {
		result.Warnings = append(result.Warnings, "no bars after warm-up")
		b.logger.Printf("run %s: no bars after warm-up (min_bars=%d, series=%d)", shortID(result.RunID), req.MinBars, series.Len())
		return b.finish(result, started)
	}

	// 4. Walk bars in order
	for i := start; i < series.Len(); i++ {
		if err := ctx.Err(); err != nil {
			b.collect(result, account)
			return b.fail(result, "simulate", err)
		}

		w := domain.NewWindow(series, i)
		price := decimal.NewFromFloat(series.Close[i])

		if pos := account.Position(); pos != nil {
			// One account action per bar: after an exit no entry is taken.
			if strat.ShouldExit(w, pos) {
				b.exit(account, pos, price, series.Times[i], i, domain.ExitReasonStrategy, result)
			}
		} else {
			b.tryEnter(w, strat, account, price, i, result)
		}

		result.EquityCurve = append(result.EquityCurve, domain.EquityPoint{
			Time:   series.Times[i],
			Bar:    i,
			Equity: account.Equity(price),
		})
		result.BarsProcessed++
	}

	// 5. Force-close any open position at the final bar
	last := series.Len() - 1
	lastPrice := decimal.NewFromFloat(series.Close[last])
	if pos := account.Position(); pos != nil {
		b.exit(account, pos, lastPrice, series.Times[last], last, domain.ExitReasonEndOfData, result)
		// The final equity point reflects the forced close.
		result.EquityCurve[len(result.EquityCurve)-1].Equity = account.Equity(lastPrice)
	}

	// 6. Assemble the RunResult
	b.collect(result, account)
	result.FinalEquity = account.Equity(lastPrice)
	return b.finish(result, started)
}

// tryEnter evaluates entry signals at the current bar and applies at most
// one order. The first signal at or above the confidence threshold wins;
// strategies emit signals in a fixed order, which keeps the choice
// deterministic.
func (b *Backtester) tryEnter(w domain.Window, strat strategy.Strategy, account *Account, price decimal.Decimal, bar int, result *domain.RunResult) {
	sigs := strat.GenerateSignals(w)
	result.SignalsSeen += len(sigs)
	b.cfg.Metrics.RecordSignals(result.StrategyID, len(sigs))

	var sig *domain.Signal
	for i := range sigs {
		if sigs[i].Confidence >= b.cfg.ConfidenceThreshold {
			sig = &sigs[i]
			break
		}
	}
	if sig == nil {
		return
	}

	fraction := clamp01(strat.PositionSize(w, *sig))
	if fraction == 0 {
		return
	}
	quantity := account.Cash().Mul(decimal.NewFromFloat(fraction)).Div(price)

	typ := domain.OrderLong
	if sig.Direction == domain.DirectionShort {
		typ = domain.OrderShort
	}
	order, err := domain.NewOrder(typ, quantity, price, sig.Time, sig.Confidence)
	if err != nil {
		result.OrdersRejected++
		b.logger.Printf("order rejected at bar %d: %v", bar, err)
		b.cfg.Metrics.RecordOrderRejected(observability.ReasonValidation)
		return
	}
	order = order.WithPattern(sig.Pattern).WithATR(sig.ATR).WithLevels(sig.Target, sig.Stop)

	if err := account.Apply(order, bar); err != nil {
		var icErr *InsufficientCapitalError
		if errors.As(err, &icErr) {
			result.OrdersDropped++
			b.logger.Printf("order dropped at bar %d: %v", bar, err)
			b.cfg.Metrics.RecordOrderRejected(observability.ReasonInsufficientCapital)
			return
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("entry failed at bar %d: %v", bar, err))
	}
}

// exit closes the open position at price with the given reason.
func (b *Backtester) exit(account *Account, pos *domain.Position, price decimal.Decimal, at time.Time, bar int, reason string, result *domain.RunResult) {
	typ := domain.OrderSell
	if pos.Direction == domain.DirectionShort {
		typ = domain.OrderBuy
	}
	order, err := domain.NewOrder(typ, pos.Size, price, at, pos.Confidence)
	if err != nil {
		result.OrdersRejected++
		result.Warnings = append(result.Warnings, fmt.Sprintf("exit order rejected at bar %d: %v", bar, err))
		b.cfg.Metrics.RecordOrderRejected(observability.ReasonValidation)
		return
	}
	if err := account.Apply(order.WithReason(reason), bar); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("exit failed at bar %d: %v", bar, err))
	}
}

// collect copies the trade history onto the result and stamps identities.
// Entry times are unique within a run, so trade IDs are collision-free.
func (b *Backtester) collect(result *domain.RunResult, account *Account) {
	trades := account.Trades()
	for i := range trades {
		trades[i].RunID = result.RunID
		trades[i].StrategyID = result.StrategyID
		trades[i].Symbol = result.Symbol
		trades[i].TradeID = idhash.ComputeTradeID(result.RunID, result.Symbol, trades[i].EntryTime.UnixMilli(), string(trades[i].Direction))
	}
	result.Trades = trades
}

func (b *Backtester) finish(result *domain.RunResult, started time.Time) (*domain.RunResult, error) {
	b.state = domain.RunStateFinished
	result.State = domain.RunStateFinished
	result.FinishedAt = time.Now()

	for i := range result.Trades {
		b.cfg.Metrics.RecordTrade(result.StrategyID, string(result.Trades[i].Direction))
	}
	b.cfg.Metrics.RecordRun(result.StrategyID, string(result.State), time.Since(started), result.BarsProcessed)
	b.cfg.Metrics.SetLastRunEquity(result.FinalEquity.InexactFloat64())

	b.logger.Printf("run %s finished: %d bars, %d trades, final equity %s",
		shortID(result.RunID), result.BarsProcessed, len(result.Trades), result.FinalEquity)
	return result, nil
}

func (b *Backtester) fail(result *domain.RunResult, stage string, err error) (*domain.RunResult, error) {
	b.state = domain.RunStateFailed
	result.State = domain.RunStateFailed
	result.Err = err.Error()
	result.FinishedAt = time.Now()

	b.cfg.Metrics.RecordRun(result.StrategyID, string(result.State), time.Since(result.StartedAt), result.BarsProcessed)

	b.logger.Printf("run %s failed during %s: %v", shortID(result.RunID), stage, err)
	return result, &RunFailure{Stage: stage, Err: err}
}

// clamp01 bounds a position fraction to [0, 1]; NaN collapses to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// shortID abbreviates a run ID for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
