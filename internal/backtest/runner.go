package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/enrich"
	"chart-strategy-lab/internal/preflight"
	"chart-strategy-lab/internal/storage"
	"chart-strategy-lab/internal/strategy"
)

// RunnerConfig wires a runner to its collaborators. Bars may be nil when
// every run provides its series directly; a nil Runs skips persistence
// entirely.
type RunnerConfig struct {
	Backtest Config
	Bars     storage.BarSeriesStore
	Runs     storage.RunStore
	Trades   storage.TradeStore
	Enricher *enrich.Enricher
}

// Runner prepares, executes and persists complete backtest runs: it builds
// the strategy, enriches the series for its requirements, gates on data
// quality, simulates, and stores the outcome. Safe to reuse across runs;
// each run gets a fresh Backtester.
type Runner struct {
	cfg      RunnerConfig
	logger   *log.Logger
	enricher *enrich.Enricher
}

// NewRunner creates a runner. A nil Enricher gets a private cache; a nil
// Backtest.Logger falls back to log.Default().
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Backtest.Logger
	if logger == nil {
		logger = log.Default()
	}
	enricher := cfg.Enricher
	if enricher == nil {
		enricher = enrich.NewEnricher()
	}
	return &Runner{cfg: cfg, logger: logger, enricher: enricher}
}

// RunStored loads the series for symbol and timeframe from the bar store and
// executes the strategy config over it.
func (r *Runner) RunStored(ctx context.Context, symbol, timeframe string, sc domain.StrategyConfig) (*domain.RunResult, error) {
	if r.cfg.Bars == nil {
		return nil, &domain.PreconditionError{Op: "runner", Reason: "no bar store configured"}
	}

	t0 := time.Now()
	series, err := r.cfg.Bars.GetSeries(ctx, symbol, timeframe)
	r.cfg.Backtest.Metrics.RecordDBQuery("bars", "get_series", time.Since(t0), err)
	if err != nil {
		return nil, fmt.Errorf("load series %s/%s: %w", symbol, timeframe, err)
	}

	return r.RunSeries(ctx, series, sc)
}

// RunSeries executes the strategy config over the provided series.
// Steps:
//  1. Build the strategy from its config
//  2. Enrich the series for the strategy's requirements
//  3. Preflight the candle data
//  4. Simulate
//  5. Persist run, trades and equity curve
//
// Failures before the simulation return a nil result wrapped in *RunFailure
// with the stage that refused. A simulate-stage failure still persists the
// partial result before the error is returned.
func (r *Runner) RunSeries(ctx context.Context, series *domain.Series, sc domain.StrategyConfig) (*domain.RunResult, error) {
	// 1. Build the strategy from its config
	strat, err := strategy.FromConfig(sc)
	if err != nil {
		return nil, &RunFailure{Stage: "config", Err: fmt.Errorf("build strategy: %w", err)}
	}

	// 2. Enrich the series for the strategy's requirements
	params := enrich.FromRequirements(strat.Requirements())
	enriched, fp, err := r.enricher.EnrichCached(series, params)
	if err != nil {
		return nil, &RunFailure{Stage: "enrich", Err: err}
	}

	// 3. Preflight the candle data
	pf := preflight.Check(enriched)
	if err := pf.Err(); err != nil {
		return nil, &RunFailure{Stage: "preflight", Err: err}
	}
	var warnings []string
	for _, w := range pf.Warnings {
		warnings = append(warnings, fmt.Sprintf("preflight: %s", w))
	}

	// 4. Simulate
	r.logger.Printf("running %s on %s/%s (%d bars, fingerprint %s)",
		strat.ID(), enriched.Symbol, enriched.Timeframe, enriched.Len(), shortID(fp))
	result, runErr := New(r.cfg.Backtest).Run(ctx, enriched, strat)
	if result == nil {
		return nil, runErr
	}
	if len(warnings) > 0 {
		result.Warnings = append(warnings, result.Warnings...)
	}

	// 5. Persist run, trades and equity curve. Config- and preflight-stage
	// aborts carry no run ID and leave nothing worth a row.
	if result.RunID != "" {
		if err := r.persist(ctx, result); err != nil {
			if runErr != nil {
				r.logger.Printf("run %s: persist after failed run: %v", shortID(result.RunID), err)
				return result, runErr
			}
			return result, err
		}
	}

	return result, runErr
}

// persist writes the run row, then its trades, then its equity curve, so the
// run the others reference always lands first. A duplicate run is treated as
// already persisted: identical configuration over identical data reproduces
// the stored run bit for bit.
func (r *Runner) persist(ctx context.Context, result *domain.RunResult) error {
	if r.cfg.Runs == nil {
		return nil
	}

	t0 := time.Now()
	err := r.cfg.Runs.SaveRun(ctx, result)
	r.cfg.Backtest.Metrics.RecordDBQuery("runs", "save_run", time.Since(t0), err)
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.logger.Printf("run %s already stored, skipping persist", shortID(result.RunID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("save run %s: %w", shortID(result.RunID), err)
	}

	if r.cfg.Trades != nil && len(result.Trades) > 0 {
		t0 = time.Now()
		err = r.cfg.Trades.SaveTrades(ctx, result.Trades)
		r.cfg.Backtest.Metrics.RecordDBQuery("trades", "save_trades", time.Since(t0), err)
		if err != nil {
			return fmt.Errorf("save trades for run %s: %w", shortID(result.RunID), err)
		}
	}

	if len(result.EquityCurve) > 0 {
		t0 = time.Now()
		err = r.cfg.Runs.SaveEquityCurve(ctx, result.RunID, result.EquityCurve)
		r.cfg.Backtest.Metrics.RecordDBQuery("runs", "save_equity_curve", time.Since(t0), err)
		if err != nil {
			return fmt.Errorf("save equity curve for run %s: %w", shortID(result.RunID), err)
		}
	}

	return nil
}
