// Package pipeline fans a set of strategy configs over one series in
// parallel and collects per-config outcomes for ranking.
package pipeline

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/decision"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/metrics"
	"chart-strategy-lab/internal/strategy"
)

// Options parameterizes a sweep.
type Options struct {
	Backtest    backtest.Config      // template config; every run gets a fresh Backtester
	Thresholds  *decision.Thresholds // optional acceptance gate applied to every summary
	Concurrency int                  // max parallel runs, <= 0 means runtime.NumCPU()
}

// Outcome is one config's run result. Err is set when the strategy could not
// be built or the run aborted; Result keeps the partial history on aborts.
type Outcome struct {
	Config  domain.StrategyConfig
	Result  *domain.RunResult
	Summary domain.Summary
	Verdict *decision.Verdict
	Err     error
}

// Sweep runs every config over the series and returns outcomes in input
// order regardless of completion order. Each run gets its own Backtester and
// account; the series is shared read-only. Per-config failures land in
// Outcome.Err without stopping the sweep. Context cancellation stops it and
// returns the context error instead of a partially filled slice.
func Sweep(ctx context.Context, series *domain.Series, configs []domain.StrategyConfig, opts Options) ([]Outcome, error) {
	if len(configs) == 0 {
		return nil, nil
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	outcomes := make([]Outcome, len(configs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, cfg := range configs {
		g.Go(func() error {
			outcomes[i] = runOne(ctx, series, cfg, opts)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func runOne(ctx context.Context, series *domain.Series, cfg domain.StrategyConfig, opts Options) Outcome {
	out := Outcome{Config: cfg}

	strat, err := strategy.FromConfig(cfg)
	if err != nil {
		out.Err = err
		return out
	}

	result, err := backtest.New(opts.Backtest).Run(ctx, series, strat)
	out.Result = result
	if err != nil {
		out.Err = err
		return out
	}

	out.Summary = metrics.Compute(result)
	if opts.Thresholds != nil {
		v := opts.Thresholds.Evaluate(out.Summary)
		out.Verdict = &v
	}
	return out
}

// Rank orders outcomes best-first: total PnL descending, win rate breaking
// ties, input order breaking the rest. Failed runs sink to the bottom in
// input order. The input slice is not modified.
func Rank(outcomes []Outcome) []Outcome {
	ranked := append([]Outcome(nil), outcomes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := &ranked[i], &ranked[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		if a.Summary.TotalPnL != b.Summary.TotalPnL {
			return a.Summary.TotalPnL > b.Summary.TotalPnL
		}
		return a.Summary.WinRate > b.Summary.WinRate
	})
	return ranked
}
