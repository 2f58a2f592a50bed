package verification

import (
	"context"
	"fmt"
	"math"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/strategy"
)

// LookaheadReport is the outcome of probing sampled bars for look-ahead.
type LookaheadReport struct {
	ProbedBars  []int
	Match       bool
	Divergences []FieldDivergence
}

// VerifyNoLookahead checks that signals at a bar do not change when the
// series is truncated to end at that bar: a strategy reading future bars
// would diverge between the two views. probes caps the number of sampled
// bars; <= 0 probes every eligible bar. Sampling uses an even stride over the
// post-warm-up range, so repeated calls probe the same bars.
func VerifyNoLookahead(ctx context.Context, series *domain.Series, cfg backtest.Config, strategyCfg domain.StrategyConfig, probes int) (*LookaheadReport, error) {
	strat, err := strategy.FromConfig(strategyCfg)
	if err != nil {
		return nil, err
	}
	req := strat.Requirements()
	if err := series.Check(req); err != nil {
		return nil, err
	}

	// Same warm-up offset as the bar loop
	start := req.MinBars - 1
	if start < 1 {
		start = 1
	}
	if start >= series.Len() {
		return nil, &domain.PreconditionError{Op: "verification.lookahead", Reason: "no bars after warm-up"}
	}

	bars := probeBars(start, series.Len(), probes)

	var d diff
	for _, n := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		full := strat.GenerateSignals(domain.NewWindow(series, n))
		trunc := strat.GenerateSignals(domain.NewWindow(series.Truncate(n), n))

		compareSignals(&d, n, full, trunc, cfg.ConfidenceThreshold)
	}

	return &LookaheadReport{
		ProbedBars:  bars,
		Match:       len(d.divs) == 0,
		Divergences: d.divs,
	}, nil
}

// probeBars samples up to probes bar indexes evenly across [start, end).
func probeBars(start, end, probes int) []int {
	span := end - start
	if probes <= 0 || probes >= span {
		bars := make([]int, 0, span)
		for n := start; n < end; n++ {
			bars = append(bars, n)
		}
		return bars
	}
	if probes == 1 {
		return []int{end - 1}
	}

	step := float64(span-1) / float64(probes-1)
	bars := make([]int, 0, probes)
	seen := make(map[int]bool)
	for k := 0; k < probes; k++ {
		n := start + int(math.Round(float64(k)*step))
		if !seen[n] {
			seen[n] = true
			bars = append(bars, n)
		}
	}
	return bars
}

// compareSignals compares the signal lists at bar n, then the signal the bar
// loop would act on under the confidence threshold. The selection check
// catches confidences straddling the threshold within floatTolerance.
func compareSignals(d *diff, n int, full, trunc []domain.Signal, threshold float64) {
	d.ints(fmt.Sprintf("bar[%d].signals.count", n), len(full), len(trunc))
	for i := 0; i < len(full) && i < len(trunc); i++ {
		prefix := fmt.Sprintf("bar[%d].signal[%d].", n, i)
		a, b := full[i], trunc[i]
		d.strings(prefix+"direction", string(a.Direction), string(b.Direction))
		d.floats(prefix+"confidence", a.Confidence, b.Confidence)
		d.floats(prefix+"price", a.Price, b.Price)
		d.times(prefix+"time", a.Time, b.Time)
		d.strings(prefix+"pattern", a.Pattern, b.Pattern)
		d.floats(prefix+"atr", a.ATR, b.ATR)
		d.floats(prefix+"target", a.Target, b.Target)
		d.floats(prefix+"stop", a.Stop, b.Stop)
	}

	fa := selectSignal(full, threshold)
	fb := selectSignal(trunc, threshold)
	if (fa == nil) != (fb == nil) {
		d.record(fmt.Sprintf("bar[%d].selected", n), describeSignal(fa), describeSignal(fb))
	}
}

// selectSignal picks the first signal at or above the threshold, mirroring
// the entry selection in the bar loop.
func selectSignal(sigs []domain.Signal, threshold float64) *domain.Signal {
	for i := range sigs {
		if sigs[i].Confidence >= threshold {
			return &sigs[i]
		}
	}
	return nil
}

func describeSignal(s *domain.Signal) string {
	if s == nil {
		return "none"
	}
	return fmt.Sprintf("%s %s conf=%.4f", s.Direction, s.Pattern, s.Confidence)
}
