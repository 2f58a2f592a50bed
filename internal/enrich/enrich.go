// Package enrich computes indicator columns over raw candle series with
// go-talib and memoizes enriched series by content fingerprint.
package enrich

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/markcheno/go-talib"

	"chart-strategy-lab/internal/domain"
)

// Default indicator periods, matching the strategy defaults so a sweep over
// default configs needs exactly one enrichment pass.
const (
	DefaultATRPeriod = 14
	DefaultBBPeriod  = 20
	DefaultBBStd     = 2.0
)

// Params selects the indicator families to compute. Zero values skip the
// family.
type Params struct {
	EMAPeriods []int
	ATRPeriod  int
	BBPeriod   int
	BBStd      float64
}

func (p Params) validate() error {
	for _, period := range p.EMAPeriods {
		if period < 1 {
			return &domain.PreconditionError{Op: "enrich.params", Reason: fmt.Sprintf("ema period %d must be at least 1", period)}
		}
	}
	if p.ATRPeriod < 0 {
		return &domain.PreconditionError{Op: "enrich.params", Reason: "atr period must not be negative"}
	}
	if p.BBPeriod < 0 {
		return &domain.PreconditionError{Op: "enrich.params", Reason: "bb period must not be negative"}
	}
	if p.BBPeriod > 0 && p.BBStd <= 0 {
		return &domain.PreconditionError{Op: "enrich.params", Reason: "bb std must be positive"}
	}
	return nil
}

// canonical renders the params deterministically for fingerprinting: EMA
// periods sorted and deduplicated, families in fixed order.
func (p Params) canonical() string {
	var sb strings.Builder
	sb.WriteString("ema=")
	for i, period := range dedupe(p.EMAPeriods) {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", period)
	}
	fmt.Fprintf(&sb, ";atr=%d;bb=%d,%g", p.ATRPeriod, p.BBPeriod, p.BBStd)
	return sb.String()
}

// FromRequirements unions strategy needs into one parameter set so a sweep
// enriches the series once. Families use the package default periods; set
// fields on the returned Params to override.
func FromRequirements(reqs ...domain.Requirements) Params {
	merged := domain.MergeRequirements(reqs...)
	p := Params{EMAPeriods: merged.EMAPeriods}
	if merged.ATR {
		p.ATRPeriod = DefaultATRPeriod
	}
	if merged.Bands {
		p.BBPeriod = DefaultBBPeriod
		p.BBStd = DefaultBBStd
	}
	return p
}

// Enrich computes the selected indicator columns in place. Warm-up cells are
// NaN: talib leaves zeros there, which strategies would read as prices.
// Length requirements for every family are verified before anything is
// computed, so a failed call leaves the series untouched.
func Enrich(series *domain.Series, p Params) error {
	if err := p.validate(); err != nil {
		return err
	}
	n := series.Len()
	if n == 0 {
		return &domain.PreconditionError{Op: "enrich", Reason: "series has no bars"}
	}

	periods := dedupe(p.EMAPeriods)
	for _, period := range periods {
		if n < period {
			return &domain.PreconditionError{Op: "enrich", Reason: fmt.Sprintf("ema_%d needs at least %d bars, have %d", period, period, n)}
		}
	}
	if p.ATRPeriod > 0 && n < p.ATRPeriod+1 {
		return &domain.PreconditionError{Op: "enrich", Reason: fmt.Sprintf("atr_%d needs at least %d bars, have %d", p.ATRPeriod, p.ATRPeriod+1, n)}
	}
	if p.BBPeriod > 0 && n < p.BBPeriod {
		return &domain.PreconditionError{Op: "enrich", Reason: fmt.Sprintf("bb_%d needs at least %d bars, have %d", p.BBPeriod, p.BBPeriod, n)}
	}

	for _, period := range periods {
		col := talib.Ema(series.Close, period)
		maskWarmup(col, period-1)
		series.SetEMA(period, col)
	}
	if p.ATRPeriod > 0 {
		col := talib.Atr(series.High, series.Low, series.Close, p.ATRPeriod)
		maskWarmup(col, p.ATRPeriod)
		series.ATR = col
	}
	if p.BBPeriod > 0 {
		upper, middle, lower := talib.BBands(series.Close, p.BBPeriod, p.BBStd, p.BBStd, talib.SMA)
		maskWarmup(upper, p.BBPeriod-1)
		maskWarmup(middle, p.BBPeriod-1)
		maskWarmup(lower, p.BBPeriod-1)
		series.BBUpper = upper
		series.BBMiddle = middle
		series.BBLower = lower
	}
	return nil
}

// maskWarmup overwrites the first lookback cells with NaN.
func maskWarmup(col []float64, lookback int) {
	if lookback > len(col) {
		lookback = len(col)
	}
	for i := 0; i < lookback; i++ {
		col[i] = math.NaN()
	}
}

// dedupe returns the periods sorted with duplicates removed.
func dedupe(periods []int) []int {
	if len(periods) == 0 {
		return nil
	}
	sorted := append([]int(nil), periods...)
	sort.Ints(sorted)
	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
