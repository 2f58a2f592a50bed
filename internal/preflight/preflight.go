// Package preflight validates raw candle data before a run: structural
// checks that gate the run, and an outlier scan that only warns.
package preflight

import (
	"fmt"
	"math"
	"sort"
	"time"

	"chart-strategy-lab/internal/domain"
)

const (
	outlierFence     = 1.5 // fence multiplier on the interquartile range
	minOutlierSample = 8   // below this the quartiles carry no information
)

// Issue is one data-quality finding. Bar is -1 for series-level findings.
type Issue struct {
	Bar    int
	Field  string
	Reason string
}

func (i Issue) String() string {
	if i.Bar < 0 {
		return fmt.Sprintf("%s: %s", i.Field, i.Reason)
	}
	return fmt.Sprintf("bar %d: %s %s", i.Bar, i.Field, i.Reason)
}

// Result separates gating violations from advisory warnings.
type Result struct {
	Issues   []Issue // violations; any entry blocks the run
	Warnings []Issue // outlier findings; logged, never blocking
}

// Err converts a non-empty violation list into a *domain.PreconditionError.
// Warnings never produce an error.
func (r *Result) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	return &domain.PreconditionError{
		Op:     "preflight",
		Reason: fmt.Sprintf("%d data quality issues, first: %s", len(r.Issues), r.Issues[0]),
	}
}

// Check runs every structural check over the series plus an IQR outlier scan
// on the price columns. Violations across all bars are collected rather than
// stopping at the first, so a report shows the full damage.
func Check(series *domain.Series) *Result {
	res := &Result{}
	if series.Len() == 0 {
		res.add(-1, "series", "no bars")
		return res
	}

	for i := 0; i < series.Len(); i++ {
		checkBar(res, series, i)
	}
	scanOutliers(res, series)
	return res
}

func checkBar(res *Result, s *domain.Series, i int) {
	if i > 0 {
		switch {
		case s.Times[i].Equal(s.Times[i-1]):
			res.add(i, "time", "duplicate of previous bar")
		case s.Times[i].Before(s.Times[i-1]):
			res.add(i, "time", fmt.Sprintf("before previous bar %s", s.Times[i-1].Format(time.RFC3339)))
		}
	}

	prices := []struct {
		name  string
		value float64
	}{
		{"open", s.Open[i]},
		{"high", s.High[i]},
		{"low", s.Low[i]},
		{"close", s.Close[i]},
	}
	usable := true
	for _, p := range prices {
		switch {
		case math.IsNaN(p.value) || math.IsInf(p.value, 0):
			res.add(i, p.name, "not finite")
			usable = false
		case p.value <= 0:
			res.add(i, p.name, fmt.Sprintf("must be positive, got %v", p.value))
			usable = false
		}
	}

	switch v := s.Volume[i]; {
	case math.IsNaN(v) || math.IsInf(v, 0):
		res.add(i, "volume", "not finite")
	case v < 0:
		res.add(i, "volume", fmt.Sprintf("must not be negative, got %v", v))
	}

	// Relation checks over broken prices would only repeat the damage
	if !usable {
		return
	}
	if s.High[i] < s.Low[i] {
		res.add(i, "high", fmt.Sprintf("%v below low %v", s.High[i], s.Low[i]))
	}
	if top := math.Max(s.Open[i], s.Close[i]); s.High[i] < top {
		res.add(i, "high", fmt.Sprintf("%v below body top %v", s.High[i], top))
	}
	if bottom := math.Min(s.Open[i], s.Close[i]); s.Low[i] > bottom {
		res.add(i, "low", fmt.Sprintf("%v above body bottom %v", s.Low[i], bottom))
	}
}

// scanOutliers flags prices beyond the IQR fences of their column. These are
// warnings: a flash spike is suspicious but not provably wrong.
func scanOutliers(res *Result, s *domain.Series) {
	columns := []struct {
		name string
		col  []float64
	}{
		{"open", s.Open},
		{"high", s.High},
		{"low", s.Low},
		{"close", s.Close},
	}
	for _, c := range columns {
		clean := make([]float64, 0, len(c.col))
		for _, v := range c.col {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				clean = append(clean, v)
			}
		}
		if len(clean) < minOutlierSample {
			continue
		}
		sort.Float64s(clean)
		q1 := quartile(clean, 0.25)
		q3 := quartile(clean, 0.75)
		iqr := q3 - q1
		lower := q1 - outlierFence*iqr
		upper := q3 + outlierFence*iqr

		for i, v := range c.col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if v < lower || v > upper {
				res.warn(i, c.name, fmt.Sprintf("%v outside [%.4f, %.4f]", v, lower, upper))
			}
		}
	}
}

// quartile interpolates the p quantile over sorted values, the same
// interpolation the metrics percentiles use.
func quartile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(math.Floor(idx))
	upper := lower + 1
	frac := idx - float64(lower)
	if upper >= n {
		return sorted[n-1]
	}
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func (r *Result) add(bar int, field, reason string) {
	r.Issues = append(r.Issues, Issue{Bar: bar, Field: field, Reason: reason})
}

func (r *Result) warn(bar int, field, reason string) {
	r.Warnings = append(r.Warnings, Issue{Bar: bar, Field: field, Reason: reason})
}
