// Package verification cross-checks backtest integrity: repeated runs must
// produce identical results, and signals must not depend on bars after the
// one they fire at.
package verification

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/strategy"
)

// floatTolerance bounds acceptable float drift between runs. Decimal fields
// are compared exactly.
const floatTolerance = 1e-7

// FieldDivergence records one field that differed between two executions.
type FieldDivergence struct {
	Field string // e.g. "trade[3].pnl"
	A     string
	B     string
}

// diff accumulates divergences during a comparison.
type diff struct {
	divs []FieldDivergence
}

func (d *diff) record(field, a, b string) {
	d.divs = append(d.divs, FieldDivergence{Field: field, A: a, B: b})
}

func (d *diff) strings(field, a, b string) {
	if a != b {
		d.record(field, a, b)
	}
}

func (d *diff) ints(field string, a, b int) {
	if a != b {
		d.record(field, fmt.Sprintf("%d", a), fmt.Sprintf("%d", b))
	}
}

func (d *diff) floats(field string, a, b float64) {
	// NaN on both sides is agreement
	if math.IsNaN(a) && math.IsNaN(b) {
		return
	}
	if math.Abs(a-b) > floatTolerance {
		d.record(field, fmt.Sprintf("%g", a), fmt.Sprintf("%g", b))
	}
}

func (d *diff) decimals(field string, a, b decimal.Decimal) {
	if !a.Equal(b) {
		d.record(field, a.String(), b.String())
	}
}

func (d *diff) times(field string, a, b time.Time) {
	if !a.Equal(b) {
		d.record(field, a.Format(time.RFC3339Nano), b.Format(time.RFC3339Nano))
	}
}

// runOnce builds a fresh strategy and backtester and executes one run.
// Both are single-use, so every execution starts from identical state.
func runOnce(ctx context.Context, series *domain.Series, cfg backtest.Config, strategyCfg domain.StrategyConfig) (*domain.RunResult, error) {
	strat, err := strategy.FromConfig(strategyCfg)
	if err != nil {
		return nil, err
	}
	return backtest.New(cfg).Run(ctx, series, strat)
}
