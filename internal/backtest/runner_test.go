package backtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
	"chart-strategy-lab/internal/storage/memory"
	"chart-strategy-lab/internal/strategy"
)

// engulfSeries produces a bullish engulfing at bar 6 and a bearish engulfing
// at bar 11 so a candlestick strategy completes round trips.
func engulfSeries() *domain.Series {
	bars := [][4]float64{
		{100, 101, 99, 100.5},
		{100.5, 101.5, 99.5, 101},
		{101, 102, 100, 101.5},
		{101.5, 102.5, 100.5, 102},
		{102, 103, 101, 102.5},
		{102.5, 103, 101, 101.8}, // red
		{101.5, 103.5, 101, 103}, // green, engulfs the red bar
		{103, 104, 102.5, 103.5},
		{103.5, 104.5, 103, 104},
		{104, 105, 103.5, 104.5},
		{104.5, 105.5, 104, 105},
		{105, 105.5, 103.5, 104}, // red, engulfs the green bar
		{104, 104.5, 102, 103},
		{103, 103.5, 101.5, 102},
	}

	s := domain.NewSeries("TESTUSD", "1h")
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range bars {
		s.Append(domain.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   b[0],
			High:   b[1],
			Low:    b[2],
			Close:  b[3],
			Volume: 1000,
		})
	}
	return s
}

// driftSeries produces n clean bars, enough history for indicator-backed
// strategies.
func driftSeries(n int) *domain.Series {
	s := domain.NewSeries("TESTUSD", "1h")
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		o := 100 + float64(i%5)*0.3
		c := o + 0.4
		s.Append(domain.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   o,
			High:   c + 0.3,
			Low:    o - 0.3,
			Close:  c,
			Volume: 1000 + float64(i),
		})
	}
	return s
}

type testStores struct {
	bars   *memory.SeriesStore
	runs   *memory.RunStore
	trades *memory.TradeStore
}

func newTestRunner() (*Runner, testStores) {
	st := testStores{
		bars:   memory.NewSeriesStore(),
		runs:   memory.NewRunStore(),
		trades: memory.NewTradeStore(),
	}
	r := NewRunner(RunnerConfig{
		Backtest: testConfig(),
		Bars:     st.bars,
		Runs:     st.runs,
		Trades:   st.trades,
	})
	return r, st
}

func candlestickConfig() domain.StrategyConfig {
	return domain.StrategyConfig{StrategyType: domain.StrategyTypeCandlestick}
}

func TestRunnerPersistsRunTradesAndCurve(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()

	result, err := r.RunSeries(ctx, engulfSeries(), candlestickConfig())
	if err != nil {
		t.Fatalf("RunSeries() error = %v", err)
	}
	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished", result.State)
	}
	if len(result.Trades) == 0 {
		t.Fatal("Trades len = 0, want trades on the engulfing fixture")
	}

	stored, err := st.runs.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if stored.State != domain.RunStateFinished {
		t.Errorf("stored State = %s, want finished", stored.State)
	}
	if stored.Trades != nil || stored.EquityCurve != nil {
		t.Error("stored run carries Trades or EquityCurve, want scalars only")
	}

	trades, err := st.trades.ListByRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(trades) != len(result.Trades) {
		t.Errorf("stored trades = %d, want %d", len(trades), len(result.Trades))
	}

	curve, err := st.runs.GetEquityCurve(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetEquityCurve() error = %v", err)
	}
	if len(curve) != len(result.EquityCurve) {
		t.Errorf("stored equity points = %d, want %d", len(curve), len(result.EquityCurve))
	}
}

func TestRunnerRunStored(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()

	if err := st.bars.SaveSeries(ctx, engulfSeries()); err != nil {
		t.Fatalf("SaveSeries() error = %v", err)
	}

	result, err := r.RunStored(ctx, "TESTUSD", "1h", candlestickConfig())
	if err != nil {
		t.Fatalf("RunStored() error = %v", err)
	}
	if result.RunID == "" {
		t.Fatal("RunID is empty")
	}
	if _, err := st.runs.GetRun(ctx, result.RunID); err != nil {
		t.Errorf("GetRun() error = %v, want stored run", err)
	}
}

func TestRunnerRunStoredMissingSeries(t *testing.T) {
	r, _ := newTestRunner()

	_, err := r.RunStored(context.Background(), "NOPE", "1h", candlestickConfig())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("RunStored() error = %v, want ErrNotFound", err)
	}
}

func TestRunnerRunStoredWithoutBarStore(t *testing.T) {
	r := NewRunner(RunnerConfig{Backtest: testConfig()})

	_, err := r.RunStored(context.Background(), "TESTUSD", "1h", candlestickConfig())
	var perr *domain.PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("RunStored() error = %v, want *PreconditionError", err)
	}
}

func TestRunnerEnrichesOnDemand(t *testing.T) {
	r, _ := newTestRunner()
	series := driftSeries(45)

	result, err := r.RunSeries(context.Background(), series, domain.StrategyConfig{StrategyType: domain.StrategyTypeVolatility})
	if err != nil {
		t.Fatalf("RunSeries() error = %v", err)
	}
	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished", result.State)
	}

	// Enrichment fills the indicator columns the strategy requires in place.
	if len(series.ATR) != series.Len() {
		t.Errorf("ATR column len = %d, want %d", len(series.ATR), series.Len())
	}
	if len(series.BBUpper) != series.Len() || len(series.BBLower) != series.Len() {
		t.Error("band columns missing after indicator-backed run")
	}
}

func TestRunnerDuplicateRunIsIdempotent(t *testing.T) {
	r, st := newTestRunner()
	ctx := context.Background()
	series := engulfSeries()

	first, err := r.RunSeries(ctx, series, candlestickConfig())
	if err != nil {
		t.Fatalf("first RunSeries() error = %v", err)
	}
	second, err := r.RunSeries(ctx, series, candlestickConfig())
	if err != nil {
		t.Fatalf("second RunSeries() error = %v", err)
	}

	if first.RunID != second.RunID {
		t.Errorf("RunID differs between identical runs: %q vs %q", first.RunID, second.RunID)
	}

	runs, err := st.runs.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("stored runs = %d, want 1", len(runs))
	}

	trades, err := st.trades.ListByRun(ctx, first.RunID)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(trades) != len(first.Trades) {
		t.Errorf("stored trades = %d, want %d (not doubled)", len(trades), len(first.Trades))
	}
}

func TestRunnerPreflightFailure(t *testing.T) {
	r, st := newTestRunner()
	series := engulfSeries()
	series.Close[3] = math.NaN()

	result, err := r.RunSeries(context.Background(), series, candlestickConfig())

	var rf *RunFailure
	if !errors.As(err, &rf) {
		t.Fatalf("RunSeries() error = %v, want *RunFailure", err)
	}
	if rf.Stage != "preflight" {
		t.Errorf("Stage = %q, want preflight", rf.Stage)
	}
	var perr *domain.PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("RunSeries() error = %v, want *PreconditionError in chain", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil before simulation", result)
	}

	runs, err := st.runs.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("stored runs = %d, want 0", len(runs))
	}
}

func TestRunnerPreflightWarningsCarried(t *testing.T) {
	r, _ := newTestRunner()
	series := engulfSeries()
	// A wild but well-formed bar: outlier warning, not a violation.
	series.High[9] = 500
	series.Close[9] = 499

	result, err := r.RunSeries(context.Background(), series, candlestickConfig())
	if err != nil {
		t.Fatalf("RunSeries() error = %v", err)
	}
	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished", result.State)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.HasPrefix(w, "preflight:") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want a preflight outlier entry", result.Warnings)
	}
}

func TestRunnerUnknownStrategy(t *testing.T) {
	r, _ := newTestRunner()

	_, err := r.RunSeries(context.Background(), engulfSeries(), domain.StrategyConfig{StrategyType: "astrology"})

	var rf *RunFailure
	if !errors.As(err, &rf) {
		t.Fatalf("RunSeries() error = %v, want *RunFailure", err)
	}
	if rf.Stage != "config" {
		t.Errorf("Stage = %q, want config", rf.Stage)
	}
	if !errors.Is(err, strategy.ErrUnknownStrategyType) {
		t.Errorf("error chain = %v, want ErrUnknownStrategyType", err)
	}
}

func TestRunnerWithoutStores(t *testing.T) {
	r := NewRunner(RunnerConfig{Backtest: testConfig()})

	result, err := r.RunSeries(context.Background(), engulfSeries(), candlestickConfig())
	if err != nil {
		t.Fatalf("RunSeries() error = %v", err)
	}
	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished", result.State)
	}
}

func TestRunnerPersistsPartialOnCancel(t *testing.T) {
	r, st := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.RunSeries(ctx, engulfSeries(), candlestickConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunSeries() error = %v, want context.Canceled", err)
	}
	if result == nil {
		t.Fatal("result = nil, want partial result")
	}
	if result.State != domain.RunStateFailed {
		t.Errorf("State = %s, want failed", result.State)
	}
	if result.RunID == "" {
		t.Fatal("RunID is empty on a simulate-stage failure")
	}

	// The failed run row still lands so the abort is visible later.
	stored, err := st.runs.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if stored.State != domain.RunStateFailed {
		t.Errorf("stored State = %s, want failed", stored.State)
	}
	if stored.Err == "" {
		t.Error("stored Err is empty, want the terminal error recorded")
	}
}
