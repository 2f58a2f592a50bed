package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/strategy"
)

// scriptStrategy enters long whenever the close rises above the previous
// close and exits after holdBars bars. Deterministic by construction.
type scriptStrategy struct {
	minBars    int
	confidence float64
	fraction   float64
	holdBars   int
}

func (s *scriptStrategy) ID() string { return "script-v1" }

func (s *scriptStrategy) Requirements() domain.Requirements {
	return domain.Requirements{MinBars: s.minBars}
}

func (s *scriptStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	i := w.End()
	if i == 0 || w.Close(i) <= w.Close(i-1) {
		return nil
	}
	return []domain.Signal{{
		Direction:  domain.DirectionLong,
		Confidence: s.confidence,
		Price:      w.Close(i),
		Time:       w.Time(),
		Pattern:    "script_up",
	}}
}

func (s *scriptStrategy) ShouldExit(w domain.Window, pos *domain.Position) bool {
	return pos.Age(w.End()) >= s.holdBars
}

func (s *scriptStrategy) PositionSize(_ domain.Window, _ domain.Signal) float64 {
	return s.fraction
}

// twoSignalStrategy emits two long signals per bar in a fixed order and
// never exits on its own.
type twoSignalStrategy struct {
	first  float64
	second float64
}

func (s *twoSignalStrategy) ID() string { return "two-signal-v1" }

func (s *twoSignalStrategy) Requirements() domain.Requirements {
	return domain.Requirements{MinBars: 2}
}

func (s *twoSignalStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	return []domain.Signal{
		{Direction: domain.DirectionLong, Confidence: s.first, Price: w.Close(w.End()), Time: w.Time(), Pattern: "first"},
		{Direction: domain.DirectionLong, Confidence: s.second, Price: w.Close(w.End()), Time: w.Time(), Pattern: "second"},
	}
}

func (s *twoSignalStrategy) ShouldExit(_ domain.Window, _ *domain.Position) bool { return false }

func (s *twoSignalStrategy) PositionSize(_ domain.Window, _ domain.Signal) float64 { return 0.5 }

// cancelingStrategy cancels the run context when the loop reaches cancelAt.
type cancelingStrategy struct {
	*scriptStrategy
	cancelAt int
	cancel   context.CancelFunc
}

func (s *cancelingStrategy) GenerateSignals(w domain.Window) []domain.Signal {
	if w.End() == s.cancelAt {
		s.cancel()
	}
	return s.scriptStrategy.GenerateSignals(w)
}

var (
	_ strategy.Strategy = (*scriptStrategy)(nil)
	_ strategy.Strategy = (*twoSignalStrategy)(nil)
	_ strategy.Strategy = (*cancelingStrategy)(nil)
)

func testSeries(t *testing.T, closes ...float64) *domain.Series {
	t.Helper()
	s := domain.NewSeries("TESTUSD", "1h")
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Append(domain.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		})
	}
	return s
}

func testConfig() Config {
	return Config{
		InitialCapital:      decimal.NewFromInt(10000),
		FeeBps:              0,
		ConfidenceThreshold: 0.5,
		Logger:              testLogger,
	}
}

// zigzag produces two complete round trips: entry at bar 1 exit at bar 3,
// entry at bar 6 exit at bar 8.
var zigzagCloses = []float64{100, 101, 102, 103, 99, 98, 100, 101, 99, 97}

func zigzagStrategy() *scriptStrategy {
	return &scriptStrategy{minBars: 2, confidence: 0.8, fraction: 0.5, holdBars: 2}
}

func TestBacktesterRunRecordsTrades(t *testing.T) {
	series := testSeries(t, zigzagCloses...)
	bt := New(testConfig())

	result, err := bt.Run(context.Background(), series, zigzagStrategy())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished", result.State)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("Trades len = %d, want 2", len(result.Trades))
	}

	first, second := result.Trades[0], result.Trades[1]
	if first.Outcome != domain.OutcomeWin {
		t.Errorf("first trade outcome = %q, want WIN", first.Outcome)
	}
	if second.Outcome != domain.OutcomeLoss {
		t.Errorf("second trade outcome = %q, want LOSS", second.Outcome)
	}
	for _, tr := range result.Trades {
		if tr.ExitReason != domain.ExitReasonStrategy {
			t.Errorf("ExitReason = %q, want %q", tr.ExitReason, domain.ExitReasonStrategy)
		}
		if tr.RunID != result.RunID {
			t.Errorf("Trade.RunID = %q, want %q", tr.RunID, result.RunID)
		}
		if len(tr.TradeID) != 64 {
			t.Errorf("TradeID length = %d, want 64", len(tr.TradeID))
		}
		if tr.Pattern != "script_up" {
			t.Errorf("Trade.Pattern = %q, want script_up", tr.Pattern)
		}
	}
	if first.HoldingBars != 2 || second.HoldingBars != 2 {
		t.Errorf("HoldingBars = %d and %d, want 2 and 2", first.HoldingBars, second.HoldingBars)
	}
	if result.SignalsSeen == 0 {
		t.Error("SignalsSeen = 0, want > 0")
	}
}

func TestBacktesterDeterminism(t *testing.T) {
	series := testSeries(t, zigzagCloses...)

	run := func() *domain.RunResult {
		bt := New(testConfig())
		result, err := bt.Run(context.Background(), series, zigzagStrategy())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return result
	}

	a, b := run(), run()

	if a.RunID != b.RunID {
		t.Errorf("RunID differs between identical runs: %q vs %q", a.RunID, b.RunID)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		ta, tb := a.Trades[i], b.Trades[i]
		if ta.TradeID != tb.TradeID {
			t.Errorf("trade %d: TradeID differs", i)
		}
		if !ta.PnL.Equal(tb.PnL) || !ta.Size.Equal(tb.Size) {
			t.Errorf("trade %d: ledger fields differ: %+v vs %+v", i, ta, tb)
		}
		if !ta.EntryTime.Equal(tb.EntryTime) || !ta.ExitTime.Equal(tb.ExitTime) {
			t.Errorf("trade %d: times differ", i)
		}
	}
	if len(a.EquityCurve) != len(b.EquityCurve) {
		t.Fatalf("equity curve lengths differ: %d vs %d", len(a.EquityCurve), len(b.EquityCurve))
	}
	for i := range a.EquityCurve {
		if !a.EquityCurve[i].Equity.Equal(b.EquityCurve[i].Equity) {
			t.Errorf("equity point %d differs: %s vs %s", i, a.EquityCurve[i].Equity, b.EquityCurve[i].Equity)
		}
	}
	if !a.FinalEquity.Equal(b.FinalEquity) {
		t.Errorf("FinalEquity differs: %s vs %s", a.FinalEquity, b.FinalEquity)
	}
}

func TestBacktesterTruncatedSeriesMatchesPrefix(t *testing.T) {
	series := testSeries(t, zigzagCloses...)

	full, err := New(testConfig()).Run(context.Background(), series, zigzagStrategy())
	if err != nil {
		t.Fatalf("Run(full) error = %v", err)
	}

	// Bars past index 5 must not influence the first round trip.
	truncated, err := New(testConfig()).Run(context.Background(), series.Truncate(5), zigzagStrategy())
	if err != nil {
		t.Fatalf("Run(truncated) error = %v", err)
	}

	if len(truncated.Trades) != 1 {
		t.Fatalf("truncated run trades = %d, want 1", len(truncated.Trades))
	}
	want, got := full.Trades[0], truncated.Trades[0]
	if !want.EntryTime.Equal(got.EntryTime) || !want.ExitTime.Equal(got.ExitTime) {
		t.Errorf("first trade times diverge: full %v to %v, truncated %v to %v", want.EntryTime, want.ExitTime, got.EntryTime, got.ExitTime)
	}
	if !want.PnL.Equal(got.PnL) {
		t.Errorf("first trade PnL diverges: full %s, truncated %s", want.PnL, got.PnL)
	}
	if !want.Size.Equal(got.Size) {
		t.Errorf("first trade size diverges: full %s, truncated %s", want.Size, got.Size)
	}
}

func TestBacktesterFirstSignalAboveThresholdWins(t *testing.T) {
	tests := []struct {
		name        string
		first       float64
		second      float64
		wantPattern string // empty = no trade expected
	}{
		{name: "first below threshold, second wins", first: 0.5, second: 0.9, wantPattern: "second"},
		{name: "first above threshold wins despite lower confidence", first: 0.7, second: 0.9, wantPattern: "first"},
		{name: "both below threshold", first: 0.5, second: 0.55, wantPattern: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ConfidenceThreshold = 0.6
			series := testSeries(t, 100, 101, 102)

			result, err := New(cfg).Run(context.Background(), series, &twoSignalStrategy{first: tt.first, second: tt.second})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if tt.wantPattern == "" {
				if len(result.Trades) != 0 {
					t.Fatalf("Trades len = %d, want 0", len(result.Trades))
				}
				return
			}
			if len(result.Trades) != 1 {
				t.Fatalf("Trades len = %d, want 1", len(result.Trades))
			}
			if result.Trades[0].Pattern != tt.wantPattern {
				t.Errorf("winning signal = %q, want %q", result.Trades[0].Pattern, tt.wantPattern)
			}
		})
	}
}

func TestBacktesterWarmUpOffset(t *testing.T) {
	series := testSeries(t, 100, 101, 102, 103, 104, 105, 106)
	strat := &scriptStrategy{minBars: 5, confidence: 0.8, fraction: 0.5, holdBars: 100}

	result, err := New(testConfig()).Run(context.Background(), series, strat)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// start = minBars-1 = 4: bars processed are 4, 5, 6.
	if result.BarsProcessed != 3 {
		t.Errorf("BarsProcessed = %d, want 3", result.BarsProcessed)
	}
	if len(result.EquityCurve) != 3 {
		t.Errorf("EquityCurve len = %d, want 3", len(result.EquityCurve))
	}
	if result.EquityCurve[0].Bar != 4 {
		t.Errorf("first equity point bar = %d, want 4", result.EquityCurve[0].Bar)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("Trades len = %d, want 1", len(result.Trades))
	}
	if !result.Trades[0].EntryTime.Equal(series.Times[4]) {
		t.Errorf("first entry at %v, want the first post-warm-up bar %v", result.Trades[0].EntryTime, series.Times[4])
	}
}

func TestBacktesterNoBarsAfterWarmUp(t *testing.T) {
	series := testSeries(t, 100, 101, 102)
	strat := &scriptStrategy{minBars: 10, confidence: 0.8, fraction: 0.5, holdBars: 2}

	result, err := New(testConfig()).Run(context.Background(), series, strat)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished", result.State)
	}
	if result.BarsProcessed != 0 || len(result.Trades) != 0 {
		t.Errorf("processed %d bars and %d trades, want 0 and 0", result.BarsProcessed, len(result.Trades))
	}
	if !result.FinalEquity.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("FinalEquity = %s, want initial capital", result.FinalEquity)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "no bars after warm-up" {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want a no-bars-after-warm-up entry", result.Warnings)
	}
}

func TestBacktesterContextCancelPreservesPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	series := testSeries(t, zigzagCloses...)
	strat := &cancelingStrategy{scriptStrategy: zigzagStrategy(), cancelAt: 4, cancel: cancel}

	result, err := New(testConfig()).Run(ctx, series, strat)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	var rf *RunFailure
	if !errors.As(err, &rf) {
		t.Fatalf("Run() error = %v, want *RunFailure", err)
	}

	if result == nil {
		t.Fatal("Run() result = nil, want partial result")
	}
	if result.State != domain.RunStateFailed {
		t.Errorf("State = %s, want failed", result.State)
	}
	// Bars 1..4 complete before the cancellation lands at the top of bar 5.
	if result.BarsProcessed != 4 {
		t.Errorf("BarsProcessed = %d, want 4", result.BarsProcessed)
	}
	if len(result.Trades) != 1 {
		t.Errorf("partial Trades len = %d, want 1", len(result.Trades))
	}
	if len(result.EquityCurve) != 4 {
		t.Errorf("partial EquityCurve len = %d, want 4", len(result.EquityCurve))
	}
	if result.Err == "" {
		t.Error("result.Err is empty, want the terminal error recorded")
	}
}

func TestBacktesterEndOfDataClose(t *testing.T) {
	series := testSeries(t, 100, 101, 102, 103)
	strat := &scriptStrategy{minBars: 2, confidence: 0.8, fraction: 0.5, holdBars: 100}

	result, err := New(testConfig()).Run(context.Background(), series, strat)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("Trades len = %d, want 1", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.ExitReason != domain.ExitReasonEndOfData {
		t.Errorf("ExitReason = %q, want %q", tr.ExitReason, domain.ExitReasonEndOfData)
	}
	if !tr.ExitTime.Equal(series.Times[series.Len()-1]) {
		t.Errorf("ExitTime = %v, want final bar %v", tr.ExitTime, series.Times[series.Len()-1])
	}

	lastPoint := result.EquityCurve[len(result.EquityCurve)-1]
	if !lastPoint.Equity.Equal(result.FinalEquity) {
		t.Errorf("last equity point %s != FinalEquity %s after forced close", lastPoint.Equity, result.FinalEquity)
	}
}

func TestBacktesterRunsOnce(t *testing.T) {
	series := testSeries(t, zigzagCloses...)
	bt := New(testConfig())

	if _, err := bt.Run(context.Background(), series, zigzagStrategy()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	_, err := bt.Run(context.Background(), series, zigzagStrategy())
	if !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestBacktesterPreflightFailure(t *testing.T) {
	series := testSeries(t, zigzagCloses...)
	strat := &requireEMAStrategy{}

	result, err := New(testConfig()).Run(context.Background(), series, strat)

	var perr *domain.PreconditionError
	if !errors.As(err, &perr) {
		t.Fatalf("Run() error = %v, want *PreconditionError", err)
	}
	if result.State != domain.RunStateFailed {
		t.Errorf("State = %s, want failed", result.State)
	}
	if result.BarsProcessed != 0 {
		t.Errorf("BarsProcessed = %d, want 0", result.BarsProcessed)
	}
}

// requireEMAStrategy demands an EMA column the test series never carries.
type requireEMAStrategy struct{ scriptStrategy }

func (s *requireEMAStrategy) Requirements() domain.Requirements {
	return domain.Requirements{EMAPeriods: []int{21}, MinBars: 2}
}

func TestBacktesterConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero capital", mutate: func(c *Config) { c.InitialCapital = decimal.Zero }},
		{name: "negative fee", mutate: func(c *Config) { c.FeeBps = -5 }},
		{name: "threshold above one", mutate: func(c *Config) { c.ConfidenceThreshold = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			result, err := New(cfg).Run(context.Background(), testSeries(t, zigzagCloses...), zigzagStrategy())

			var perr *domain.PreconditionError
			if !errors.As(err, &perr) {
				t.Fatalf("Run() error = %v, want *PreconditionError", err)
			}
			if result.State != domain.RunStateFailed {
				t.Errorf("State = %s, want failed", result.State)
			}
		})
	}
}

func TestBacktesterZeroFractionSkipsEntry(t *testing.T) {
	series := testSeries(t, zigzagCloses...)
	strat := &scriptStrategy{minBars: 2, confidence: 0.8, fraction: 0, holdBars: 2}

	result, err := New(testConfig()).Run(context.Background(), series, strat)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.SignalsSeen == 0 {
		t.Error("SignalsSeen = 0, want > 0")
	}
	if len(result.Trades) != 0 {
		t.Errorf("Trades len = %d, want 0", len(result.Trades))
	}
	if result.OrdersRejected != 0 || result.OrdersDropped != 0 {
		t.Errorf("rejected %d dropped %d, want 0 and 0", result.OrdersRejected, result.OrdersDropped)
	}
}

func TestBacktesterCountsDroppedOrders(t *testing.T) {
	// Full-fraction entries with a fee always cost more than cash.
	cfg := testConfig()
	cfg.FeeBps = 25
	series := testSeries(t, 100, 101, 102, 103)
	strat := &scriptStrategy{minBars: 2, confidence: 0.8, fraction: 1.0, holdBars: 2}

	result, err := New(cfg).Run(context.Background(), series, strat)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.OrdersDropped != 3 {
		t.Errorf("OrdersDropped = %d, want 3", result.OrdersDropped)
	}
	if len(result.Trades) != 0 {
		t.Errorf("Trades len = %d, want 0", len(result.Trades))
	}
	if result.State != domain.RunStateFinished {
		t.Errorf("State = %s, want finished: dropped orders never abort", result.State)
	}
}

func TestBacktesterEquityCurveCoversEveryBar(t *testing.T) {
	series := testSeries(t, zigzagCloses...)

	result, err := New(testConfig()).Run(context.Background(), series, zigzagStrategy())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.EquityCurve) != result.BarsProcessed {
		t.Fatalf("EquityCurve len = %d, BarsProcessed = %d, want equal", len(result.EquityCurve), result.BarsProcessed)
	}
	for i := 1; i < len(result.EquityCurve); i++ {
		prev, cur := result.EquityCurve[i-1], result.EquityCurve[i]
		if cur.Bar != prev.Bar+1 {
			t.Errorf("equity point %d: bar %d follows %d, want consecutive", i, cur.Bar, prev.Bar)
		}
		if !cur.Time.After(prev.Time) {
			t.Errorf("equity point %d: time not increasing", i)
		}
	}
}
