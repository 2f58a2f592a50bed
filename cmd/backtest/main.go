package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/feed"
	"chart-strategy-lab/internal/metrics"
	"chart-strategy-lab/internal/reporting"
	"chart-strategy-lab/internal/storage"
	chstore "chart-strategy-lab/internal/storage/clickhouse"
	"chart-strategy-lab/internal/storage/memory"
	"chart-strategy-lab/internal/storage/migrations"
	pgstore "chart-strategy-lab/internal/storage/postgres"
	"chart-strategy-lab/internal/strategy"
	"chart-strategy-lab/internal/verification"
)

func main() {
	// Input selection
	csvPath := flag.String("csv", "", "Backtest a CSV candle file instead of a stored series")
	symbol := flag.String("symbol", "", "Symbol of the stored series (required without --csv)")
	timeframe := flag.String("timeframe", "", "Timeframe of the stored series (required without --csv)")

	// Strategy selection
	presetName := flag.String("preset", "", "Preset name (see --list-presets)")
	listPresets := flag.Bool("list-presets", false, "List preset names and exit")
	strategyType := flag.String("strategy", "", "Strategy: candlestick, pattern, ema_trend, volatility")

	// Candlestick parameters
	dojiThreshold := flag.Float64("doji-threshold", strategy.DefaultDojiThreshold, "Max body/wick ratio for a doji")
	exitAfterBars := flag.Int("exit-after-bars", strategy.DefaultCandleExitAfterBars, "Close after this many bars held")

	// Pattern parameters
	patternList := flag.String("patterns", "", "Comma-separated chart pattern names (empty = default set)")
	minScore := flag.Float64("min-score", strategy.DefaultPatternMinScore, "Minimum pattern match score")
	maxHoldingBars := flag.Int("max-holding-bars", 0, "Max bars to hold a pattern trade (0 = unlimited)")

	// EMA trend parameters
	emaShort := flag.Int("ema-short", strategy.DefaultEMAShort, "Short EMA period")
	emaMedium := flag.Int("ema-medium", strategy.DefaultEMAMedium, "Medium EMA period")
	emaLong := flag.Int("ema-long", strategy.DefaultEMALong, "Long EMA period")
	strict := flag.Bool("strict", false, "Require the full EMA stack alignment")
	swingLookback := flag.Int("swing-lookback", strategy.DefaultSwingLookback, "Bars each side for the swing point scan")
	momentumPeriod := flag.Int("momentum-period", strategy.DefaultMomentumPeriod, "Momentum lookback period")

	// Volatility parameters
	atrPeriod := flag.Int("atr-period", strategy.DefaultATRPeriod, "ATR period")
	bbPeriod := flag.Int("bb-period", strategy.DefaultBBPeriod, "Bollinger band period")
	bbStd := flag.Float64("bb-std", strategy.DefaultBBStd, "Bollinger band width in standard deviations")
	volLookback := flag.Int("vol-lookback", strategy.DefaultVolLookback, "Trailing window for volatility baselines")
	volThreshold := flag.Float64("vol-threshold", strategy.DefaultVolThreshold, "Minimum volatility expansion ratio for a breakout")
	rangeThreshold := flag.Float64("range-threshold", strategy.DefaultRangeThreshold, "Minimum bar range as a fraction of ATR")

	// Account
	capital := flag.Float64("capital", 10000, "Initial capital")
	feeBps := flag.Int64("fee-bps", 0, "Per-fill fee in basis points")
	confidence := flag.Float64("confidence", 0, "Minimum signal confidence to act on [0, 1]")

	// Storage
	storeKind := flag.String("store", "memory", "Storage backend: memory, postgres, clickhouse")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")

	// Verification
	verify := flag.Bool("verify", false, "Verify determinism and look-ahead safety after the run")
	verifyProbes := flag.Int("verify-probes", 16, "Bars to probe for look-ahead (0 = every eligible bar)")

	// Output
	reportPath := flag.String("report", "", "Write a markdown report to this path")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	persistResult := flag.Bool("persist", false, "Persist the run, its trades and its equity curve")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	if *listPresets {
		for _, name := range presetNames() {
			fmt.Println(name)
		}
		return
	}

	// Validate required flags
	if *csvPath == "" && (*symbol == "" || *timeframe == "") {
		logger.Fatal("--csv or both --symbol and --timeframe are required")
	}
	if *presetName == "" && *strategyType == "" {
		logger.Fatal("--preset or --strategy is required")
	}

	// Resolve strategy config
	var strategyConfig domain.StrategyConfig
	if *presetName != "" {
		cfg, ok := domain.Presets[*presetName]
		if !ok {
			logger.Fatalf("Unknown preset: %s. Known presets: %s", *presetName, strings.Join(presetNames(), ", "))
		}
		strategyConfig = cfg
	} else {
		*strategyType = strings.ToLower(*strategyType)
		if !domain.KnownStrategyType(*strategyType) {
			logger.Fatalf("Invalid strategy: %s. Must be candlestick, pattern, ema_trend, or volatility", *strategyType)
		}
		strategyConfig = buildStrategyConfig(*strategyType, strategyFlags{
			dojiThreshold:  dojiThreshold,
			exitAfterBars:  exitAfterBars,
			patterns:       patternList,
			minScore:       minScore,
			maxHoldingBars: maxHoldingBars,
			emaShort:       emaShort,
			emaMedium:      emaMedium,
			emaLong:        emaLong,
			strict:         strict,
			swingLookback:  swingLookback,
			momentumPeriod: momentumPeriod,
			atrPeriod:      atrPeriod,
			bbPeriod:       bbPeriod,
			bbStd:          bbStd,
			volLookback:    volLookback,
			volThreshold:   volThreshold,
			rangeThreshold: rangeThreshold,
		})
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	stores, cleanup, err := openStores(ctx, *storeKind, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	// Load the series
	var series *domain.Series
	if *csvPath != "" {
		sym := *symbol
		if sym == "" {
			base := filepath.Base(*csvPath)
			sym = strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
		}
		series, err = feed.ReadCSV(*csvPath, sym, *timeframe)
		if err != nil {
			logger.Fatalf("read csv: %v", err)
		}
	} else {
		series, err = stores.bars.GetSeries(ctx, *symbol, *timeframe)
		if err != nil {
			logger.Fatalf("load series %s %s: %v", *symbol, *timeframe, err)
		}
	}

	// Create the runner; stores are attached only when persisting
	runnerCfg := backtest.RunnerConfig{
		Backtest: backtest.Config{
			InitialCapital:      decimal.NewFromFloat(*capital),
			FeeBps:              *feeBps,
			ConfidenceThreshold: *confidence,
			Logger:              logger,
		},
	}
	if *persistResult {
		runnerCfg.Runs = stores.runs
		runnerCfg.Trades = stores.trades
	}
	runner := backtest.NewRunner(runnerCfg)

	// Run backtest
	logger.Printf("Running backtest: strategy=%s symbol=%s timeframe=%s bars=%d",
		strategyConfig.StrategyType, series.Symbol, series.Timeframe, series.Len())

	result, err := runner.RunSeries(ctx, series, strategyConfig)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}
	summary := metrics.Compute(result)

	// Verify on the enriched series the run just used
	if *verify {
		if err := runVerification(ctx, series, runnerCfg.Backtest, strategyConfig, *verifyProbes, logger); err != nil {
			logger.Fatalf("verification failed: %v", err)
		}
	}

	// Write report
	if *reportPath != "" {
		report := reporting.NewGenerator().Generate(result, summary, nil)
		f, err := os.Create(*reportPath)
		if err != nil {
			logger.Fatalf("create report file: %v", err)
		}
		if err := reporting.RenderMarkdown(f, report); err != nil {
			f.Close()
			logger.Fatalf("write report: %v", err)
		}
		if err := f.Close(); err != nil {
			logger.Fatalf("close report file: %v", err)
		}
		logger.Printf("Report written to %s", *reportPath)
	}

	// Output result
	if *outputJSON {
		output, err := json.MarshalIndent(struct {
			Result  *domain.RunResult `json:"result"`
			Summary summaryPayload    `json:"summary"`
		}{result, toSummaryPayload(summary)}, "", "  ")
		if err != nil {
			logger.Fatalf("marshal result: %v", err)
		}
		fmt.Println(string(output))
	} else {
		printResult(result, summary)
	}
}

// summaryPayload is the JSON shape of a run summary. ProfitFactor is omitted
// when undefined (wins with no losses make it +Inf, which JSON cannot carry).
type summaryPayload struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`

	TotalPnL     float64  `json:"total_pnl"`
	AvgWin       float64  `json:"avg_win"`
	AvgLoss      float64  `json:"avg_loss"`
	ProfitFactor *float64 `json:"profit_factor,omitempty"`
	Expectancy   float64  `json:"expectancy"`
	PnLStddev    float64  `json:"pnl_stddev"`
	PnLMedian    float64  `json:"pnl_median"`
	BestTrade    float64  `json:"best_trade"`
	WorstTrade   float64  `json:"worst_trade"`

	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxDrawdownAbs       float64 `json:"max_drawdown_abs"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`

	AvgHoldingBars float64 `json:"avg_holding_bars"`
	TotalReturn    float64 `json:"total_return"`
	FinalEquity    float64 `json:"final_equity"`
}

func toSummaryPayload(s domain.Summary) summaryPayload {
	p := summaryPayload{
		TotalTrades:          s.TotalTrades,
		Wins:                 s.Wins,
		Losses:               s.Losses,
		WinRate:              s.WinRate,
		TotalPnL:             s.TotalPnL,
		AvgWin:               s.AvgWin,
		AvgLoss:              s.AvgLoss,
		Expectancy:           s.Expectancy,
		PnLStddev:            s.PnLStddev,
		PnLMedian:            s.PnLMedian,
		BestTrade:            s.BestTrade,
		WorstTrade:           s.WorstTrade,
		MaxDrawdown:          s.MaxDrawdown,
		MaxDrawdownAbs:       s.MaxDrawdownAbs,
		MaxConsecutiveLosses: s.MaxConsecutiveLosses,
		AvgHoldingBars:       s.AvgHoldingBars,
		TotalReturn:          s.TotalReturn,
		FinalEquity:          s.FinalEquity,
	}
	if !math.IsInf(s.ProfitFactor, 0) && !math.IsNaN(s.ProfitFactor) {
		pf := s.ProfitFactor
		p.ProfitFactor = &pf
	}
	return p
}

// strategyFlags carries the parsed strategy parameter flags. Flag values are
// already pointers, which is exactly what StrategyConfig wants.
type strategyFlags struct {
	dojiThreshold  *float64
	exitAfterBars  *int
	patterns       *string
	minScore       *float64
	maxHoldingBars *int
	emaShort       *int
	emaMedium      *int
	emaLong        *int
	strict         *bool
	swingLookback  *int
	momentumPeriod *int
	atrPeriod      *int
	bbPeriod       *int
	bbStd          *float64
	volLookback    *int
	volThreshold   *float64
	rangeThreshold *float64
}

// buildStrategyConfig creates a StrategyConfig from CLI flags. Only the
// chosen strategy's parameter group is set; factory defaults cover the rest.
func buildStrategyConfig(strategyType string, f strategyFlags) domain.StrategyConfig {
	cfg := domain.StrategyConfig{StrategyType: strategyType}

	switch strategyType {
	case domain.StrategyTypeCandlestick:
		cfg.DojiThreshold = f.dojiThreshold
		cfg.ExitAfterBars = f.exitAfterBars
	case domain.StrategyTypePattern:
		if *f.patterns != "" {
			cfg.Patterns = splitList(*f.patterns)
		}
		cfg.MinScore = f.minScore
		cfg.MaxHoldingBars = f.maxHoldingBars
	case domain.StrategyTypeEMATrend:
		cfg.EMAShort = f.emaShort
		cfg.EMAMedium = f.emaMedium
		cfg.EMALong = f.emaLong
		cfg.Strict = f.strict
		cfg.SwingLookback = f.swingLookback
		cfg.MomentumPeriod = f.momentumPeriod
	case domain.StrategyTypeVolatility:
		cfg.ATRPeriod = f.atrPeriod
		cfg.BBPeriod = f.bbPeriod
		cfg.BBStd = f.bbStd
		cfg.VolLookback = f.volLookback
		cfg.VolThreshold = f.volThreshold
		cfg.RangeThreshold = f.rangeThreshold
	}

	return cfg
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// presetNames returns the known preset names sorted.
func presetNames() []string {
	names := make([]string, 0, len(domain.Presets))
	for name := range domain.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// allStores bundles the storage backends a command talks to.
type allStores struct {
	bars   storage.BarSeriesStore
	runs   storage.RunStore
	trades storage.TradeStore
}

// openStores wires the backends for --store. Postgres owns runs and trades,
// ClickHouse owns bar series and equity curves; whichever database the mode
// does not name still joins in when its DSN is set, serving the tables its
// schema owns. Migrations run on every database opened. The returned cleanup
// closes the opened connections.
func openStores(ctx context.Context, kind, postgresDSN, clickhouseDSN string, logger *log.Logger) (*allStores, func(), error) {
	stores := &allStores{
		bars:   memory.NewSeriesStore(),
		runs:   memory.NewRunStore(),
		trades: memory.NewTradeStore(),
	}

	switch kind {
	case "memory":
		logger.Printf("Storage: in-memory")
		return stores, func() {}, nil
	case "postgres":
		if postgresDSN == "" {
			return nil, nil, fmt.Errorf("--postgres-dsn is required with --store postgres")
		}
	case "clickhouse":
		if clickhouseDSN == "" {
			return nil, nil, fmt.Errorf("--clickhouse-dsn is required with --store clickhouse")
		}
	default:
		return nil, nil, fmt.Errorf("unknown store %q, must be memory, postgres or clickhouse", kind)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}

		stores.runs = pgstore.NewRunStore(pool)
		stores.trades = pgstore.NewTradeStore(pool)
		logger.Printf("Storage: postgres (runs, trades)")
	}

	if clickhouseDSN != "" {
		conn, err := chstore.EnsureDatabase(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })

		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}

		stores.bars = chstore.NewSeriesStore(conn)
		if kind == "clickhouse" {
			// Run scalars stay wherever they are; the point-heavy curves
			// move to ClickHouse.
			stores.runs = storage.SplitRunStore(stores.runs, chstore.NewEquityCurveStore(conn))
			logger.Printf("Storage: clickhouse (bar series, equity curves)")
		} else {
			logger.Printf("Storage: clickhouse (bar series)")
		}
	}

	return stores, cleanup, nil
}

// runVerification replays the run for bit-identical output, then probes
// truncated histories for look-ahead. Any divergence is fatal.
func runVerification(ctx context.Context, series *domain.Series, cfg backtest.Config, sc domain.StrategyConfig, probes int, logger *log.Logger) error {
	det, err := verification.VerifyDeterminism(ctx, series, cfg, sc)
	if err != nil {
		return fmt.Errorf("determinism: %w", err)
	}
	if !det.Match {
		for _, d := range det.Divergences {
			logger.Printf("determinism divergence: %s: %s != %s", d.Field, d.A, d.B)
		}
		return fmt.Errorf("determinism: %d fields diverged", len(det.Divergences))
	}
	logger.Printf("Determinism: OK (run %s)", det.RunID)

	la, err := verification.VerifyNoLookahead(ctx, series, cfg, sc, probes)
	if err != nil {
		return fmt.Errorf("look-ahead: %w", err)
	}
	if !la.Match {
		for _, d := range la.Divergences {
			logger.Printf("look-ahead divergence: %s: %s != %s", d.Field, d.A, d.B)
		}
		return fmt.Errorf("look-ahead: %d divergences", len(la.Divergences))
	}
	logger.Printf("Look-ahead: OK (%d bars probed)", len(la.ProbedBars))
	return nil
}

// printResult outputs the human-readable run result.
func printResult(r *domain.RunResult, s domain.Summary) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", r.RunID)
	fmt.Printf("Strategy:           %s\n", r.StrategyID)
	fmt.Printf("Symbol:             %s %s\n", r.Symbol, r.Timeframe)
	fmt.Printf("State:              %s\n", r.State)
	if r.Err != "" {
		fmt.Printf("Error:              %s\n", r.Err)
	}
	fmt.Printf("Bars Processed:     %d\n", r.BarsProcessed)
	fmt.Printf("Signals Seen:       %d\n", r.SignalsSeen)
	fmt.Printf("Orders Rejected:    %d\n", r.OrdersRejected)
	fmt.Printf("Orders Dropped:     %d\n", r.OrdersDropped)
	fmt.Println()

	fmt.Println("Performance:")
	fmt.Printf("  Initial Capital:  %s\n", r.InitialCapital)
	fmt.Printf("  Final Equity:     %s\n", r.FinalEquity)
	fmt.Printf("  Total Return:     %.2f%%\n", s.TotalReturn*100)
	fmt.Printf("  Total PnL:        %.4f\n", s.TotalPnL)
	fmt.Printf("  Trades:           %d (%d wins, %d losses)\n", s.TotalTrades, s.Wins, s.Losses)
	fmt.Printf("  Win Rate:         %.2f%%\n", s.WinRate*100)
	fmt.Printf("  Profit Factor:    %.2f\n", s.ProfitFactor)
	fmt.Printf("  Expectancy:       %.4f\n", s.Expectancy)
	fmt.Printf("  Max Drawdown:     %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("  Avg Holding:      %.1f bars\n", s.AvgHoldingBars)

	if len(r.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, w := range r.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
}
