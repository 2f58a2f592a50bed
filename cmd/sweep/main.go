package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/decision"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/enrich"
	"chart-strategy-lab/internal/feed"
	"chart-strategy-lab/internal/pipeline"
	"chart-strategy-lab/internal/preflight"
	"chart-strategy-lab/internal/reporting"
	"chart-strategy-lab/internal/storage"
	chstore "chart-strategy-lab/internal/storage/clickhouse"
	"chart-strategy-lab/internal/storage/memory"
	"chart-strategy-lab/internal/storage/migrations"
	pgstore "chart-strategy-lab/internal/storage/postgres"
	"chart-strategy-lab/internal/strategy"
)

func main() {
	// Input selection
	csvPath := flag.String("csv", "", "Sweep over a CSV candle file instead of a stored series")
	symbol := flag.String("symbol", "", "Symbol of the stored series (required without --csv)")
	timeframe := flag.String("timeframe", "", "Timeframe of the stored series (required without --csv)")

	// Config selection
	presetList := flag.String("presets", "", "Comma-separated preset names (empty = all presets)")
	configPath := flag.String("config", "", "JSON file with an array of strategy configs")

	// Account
	capital := flag.Float64("capital", 10000, "Initial capital per run")
	feeBps := flag.Int64("fee-bps", 0, "Per-fill fee in basis points")
	confidence := flag.Float64("confidence", 0, "Minimum signal confidence to act on [0, 1]")
	concurrency := flag.Int("concurrency", 0, "Max parallel runs (0 = NumCPU)")

	// Acceptance gate
	gate := flag.Bool("gate", true, "Apply acceptance thresholds to every run")
	minTrades := flag.Int("min-trades", decision.DefaultThresholds().MinTrades, "Minimum trade count")
	minWinRate := flag.Float64("min-win-rate", decision.DefaultThresholds().MinWinRate, "Minimum win rate")
	maxDrawdown := flag.Float64("max-drawdown", decision.DefaultThresholds().MaxDrawdown, "Maximum drawdown fraction")
	minProfitFactor := flag.Float64("min-profit-factor", decision.DefaultThresholds().MinProfitFactor, "Minimum profit factor")

	// Storage
	storeKind := flag.String("store", "memory", "Storage backend: memory, postgres, clickhouse")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")

	// Output
	reportDir := flag.String("report-dir", "", "Write per-run markdown reports and a ranked CSV here")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[sweep] ", log.LstdFlags)

	// Validate required flags
	if *csvPath == "" && (*symbol == "" || *timeframe == "") {
		logger.Fatal("--csv or both --symbol and --timeframe are required")
	}
	if *presetList != "" && *configPath != "" {
		logger.Fatal("--presets and --config are mutually exclusive")
	}

	// Resolve configs
	configs, err := resolveConfigs(*presetList, *configPath)
	if err != nil {
		logger.Fatalf("resolve configs: %v", err)
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

	// Union the indicator needs so the series is enriched exactly once.
	// Configs that fail to build are left for the sweep to report.
	var reqs []domain.Requirements
	for _, cfg := range configs {
		strat, err := strategy.FromConfig(cfg)
		if err != nil {
			continue
		}
		reqs = append(reqs, strat.Requirements())
	}
	if err := enrich.Enrich(series, enrich.FromRequirements(reqs...)); err != nil {
		logger.Fatalf("enrich: %v", err)
	}

	// Gate on data quality once for the whole sweep
	pf := preflight.Check(series)
	if err := pf.Err(); err != nil {
		logger.Fatalf("preflight: %v", err)
	}
	for _, w := range pf.Warnings {
		logger.Printf("preflight warning: %s", w)
	}

	// Sweep
	opts := pipeline.Options{
		Backtest: backtest.Config{
			InitialCapital:      decimal.NewFromFloat(*capital),
			FeeBps:              *feeBps,
			ConfidenceThreshold: *confidence,
			Logger:              logger,
		},
		Concurrency: *concurrency,
	}
	if *gate {
		thresholds := decision.Thresholds{
			MinTrades:       *minTrades,
			MinWinRate:      *minWinRate,
			MaxDrawdown:     *maxDrawdown,
			MinProfitFactor: *minProfitFactor,
		}
		if err := thresholds.Validate(); err != nil {
			logger.Fatalf("thresholds: %v", err)
		}
		opts.Thresholds = &thresholds
	}

	logger.Printf("Sweeping %d configs over %s %s (%d bars)",
		len(configs), series.Symbol, series.Timeframe, series.Len())

	outcomes, err := pipeline.Sweep(ctx, series, configs, opts)
	if err != nil {
		logger.Fatalf("sweep failed: %v", err)
	}
	ranked := pipeline.Rank(outcomes)

	printRanked(ranked)

	// Write reports
	if *reportDir != "" {
		if err := writeReports(*reportDir, ranked); err != nil {
			logger.Fatalf("write reports: %v", err)
		}
		logger.Printf("Reports written to %s", *reportDir)
	}
}

// resolveConfigs builds the config list from preset names or a JSON file.
// Neither given means every preset, sorted by name for a stable run order.
func resolveConfigs(presetList, configPath string) ([]domain.StrategyConfig, error) {
	if configPath != "" {
		return readConfigs(configPath)
	}

	names := splitList(presetList)
	if len(names) == 0 {
		names = presetNames()
	}

	configs := make([]domain.StrategyConfig, 0, len(names))
	for _, name := range names {
		cfg, ok := domain.Presets[name]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q, known presets: %s", name, strings.Join(presetNames(), ", "))
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// readConfigs loads strategy configs from a JSON array file.
func readConfigs(path string) ([]domain.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var configs []domain.StrategyConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("config file %s has no strategy configs", path)
	}
	for i, cfg := range configs {
		if !domain.KnownStrategyType(cfg.StrategyType) {
			return nil, fmt.Errorf("config %d: unknown strategy type %q", i, cfg.StrategyType)
		}
	}
	return configs, nil
}

// printRanked outputs the ranked sweep table.
func printRanked(ranked []pipeline.Outcome) {
	fmt.Println()
	fmt.Println("=== Sweep Results ===")
	fmt.Printf("%-4s  %-36s  %6s  %8s  %12s  %8s  %6s  %s\n",
		"Rank", "Strategy", "Trades", "WinRate", "TotalPnL", "MaxDD", "PF", "Verdict")
	for i, out := range ranked {
		if out.Err != nil {
			fmt.Printf("%-4d  %-36s  failed: %v\n", i+1, outcomeName(out), out.Err)
			continue
		}
		verdict := "-"
		if out.Verdict != nil {
			verdict = "FAIL"
			if out.Verdict.Pass {
				verdict = "PASS"
			}
		}
		fmt.Printf("%-4d  %-36s  %6d  %7.2f%%  %12.4f  %7.2f%%  %6.2f  %s\n",
			i+1, out.Result.StrategyID, out.Summary.TotalTrades, out.Summary.WinRate*100,
			out.Summary.TotalPnL, out.Summary.MaxDrawdown*100, out.Summary.ProfitFactor, verdict)
	}
}

// outcomeName labels an outcome even when the run never produced a result.
func outcomeName(out pipeline.Outcome) string {
	if out.Result != nil && out.Result.StrategyID != "" {
		return out.Result.StrategyID
	}
	return out.Config.StrategyType
}

// writeReports writes one markdown report per successful run plus a ranked
// CSV summary of the whole sweep.
func writeReports(dir string, ranked []pipeline.Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	gen := reporting.NewGenerator()
	for i, out := range ranked {
		if out.Err != nil || out.Result == nil {
			continue
		}
		report := gen.Generate(out.Result, out.Summary, out.Verdict)
		name := fmt.Sprintf("%02d_%s.md", i+1, out.Result.StrategyID)

		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := reporting.RenderMarkdown(f, report); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
	}

	return writeSweepCSV(filepath.Join(dir, "sweep.csv"), ranked)
}

// writeSweepCSV writes the ranked outcomes as one CSV row each.
func writeSweepCSV(path string, ranked []pipeline.Outcome) error {
	var sb strings.Builder
	sb.WriteString("rank,strategy_id,run_id,state,trades,wins,losses,win_rate,total_pnl,max_drawdown,profit_factor,expectancy,total_return,verdict,error\n")

	for i, out := range ranked {
		if out.Err != nil {
			runID, state := "", ""
			if out.Result != nil {
				runID = out.Result.RunID
				state = string(out.Result.State)
			}
			sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,,,,,,,,,,,%q\n",
				i+1, outcomeName(out), runID, state, out.Err.Error()))
			continue
		}
		verdict := ""
		if out.Verdict != nil {
			verdict = "FAIL"
			if out.Verdict.Pass {
				verdict = "PASS"
			}
		}
		s := out.Summary
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%s,\n",
			i+1, out.Result.StrategyID, out.Result.RunID, out.Result.State,
			s.TotalTrades, s.Wins, s.Losses, s.WinRate, s.TotalPnL, s.MaxDrawdown,
			s.ProfitFactor, s.Expectancy, s.TotalReturn, verdict))
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
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
