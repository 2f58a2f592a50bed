package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"chart-strategy-lab/internal/decision"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/metrics"
	"chart-strategy-lab/internal/reporting"
	"chart-strategy-lab/internal/storage"
	chstore "chart-strategy-lab/internal/storage/clickhouse"
	"chart-strategy-lab/internal/storage/memory"
	"chart-strategy-lab/internal/storage/migrations"
	pgstore "chart-strategy-lab/internal/storage/postgres"
)

func main() {
	// Run selection
	runID := flag.String("run", "", "Run ID to report on (empty = rollup across all stored runs)")
	limit := flag.Int("limit", 0, "Max runs to load in rollup mode (0 = all)")

	// Acceptance gate
	gate := flag.Bool("gate", true, "Apply acceptance thresholds to the run report (with --run)")
	minTrades := flag.Int("min-trades", decision.DefaultThresholds().MinTrades, "Minimum trade count")
	minWinRate := flag.Float64("min-win-rate", decision.DefaultThresholds().MinWinRate, "Minimum win rate")
	maxDrawdown := flag.Float64("max-drawdown", decision.DefaultThresholds().MaxDrawdown, "Maximum drawdown fraction")
	minProfitFactor := flag.Float64("min-profit-factor", decision.DefaultThresholds().MinProfitFactor, "Minimum profit factor")

	// Storage
	storeKind := flag.String("store", "postgres", "Storage backend: postgres, clickhouse")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")

	// Output
	outDir := flag.String("out", "reports", "Output directory for generated files")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	// Validate required flags
	if *storeKind == "memory" {
		logger.Fatal("--store memory has no saved runs, use --store postgres or --store clickhouse")
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

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}

	if *runID == "" {
		if err := runRollup(ctx, stores, *limit, *outDir); err != nil {
			logger.Fatalf("rollup: %v", err)
		}
		return
	}

	// Single-run report
	run, err := loadRun(ctx, stores, *runID)
	if err != nil {
		logger.Fatalf("load run: %v", err)
	}
	summary := metrics.Compute(run)

	var verdict *decision.Verdict
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
		v := thresholds.Evaluate(summary)
		verdict = &v
	}

	report := reporting.NewGenerator().Generate(run, summary, verdict)

	mdPath := filepath.Join(*outDir, run.RunID+".md")
	csvPath := filepath.Join(*outDir, run.RunID+"_trades.csv")
	if err := writeFile(mdPath, func(f *os.File) error { return reporting.RenderMarkdown(f, report) }); err != nil {
		logger.Fatalf("write markdown: %v", err)
	}
	if err := writeFile(csvPath, func(f *os.File) error { return reporting.RenderCSV(f, report) }); err != nil {
		logger.Fatalf("write csv: %v", err)
	}

	fmt.Println("Report generated:")
	fmt.Printf("  - %s\n", mdPath)
	fmt.Printf("  - %s\n", csvPath)
}

// runRollup loads every stored run, recomputes its summary and prints the
// per-strategy rollup, plus a CSV copy in the output directory.
func runRollup(ctx context.Context, stores *allStores, limit int, outDir string) error {
	runs, err := stores.runs.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		return fmt.Errorf("no stored runs found")
	}

	summaries := make([]domain.Summary, 0, len(runs))
	for _, run := range runs {
		if _, err := hydrate(ctx, stores, run); err != nil {
			return err
		}
		summaries = append(summaries, metrics.Compute(run))
	}

	rollups := metrics.Aggregate(summaries)
	printRollups(rollups, len(runs))

	path := filepath.Join(outDir, "strategy_rollups.csv")
	if err := writeRollupCSV(path, rollups); err != nil {
		return fmt.Errorf("write rollup csv: %w", err)
	}

	fmt.Println()
	fmt.Println("Rollup generated:")
	fmt.Printf("  - %s\n", path)
	return nil
}

// loadRun fetches one run with its trades and equity curve reattached.
func loadRun(ctx context.Context, stores *allStores, runID string) (*domain.RunResult, error) {
	run, err := stores.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return hydrate(ctx, stores, run)
}

// hydrate reattaches trades and the equity curve to a run row. A run without
// trades or a stored curve is fine; anything else is a storage error.
func hydrate(ctx context.Context, stores *allStores, run *domain.RunResult) (*domain.RunResult, error) {
	trades, err := stores.trades.ListByRun(ctx, run.RunID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("list trades for %s: %w", run.RunID, err)
	}
	curve, err := stores.runs.GetEquityCurve(ctx, run.RunID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("equity curve for %s: %w", run.RunID, err)
	}
	run.Trades = trades
	run.EquityCurve = curve
	return run, nil
}

// printRollups outputs the per-strategy aggregate table.
func printRollups(rollups []metrics.StrategyRollup, runCount int) {
	fmt.Println()
	fmt.Printf("=== Strategy Rollups (%d runs) ===\n", runCount)
	fmt.Printf("%-36s  %4s  %6s  %8s  %12s  %12s  %8s  %10s\n",
		"Strategy", "Runs", "Trades", "WinRate", "TotalPnL", "AvgRunPnL", "MaxDD", "Profitable")
	for _, r := range rollups {
		fmt.Printf("%-36s  %4d  %6d  %7.2f%%  %12.4f  %12.4f  %7.2f%%  %10d\n",
			r.StrategyID, r.Runs, r.TotalTrades, r.WinRate*100,
			r.TotalPnL, r.AvgRunPnL, r.MaxDrawdown*100, r.ProfitableRuns)
	}
}

// writeRollupCSV writes the rollups as one CSV row per strategy.
func writeRollupCSV(path string, rollups []metrics.StrategyRollup) error {
	var sb strings.Builder
	sb.WriteString("strategy_id,runs,total_trades,wins,losses,win_rate,total_pnl,avg_run_pnl,best_run_id,best_run_pnl,worst_run_id,worst_run_pnl,max_drawdown,avg_return,profitable_runs\n")
	for _, r := range rollups {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%.6f,%.6f,%.6f,%s,%.6f,%s,%.6f,%.6f,%.6f,%d\n",
			r.StrategyID, r.Runs, r.TotalTrades, r.Wins, r.Losses, r.WinRate,
			r.TotalPnL, r.AvgRunPnL, r.BestRunID, r.BestRunPnL, r.WorstRunID,
			r.WorstRunPnL, r.MaxDrawdown, r.AvgReturn, r.ProfitableRuns))
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// writeFile creates path, hands it to render and closes it, keeping the
// first error.
func writeFile(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
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
