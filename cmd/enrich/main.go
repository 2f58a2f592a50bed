package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"chart-strategy-lab/internal/enrich"
	"chart-strategy-lab/internal/feed"
	chstore "chart-strategy-lab/internal/storage/clickhouse"
	"chart-strategy-lab/internal/storage/migrations"
)

func main() {
	// Parse flags
	in := flag.String("in", "", "Input raw CSV path (required)")
	out := flag.String("out", "", "Output enriched CSV path")
	symbol := flag.String("symbol", "", "Symbol label for the series (default: from file name)")
	timeframe := flag.String("timeframe", "", "Timeframe label for the series")

	// Indicator parameters
	emaList := flag.String("ema", "8,21,200", "Comma-separated EMA periods (empty = none)")
	atrPeriod := flag.Int("atr-period", enrich.DefaultATRPeriod, "ATR period (0 = skip)")
	bbPeriod := flag.Int("bb-period", enrich.DefaultBBPeriod, "Bollinger band period (0 = skip)")
	bbStd := flag.Float64("bb-std", enrich.DefaultBBStd, "Bollinger band width in standard deviations")

	// Storage
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Store the enriched series in ClickHouse")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[enrich] ", log.LstdFlags)

	// Validate required flags
	if *in == "" {
		logger.Fatal("--in is required")
	}
	if *out == "" && *clickhouseDSN == "" {
		logger.Fatal("--out or --clickhouse-dsn is required")
	}
	if *clickhouseDSN != "" && (*symbol == "" || *timeframe == "") {
		logger.Fatal("--symbol and --timeframe are required when storing to ClickHouse")
	}

	emaPeriods, err := parseIntList(*emaList)
	if err != nil {
		logger.Fatalf("parse --ema: %v", err)
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

	// Read the raw series
	sym := *symbol
	if sym == "" {
		base := filepath.Base(*in)
		sym = strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	series, err := feed.ReadCSV(*in, sym, *timeframe)
	if err != nil {
		logger.Fatalf("read csv: %v", err)
	}

	// Compute indicator columns
	params := enrich.Params{
		EMAPeriods: emaPeriods,
		ATRPeriod:  *atrPeriod,
		BBPeriod:   *bbPeriod,
		BBStd:      *bbStd,
	}
	if err := enrich.Enrich(series, params); err != nil {
		logger.Fatalf("enrich: %v", err)
	}
	logger.Printf("Enriched %d bars (ema=%s atr=%d bb=%d/%.1f)",
		series.Len(), *emaList, *atrPeriod, *bbPeriod, *bbStd)

	// Write enriched CSV
	if *out != "" {
		if err := feed.WriteEnrichedCSV(*out, series); err != nil {
			logger.Fatalf("write enriched csv: %v", err)
		}
		logger.Printf("Wrote %s", *out)
	}

	// Store in ClickHouse
	if *clickhouseDSN != "" {
		conn, err := chstore.EnsureDatabase(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()

		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			logger.Fatalf("clickhouse migrations: %v", err)
		}

		store := chstore.NewSeriesStore(conn)
		if err := store.SaveSeries(ctx, series); err != nil {
			logger.Fatalf("save series: %v", err)
		}
		logger.Printf("Stored %s %s in ClickHouse (%d bars)", series.Symbol, series.Timeframe, series.Len())
	}
}

// parseIntList parses a comma-separated list of integers, skipping empties.
func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad period %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
