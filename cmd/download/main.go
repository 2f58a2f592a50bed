package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/feed"
)

func main() {
	// Parse flags
	symbol := flag.String("symbol", "", "Symbol to download, e.g. BTCUSDT (required)")
	interval := flag.String("interval", "1h", "Kline interval: 1m, 5m, 15m, 1h, 4h, 1d")
	start := flag.String("start", "", "Range start, RFC3339 or YYYY-MM-DD (required)")
	end := flag.String("end", "", "Range end, RFC3339 or YYYY-MM-DD (default: now)")
	out := flag.String("out", "", "Output CSV path (required)")
	limit := flag.Int("limit", 0, "Cap on total bars (0 = full range)")
	baseURL := flag.String("base-url", feed.DefaultBaseURL, "Klines endpoint base URL")
	follow := flag.Bool("follow", false, "Keep appending closed candles from the websocket stream")
	streamBase := flag.String("stream-url", feed.DefaultStreamBaseURL, "Websocket stream base URL")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[download] ", log.LstdFlags)

	// Validate required flags
	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if *start == "" {
		logger.Fatal("--start is required")
	}
	if *out == "" {
		logger.Fatal("--out is required")
	}
	if !feed.ValidInterval(*interval) {
		logger.Fatalf("Invalid interval: %s. Must be 1m, 5m, 15m, 1h, 4h, or 1d", *interval)
	}

	startTime, err := parseTime(*start)
	if err != nil {
		logger.Fatalf("parse --start: %v", err)
	}
	endTime := time.Now().UTC()
	if *end != "" {
		endTime, err = parseTime(*end)
		if err != nil {
			logger.Fatalf("parse --end: %v", err)
		}
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

	// Fetch klines
	client := feed.NewClient(feed.WithBaseURL(*baseURL))
	logger.Printf("Downloading %s %s klines from %s to %s",
		*symbol, *interval, startTime.Format(time.RFC3339), endTime.Format(time.RFC3339))

	series, err := client.Klines(ctx, *symbol, *interval, startTime, endTime, *limit)
	if err != nil {
		logger.Fatalf("download klines: %v", err)
	}
	if series.Len() == 0 {
		logger.Fatal("no bars returned for the requested range")
	}

	// Write CSV
	if err := feed.WriteCSV(*out, series); err != nil {
		logger.Fatalf("write csv: %v", err)
	}
	logger.Printf("Wrote %d bars to %s", series.Len(), *out)

	if !*follow {
		return
	}
	if err := followStream(ctx, *streamBase, *symbol, *interval, *out, series.Times[series.Len()-1], logger); err != nil {
		logger.Fatalf("stream: %v", err)
	}
}

// followStream appends closed candles from the websocket stream to the CSV
// until the context is canceled. Bars at or before last are dropped so the
// downloaded range and the live stream do not overlap.
func followStream(ctx context.Context, streamBase, symbol, interval, out string, last time.Time, logger *log.Logger) error {
	endpoint, err := feed.StreamURL(streamBase, symbol, interval)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(out, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", out, err)
	}
	defer f.Close()

	handler := func(_, _ string, bar domain.Bar) {
		if !bar.Time.After(last) {
			return
		}
		last = bar.Time
		if err := feed.AppendBarCSV(f, bar); err != nil {
			logger.Printf("append bar: %v", err)
			return
		}
		logger.Printf("Appended %s close=%g", bar.Time.Format(time.RFC3339), bar.Close)
	}

	stream, err := feed.DialStream(ctx, endpoint, handler, nil)
	if err != nil {
		return err
	}
	defer stream.Close()

	logger.Printf("Following %s %s at %s", strings.ToUpper(symbol), interval, endpoint)

	select {
	case <-ctx.Done():
		return nil
	case err := <-stream.Errs():
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// parseTime accepts RFC3339 or a bare date.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
