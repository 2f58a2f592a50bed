// Package main provides the HTTP API server:
// - POST /api/backtest: run a strategy over a stored series and persist it
// - POST /api/series: upload a CSV candle series
// - GET /api/runs, /api/runs/{id}, /api/runs/{id}/report: browse stored runs
// - /healthz, /metrics, /status: liveness, Prometheus metrics, server state
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"chart-strategy-lab/internal/backtest"
	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/enrich"
	"chart-strategy-lab/internal/feed"
	"chart-strategy-lab/internal/metrics"
	"chart-strategy-lab/internal/observability"
	"chart-strategy-lab/internal/reporting"
	"chart-strategy-lab/internal/storage"
	chstore "chart-strategy-lab/internal/storage/clickhouse"
	"chart-strategy-lab/internal/storage/memory"
	"chart-strategy-lab/internal/storage/migrations"
	pgstore "chart-strategy-lab/internal/storage/postgres"
)

// Server wires the HTTP API to the stores and the backtest runner.
type Server struct {
	// Configuration
	baseConfig backtest.Config

	// Collaborators
	stores   *allStores
	enricher *enrich.Enricher
	logger   *log.Logger

	// State
	mu         sync.Mutex
	started    time.Time
	runsDone   int
	runsFailed int
	lastRunID  string
	lastRunAt  time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", ":8080", "HTTP listen address")
	storeKind := flag.String("store", "memory", "Storage backend: memory, postgres, clickhouse")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	capital := flag.Float64("capital", 10000, "Default initial capital per run")
	feeBps := flag.Int64("fee-bps", 0, "Default per-fill fee in basis points")
	confidence := flag.Float64("confidence", 0, "Default minimum signal confidence [0, 1]")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "Grace period for draining requests")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

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

	m := observability.DefaultMetrics()

	server := &Server{
		baseConfig: backtest.Config{
			InitialCapital:      decimal.NewFromFloat(*capital),
			FeeBps:              *feeBps,
			ConfidenceThreshold: *confidence,
			Logger:              logger,
			Metrics:             m,
		},
		stores:   stores,
		enricher: enrich.NewEnricher(),
		logger:   logger,
		started:  time.Now(),
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: server.routes(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Printf("Listening on %s", *addr)

	select {
	case err := <-errCh:
		logger.Fatalf("HTTP server: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Shutdown: %v", err)
	}
	logger.Println("Shutdown complete")
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/series", s.handleUploadSeries)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/report", s.handleRunReport)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("GET /status", s.handleStatus)

	return mux
}

// BacktestRequest is the JSON body of POST /api/backtest. Either a preset
// name or an inline strategy config selects the strategy; capital, fee and
// confidence fall back to the server defaults when absent.
type BacktestRequest struct {
	Symbol     string                 `json:"symbol"`
	Timeframe  string                 `json:"timeframe"`
	Preset     string                 `json:"preset,omitempty"`
	Strategy   *domain.StrategyConfig `json:"strategy,omitempty"`
	Capital    *float64               `json:"capital,omitempty"`
	FeeBps     *int64                 `json:"fee_bps,omitempty"`
	Confidence *float64               `json:"confidence,omitempty"`
}

// RunResponse is the JSON shape of a completed run.
type RunResponse struct {
	RunID      string `json:"run_id"`
	StrategyID string `json:"strategy_id"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`

	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`

	BarsProcessed  int `json:"bars_processed"`
	SignalsSeen    int `json:"signals_seen"`
	OrdersRejected int `json:"orders_rejected"`
	OrdersDropped  int `json:"orders_dropped"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Warnings []string       `json:"warnings,omitempty"`
	Summary  SummaryPayload `json:"summary"`
	Trades   []TradePayload `json:"trades,omitempty"`
}

// RunListItem is one row of GET /api/runs: run facts without trades.
type RunListItem struct {
	RunID          string          `json:"run_id"`
	StrategyID     string          `json:"strategy_id"`
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe"`
	State          string          `json:"state"`
	BarsProcessed  int             `json:"bars_processed"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// SummaryPayload is the JSON shape of a run summary. ProfitFactor is omitted
// when undefined (wins with no losses).
type SummaryPayload struct {
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

// TradePayload is the JSON shape of one closed trade.
type TradePayload struct {
	TradeID     string          `json:"trade_id"`
	Direction   string          `json:"direction"`
	Size        decimal.Decimal `json:"size"`
	EntryTime   time.Time       `json:"entry_time"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitTime    time.Time       `json:"exit_time"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	ExitReason  string          `json:"exit_reason"`
	PnL         decimal.Decimal `json:"pnl"`
	Fees        decimal.Decimal `json:"fees"`
	Pattern     string          `json:"pattern,omitempty"`
	Confidence  float64         `json:"confidence"`
	HoldingBars int             `json:"holding_bars"`
	Outcome     string          `json:"outcome"`
}

// SymbolPayload is one stored series identity.
type SymbolPayload struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// errorResponse is the JSON shape of every error status.
type errorResponse struct {
	Error string `json:"error"`
}

// handleBacktest runs one backtest over a stored series and persists it.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Symbol == "" || req.Timeframe == "" {
		s.writeError(w, http.StatusBadRequest, "symbol and timeframe are required")
		return
	}

	cfg, err := resolveStrategy(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	btCfg := s.baseConfig
	if req.Capital != nil {
		btCfg.InitialCapital = decimal.NewFromFloat(*req.Capital)
	}
	if req.FeeBps != nil {
		btCfg.FeeBps = *req.FeeBps
	}
	if req.Confidence != nil {
		btCfg.ConfidenceThreshold = *req.Confidence
	}

	runner := backtest.NewRunner(backtest.RunnerConfig{
		Backtest: btCfg,
		Bars:     s.stores.bars,
		Runs:     s.stores.runs,
		Trades:   s.stores.trades,
		Enricher: s.enricher,
	})

	result, err := runner.RunStored(r.Context(), req.Symbol, req.Timeframe, cfg)
	s.recordRun(result, err)
	if err != nil {
		if result == nil {
			s.writeError(w, runErrorStatus(err), err.Error())
			return
		}
		// A failed simulation still carries its partial result.
		s.writeJSON(w, http.StatusInternalServerError, runResponse(result))
		return
	}

	s.writeJSON(w, http.StatusOK, runResponse(result))
}

// resolveStrategy picks the strategy config from the request.
func resolveStrategy(req BacktestRequest) (domain.StrategyConfig, error) {
	if req.Preset != "" {
		if req.Strategy != nil {
			return domain.StrategyConfig{}, fmt.Errorf("preset and strategy are mutually exclusive")
		}
		cfg, ok := domain.Presets[req.Preset]
		if !ok {
			return domain.StrategyConfig{}, fmt.Errorf("unknown preset %q", req.Preset)
		}
		return cfg, nil
	}
	if req.Strategy == nil {
		return domain.StrategyConfig{}, fmt.Errorf("preset or strategy is required")
	}
	if !domain.KnownStrategyType(req.Strategy.StrategyType) {
		return domain.StrategyConfig{}, fmt.Errorf("unknown strategy type %q", req.Strategy.StrategyType)
	}
	return *req.Strategy, nil
}

// runErrorStatus maps a run error to an HTTP status.
func runErrorStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	var rf *backtest.RunFailure
	if errors.As(err, &rf) {
		switch rf.Stage {
		case "config":
			return http.StatusBadRequest
		case "enrich", "preflight":
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// handleUploadSeries stores a CSV candle series posted as the request body.
// Query params symbol and timeframe give the series its identity.
func (s *Server) handleUploadSeries(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	timeframe := r.URL.Query().Get("timeframe")
	if symbol == "" || timeframe == "" {
		s.writeError(w, http.StatusBadRequest, "symbol and timeframe query params are required")
		return
	}

	series, err := feed.ReadSeriesCSV(r.Body, strings.ToUpper(symbol), timeframe)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse csv: %v", err))
		return
	}
	if series.Len() == 0 {
		s.writeError(w, http.StatusBadRequest, "no bars in upload")
		return
	}

	if err := s.stores.bars.SaveSeries(r.Context(), series); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("series %s %s already stored", series.Symbol, series.Timeframe))
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("save series: %v", err))
		return
	}

	s.logger.Printf("stored series %s %s (%d bars)", series.Symbol, series.Timeframe, series.Len())
	s.writeJSON(w, http.StatusCreated, struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe"`
		Bars      int    `json:"bars"`
	}{series.Symbol, series.Timeframe, series.Len()})
}

// handleSymbols lists the stored series identities.
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.stores.bars.ListSymbols(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("list symbols: %v", err))
		return
	}

	resp := make([]SymbolPayload, 0, len(pairs))
	for _, p := range pairs {
		resp = append(resp, SymbolPayload{Symbol: p.Symbol, Timeframe: p.Timeframe})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListRuns lists stored runs, newest first. ?limit caps the count.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("bad limit %q", raw))
			return
		}
		limit = n
	}

	runs, err := s.stores.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}

	resp := make([]RunListItem, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, RunListItem{
			RunID:          run.RunID,
			StrategyID:     run.StrategyID,
			Symbol:         run.Symbol,
			Timeframe:      run.Timeframe,
			State:          string(run.State),
			BarsProcessed:  run.BarsProcessed,
			InitialCapital: run.InitialCapital,
			FinalEquity:    run.FinalEquity,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetRun returns one run with its trades and recomputed summary.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse(run))
}

// handleRunReport renders one stored run as markdown.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	summary := metrics.Compute(run)
	report := reporting.NewGenerator().Generate(run, summary, nil)

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if err := reporting.RenderMarkdown(w, report); err != nil {
		s.logger.Printf("render report %s: %v", run.RunID, err)
	}
}

// loadRun fetches the run named by the path with trades and equity curve
// reattached, writing the error response itself on failure.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*domain.RunResult, bool) {
	id := r.PathValue("id")

	run, err := s.stores.runs.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return nil, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("get run: %v", err))
		return nil, false
	}

	trades, err := s.stores.trades.ListByRun(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("list trades: %v", err))
		return nil, false
	}
	curve, err := s.stores.runs.GetEquityCurve(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("equity curve: %v", err))
		return nil, false
	}

	run.Trades = trades
	run.EquityCurve = curve
	return run, true
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	StartedAt  time.Time `json:"started_at"`
	RunsDone   int       `json:"runs_done"`
	RunsFailed int       `json:"runs_failed"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).String(),
		StartedAt:  s.started,
		RunsDone:   s.runsDone,
		RunsFailed: s.runsFailed,
		LastRunID:  s.lastRunID,
		LastRunAt:  s.lastRunAt,
	}
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, resp)
}

// recordRun updates the /status counters after a backtest request.
func (s *Server) recordRun(result *domain.RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.runsFailed++
	} else {
		s.runsDone++
	}
	if result != nil && result.RunID != "" {
		s.lastRunID = result.RunID
		s.lastRunAt = time.Now()
	}
}

// runResponse assembles the full run payload, summary included.
func runResponse(result *domain.RunResult) RunResponse {
	summary := metrics.Compute(result)

	resp := RunResponse{
		RunID:          result.RunID,
		StrategyID:     result.StrategyID,
		Symbol:         result.Symbol,
		Timeframe:      result.Timeframe,
		State:          string(result.State),
		Error:          result.Err,
		InitialCapital: result.InitialCapital,
		FinalEquity:    result.FinalEquity,
		BarsProcessed:  result.BarsProcessed,
		SignalsSeen:    result.SignalsSeen,
		OrdersRejected: result.OrdersRejected,
		OrdersDropped:  result.OrdersDropped,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
		Warnings:       result.Warnings,
		Summary:        toSummaryPayload(summary),
	}

	resp.Trades = make([]TradePayload, 0, len(result.Trades))
	for _, t := range result.Trades {
		resp.Trades = append(resp.Trades, TradePayload{
			TradeID:     t.TradeID,
			Direction:   string(t.Direction),
			Size:        t.Size,
			EntryTime:   t.EntryTime,
			EntryPrice:  t.EntryPrice,
			ExitTime:    t.ExitTime,
			ExitPrice:   t.ExitPrice,
			ExitReason:  t.ExitReason,
			PnL:         t.PnL,
			Fees:        t.Fees,
			Pattern:     t.Pattern,
			Confidence:  t.Confidence,
			HoldingBars: t.HoldingBars,
			Outcome:     t.Outcome,
		})
	}

	return resp
}

// toSummaryPayload converts a summary for JSON encoding. Infinite or NaN
// profit factors have no JSON encoding and are dropped.
func toSummaryPayload(s domain.Summary) SummaryPayload {
	p := SummaryPayload{
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

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError sends an error status with a JSON body.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
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

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
