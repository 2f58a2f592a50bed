package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/observability"
)

// DefaultStreamBaseURL is the public Binance websocket stream endpoint.
const DefaultStreamBaseURL = "wss://stream.binance.com:9443"

// StreamConfig configures websocket stream behavior.
type StreamConfig struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
	// Metrics is optional, nil-safe.
	Metrics *observability.Metrics
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// BarHandler receives each closed candle decoded from the stream.
type BarHandler func(symbol, interval string, bar domain.Bar)

// StreamURL builds the websocket URL for a single-symbol kline stream.
func StreamURL(base, symbol, interval string) (string, error) {
	if !ValidInterval(interval) {
		return "", fmt.Errorf("%w: %q", ErrBadInterval, interval)
	}
	return fmt.Sprintf("%s/ws/%s@kline_%s",
		strings.TrimRight(base, "/"), strings.ToLower(strings.TrimSpace(symbol)), interval), nil
}

// Stream consumes a kline websocket stream and forwards closed candles to a
// handler. Forming candles are dropped; only the final update for each bar
// reaches the handler.
type Stream struct {
	config  StreamConfig
	handler BarHandler

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// done signals shutdown
	done chan struct{}
	errs chan error
	wg   sync.WaitGroup
}

// DialStream connects to a kline stream endpoint and starts forwarding closed
// candles to handler. The stream shuts itself down when ctx is canceled or the
// socket fails; the terminal error is delivered on Errs.
func DialStream(ctx context.Context, endpoint string, handler BarHandler, config *StreamConfig) (*Stream, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil bar handler")
	}
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &Stream{
		config:  cfg,
		handler: handler,
		conn:    conn,
		done:    make(chan struct{}),
		errs:    make(chan error, 1),
	}

	// Start reader goroutine
	s.wg.Add(1)
	go s.readLoop()

	// Start ping goroutine
	s.wg.Add(1)
	go s.pingLoop()

	// Watch ctx: a blocked read only unblocks when the connection closes.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
		case <-s.done:
		}
	}()

	return s, nil
}

// Errs delivers at most one terminal stream error. The channel stays empty
// when the stream is torn down by Close.
func (s *Stream) Errs() <-chan error { return s.errs }

// Close closes the websocket connection. Safe to call more than once.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}
	s.teardown(true)
	s.wg.Wait()
	return nil
}

// fail records the terminal error and tears the connection down. Only the
// first caller past the closed gate acts; later failures are echoes of the
// same teardown.
func (s *Stream) fail(err error) {
	if s.closed.Swap(true) {
		return
	}
	s.errs <- err
	s.teardown(false)
}

func (s *Stream) teardown(sendClose bool) {
	close(s.done)
	s.connMu.Lock()
	if sendClose {
		s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	s.conn.Close()
	s.connMu.Unlock()
}

// readLoop reads messages from the websocket and dispatches closed candles.
func (s *Stream) readLoop() {
	defer s.wg.Done()

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.fail(fmt.Errorf("websocket read: %w", err))
			return
		}

		s.handleMessage(message)
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Dead connection surfaces in the read loop.
			}
			s.connMu.Unlock()
		}
	}
}

// handleMessage decodes one stream message and forwards the candle when it is
// closed. Non-kline messages and forming candles are dropped.
func (s *Stream) handleMessage(message []byte) {
	var ev klineEvent
	if err := json.Unmarshal(message, &ev); err != nil || ev.Event != "kline" {
		// Combined streams wrap the event in a {"stream","data"} envelope.
		var wrapped struct {
			Data klineEvent `json:"data"`
		}
		if err := json.Unmarshal(message, &wrapped); err != nil || wrapped.Data.Event != "kline" {
			return
		}
		ev = wrapped.Data
	}

	if !ev.Kline.Closed {
		return
	}

	bar, err := ev.Kline.bar()
	if err != nil {
		return
	}
	s.config.Metrics.RecordStreamedCandle()
	s.handler(ev.Kline.Symbol, ev.Kline.Interval, bar)
}

// Kline stream message types

type klineEvent struct {
	Event  string       `json:"e"`
	Symbol string       `json:"s"`
	Kline  klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime int64  `json:"t"` // unix ms
	Symbol   string `json:"s"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	Close    string `json:"c"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

func (k klinePayload) bar() (domain.Bar, error) {
	names := [5]string{"open", "high", "low", "close", "volume"}
	raw := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var vals [5]float64
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("kline %s %q: %w", names[i], s, err)
		}
		vals[i] = f
	}
	return domain.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
