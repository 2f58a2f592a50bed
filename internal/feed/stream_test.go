package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chart-strategy-lab/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// collectingHandler gathers forwarded candles and signals each arrival.
type collectingHandler struct {
	mu      sync.Mutex
	symbols []string
	bars    []domain.Bar
	arrived chan struct{}
}

func newCollectingHandler() *collectingHandler {
	return &collectingHandler{arrived: make(chan struct{}, 16)}
}

func (h *collectingHandler) handle(symbol, interval string, bar domain.Bar) {
	h.mu.Lock()
	h.symbols = append(h.symbols, symbol)
	h.bars = append(h.bars, bar)
	h.mu.Unlock()
	h.arrived <- struct{}{}
}

func (h *collectingHandler) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for candle")
	}
}

func wsTestServer(t *testing.T, serve func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

// keepReading holds the connection open until the client goes away.
func keepReading(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestStream_ForwardsClosedCandles(t *testing.T) {
	messages := []string{
		// Forming candle: dropped.
		`{"e":"kline","s":"BTCUSDT","k":{"t":1714521600000,"s":"BTCUSDT","i":"1m","o":"100","c":"101","h":"102","l":"99","v":"5","x":false}}`,
		// Closed candle: forwarded.
		`{"e":"kline","s":"BTCUSDT","k":{"t":1714521600000,"s":"BTCUSDT","i":"1m","o":"100","c":"101","h":"102","l":"99","v":"5.5","x":true}}`,
		// Non-kline message: dropped.
		`{"result":null,"id":1}`,
		// Closed candle inside a combined-stream envelope: forwarded.
		`{"stream":"ethusdt@kline_1m","data":{"e":"kline","s":"ETHUSDT","k":{"t":1714521660000,"s":"ETHUSDT","i":"1m","o":"50","c":"51","h":"52","l":"49","v":"7","x":true}}}`,
	}

	server, wsURL := wsTestServer(t, func(conn *websocket.Conn) {
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		keepReading(conn)
	})
	defer server.Close()

	h := newCollectingHandler()
	stream, err := DialStream(context.Background(), wsURL, h.handle, nil)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer stream.Close()

	h.wait(t)
	h.wait(t)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.bars) != 2 {
		t.Fatalf("expected 2 closed candles, got %d", len(h.bars))
	}

	if h.symbols[0] != "BTCUSDT" {
		t.Errorf("expected symbol BTCUSDT, got %s", h.symbols[0])
	}
	first := h.bars[0]
	wantTime := time.UnixMilli(1714521600000).UTC()
	if !first.Time.Equal(wantTime) {
		t.Errorf("expected time %s, got %s", wantTime, first.Time)
	}
	if first.Open != 100 || first.High != 102 || first.Low != 99 || first.Close != 101 || first.Volume != 5.5 {
		t.Errorf("unexpected bar %+v", first)
	}

	if h.symbols[1] != "ETHUSDT" {
		t.Errorf("expected symbol ETHUSDT, got %s", h.symbols[1])
	}
	if h.bars[1].Close != 51 {
		t.Errorf("expected close 51, got %v", h.bars[1].Close)
	}
}

func TestStream_Close(t *testing.T) {
	server, wsURL := wsTestServer(t, keepReading)
	defer server.Close()

	stream, err := DialStream(context.Background(), wsURL, func(string, string, domain.Bar) {}, nil)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// Double close should be safe
	if err := stream.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	// A deliberate close delivers no terminal error.
	select {
	case err := <-stream.Errs():
		t.Errorf("unexpected stream error after Close: %v", err)
	default:
	}
}

func TestStream_ContextCancel(t *testing.T) {
	server, wsURL := wsTestServer(t, keepReading)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := DialStream(ctx, wsURL, func(string, string, domain.Bar) {}, nil)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer stream.Close()

	cancel()

	select {
	case err := <-stream.Errs():
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stream error")
	}
}

func TestStream_ServerDisconnect(t *testing.T) {
	server, wsURL := wsTestServer(t, func(conn *websocket.Conn) {
		// Drop the connection straight away.
	})
	defer server.Close()

	stream, err := DialStream(context.Background(), wsURL, func(string, string, domain.Bar) {}, nil)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer stream.Close()

	select {
	case err := <-stream.Errs():
		if err == nil {
			t.Error("expected non-nil stream error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stream error")
	}
}

func TestStream_NilHandler(t *testing.T) {
	if _, err := DialStream(context.Background(), "ws://127.0.0.1:0", nil, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestStream_CustomConfig(t *testing.T) {
	server, wsURL := wsTestServer(t, keepReading)
	defer server.Close()

	config := &StreamConfig{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     5 * time.Second,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}

	stream, err := DialStream(context.Background(), wsURL, func(string, string, domain.Bar) {}, config)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer stream.Close()

	if stream.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", stream.config.PingInterval)
	}
}

func TestStreamURL(t *testing.T) {
	url, err := StreamURL("wss://stream.example.com", "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	want := "wss://stream.example.com/ws/btcusdt@kline_1h"
	if url != want {
		t.Errorf("expected %s, got %s", want, url)
	}

	if _, err := StreamURL("wss://stream.example.com", "BTCUSDT", "2h"); !errors.Is(err, ErrBadInterval) {
		t.Errorf("expected ErrBadInterval, got %v", err)
	}
}
