// Package feed acquires candle data for the rest of the system: a REST
// client for Binance-compatible klines endpoints, a websocket stream that
// forwards closed candles, and a CSV codec for offline series.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.binance.com"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// MaxPageSize is the largest kline batch a single request may return.
	MaxPageSize = 1000
)

// ErrBadInterval is returned for intervals the endpoint does not serve.
var ErrBadInterval = errors.New("unsupported interval")

// intervalDurations lists the accepted intervals with their bar durations.
var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// ValidInterval reports whether the interval is one the client accepts.
func ValidInterval(interval string) bool {
	_, ok := intervalDurations[interval]
	return ok
}

// IntervalDuration returns the bar duration for an accepted interval.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervalDurations[interval]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadInterval, interval)
	}
	return d, nil
}

// Client fetches candles from a Binance-compatible /api/v3/klines endpoint.
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	metrics     *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithMetrics attaches feed metrics to the client.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new klines REST client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Klines fetches candles for symbol at interval with open times in
// [start, end], paginating until the range is exhausted. limit caps the total
// bar count; limit <= 0 fetches the whole range.
func (c *Client) Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) (*domain.Series, error) {
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("%w: %q", ErrBadInterval, interval)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	series := domain.NewSeries(symbol, interval)
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()

	for startMs <= endMs {
		pageSize := MaxPageSize
		if limit > 0 {
			remaining := limit - series.Len()
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		rows, err := c.fetchPage(ctx, symbol, interval, startMs, endMs, pageSize)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		c.metrics.RecordKlines(len(rows))

		for _, row := range rows {
			bar, err := parseKline(row)
			if err != nil {
				return nil, err
			}
			series.Append(bar)
		}

		// Advance past the last returned open time for the next page.
		lastOpen, ok := rows[len(rows)-1][0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline open time: unexpected type %T", rows[len(rows)-1][0])
		}
		startMs = int64(lastOpen) + 1

		if len(rows) < pageSize {
			break
		}
	}

	return series, nil
}

// fetchPage performs one klines request with retries and capped exponential
// backoff. 5xx and 429 responses are retried; other failures return at once.
func (c *Client) fetchPage(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([][]any, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
		c.baseURL, symbol, interval, startMs, endMs, limit)

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
			c.metrics.RecordKlineRetry()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("retryable status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var rows [][]any
		if err := json.Unmarshal(body, &rows); err != nil {
			lastErr = fmt.Errorf("unmarshal klines: %w", err)
			continue
		}
		return rows, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseKline converts one kline row into a bar. Rows carry the open time in
// field 0 (unix ms) and open/high/low/close/volume in fields 1..5; prices
// arrive as strings.
func parseKline(row []any) (domain.Bar, error) {
	if len(row) < 6 {
		return domain.Bar{}, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return domain.Bar{}, fmt.Errorf("kline open time: unexpected type %T", row[0])
	}

	names := [5]string{"open", "high", "low", "close", "volume"}
	var vals [5]float64
	for i := range vals {
		f, err := parseKlineField(row[i+1])
		if err != nil {
			return domain.Bar{}, fmt.Errorf("kline %s: %w", names[i], err)
		}
		vals[i] = f
	}

	return domain.Bar{
		Time:   time.UnixMilli(int64(openMs)).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseKlineField(v any) (float64, error) {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", n, err)
		}
		return f, nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
