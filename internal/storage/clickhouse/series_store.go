package clickhouse

import (
	"context"
	"fmt"
	"time"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// SeriesStore implements storage.BarSeriesStore using ClickHouse. Each bar is
// one row; EMA columns are flattened into parallel period/value arrays
// because periods vary per series.
type SeriesStore struct {
	conn *Conn
}

// NewSeriesStore creates a new SeriesStore.
func NewSeriesStore(conn *Conn) *SeriesStore {
	return &SeriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarSeriesStore = (*SeriesStore)(nil)

// SaveSeries stores a full series. Returns ErrDuplicateKey if the
// (symbol, timeframe) pair already has bars. MergeTree enforces no
// uniqueness, so existence is checked explicitly before insert.
func (s *SeriesStore) SaveSeries(ctx context.Context, series *domain.Series) error {
	if series == nil || series.Symbol == "" || series.Timeframe == "" || series.Len() == 0 {
		return storage.ErrInvalidInput
	}

	// Populated indicator columns must cover every bar; a short column would
	// index out of range below.
	n := series.Len()
	periods := series.EMAPeriods()
	for _, p := range periods {
		if len(series.EMA[p]) != n {
			return storage.ErrInvalidInput
		}
	}
	for _, col := range [][]float64{series.ATR, series.BBUpper, series.BBMiddle, series.BBLower} {
		if col != nil && len(col) != n {
			return storage.ErrInvalidInput
		}
	}

	exists, err := s.exists(ctx, series.Symbol, series.Timeframe)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bar_series (
			symbol, timeframe, bar, timestamp_ms,
			open, high, low, close, volume,
			ema_periods, ema_values,
			atr, bb_upper, bb_middle, bb_lower
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	emaPeriods := make([]uint16, len(periods))
	for i, p := range periods {
		emaPeriods[i] = uint16(p)
	}

	for i := 0; i < n; i++ {
		emaValues := make([]float64, len(periods))
		for j, p := range periods {
			emaValues[j] = series.EMA[p][i]
		}

		err = batch.Append(
			series.Symbol, series.Timeframe, uint32(i), uint64(series.Times[i].UnixMilli()),
			series.Open[i], series.High[i], series.Low[i], series.Close[i], series.Volume[i],
			emaPeriods, emaValues,
			nullableAt(series.ATR, i), nullableAt(series.BBUpper, i), nullableAt(series.BBMiddle, i), nullableAt(series.BBLower, i),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetSeries retrieves the series for a symbol and timeframe, bars ordered by
// time ASC. Returns ErrNotFound if no bars exist.
func (s *SeriesStore) GetSeries(ctx context.Context, symbol, timeframe string) (*domain.Series, error) {
	query := `
		SELECT
			timestamp_ms, open, high, low, close, volume,
			ema_periods, ema_values,
			atr, bb_upper, bb_middle, bb_lower
		FROM bar_series
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	series := domain.NewSeries(symbol, timeframe)
	emaCols := make(map[int][]float64)

	for rows.Next() {
		var (
			timestampMs                      uint64
			open, high, low, closePx, volume float64
			emaPeriods                       []uint16
			emaValues                        []float64
			atr, bbUpper, bbMiddle, bbLower  *float64
		)

		err := rows.Scan(
			&timestampMs, &open, &high, &low, &closePx, &volume,
			&emaPeriods, &emaValues,
			&atr, &bbUpper, &bbMiddle, &bbLower,
		)
		if err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		if len(emaValues) != len(emaPeriods) {
			return nil, fmt.Errorf("series row has %d ema values for %d periods", len(emaValues), len(emaPeriods))
		}

		series.Append(domain.Bar{
			Time:   time.UnixMilli(int64(timestampMs)).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: volume,
		})
		for j, p := range emaPeriods {
			emaCols[int(p)] = append(emaCols[int(p)], emaValues[j])
		}
		appendNullable(&series.ATR, atr)
		appendNullable(&series.BBUpper, bbUpper)
		appendNullable(&series.BBMiddle, bbMiddle)
		appendNullable(&series.BBLower, bbLower)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series rows: %w", err)
	}

	if series.Len() == 0 {
		return nil, storage.ErrNotFound
	}

	for p, col := range emaCols {
		series.SetEMA(p, col)
	}

	return series, nil
}

// ListSymbols returns the distinct (symbol, timeframe) pairs stored, ordered
// by symbol then timeframe.
func (s *SeriesStore) ListSymbols(ctx context.Context) ([]storage.SymbolTimeframe, error) {
	query := `
		SELECT DISTINCT symbol, timeframe
		FROM bar_series
		ORDER BY symbol ASC, timeframe ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var pairs []storage.SymbolTimeframe
	for rows.Next() {
		var p storage.SymbolTimeframe
		if err := rows.Scan(&p.Symbol, &p.Timeframe); err != nil {
			return nil, fmt.Errorf("scan symbol row: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbol rows: %w", err)
	}

	return pairs, nil
}

// exists checks if any bars are stored for the pair.
func (s *SeriesStore) exists(ctx context.Context, symbol, timeframe string) (bool, error) {
	query := `
		SELECT count(*) FROM bar_series
		WHERE symbol = ? AND timeframe = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, symbol, timeframe).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// nullableAt returns a pointer into col at i, or nil when the column is
// absent. Used for Nullable(Float64) columns.
func nullableAt(col []float64, i int) *float64 {
	if col == nil {
		return nil
	}
	return &col[i]
}

// appendNullable extends an indicator column, leaving it nil while the
// source column reads NULL.
func appendNullable(col *[]float64, v *float64) {
	if v != nil {
		*col = append(*col, *v)
	}
}
