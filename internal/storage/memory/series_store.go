package memory

import (
	"context"
	"sort"
	"sync"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// SeriesStore is an in-memory implementation of storage.BarSeriesStore.
type SeriesStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Series // keyed by symbol|timeframe
}

// NewSeriesStore creates a new in-memory bar series store.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{
		data: make(map[string]*domain.Series),
	}
}

func seriesKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

// SaveSeries stores a full series. Returns ErrDuplicateKey if the
// (symbol, timeframe) pair already has bars.
func (s *SeriesStore) SaveSeries(_ context.Context, series *domain.Series) error {
	if series == nil || series.Symbol == "" || series.Timeframe == "" || series.Len() == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(series.Symbol, series.Timeframe)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Truncate at the last bar deep-copies every column.
	s.data[key] = series.Truncate(series.Len() - 1)
	return nil
}

// GetSeries retrieves the series for a symbol and timeframe. Returns
// ErrNotFound if no bars exist.
func (s *SeriesStore) GetSeries(_ context.Context, symbol, timeframe string) (*domain.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, exists := s.data[seriesKey(symbol, timeframe)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return series.Truncate(series.Len() - 1), nil
}

// ListSymbols returns the distinct (symbol, timeframe) pairs stored,
// ordered by symbol then timeframe.
func (s *SeriesStore) ListSymbols(_ context.Context) ([]storage.SymbolTimeframe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.SymbolTimeframe, 0, len(s.data))
	for _, series := range s.data {
		result = append(result, storage.SymbolTimeframe{Symbol: series.Symbol, Timeframe: series.Timeframe})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Timeframe < result[j].Timeframe
	})

	return result, nil
}

var _ storage.BarSeriesStore = (*SeriesStore)(nil)
