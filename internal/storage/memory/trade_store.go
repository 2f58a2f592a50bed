// Package memory provides in-memory store implementations. They are the
// reference semantics for the SQL-backed stores and the default backend for
// tests and single-shot CLI runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// SaveTrade adds a closed trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) SaveTrade(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TradeID] = &copy
	return nil
}

// SaveTrades adds multiple trades atomically. Fails entire batch on any
// duplicate.
func (s *TradeStore) SaveTrades(_ context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(trades))

	// First pass: check for duplicates (existing + intra-batch)
	for i := range trades {
		if trades[i].TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[trades[i].TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[trades[i].TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[trades[i].TradeID] = struct{}{}
	}

	// Second pass: insert all
	for i := range trades {
		copy := trades[i]
		s.data[copy.TradeID] = &copy
	}

	return nil
}

// GetTrade retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetTrade(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// ListByRun retrieves all trades of a run, ordered by entry time ASC.
func (s *TradeStore) ListByRun(_ context.Context, runID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Trade
	for _, t := range s.data {
		if t.RunID == runID {
			result = append(result, *t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTime.Before(result[j].EntryTime)
	})

	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
