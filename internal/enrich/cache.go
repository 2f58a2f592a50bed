package enrich

import (
	"sync"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/idhash"
)

// Fingerprint identifies a series and parameter combination: same symbol,
// timeframe, bar count, time range and canonical params always map to the
// same value, so re-enriching identical data hits the cache.
func Fingerprint(series *domain.Series, p Params) string {
	var first, last int64
	if series.Len() > 0 {
		first = series.Times[0].UnixMilli()
		last = series.Times[series.Len()-1].UnixMilli()
	}
	return idhash.ComputeSeriesFingerprint(series.Symbol, series.Timeframe, series.Len(), first, last, p.canonical())
}

// Enricher memoizes enriched series by fingerprint. Safe for concurrent use.
// Returned series are shared between callers and must be treated read-only.
type Enricher struct {
	mu    sync.Mutex
	cache map[string]*domain.Series
}

func NewEnricher() *Enricher {
	return &Enricher{cache: make(map[string]*domain.Series)}
}

// EnrichCached returns the cached enriched series for the fingerprint, or
// enriches the given series in place and caches it. The mutex is held across
// the compute, so concurrent callers never enrich the same data twice. The
// returned fingerprint keys Invalidate.
func (e *Enricher) EnrichCached(series *domain.Series, p Params) (*domain.Series, string, error) {
	fp := Fingerprint(series, p)

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.cache[fp]; ok {
		return cached, fp, nil
	}
	if err := Enrich(series, p); err != nil {
		return nil, fp, err
	}
	e.cache[fp] = series
	return series, fp, nil
}

// Invalidate drops one cache entry.
func (e *Enricher) Invalidate(fp string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, fp)
}

// Flush drops every cache entry.
func (e *Enricher) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*domain.Series)
}

// Len reports the number of cached series.
func (e *Enricher) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}
