package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSeriesFingerprint computes a content fingerprint for a candle series
// combined with an enrichment parameter string.
// Formula: SHA256(symbol|timeframe|bar_count|first_bar_ms|last_bar_ms|params)
// The enrichment cache is keyed by this value: identical data shape and
// parameters hit the cache, anything else recomputes.
// Returns hex-encoded hash (64 characters).
func ComputeSeriesFingerprint(
	symbol string,
	timeframe string,
	barCount int,
	firstBarMs int64,
	lastBarMs int64,
	params string,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		symbol,
		timeframe,
		barCount,
		firstBarMs,
		lastBarMs,
		params,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
