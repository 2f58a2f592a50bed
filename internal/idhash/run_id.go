package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(strategy_id|symbol|timeframe|bar_count|first_bar_ms|last_bar_ms)
// The same strategy over the same series always yields the same run_id, which
// is what makes re-runs land on the same storage row.
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	strategyID string,
	symbol string,
	timeframe string,
	barCount int,
	firstBarMs int64,
	lastBarMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%d",
		strategyID,
		symbol,
		timeframe,
		barCount,
		firstBarMs,
		lastBarMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ShortDigest computes an 8-character hex digest over pipe-joined fields.
// Used for readable identifiers such as strategy IDs.
func ShortDigest(fields ...string) string {
	data := ""
	for i, f := range fields {
		if i > 0 {
			data += "|"
		}
		data += f
	}

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:8]
}
