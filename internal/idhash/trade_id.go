package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|symbol|entry_time_ms|direction)
// One position is open at a time, so entry time is unique within a run.
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runID string,
	symbol string,
	entryTimeMs int64,
	direction string,
) string {
	data := fmt.Sprintf("%s|%s|%d|%s",
		runID,
		symbol,
		entryTimeMs,
		direction,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
