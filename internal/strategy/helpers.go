package strategy

import (
	"fmt"

	"chart-strategy-lab/internal/domain"
	"chart-strategy-lab/internal/idhash"
)

// strategyID builds "<type>-<digest>" so equal parameter sets collide and
// unequal ones do not.
func strategyID(strategyType string, params ...string) string {
	return strategyType + "-" + idhash.ShortDigest(params...)
}

func param(name string, v float64) string {
	return fmt.Sprintf("%s=%g", name, v)
}

func intParam(name string, v int) string {
	return fmt.Sprintf("%s=%d", name, v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func directionSign(d domain.Direction) int {
	if d == domain.DirectionShort {
		return -1
	}
	return 1
}
