package strategy

import "chart-strategy-lab/internal/domain"

// Strategy turns enriched candle windows into trade decisions.
//
// Implementations are pure with respect to the window: they hold parameters
// only, never per-run state, so the same window always yields the same
// signals in the same order. Entry signals describe the current bar of the
// window; the backtester owns position state and capital.
type Strategy interface {
	// ID returns the strategy identifier including parameters.
	ID() string

	// Requirements declares the indicator columns and minimum history the
	// strategy reads. The backtester verifies them before the first bar.
	Requirements() domain.Requirements

	// GenerateSignals proposes entries for the last bar of the window.
	GenerateSignals(w domain.Window) []domain.Signal

	// ShouldExit reports whether the open position should close at the
	// current bar. It never mutates the position.
	ShouldExit(w domain.Window, pos *domain.Position) bool

	// PositionSize returns the fraction of available capital in [0, 1] to
	// commit to the signal, non-decreasing in signal confidence.
	PositionSize(w domain.Window, sig domain.Signal) float64
}
