package decision

import "errors"

// Threshold validation errors
var (
	ErrNegativeMinTrades    = errors.New("min trades must not be negative")
	ErrWinRateOutOfRange    = errors.New("min win rate must be between 0 and 1")
	ErrDrawdownOutOfRange   = errors.New("max drawdown must be between 0 and 1")
	ErrNegativeProfitFactor = errors.New("min profit factor must not be negative")
)

// Thresholds are the acceptance gates a run summary is judged against.
type Thresholds struct {
	MinTrades       int     // minimum closed trades for a meaningful sample
	MinWinRate      float64 // fraction, 0..1
	MaxDrawdown     float64 // worst tolerated peak-to-trough fraction, 0..1
	MinProfitFactor float64 // gross wins / gross losses
}

// DefaultThresholds returns the stock acceptance gate.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTrades:       10,
		MinWinRate:      0.45,
		MaxDrawdown:     0.30,
		MinProfitFactor: 1.1,
	}
}

// Validate rejects thresholds outside their meaningful ranges.
// Zero values are allowed; they make the corresponding check trivially pass.
func (t Thresholds) Validate() error {
	if t.MinTrades < 0 {
		return ErrNegativeMinTrades
	}
	if t.MinWinRate < 0 || t.MinWinRate > 1 {
		return ErrWinRateOutOfRange
	}
	if t.MaxDrawdown < 0 || t.MaxDrawdown > 1 {
		return ErrDrawdownOutOfRange
	}
	if t.MinProfitFactor < 0 {
		return ErrNegativeProfitFactor
	}
	return nil
}

// Check is one threshold comparison. Got and Want are preformatted for
// rendering.
type Check struct {
	Name string
	Pass bool
	Got  string
	Want string
}

// Verdict is the result of judging one run summary.
// Pass is true only when every check passed.
type Verdict struct {
	RunID      string
	StrategyID string
	Pass       bool
	Checks     []Check
}

// FailedChecks returns the checks that did not pass, in evaluation order.
func (v Verdict) FailedChecks() []Check {
	var failed []Check
	for _, c := range v.Checks {
		if !c.Pass {
			failed = append(failed, c)
		}
	}
	return failed
}
