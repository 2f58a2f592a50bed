package domain

import "fmt"

// ValidationError reports a malformed order field. A validation failure
// skips the order; the backtest continues with the next bar.
type ValidationError struct {
	Field  string // offending field name
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// PreconditionError reports a dataset or run-state problem that prevents a
// backtest from starting or continuing. Unlike per-order errors it always
// aborts the run.
type PreconditionError struct {
	Op     string // operation that detected the problem
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed in %s: %s", e.Op, e.Reason)
}
