package patterns

import (
	"errors"
	"fmt"

	"chart-strategy-lab/internal/domain"
)

// ErrUnknownPattern is returned when a filter names a pattern that is not
// registered.
var ErrUnknownPattern = errors.New("unknown pattern")

// DefaultDetectors returns the full detector set in registration order.
// The order is fixed so tie-breaks between equal scores are reproducible.
func DefaultDetectors() []Detector {
	return []Detector{
		HeadAndShoulders(),
		InverseHeadAndShoulders(),
		AscendingTriangle(),
		DescendingTriangle(),
		SymmetricalTriangle(),
		BullFlag(),
		BearFlag(),
		RisingWedge(),
		FallingWedge(),
		DoubleTop(),
		DoubleBottom(),
		TripleTop(),
		TripleBottom(),
	}
}

// Orchestrator runs an ordered set of detectors against a window and picks
// between conflicting matches.
type Orchestrator struct {
	detectors []Detector
}

// NewOrchestrator builds an orchestrator over the given detectors in the
// given order. With no arguments it registers DefaultDetectors.
func NewOrchestrator(detectors ...Detector) *Orchestrator {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Orchestrator{detectors: detectors}
}

// WithPatterns narrows the orchestrator to the named patterns, preserving
// registration order. Unknown names fail the whole call.
func (o *Orchestrator) WithPatterns(names ...string) (*Orchestrator, error) {
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		if !o.knows(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
		}
		allowed[name] = true
	}
	kept := make([]Detector, 0, len(names))
	for _, d := range o.detectors {
		if allowed[d.Name()] {
			kept = append(kept, d)
		}
	}
	return &Orchestrator{detectors: kept}, nil
}

func (o *Orchestrator) knows(name string) bool {
	for _, d := range o.detectors {
		if d.Name() == name {
			return true
		}
	}
	return false
}

// Names lists the registered patterns in registration order.
func (o *Orchestrator) Names() []string {
	names := make([]string, len(o.detectors))
	for i, d := range o.detectors {
		names[i] = d.Name()
	}
	return names
}

// Scan runs every registered detector against the window and returns all
// matches in registration order.
func (o *Orchestrator) Scan(w domain.Window) []Match {
	var matches []Match
	for _, d := range o.detectors {
		if m := d.Detect(w); m != nil {
			matches = append(matches, *m)
		}
	}
	return matches
}

// Best returns the highest-scoring match, or nil when nothing fires.
// Equal scores resolve toward the earlier registration position, so the
// same window always yields the same pick.
func (o *Orchestrator) Best(w domain.Window) *Match {
	var best *Match
	for _, d := range o.detectors {
		m := d.Detect(w)
		if m == nil {
			continue
		}
		if best == nil || m.Score > best.Score {
			best = m
		}
	}
	return best
}
