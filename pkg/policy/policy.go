// Package policy turns scenario timelines and observed incidence into the
// per-day restriction snapshot consumed by the exposure model.
package policy

import (
	"errors"
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/report"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

var (
	// ErrOverlappingWindow is returned when two interpolation windows of one context overlap.
	ErrOverlappingWindow = errors.New("overlapping interpolation windows")
	// ErrInvalidTimeline is returned for malformed timeline entries.
	ErrInvalidTimeline = errors.New("invalid policy timeline")
)

// Policy produces the restrictions for a day and observes the day's outcome.
//
// RestrictionsForDay(d) is called once at the start of day d; Observe(d, r) once
// at its end, so an adaptive policy decides tomorrow from today's report.
type Policy interface {
	RestrictionsForDay(day int) (Snapshot, error)
	Observe(day int, r *report.Report) error
}

// Snapshot is the published, read-only restriction map of one day.
type Snapshot struct {
	day       int
	byContext map[string]restriction.Restriction
}

// NewSnapshot copies restrictions into a snapshot for day.
func NewSnapshot(day int, restrictions map[string]restriction.Restriction) Snapshot {
	m := make(map[string]restriction.Restriction, len(restrictions))
	for k, v := range restrictions {
		m[k] = v
	}
	return Snapshot{day: day, byContext: m}
}

// Day returns the simulation day of the snapshot.
func (s Snapshot) Day() int { return s.day }

// Lookup returns the restriction of context, or the unrestricted value when undeclared.
func (s Snapshot) Lookup(context string) restriction.Restriction {
	if r, ok := s.byContext[context]; ok {
		return r
	}
	return restriction.None()
}

// Has reports whether context is declared.
func (s Snapshot) Has(context string) bool {
	_, ok := s.byContext[context]
	return ok
}

// Contexts returns the declared contexts in sorted order.
func (s Snapshot) Contexts() []string {
	out := make([]string, 0, len(s.byContext))
	for k := range s.byContext {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Overlay merges other's declared contexts over s, field by field.
func (s Snapshot) Overlay(other Snapshot) Snapshot {
	m := make(map[string]restriction.Restriction, len(s.byContext)+len(other.byContext))
	for k, v := range s.byContext {
		m[k] = v
	}
	for k, v := range other.byContext {
		if base, ok := m[k]; ok {
			m[k] = base.Merge(v)
		} else {
			m[k] = v
		}
	}
	return Snapshot{day: s.day, byContext: m}
}
