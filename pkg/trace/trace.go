// Package trace models the replayed co-presence input: per-day container
// membership intervals and the joint exposure time derived from them.
package trace

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/SaidinWoT/timespan"
)

// SecondsPerDay bounds interval times and joint exposure.
const SecondsPerDay = 86400

// ErrInvalidInterval is returned for malformed membership intervals.
var ErrInvalidInterval = errors.New("invalid trace interval")

var epoch = time.Unix(0, 0).UTC()

// Interval is one person's presence in one container, in seconds since the start of the day.
type Interval struct {
	Day         int    `json:"day"`
	PersonID    string `json:"person"`
	ContainerID string `json:"container"`
	Context     string `json:"context"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Validate checks identifiers and bounds.
func (i Interval) Validate() error {
	if i.PersonID == "" || i.ContainerID == "" || i.Context == "" {
		return fmt.Errorf("%w: person, container and context are required", ErrInvalidInterval)
	}
	if i.Start < 0 || i.End < i.Start || i.End > SecondsPerDay {
		return fmt.Errorf("%w: %s in %s: [%d,%d]", ErrInvalidInterval, i.PersonID, i.ContainerID, i.Start, i.End)
	}
	return nil
}

// Span converts the interval to a time span anchored at the Unix epoch.
func (i Interval) Span() timespan.Span {
	return timespan.New(epoch.Add(time.Duration(i.Start)*time.Second), time.Duration(i.End-i.Start)*time.Second)
}

// Membership is all intervals of one person under one context in a container.
type Membership struct {
	PersonID string
	Context  string
	Spans    []timespan.Span
}

// Container groups the memberships of one container for one day, sorted by person then context.
type Container struct {
	ID      string
	Members []Membership
}

// Group builds containers from intervals. Containers are sorted by ID so the
// result does not depend on input order.
func Group(intervals []Interval) []Container {
	type key struct{ person, context string }
	byContainer := make(map[string]map[key]*Membership)
	for _, iv := range intervals {
		if iv.End <= iv.Start {
			continue
		}
		members, ok := byContainer[iv.ContainerID]
		if !ok {
			members = make(map[key]*Membership)
			byContainer[iv.ContainerID] = members
		}
		k := key{iv.PersonID, iv.Context}
		m, ok := members[k]
		if !ok {
			m = &Membership{PersonID: iv.PersonID, Context: iv.Context}
			members[k] = m
		}
		m.Spans = append(m.Spans, iv.Span())
	}

	out := make([]Container, 0, len(byContainer))
	for id, members := range byContainer {
		c := Container{ID: id, Members: make([]Membership, 0, len(members))}
		for _, m := range members {
			sort.Slice(m.Spans, func(i, j int) bool { return m.Spans[i].Start().Before(m.Spans[j].Start()) })
			c.Members = append(c.Members, *m)
		}
		sort.Slice(c.Members, func(i, j int) bool {
			if c.Members[i].PersonID != c.Members[j].PersonID {
				return c.Members[i].PersonID < c.Members[j].PersonID
			}
			return c.Members[i].Context < c.Members[j].Context
		})
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Exposure is the joint presence of two memberships.
type Exposure struct {
	// Seconds is the summed overlap, capped at SecondsPerDay.
	Seconds float64
	// End is the end of the latest overlap in seconds since the start of the day.
	End int
}

// Joint computes the overlap of a and b.
func Joint(a, b Membership) Exposure {
	var (
		total time.Duration
		end   time.Time
	)
	for _, sa := range a.Spans {
		for _, sb := range b.Spans {
			in, ok := sa.Intersection(sb)
			if !ok || in.Duration() <= 0 {
				continue
			}
			total += in.Duration()
			if in.End().After(end) {
				end = in.End()
			}
		}
	}
	if total <= 0 {
		return Exposure{}
	}
	secs := total.Seconds()
	if secs > SecondsPerDay {
		secs = SecondsPerDay
	}
	return Exposure{Seconds: secs, End: int(end.Sub(epoch) / time.Second)}
}
