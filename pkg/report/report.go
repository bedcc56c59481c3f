// Package report aggregates the population into the daily infection report
// consumed by adaptive policies and reporting collaborators.
package report

import (
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
)

// TotalKey is the location key of the whole population.
const TotalKey = "total"

// Counts aggregates one location on one day.
type Counts struct {
	Population            int                    `json:"population"`
	ByStatus              map[disease.Status]int `json:"by_status"`
	NewInfections         int                    `json:"new_infections"`
	NewSymptomatic        int                    `json:"new_symptomatic"`
	CumulativeSymptomatic int                    `json:"cumulative_symptomatic"`
	Hospitalized          int                    `json:"hospitalized"`
}

// Report is the end-of-day aggregate.
type Report struct {
	Day        int               `json:"day"`
	Total      Counts            `json:"total"`
	ByLocation map[string]Counts `json:"by_location,omitempty"`
}

// Location returns the counts for a location key; TotalKey selects the whole population.
func (r *Report) Location(key string) (Counts, bool) {
	if key == TotalKey {
		return r.Total, true
	}
	c, ok := r.ByLocation[key]
	return c, ok
}

// Locations returns the location keys in sorted order, excluding TotalKey.
func (r *Report) Locations() []string {
	out := make([]string, 0, len(r.ByLocation))
	for k := range r.ByLocation {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build aggregates persons at the end of day. prev supplies the cumulative
// counters and may be nil on the first day.
func Build(day int, persons []*disease.Person, prev *Report) *Report {
	r := &Report{
		Day:        day,
		Total:      newCounts(),
		ByLocation: make(map[string]Counts),
	}
	for _, p := range persons {
		add(&r.Total, p, day)
		if loc := p.Location(); loc != "" {
			c, ok := r.ByLocation[loc]
			if !ok {
				c = newCounts()
			}
			add(&c, p, day)
			r.ByLocation[loc] = c
		}
	}

	r.Total.CumulativeSymptomatic = r.Total.NewSymptomatic
	if prev != nil {
		r.Total.CumulativeSymptomatic += prev.Total.CumulativeSymptomatic
	}
	for loc, c := range r.ByLocation {
		c.CumulativeSymptomatic = c.NewSymptomatic
		if prev != nil {
			c.CumulativeSymptomatic += prev.ByLocation[loc].CumulativeSymptomatic
		}
		r.ByLocation[loc] = c
	}
	return r
}

func newCounts() Counts {
	return Counts{ByStatus: make(map[disease.Status]int)}
}

func add(c *Counts, p *disease.Person, day int) {
	c.Population++
	c.ByStatus[p.Status()]++
	if p.DaysSince(disease.InfectedButNotContagious, day) == 0 {
		c.NewInfections++
	}
	if p.DaysSince(disease.ShowingSymptoms, day) == 0 {
		c.NewSymptomatic++
	}
	switch p.Status() {
	case disease.SeriouslySick, disease.Critical, disease.SeriouslySickAfterCritical:
		c.Hospitalized++
	}
}
