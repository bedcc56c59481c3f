package report

import (
	"sort"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// DefaultWindowDays is the trailing window of the incidence measure.
const DefaultWindowDays = 7

// Incidence tracks new symptomatic cases per 100k over a trailing window, per location.
type Incidence struct {
	window int
	series map[string]*series
}

type series struct {
	avg    *movingaverage.MovingAverage
	recent []float64
}

// IncidenceState is the checkpointable form of an Incidence tracker.
type IncidenceState struct {
	Window int                  `msgpack:"w"`
	Recent map[string][]float64 `msgpack:"r"`
}

// NewIncidence creates a tracker; window <= 0 selects DefaultWindowDays.
func NewIncidence(window int) *Incidence {
	if window <= 0 {
		window = DefaultWindowDays
	}
	return &Incidence{window: window, series: make(map[string]*series)}
}

// Window returns the window length in days.
func (i *Incidence) Window() int { return i.window }

// Add appends one day of new symptomatic cases for location.
func (i *Incidence) Add(location string, newCases, population int) {
	perCapita := 0.0
	if population > 0 {
		perCapita = float64(newCases) * 100_000 / float64(population)
	}
	i.push(location, perCapita)
}

// Observe feeds every location of a daily report, including TotalKey.
func (i *Incidence) Observe(r *Report) {
	i.Add(TotalKey, r.Total.NewSymptomatic, r.Total.Population)
	for _, loc := range r.Locations() {
		c := r.ByLocation[loc]
		i.Add(loc, c.NewSymptomatic, c.Population)
	}
}

// Value returns the cases per 100k summed over the window. ok is false until
// the window has been filled.
func (i *Incidence) Value(location string) (float64, bool) {
	s, found := i.series[location]
	if !found || !s.avg.SlotsFilled() {
		return 0, false
	}
	return s.avg.Avg() * float64(i.window), true
}

// State captures the window contents.
func (i *Incidence) State() IncidenceState {
	st := IncidenceState{Window: i.window, Recent: make(map[string][]float64, len(i.series))}
	for loc, s := range i.series {
		st.Recent[loc] = append([]float64(nil), s.recent...)
	}
	return st
}

// RestoreIncidence rebuilds a tracker from its state.
func RestoreIncidence(st IncidenceState) *Incidence {
	i := NewIncidence(st.Window)
	locs := make([]string, 0, len(st.Recent))
	for loc := range st.Recent {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	for _, loc := range locs {
		for _, v := range st.Recent[loc] {
			i.push(loc, v)
		}
	}
	return i
}

func (i *Incidence) push(location string, v float64) {
	s, ok := i.series[location]
	if !ok {
		s = &series{avg: movingaverage.New(i.window)}
		i.series[location] = s
	}
	s.avg.Add(v)
	s.recent = append(s.recent, v)
	if len(s.recent) > i.window {
		s.recent = s.recent[len(s.recent)-i.window:]
	}
}
