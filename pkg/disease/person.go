package disease

import (
	"sort"
)

// MaxAntibodyLevel caps any antibody level.
const MaxAntibodyLevel = 150.0

// StatusEntry records the day a status was entered.
type StatusEntry struct {
	Day    int    `msgpack:"d" json:"day"`
	Status Status `msgpack:"s" json:"status"`
}

// Infection records one infection episode.
type Infection struct {
	Day    int    `msgpack:"d" json:"day"`
	Strain Strain `msgpack:"s" json:"strain"`
}

// Vaccination records one vaccination event.
type Vaccination struct {
	Day  int         `msgpack:"d" json:"day"`
	Type VaccineType `msgpack:"t" json:"type"`
}

// Attributes are the immutable per-run properties of a person.
type Attributes struct {
	ID             string
	Age            int
	Location       string
	Susceptibility float64
	Infectivity    float64
}

// Person is a single member of the simulated population.
//
// History slices are append-only and owned by the Person; accessors return copies.
// A Person is mutated by at most one worker at a time.
type Person struct {
	id             string
	age            int
	location       string
	susceptibility float64
	infectivity    float64
	immuneResponse float64

	status     Status
	strain     Strain
	quarantine QuarantineStatus
	test       TestStatus

	history      []StatusEntry
	infections   []Infection
	vaccinations []Vaccination

	antibodies            map[Strain]float64
	maxAntibodies         map[Strain]float64
	antibodiesAtInfection float64
}

// NewPerson creates a susceptible person. Zero multipliers default to 1.
func NewPerson(a Attributes) *Person {
	if a.Susceptibility == 0 {
		a.Susceptibility = 1
	}
	if a.Infectivity == 0 {
		a.Infectivity = 1
	}
	return &Person{
		id:             a.ID,
		age:            a.Age,
		location:       a.Location,
		susceptibility: a.Susceptibility,
		infectivity:    a.Infectivity,
		immuneResponse: 1,
		status:         Susceptible,
		quarantine:     QuarantineNone,
		test:           TestUntested,
		history:        []StatusEntry{{Day: 0, Status: Susceptible}},
		antibodies:     make(map[Strain]float64),
		maxAntibodies:  make(map[Strain]float64),
	}
}

func (p *Person) ID() string                        { return p.id }
func (p *Person) Age() int                          { return p.age }
func (p *Person) Location() string                  { return p.location }
func (p *Person) Susceptibility() float64           { return p.susceptibility }
func (p *Person) Infectivity() float64              { return p.infectivity }
func (p *Person) Status() Status                    { return p.status }
func (p *Person) Strain() Strain                    { return p.strain }
func (p *Person) Quarantine() QuarantineStatus      { return p.quarantine }
func (p *Person) Test() TestStatus                  { return p.test }
func (p *Person) ImmuneResponseMultiplier() float64 { return p.immuneResponse }
func (p *Person) AntibodiesAtInfection() float64    { return p.antibodiesAtInfection }

// SetQuarantine is used by the tracing collaborator.
func (p *Person) SetQuarantine(q QuarantineStatus) { p.quarantine = q }

// SetTest is used by the testing collaborator.
func (p *Person) SetTest(t TestStatus) { p.test = t }

// SetImmuneResponseMultiplier is assigned once at population load.
func (p *Person) SetImmuneResponseMultiplier(m float64) { p.immuneResponse = m }

// SetStatus moves the person into s on day and appends it to the history.
func (p *Person) SetStatus(day int, s Status) {
	p.status = s
	p.history = append(p.history, StatusEntry{Day: day, Status: s})
}

// Infect moves a susceptible person into infectedButNotContagious with the given strain
// and snapshots the antibody level against that strain. It returns false and leaves the
// person untouched when the person is not susceptible.
func (p *Person) Infect(day int, strain Strain) bool {
	if p.status != Susceptible {
		return false
	}
	p.strain = strain
	p.antibodiesAtInfection = p.antibodies[strain]
	p.infections = append(p.infections, Infection{Day: day, Strain: strain})
	p.SetStatus(day, InfectedButNotContagious)
	return true
}

// Vaccinate records a vaccination. Called by the vaccination collaborator.
func (p *Person) Vaccinate(day int, t VaccineType) {
	p.vaccinations = append(p.vaccinations, Vaccination{Day: day, Type: t})
}

// History returns a copy of the status history.
func (p *Person) History() []StatusEntry {
	return append([]StatusEntry(nil), p.history...)
}

// Infections returns a copy of the infection history.
func (p *Person) Infections() []Infection {
	return append([]Infection(nil), p.infections...)
}

// Vaccinations returns a copy of the vaccination history.
func (p *Person) Vaccinations() []Vaccination {
	return append([]Vaccination(nil), p.vaccinations...)
}

func (p *Person) NumInfections() int   { return len(p.infections) }
func (p *Person) NumVaccinations() int { return len(p.vaccinations) }

// HadStatus reports whether the person is or ever was in s.
func (p *Person) HadStatus(s Status) bool {
	for _, e := range p.history {
		if e.Status == s {
			return true
		}
	}
	return false
}

// HadStatusSinceLastInfection reports whether the person entered s during the
// current infection episode, which starts at the last infectedButNotContagious
// entry. Without any infection the whole history counts.
func (p *Person) HadStatusSinceLastInfection(s Status) bool {
	for i := len(p.history) - 1; i >= 0; i-- {
		if p.history[i].Status == s {
			return true
		}
		if p.history[i].Status == InfectedButNotContagious {
			return false
		}
	}
	return false
}

// DaysSince returns the number of days since the person last entered s, or -1.
func (p *Person) DaysSince(s Status, day int) int {
	for i := len(p.history) - 1; i >= 0; i-- {
		if p.history[i].Status == s {
			return day - p.history[i].Day
		}
	}
	return -1
}

// DaysInStatus returns the number of days since the current status was entered.
func (p *Person) DaysInStatus(day int) int {
	return day - p.history[len(p.history)-1].Day
}

// VaccinatedOn returns the vaccine received on day, if any.
func (p *Person) VaccinatedOn(day int) (VaccineType, bool) {
	for _, v := range p.vaccinations {
		if v.Day == day {
			return v.Type, true
		}
	}
	return "", false
}

// InfectedOn returns the strain of an infection that happened on day, if any.
func (p *Person) InfectedOn(day int) (Strain, bool) {
	for _, inf := range p.infections {
		if inf.Day == day {
			return inf.Strain, true
		}
	}
	return "", false
}

// LastImmunityDay returns the later of the last vaccination and the last infection day.
func (p *Person) LastImmunityDay() (int, bool) {
	last, ok := -1, false
	if n := len(p.vaccinations); n > 0 {
		last, ok = p.vaccinations[n-1].Day, true
	}
	if n := len(p.infections); n > 0 && p.infections[n-1].Day > last {
		last, ok = p.infections[n-1].Day, true
	}
	return last, ok
}

// Antibodies returns the current antibody level against strain.
func (p *Person) Antibodies(s Strain) float64 { return p.antibodies[s] }

// MaxAntibodies returns the highest antibody level ever reached against strain.
func (p *Person) MaxAntibodies(s Strain) float64 { return p.maxAntibodies[s] }

// SetAntibodies sets the level against strain and tracks the maximum.
func (p *Person) SetAntibodies(s Strain, level float64) {
	if level < 0 {
		level = 0
	}
	p.antibodies[s] = level
	if level > p.maxAntibodies[s] {
		p.maxAntibodies[s] = level
	}
}

// HasAntibodies reports whether any antibody level is positive.
func (p *Person) HasAntibodies() bool {
	for _, v := range p.antibodies {
		if v > 0 {
			return true
		}
	}
	return false
}

// AntibodyStrains returns the strains with a recorded level, sorted.
func (p *Person) AntibodyStrains() []Strain {
	out := make([]Strain, 0, len(p.antibodies))
	for s := range p.antibodies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AntibodySnapshot copies the current antibody levels.
func (p *Person) AntibodySnapshot() map[Strain]float64 {
	out := make(map[Strain]float64, len(p.antibodies))
	for k, v := range p.antibodies {
		out[k] = v
	}
	return out
}
