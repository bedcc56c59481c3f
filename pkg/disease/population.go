package disease

import (
	"fmt"
	"sort"
)

// Population is the person collection in stable ID order.
type Population struct {
	persons []*Person
	byID    map[string]*Person
}

// NewPopulation sorts persons by ID and rejects duplicate or empty IDs.
func NewPopulation(persons []*Person) (*Population, error) {
	sorted := append([]*Person(nil), persons...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	byID := make(map[string]*Person, len(sorted))
	for _, p := range sorted {
		if p.id == "" {
			return nil, fmt.Errorf("person with empty id")
		}
		if _, dup := byID[p.id]; dup {
			return nil, fmt.Errorf("duplicate person id %q", p.id)
		}
		byID[p.id] = p
	}
	return &Population{persons: sorted, byID: byID}, nil
}

// Persons returns the persons in stable order. The slice must not be modified.
func (p *Population) Persons() []*Person { return p.persons }

// Len returns the population size.
func (p *Population) Len() int { return len(p.persons) }

// Get looks a person up by ID.
func (p *Population) Get(id string) (*Person, bool) {
	person, ok := p.byID[id]
	return person, ok
}

// Locations returns the distinct person locations, sorted. Empty locations are skipped.
func (p *Population) Locations() []string {
	seen := make(map[string]struct{})
	for _, person := range p.persons {
		if person.location != "" {
			seen[person.location] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// State is the serialisable form of a Person used by checkpoints.
type State struct {
	ID                    string             `msgpack:"id"`
	Age                   int                `msgpack:"age"`
	Location              string             `msgpack:"loc"`
	Susceptibility        float64            `msgpack:"sus"`
	Infectivity           float64            `msgpack:"inf"`
	ImmuneResponse        float64            `msgpack:"irm"`
	Status                Status             `msgpack:"st"`
	Strain                Strain             `msgpack:"str"`
	Quarantine            QuarantineStatus   `msgpack:"q"`
	Test                  TestStatus         `msgpack:"t"`
	History               []StatusEntry      `msgpack:"h"`
	Infections            []Infection        `msgpack:"i"`
	Vaccinations          []Vaccination      `msgpack:"v"`
	Antibodies            map[Strain]float64 `msgpack:"ab"`
	MaxAntibodies         map[Strain]float64 `msgpack:"mab"`
	AntibodiesAtInfection float64            `msgpack:"abi"`
}

// State copies the person into its serialisable form.
func (p *Person) State() State {
	st := State{
		ID:                    p.id,
		Age:                   p.age,
		Location:              p.location,
		Susceptibility:        p.susceptibility,
		Infectivity:           p.infectivity,
		ImmuneResponse:        p.immuneResponse,
		Status:                p.status,
		Strain:                p.strain,
		Quarantine:            p.quarantine,
		Test:                  p.test,
		History:               p.History(),
		Infections:            p.Infections(),
		Vaccinations:          p.Vaccinations(),
		Antibodies:            p.AntibodySnapshot(),
		MaxAntibodies:         make(map[Strain]float64, len(p.maxAntibodies)),
		AntibodiesAtInfection: p.antibodiesAtInfection,
	}
	for k, v := range p.maxAntibodies {
		st.MaxAntibodies[k] = v
	}
	return st
}

// FromState rebuilds a person from a checkpointed state.
func FromState(st State) (*Person, error) {
	if !st.Status.Valid() {
		return nil, fmt.Errorf("person %q: unknown disease status %q", st.ID, st.Status)
	}
	if len(st.History) == 0 {
		return nil, fmt.Errorf("person %q: empty status history", st.ID)
	}
	p := &Person{
		id:                    st.ID,
		age:                   st.Age,
		location:              st.Location,
		susceptibility:        st.Susceptibility,
		infectivity:           st.Infectivity,
		immuneResponse:        st.ImmuneResponse,
		status:                st.Status,
		strain:                st.Strain,
		quarantine:            st.Quarantine,
		test:                  st.Test,
		history:               append([]StatusEntry(nil), st.History...),
		infections:            append([]Infection(nil), st.Infections...),
		vaccinations:          append([]Vaccination(nil), st.Vaccinations...),
		antibodies:            make(map[Strain]float64, len(st.Antibodies)),
		maxAntibodies:         make(map[Strain]float64, len(st.MaxAntibodies)),
		antibodiesAtInfection: st.AntibodiesAtInfection,
	}
	for k, v := range st.Antibodies {
		p.antibodies[k] = v
	}
	for k, v := range st.MaxAntibodies {
		p.maxAntibodies[k] = v
	}
	return p, nil
}
