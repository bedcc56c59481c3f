// Package progression advances infected persons through the disease state machine
// once per simulated day.
package progression

import (
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
)

// Strategy supplies the base transition probabilities of the state machine.
// Strain and immunity modifiers are applied by the Engine on top.
type Strategy interface {
	Name() string
	Symptoms(p *disease.Person, day int) float64
	SeriouslySick(p *disease.Person, day int) float64
	Critical(p *disease.Person, day int) float64
	Deceased(p *disease.Person, day int) float64
}

const (
	StrategyDefault      = "default"
	StrategyAgeDependent = "age_dependent"

	DefaultPSymptoms      = 0.8
	DefaultPSeriouslySick = 0.05625
	DefaultPCritical      = 0.25
)

// Default uses age-independent probabilities.
type Default struct {
	PSymptoms      float64
	PSeriouslySick float64
	PCritical      float64
	PDeceased      float64
}

// NewDefault returns the default probabilities with the given death probability.
func NewDefault(pDeceased float64) Default {
	return Default{
		PSymptoms:      DefaultPSymptoms,
		PSeriouslySick: DefaultPSeriouslySick,
		PCritical:      DefaultPCritical,
		PDeceased:      pDeceased,
	}
}

func (d Default) Name() string                               { return StrategyDefault }
func (d Default) Symptoms(*disease.Person, int) float64      { return d.PSymptoms }
func (d Default) SeriouslySick(*disease.Person, int) float64 { return d.PSeriouslySick }
func (d Default) Critical(*disease.Person, int) float64      { return d.PCritical }
func (d Default) Deceased(*disease.Person, int) float64      { return d.PDeceased }

// AgeBand holds the probabilities for ages from MinAge up to the next band.
type AgeBand struct {
	MinAge        int     `yaml:"min_age" json:"min_age"`
	SeriouslySick float64 `yaml:"seriously_sick" json:"seriously_sick"`
	Critical      float64 `yaml:"critical" json:"critical"`
}

// DefaultAgeBands are piecewise constant over [0,5) [5,15) [15,35) [35,60) [60,80) [80,inf).
func DefaultAgeBands() []AgeBand {
	return []AgeBand{
		{MinAge: 0, SeriouslySick: 0.040, Critical: 0.07},
		{MinAge: 5, SeriouslySick: 0.011, Critical: 0.00},
		{MinAge: 15, SeriouslySick: 0.024, Critical: 0.15},
		{MinAge: 35, SeriouslySick: 0.056, Critical: 0.30},
		{MinAge: 60, SeriouslySick: 0.230, Critical: 0.41},
		{MinAge: 80, SeriouslySick: 0.360, Critical: 0.27},
	}
}

// AgeDependent looks up seriously-sick and critical probabilities by age band.
// The seriously-sick probability is scaled by the hospital factor.
type AgeDependent struct {
	bands          []AgeBand
	hospitalFactor float64
	pSymptoms      float64
	pDeceased      float64
}

// NewAgeDependent validates bands; nil bands select DefaultAgeBands.
func NewAgeDependent(bands []AgeBand, hospitalFactor, pDeceased float64) (*AgeDependent, error) {
	if bands == nil {
		bands = DefaultAgeBands()
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("age_dependent: no age bands")
	}
	sorted := append([]AgeBand(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinAge < sorted[j].MinAge })
	if sorted[0].MinAge != 0 {
		return nil, fmt.Errorf("age_dependent: first band starts at %d, want 0", sorted[0].MinAge)
	}
	for i, b := range sorted {
		if i > 0 && b.MinAge == sorted[i-1].MinAge {
			return nil, fmt.Errorf("age_dependent: duplicate band at age %d", b.MinAge)
		}
		if b.SeriouslySick < 0 || b.SeriouslySick > 1 || b.Critical < 0 || b.Critical > 1 {
			return nil, fmt.Errorf("age_dependent: band %d has a probability outside [0,1]", b.MinAge)
		}
	}
	if hospitalFactor <= 0 {
		hospitalFactor = 1
	}
	return &AgeDependent{bands: sorted, hospitalFactor: hospitalFactor, pSymptoms: DefaultPSymptoms, pDeceased: pDeceased}, nil
}

func (a *AgeDependent) band(age int) AgeBand {
	i := sort.Search(len(a.bands), func(i int) bool { return a.bands[i].MinAge > age })
	if i == 0 {
		return a.bands[0]
	}
	return a.bands[i-1]
}

func (a *AgeDependent) Name() string { return StrategyAgeDependent }

func (a *AgeDependent) Symptoms(*disease.Person, int) float64 { return a.pSymptoms }

func (a *AgeDependent) SeriouslySick(p *disease.Person, _ int) float64 {
	return a.band(p.Age()).SeriouslySick * a.hospitalFactor
}

func (a *AgeDependent) Critical(p *disease.Person, _ int) float64 {
	return a.band(p.Age()).Critical
}

func (a *AgeDependent) Deceased(*disease.Person, int) float64 { return a.pDeceased }
