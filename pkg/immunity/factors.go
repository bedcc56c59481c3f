package immunity

import (
	"fmt"
	"math"

	"github.com/thoas/go-funk"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
)

const (
	boosterMultiplier = 4.0
	escapeMultiplier  = 3.7

	// DefaultDoublingDays is the period over which the waning critical factor doubles
	// the antibody level recorded at the last infection.
	DefaultDoublingDays = 60.0
)

// Kind selects an immunity factor model.
type Kind string

const (
	KindNone      Kind = "none"
	KindNonWaning Kind = "non_waning"
	KindWaning    Kind = "waning"
)

// Factors scales the seriously-sick and critical transition probabilities.
// Both results lie in (0, 1].
type Factors interface {
	SeriouslySick(p *disease.Person, day int) float64
	Critical(p *disease.Person, day int) float64
}

// FactorConfig holds the parameters shared by the factor models.
type FactorConfig struct {
	Beta                float64
	EscapeSeriouslySick []disease.Strain
	EscapeCritical      []disease.Strain
	DoublingDays        float64
}

// DefaultEscapeSeriouslySick is the immune-escape set applied to the seriously-sick factor.
func DefaultEscapeSeriouslySick() []disease.Strain {
	return []disease.Strain{
		"omicron_ba1", "omicron_ba2", "omicron_ba5",
		"strain_a", "strain_b", "strain_c", "strain_d", "strain_e", "strain_f",
		"strain_g", "strain_h", "strain_i", "strain_j", "strain_k",
	}
}

// DefaultEscapeCritical is the narrower immune-escape set applied to the critical factor.
func DefaultEscapeCritical() []disease.Strain {
	return []disease.Strain{"omicron_ba1", "omicron_ba2"}
}

// DefaultFactorConfig returns beta 1 with the default escape sets.
func DefaultFactorConfig() FactorConfig {
	return FactorConfig{
		Beta:                1,
		EscapeSeriouslySick: DefaultEscapeSeriouslySick(),
		EscapeCritical:      DefaultEscapeCritical(),
		DoublingDays:        DefaultDoublingDays,
	}
}

// New returns the factor model of kind.
func New(kind Kind, cfg FactorConfig) (Factors, error) {
	if cfg.Beta <= 0 {
		return nil, fmt.Errorf("immunity: beta must be positive, got %v", cfg.Beta)
	}
	if cfg.DoublingDays <= 0 {
		cfg.DoublingDays = DefaultDoublingDays
	}
	switch kind {
	case KindNone, "":
		return Neutral{}, nil
	case KindNonWaning:
		return NonWaning{cfg: cfg}, nil
	case KindWaning:
		return Waning{NonWaning: NonWaning{cfg: cfg}}, nil
	default:
		return nil, fmt.Errorf("immunity: unknown factor model %q", kind)
	}
}

// Neutral never modulates progression.
type Neutral struct{}

func (Neutral) SeriouslySick(*disease.Person, int) float64 { return 1 }
func (Neutral) Critical(*disease.Person, int) float64      { return 1 }

// NonWaning maps the highest antibody level ever reached against the current strain.
type NonWaning struct {
	cfg FactorConfig
}

// SeriouslySick implements Factors.
func (n NonWaning) SeriouslySick(p *disease.Person, _ int) float64 {
	if naive(p) {
		return 1
	}
	return n.factor(p, p.MaxAntibodies(p.Strain()), n.cfg.EscapeSeriouslySick)
}

// Critical implements Factors.
func (n NonWaning) Critical(p *disease.Person, _ int) float64 {
	if naive(p) {
		return 1
	}
	return n.factor(p, p.MaxAntibodies(p.Strain()), n.cfg.EscapeCritical)
}

func (n NonWaning) factor(p *disease.Person, ab float64, escape []disease.Strain) float64 {
	if p.NumVaccinations() > 1 {
		ab *= boosterMultiplier
	}
	if funk.Contains(escape, p.Strain()) {
		ab *= escapeMultiplier
	}
	f := 1 / (1 + math.Pow(ab, n.cfg.Beta))
	if f <= 0 || math.IsNaN(f) {
		return math.SmallestNonzeroFloat64
	}
	return f
}

// Waning keeps the non-waning seriously-sick factor and derives the critical factor
// from the antibody level at the last infection, doubled every DoublingDays since
// the last immunity event.
type Waning struct {
	NonWaning
}

// Critical implements Factors.
func (w Waning) Critical(p *disease.Person, day int) float64 {
	if naive(p) {
		return 1
	}
	since := 0
	if last, ok := p.LastImmunityDay(); ok && day > last {
		since = day - last
	}
	ab := p.AntibodiesAtInfection() * math.Pow(2, float64(since)/w.cfg.DoublingDays)
	return w.factor(p, ab, w.cfg.EscapeCritical)
}

// naive reports whether the person has no vaccination and no infection before the current one.
func naive(p *disease.Person) bool {
	prior := p.NumInfections() - 1
	if prior < 0 {
		prior = 0
	}
	return p.NumVaccinations() == 0 && prior == 0
}
