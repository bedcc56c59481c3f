// Package immunity tracks per-strain antibody levels and derives the immunity
// factors that scale disease progression probabilities.
package immunity

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
)

const (
	// HalfLifeDays is the antibody decay half life without an immunity event.
	HalfLifeDays = 60.0
	// DefaultInitialAntibodies applies to event/strain pairs missing from the initial table.
	DefaultInitialAntibodies = 5.0
	// DefaultRefreshFactor applies to event/strain pairs missing from the refresh table.
	DefaultRefreshFactor = 15.0

	minImmuneResponse = 0.1
	maxImmuneResponse = 10.0
)

// AntibodyConfig parameterises the antibody model. Tables are keyed by immunity
// event (vaccine type or strain) and then by the strain the antibodies act against.
type AntibodyConfig struct {
	Initial             map[disease.ImmunityEvent]map[disease.Strain]float64
	Refresh             map[disease.ImmunityEvent]map[disease.Strain]float64
	ImmuneResponseSigma float64
}

func (c AntibodyConfig) initial(ev disease.ImmunityEvent, s disease.Strain) float64 {
	if v, ok := c.Initial[ev][s]; ok {
		return v
	}
	return DefaultInitialAntibodies
}

func (c AntibodyConfig) refresh(ev disease.ImmunityEvent, s disease.Strain) float64 {
	if v, ok := c.Refresh[ev][s]; ok {
		return v
	}
	return DefaultRefreshFactor
}

// AntibodyModel updates antibody levels once per person per day.
type AntibodyModel struct {
	cfg     AntibodyConfig
	strains []disease.Strain
	decay   float64
	logger  *slog.Logger
}

// NewAntibodyModel creates a model tracking levels against strains.
func NewAntibodyModel(cfg AntibodyConfig, strains []disease.Strain) *AntibodyModel {
	sorted := append([]disease.Strain(nil), strains...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &AntibodyModel{
		cfg:     cfg,
		strains: sorted,
		decay:   math.Pow(0.5, 1/HalfLifeDays),
		logger:  slog.Default().With("component", "antibody_model"),
	}
}

// Strains returns the tracked strains in sorted order.
func (m *AntibodyModel) Strains() []disease.Strain {
	return append([]disease.Strain(nil), m.strains...)
}

// Init draws each person's immune response multiplier from a log-normal with
// median 1, redrawn until it lies within [0.1, 10]. Every person has a private stream.
func (m *AntibodyModel) Init(persons []*disease.Person, src *rng.Source) {
	for _, p := range persons {
		mult := 1.0
		if m.cfg.ImmuneResponseSigma > 0 {
			s := src.PersonDay("immune_response", 0, p.ID())
			mult = 0
			for mult < minImmuneResponse || mult > maxImmuneResponse {
				mult = s.LogNormal(0, m.cfg.ImmuneResponseSigma)
			}
		}
		p.SetImmuneResponseMultiplier(mult)
	}
	m.logger.DebugContext(context.Background(), "immune response initialised",
		"persons", len(persons), "sigma", m.cfg.ImmuneResponseSigma)
}

// Update applies yesterday's immunity event, if any, or one day of decay.
// A vaccination takes precedence over an infection on the same day.
func (m *AntibodyModel) Update(p *disease.Person, day int) {
	if vt, ok := p.VaccinatedOn(day - 1); ok {
		m.immunize(p, disease.ImmunityEvent(vt))
		return
	}
	if strain, ok := p.InfectedOn(day - 1); ok {
		m.immunize(p, disease.ImmunityEvent(strain))
		return
	}
	for _, s := range m.strains {
		if ab := p.Antibodies(s); ab > 0 {
			p.SetAntibodies(s, ab*m.decay)
		}
	}
}

func (m *AntibodyModel) immunize(p *disease.Person, ev disease.ImmunityEvent) {
	mult := p.ImmuneResponseMultiplier()

	if !p.HasAntibodies() {
		for _, s := range m.strains {
			p.SetAntibodies(s, math.Min(disease.MaxAntibodyLevel, m.cfg.initial(ev, s)*mult))
		}
		return
	}

	for _, s := range m.strains {
		ab := p.Antibodies(s)
		if f := m.cfg.refresh(ev, s) * mult; f >= 1 {
			ab *= f
		}
		ab = math.Max(ab, m.cfg.initial(ev, s)*mult)
		p.SetAntibodies(s, math.Min(disease.MaxAntibodyLevel, ab))
	}
}
