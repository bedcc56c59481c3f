package progression

import (
	"fmt"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/immunity"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
)

// Transition is one status change applied by the engine.
type Transition struct {
	PersonID string
	Day      int
	From     disease.Status
	To       disease.Status
}

// Config assembles an Engine.
type Config struct {
	Strategy Strategy
	Immunity immunity.Factors
	Strains  disease.StrainTable
	// Dwell is the minimum number of days in a status before it is evaluated.
	// Missing entries default to 1.
	Dwell map[disease.Status]int
}

// Engine is the per-person disease state machine. It holds no per-run state and
// is safe for concurrent use on distinct persons.
type Engine struct {
	strategy Strategy
	immunity immunity.Factors
	strains  disease.StrainTable
	dwell    map[disease.Status]int
}

// NewEngine validates cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("progression: strategy is required")
	}
	if cfg.Immunity == nil {
		cfg.Immunity = immunity.Neutral{}
	}
	dwell := make(map[disease.Status]int, len(cfg.Dwell))
	for s, d := range cfg.Dwell {
		if !s.Valid() {
			return nil, fmt.Errorf("progression: dwell: %w %q", disease.ErrUnknownStatus, s)
		}
		if d < 1 {
			return nil, fmt.Errorf("progression: dwell for %s must be at least 1, got %d", s, d)
		}
		dwell[s] = d
	}
	return &Engine{
		strategy: cfg.Strategy,
		immunity: cfg.Immunity,
		strains:  cfg.Strains,
		dwell:    dwell,
	}, nil
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

func (e *Engine) dwellFor(s disease.Status) int {
	if d, ok := e.dwell[s]; ok {
		return d
	}
	return 1
}

// Step evaluates p once for day, drawing from stream. It reports whether the status
// changed. Persons whose status changed today, or who have not yet spent their dwell
// time in the current status, are left untouched.
func (e *Engine) Step(p *disease.Person, day int, stream *rng.Stream) (Transition, bool, error) {
	from := p.Status()
	switch from {
	case disease.Susceptible, disease.Deceased:
		return Transition{}, false, nil
	}
	if !from.Valid() {
		return Transition{}, false, fmt.Errorf("person %s: %w %q", p.ID(), disease.ErrUnknownStatus, from)
	}
	if p.DaysInStatus(day) < e.dwellFor(from) {
		return Transition{}, false, nil
	}

	to, err := e.next(p, from, day, stream)
	if err != nil {
		return Transition{}, false, err
	}
	p.SetStatus(day, to)
	return Transition{PersonID: p.ID(), Day: day, From: from, To: to}, true, nil
}

func (e *Engine) next(p *disease.Person, from disease.Status, day int, stream *rng.Stream) (disease.Status, error) {
	params := e.strains.Params(p.Strain())

	switch from {
	case disease.InfectedButNotContagious:
		return disease.Contagious, nil

	case disease.Contagious:
		if stream.Float64() < e.strategy.Symptoms(p, day) {
			return disease.ShowingSymptoms, nil
		}
		return disease.Recovered, nil

	case disease.ShowingSymptoms:
		strainFactor := params.FactorSeriouslySick
		if p.NumVaccinations() > 0 {
			strainFactor = params.FactorSeriouslySickVaccinated
		}
		prob := e.strategy.SeriouslySick(p, day) * strainFactor * e.immunity.SeriouslySick(p, day)
		if stream.Float64() < prob {
			return disease.SeriouslySick, nil
		}
		return disease.Recovered, nil

	case disease.SeriouslySick:
		// critical at most once per episode
		if !p.HadStatusSinceLastInfection(disease.Critical) {
			prob := e.strategy.Critical(p, day) * params.FactorCritical * e.immunity.Critical(p, day)
			if stream.Float64() < prob {
				return disease.Critical, nil
			}
		}
		return disease.Recovered, nil

	case disease.Critical:
		if prob := e.strategy.Deceased(p, day); prob != 0 && stream.Float64() < prob {
			return disease.Deceased, nil
		}
		return disease.SeriouslySickAfterCritical, nil

	case disease.SeriouslySickAfterCritical:
		return disease.Recovered, nil

	case disease.Recovered:
		return disease.Susceptible, nil
	}
	return "", fmt.Errorf("person %s: no transition defined for %w %q", p.ID(), disease.ErrUnknownStatus, from)
}

// Targets lists the statuses reachable from s in one step, including s itself
// for statuses that are left untouched.
func Targets(s disease.Status) []disease.Status {
	switch s {
	case disease.Susceptible:
		return []disease.Status{disease.Susceptible}
	case disease.InfectedButNotContagious:
		return []disease.Status{disease.Contagious}
	case disease.Contagious:
		return []disease.Status{disease.ShowingSymptoms, disease.Recovered}
	case disease.ShowingSymptoms:
		return []disease.Status{disease.SeriouslySick, disease.Recovered}
	case disease.SeriouslySick:
		return []disease.Status{disease.Critical, disease.Recovered}
	case disease.Critical:
		return []disease.Status{disease.Deceased, disease.SeriouslySickAfterCritical}
	case disease.SeriouslySickAfterCritical:
		return []disease.Status{disease.Recovered}
	case disease.Recovered:
		return []disease.Status{disease.Susceptible}
	case disease.Deceased:
		return []disease.Status{disease.Deceased}
	}
	return nil
}
