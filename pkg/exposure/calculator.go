// Package exposure computes per-contact infection probabilities and samples the
// infections of one container day.
package exposure

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

// ErrUnknownContext is returned when a context has no contact intensity.
var ErrUnknownContext = errors.New("unknown context")

// IntensityTable maps a context to its contact intensity.
type IntensityTable map[string]float64

// Lookup returns the intensity of context.
func (t IntensityTable) Lookup(context string) (float64, error) {
	v, ok := t[context]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no contact intensity", ErrUnknownContext, context)
	}
	return v, nil
}

// Contexts returns the configured contexts, sorted.
func (t IntensityTable) Contexts() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Config parameterises a Calculator.
type Config struct {
	// Kappa is the scenario-wide calibration constant.
	Kappa        float64
	Intensity    IntensityTable
	Masks        restriction.MaskTable
	Strains      disease.StrainTable
	HomeContexts []string
}

// Calculator evaluates the exposure formula. It is immutable and safe for concurrent use.
type Calculator struct {
	kappa     float64
	intensity IntensityTable
	masks     restriction.MaskTable
	strains   disease.StrainTable
	home      map[string]bool
}

// NewCalculator validates cfg.
func NewCalculator(cfg Config) (*Calculator, error) {
	if cfg.Kappa < 0 || math.IsNaN(cfg.Kappa) || math.IsInf(cfg.Kappa, 0) {
		return nil, fmt.Errorf("exposure: kappa must be a finite non-negative number, got %v", cfg.Kappa)
	}
	for ctx, v := range cfg.Intensity {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("exposure: intensity of %q is negative", ctx)
		}
	}
	if cfg.Masks == nil {
		cfg.Masks = restriction.DefaultMaskTable()
	}
	if err := cfg.Masks.Validate(); err != nil {
		return nil, fmt.Errorf("exposure: %w", err)
	}
	home := make(map[string]bool, len(cfg.HomeContexts))
	for _, ctx := range cfg.HomeContexts {
		home[ctx] = true
	}
	return &Calculator{kappa: cfg.Kappa, intensity: cfg.Intensity, masks: cfg.Masks, strains: cfg.Strains, home: home}, nil
}

// Kappa returns the calibration constant.
func (c *Calculator) Kappa() float64 { return c.kappa }

// RequireContexts fails when any of contexts has no intensity.
func (c *Calculator) RequireContexts(contexts []string) error {
	for _, ctx := range contexts {
		if _, err := c.intensity.Lookup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Contact is one target/infector pair sharing a container.
type Contact struct {
	Target              *disease.Person
	Infector            *disease.Person
	TargetContext       string
	InfectorContext     string
	JointSeconds        float64
	TargetRestriction   restriction.Restriction
	InfectorRestriction restriction.Restriction
	TargetMask          restriction.FaceMask
	InfectorMask        restriction.FaceMask
}

// Susceptibility is the target's strain- and age-adjusted susceptibility.
func (c *Calculator) Susceptibility(target *disease.Person, strain disease.Strain) float64 {
	return c.strains.Params(strain).AgeSusceptibility.At(target.Age()) * target.Susceptibility()
}

// Infectability is the infector's strain- and age-adjusted infectivity.
func (c *Calculator) Infectability(infector *disease.Person) float64 {
	params := c.strains.Params(infector.Strain())
	return params.AgeInfectivity.At(infector.Age()) * infector.Infectivity() * params.Infectiousness
}

// InfectionProbability evaluates
//
//	P = 1 - exp(-kappa * sus * inf * min(intensity) * t * min(ci) * shedding * intake)
//
// The result is in [0,1]; it is 0 when t or either ci correction is 0.
func (c *Calculator) InfectionProbability(ct Contact) (float64, error) {
	if ct.JointSeconds <= 0 {
		return 0, nil
	}
	ia, err := c.intensity.Lookup(ct.TargetContext)
	if err != nil {
		return 0, err
	}
	ib, err := c.intensity.Lookup(ct.InfectorContext)
	if err != nil {
		return 0, err
	}
	ci := math.Min(ct.TargetRestriction.EffectiveCICorrection(), ct.InfectorRestriction.EffectiveCICorrection())
	if ci <= 0 {
		return 0, nil
	}

	exponent := c.kappa *
		c.Susceptibility(ct.Target, ct.Infector.Strain()) *
		c.Infectability(ct.Infector) *
		math.Min(ia, ib) *
		ct.JointSeconds *
		ci *
		c.masks.Shedding(ct.InfectorMask) *
		c.masks.Intake(ct.TargetMask)
	if exponent <= 0 || math.IsNaN(exponent) {
		return 0, nil
	}
	return -math.Expm1(-exponent), nil
}
