package restriction

import (
	"encoding/json"
	"fmt"
)

// Spec is the declarative form of a Restriction used by scenario files and
// restriction snapshot events. Absent keys stay absent.
type Spec struct {
	RemainingFraction *float64           `yaml:"remaining_fraction,omitempty" json:"remaining_fraction,omitempty"`
	CICorrection      *float64           `yaml:"ci_correction,omitempty" json:"ci_correction,omitempty"`
	Masks             map[string]float64 `yaml:"masks,omitempty" json:"masks,omitempty"`
	LocationRF        map[string]float64 `yaml:"location_rf,omitempty" json:"location_rf,omitempty"`
}

// FromSpec builds and validates a Restriction.
func FromSpec(s Spec) (Restriction, error) {
	var r Restriction
	if s.RemainingFraction != nil {
		r = r.WithRemainingFraction(*s.RemainingFraction)
	}
	if s.CICorrection != nil {
		r = r.WithCICorrection(*s.CICorrection)
	}
	if s.Masks != nil {
		usage := make(map[FaceMask]float64, len(s.Masks))
		sum := 0.0
		explicitNone := -1.0
		for name, share := range s.Masks {
			m, err := ParseFaceMask(name)
			if err != nil {
				return Restriction{}, fmt.Errorf("%w: %v", ErrInvalidRestriction, err)
			}
			if m == MaskNone {
				explicitNone = share
				continue
			}
			usage[m] = share
			sum += share
		}
		if explicitNone >= 0 && (explicitNone+sum < 1-maskSumTolerance || explicitNone+sum > 1+maskSumTolerance) {
			return Restriction{}, fmt.Errorf("%w: mask shares including none must sum to 1, got %v", ErrInvalidRestriction, explicitNone+sum)
		}
		r = r.WithMaskUsage(usage)
	}
	if s.LocationRF != nil {
		r = r.WithLocationRF(s.LocationRF)
	}
	if err := r.Validate(); err != nil {
		return Restriction{}, err
	}
	return r, nil
}

// Spec converts the Restriction into its declarative form.
func (r Restriction) Spec() Spec {
	var s Spec
	if v, ok := r.RemainingFraction(); ok {
		s.RemainingFraction = &v
	}
	if v, ok := r.CICorrection(); ok {
		s.CICorrection = &v
	}
	if r.maskUsage != nil {
		s.Masks = make(map[string]float64, len(r.maskUsage))
		for m, f := range r.maskUsage {
			s.Masks[string(m)] = f
		}
	}
	s.LocationRF = r.LocationRF()
	return s
}

// MarshalJSON encodes the declarative form.
func (r Restriction) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Spec())
}

// UnmarshalJSON decodes and validates the declarative form.
func (r *Restriction) UnmarshalJSON(data []byte) error {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromSpec(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
