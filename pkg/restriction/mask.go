package restriction

import "fmt"

// FaceMask is a mask type worn during an activity.
type FaceMask string

const (
	MaskNone     FaceMask = "none"
	MaskCloth    FaceMask = "cloth"
	MaskSurgical FaceMask = "surgical"
	MaskN95      FaceMask = "n95"
)

// Masks lists the mask types in the fixed order used for sampling.
var Masks = []FaceMask{MaskNone, MaskCloth, MaskSurgical, MaskN95}

// ParseFaceMask validates a mask name.
func ParseFaceMask(name string) (FaceMask, error) {
	for _, m := range Masks {
		if string(m) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown face mask %q", name)
}

// MaskEfficacy are the multiplicative factors a mask applies to the
// wearer's shedding (as infector) and intake (as target).
type MaskEfficacy struct {
	Shedding float64 `yaml:"shedding" json:"shedding"`
	Intake   float64 `yaml:"intake" json:"intake"`
}

// MaskTable maps each mask type to its efficacy.
type MaskTable map[FaceMask]MaskEfficacy

// DefaultMaskTable returns the reference efficacy values.
func DefaultMaskTable() MaskTable {
	return MaskTable{
		MaskNone:     {Shedding: 1, Intake: 1},
		MaskCloth:    {Shedding: 0.6, Intake: 0.5},
		MaskSurgical: {Shedding: 0.3, Intake: 0.2},
		MaskN95:      {Shedding: 0.15, Intake: 0.025},
	}
}

// Shedding returns the shedding factor, 1 for an unknown mask.
func (t MaskTable) Shedding(m FaceMask) float64 {
	if e, ok := t[m]; ok {
		return e.Shedding
	}
	return 1
}

// Intake returns the intake factor, 1 for an unknown mask.
func (t MaskTable) Intake(m FaceMask) float64 {
	if e, ok := t[m]; ok {
		return e.Intake
	}
	return 1
}

// Validate checks every factor is in [0,1].
func (t MaskTable) Validate() error {
	for m, e := range t {
		if e.Shedding < 0 || e.Shedding > 1 || e.Intake < 0 || e.Intake > 1 {
			return fmt.Errorf("mask %s: efficacy factors must be in [0,1]", m)
		}
	}
	return nil
}
