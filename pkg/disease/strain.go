package disease

import "sort"

// Strain identifies a virus strain.
type Strain string

// VaccineType identifies a vaccine product.
type VaccineType string

// ImmunityEvent is either a Strain (infection) or a VaccineType (vaccination),
// used as the key into antibody tables.
type ImmunityEvent string

// DefaultStrain is carried by seed infections that do not name a strain.
const DefaultStrain Strain = "wild"

// AgeTable maps an age to a factor. Values between keys are linearly
// interpolated, values outside the key range are clamped. An empty table is 1.
type AgeTable map[int]float64

// At evaluates the table at age.
func (t AgeTable) At(age int) float64 {
	if len(t) == 0 {
		return 1
	}
	keys := make([]int, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	if age <= keys[0] {
		return t[keys[0]]
	}
	last := keys[len(keys)-1]
	if age >= last {
		return t[last]
	}
	for i := 1; i < len(keys); i++ {
		hi := keys[i]
		if age > hi {
			continue
		}
		lo := keys[i-1]
		f := float64(age-lo) / float64(hi-lo)
		return t[lo]*(1-f) + t[hi]*f
	}
	return t[last]
}

// StrainParams are the per-strain modifiers applied by exposure and progression.
type StrainParams struct {
	Infectiousness                float64
	FactorSeriouslySick           float64
	FactorSeriouslySickVaccinated float64
	FactorCritical                float64
	AgeSusceptibility             AgeTable
	AgeInfectivity                AgeTable
}

// DefaultStrainParams returns neutral parameters.
func DefaultStrainParams() StrainParams {
	return StrainParams{
		Infectiousness:                1,
		FactorSeriouslySick:           1,
		FactorSeriouslySickVaccinated: 1,
		FactorCritical:                1,
	}
}

// StrainTable resolves parameters per strain.
type StrainTable map[Strain]StrainParams

// Params returns the strain's parameters, or neutral defaults for an undeclared strain.
func (t StrainTable) Params(s Strain) StrainParams {
	if p, ok := t[s]; ok {
		return p
	}
	return DefaultStrainParams()
}

// Strains returns the declared strains in sorted order.
func (t StrainTable) Strains() []Strain {
	out := make([]Strain, 0, len(t))
	for s := range t {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
