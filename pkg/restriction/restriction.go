// Package restriction defines the per-context contact restriction value and its
// merge and interpolation rules.
package restriction

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidRestriction is returned for out-of-range restriction fields.
var ErrInvalidRestriction = errors.New("invalid restriction")

const maskSumTolerance = 1e-9

// Restriction constrains one context for one day. Every field is optional;
// an absent field is inherited when merged onto an older value.
//
// A Restriction is a value: methods never modify the receiver.
type Restriction struct {
	remainingFraction *float64
	ciCorrection      *float64
	maskUsage         map[FaceMask]float64 // non-none masks only; none is the remainder
	locationRF        map[string]float64
}

// None is the unrestricted value: full participation, no correction, no masks.
func None() Restriction {
	return Restriction{}.WithRemainingFraction(1).WithCICorrection(1).WithMaskUsage(map[FaceMask]float64{})
}

// WithRemainingFraction returns a copy with remainingFraction set.
func (r Restriction) WithRemainingFraction(rf float64) Restriction {
	out := r.clone()
	out.remainingFraction = &rf
	return out
}

// WithCICorrection returns a copy with ciCorrection set.
func (r Restriction) WithCICorrection(ci float64) Restriction {
	out := r.clone()
	out.ciCorrection = &ci
	return out
}

// WithMaskUsage returns a copy with the mask distribution replaced. An explicit
// none entry is dropped; none always takes the remaining share.
func (r Restriction) WithMaskUsage(usage map[FaceMask]float64) Restriction {
	out := r.clone()
	out.maskUsage = make(map[FaceMask]float64, len(usage))
	for m, f := range usage {
		if m == MaskNone {
			continue
		}
		out.maskUsage[m] = f
	}
	return out
}

// WithLocationRF returns a copy with the per-location remaining fractions replaced.
// A non-nil empty map clears inherited overrides when merged.
func (r Restriction) WithLocationRF(byLocation map[string]float64) Restriction {
	out := r.clone()
	out.locationRF = make(map[string]float64, len(byLocation))
	for k, v := range byLocation {
		out.locationRF[k] = v
	}
	return out
}

// WithLocation returns a copy with one location override set, keeping the others.
func (r Restriction) WithLocation(location string, rf float64) Restriction {
	out := r.clone()
	if out.locationRF == nil {
		out.locationRF = make(map[string]float64, 1)
	}
	out.locationRF[location] = rf
	return out
}

// RemainingFraction returns the remaining fraction if present.
func (r Restriction) RemainingFraction() (float64, bool) {
	if r.remainingFraction == nil {
		return 0, false
	}
	return *r.remainingFraction, true
}

// CICorrection returns the ci correction if present.
func (r Restriction) CICorrection() (float64, bool) {
	if r.ciCorrection == nil {
		return 0, false
	}
	return *r.ciCorrection, true
}

// HasMaskUsage reports whether a mask distribution is present.
func (r Restriction) HasMaskUsage() bool { return r.maskUsage != nil }

// MaskUsage returns the full distribution including the none share.
func (r Restriction) MaskUsage() map[FaceMask]float64 {
	out := make(map[FaceMask]float64, len(r.maskUsage)+1)
	sum := 0.0
	for m, f := range r.maskUsage {
		out[m] = f
		sum += f
	}
	out[MaskNone] = math.Max(0, 1-sum)
	return out
}

// LocationRF returns a copy of the per-location overrides.
func (r Restriction) LocationRF() map[string]float64 {
	if r.locationRF == nil {
		return nil
	}
	out := make(map[string]float64, len(r.locationRF))
	for k, v := range r.locationRF {
		out[k] = v
	}
	return out
}

// EffectiveRemainingFraction resolves the fraction for a person at location:
// the location override, then the context value, then 1.
func (r Restriction) EffectiveRemainingFraction(location string) float64 {
	if location != "" {
		if rf, ok := r.locationRF[location]; ok {
			return rf
		}
	}
	if r.remainingFraction != nil {
		return *r.remainingFraction
	}
	return 1
}

// EffectiveCICorrection returns ciCorrection, 1 when absent.
func (r Restriction) EffectiveCICorrection() float64 {
	if r.ciCorrection != nil {
		return *r.ciCorrection
	}
	return 1
}

// SampleMask picks a mask for the uniform draw u in [0,1).
func (r Restriction) SampleMask(u float64) FaceMask {
	if len(r.maskUsage) == 0 {
		return MaskNone
	}
	usage := r.MaskUsage()
	cum := 0.0
	for _, m := range Masks {
		cum += usage[m]
		if u < cum {
			return m
		}
	}
	return MaskNone
}

// Merge returns r overridden by every field present in newer.
func (r Restriction) Merge(newer Restriction) Restriction {
	out := r.clone()
	if newer.remainingFraction != nil {
		v := *newer.remainingFraction
		out.remainingFraction = &v
	}
	if newer.ciCorrection != nil {
		v := *newer.ciCorrection
		out.ciCorrection = &v
	}
	if newer.maskUsage != nil {
		out.maskUsage = copyMasks(newer.maskUsage)
	}
	if newer.locationRF != nil {
		out.locationRF = newer.LocationRF()
	}
	return out
}

// Validate checks field ranges.
func (r Restriction) Validate() error {
	if rf := r.remainingFraction; rf != nil && (*rf < 0 || *rf > 1 || math.IsNaN(*rf)) {
		return fmt.Errorf("%w: remaining fraction %v not in [0,1]", ErrInvalidRestriction, *rf)
	}
	if ci := r.ciCorrection; ci != nil && (*ci < 0 || *ci > 1 || math.IsNaN(*ci)) {
		return fmt.Errorf("%w: ci correction %v not in [0,1]", ErrInvalidRestriction, *ci)
	}
	sum := 0.0
	for m, f := range r.maskUsage {
		if f < 0 || f > 1 {
			return fmt.Errorf("%w: mask %s share %v not in [0,1]", ErrInvalidRestriction, m, f)
		}
		sum += f
	}
	if sum > 1+maskSumTolerance {
		return fmt.Errorf("%w: mask shares sum to %v", ErrInvalidRestriction, sum)
	}
	for loc, rf := range r.locationRF {
		if rf < 0 || rf > 1 {
			return fmt.Errorf("%w: location %q remaining fraction %v not in [0,1]", ErrInvalidRestriction, loc, rf)
		}
	}
	return nil
}

// Equal compares field by field.
func (r Restriction) Equal(o Restriction) bool {
	if !floatPtrEqual(r.remainingFraction, o.remainingFraction) || !floatPtrEqual(r.ciCorrection, o.ciCorrection) {
		return false
	}
	if (r.maskUsage == nil) != (o.maskUsage == nil) || len(r.maskUsage) != len(o.maskUsage) {
		return false
	}
	for m, f := range r.maskUsage {
		if g, ok := o.maskUsage[m]; !ok || g != f {
			return false
		}
	}
	if (r.locationRF == nil) != (o.locationRF == nil) || len(r.locationRF) != len(o.locationRF) {
		return false
	}
	for k, v := range r.locationRF {
		if w, ok := o.locationRF[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// String renders the present fields.
func (r Restriction) String() string {
	s := "{"
	if r.remainingFraction != nil {
		s += fmt.Sprintf("rf=%g ", *r.remainingFraction)
	}
	if r.ciCorrection != nil {
		s += fmt.Sprintf("ci=%g ", *r.ciCorrection)
	}
	if len(r.maskUsage) > 0 {
		masks := make([]string, 0, len(r.maskUsage))
		for m, f := range r.maskUsage {
			masks = append(masks, fmt.Sprintf("%s:%g", m, f))
		}
		sort.Strings(masks)
		s += fmt.Sprintf("masks=%v ", masks)
	}
	if len(r.locationRF) > 0 {
		s += fmt.Sprintf("locations=%d ", len(r.locationRF))
	}
	if len(s) > 1 {
		s = s[:len(s)-1]
	}
	return s + "}"
}

func (r Restriction) clone() Restriction {
	out := Restriction{}
	if r.remainingFraction != nil {
		v := *r.remainingFraction
		out.remainingFraction = &v
	}
	if r.ciCorrection != nil {
		v := *r.ciCorrection
		out.ciCorrection = &v
	}
	if r.maskUsage != nil {
		out.maskUsage = copyMasks(r.maskUsage)
	}
	out.locationRF = r.LocationRF()
	return out
}

func copyMasks(in map[FaceMask]float64) map[FaceMask]float64 {
	out := make(map[FaceMask]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
