package restriction

// Interpolate blends r0 and r1 at fraction f in [0,1]. Fields present on both
// endpoints are blended component-wise; a field present only on r0 keeps r0's value.
// f <= 0 returns r0 and f >= 1 returns r1 unchanged.
func Interpolate(r0, r1 Restriction, f float64) Restriction {
	if f <= 0 {
		return r0.clone()
	}
	if f >= 1 {
		return r1.clone()
	}

	out := r0.clone()
	if r0.remainingFraction != nil && r1.remainingFraction != nil {
		v := lerp(*r0.remainingFraction, *r1.remainingFraction, f)
		out.remainingFraction = &v
	}
	if r0.ciCorrection != nil && r1.ciCorrection != nil {
		v := lerp(*r0.ciCorrection, *r1.ciCorrection, f)
		out.ciCorrection = &v
	}
	if r0.maskUsage != nil && r1.maskUsage != nil {
		out.maskUsage = make(map[FaceMask]float64)
		for _, m := range Masks {
			if m == MaskNone {
				continue
			}
			a, aok := r0.maskUsage[m]
			b, bok := r1.maskUsage[m]
			if aok || bok {
				out.maskUsage[m] = lerp(a, b, f)
			}
		}
	}
	if r0.locationRF != nil && r1.locationRF != nil {
		for loc, a := range r0.locationRF {
			if b, ok := r1.locationRF[loc]; ok {
				out.locationRF[loc] = lerp(a, b, f)
			}
		}
	}
	return out
}

// lerp is exact at both endpoints.
func lerp(a, b, f float64) float64 {
	return a*(1-f) + b*f
}
