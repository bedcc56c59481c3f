package restriction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestNone_IsUnrestricted(t *testing.T) {
	r := None()

	assert.Equal(t, 1.0, r.EffectiveRemainingFraction("anywhere"))
	assert.Equal(t, 1.0, r.EffectiveCICorrection())
	assert.Equal(t, MaskNone, r.SampleMask(0.99))
	assert.Equal(t, 1.0, r.MaskUsage()[MaskNone])
}

func TestMerge_NewerOverridesPresentFields(t *testing.T) {
	older := Restriction{}.WithRemainingFraction(0.5).WithCICorrection(0.8).
		WithMaskUsage(map[FaceMask]float64{MaskCloth: 0.4})
	newer := Restriction{}.WithCICorrection(0.3)

	merged := older.Merge(newer)

	rf, ok := merged.RemainingFraction()
	require.True(t, ok)
	assert.Equal(t, 0.5, rf)
	ci, _ := merged.CICorrection()
	assert.Equal(t, 0.3, ci)
	assert.Equal(t, 0.4, merged.MaskUsage()[MaskCloth])

	// receiver untouched
	ci, _ = older.CICorrection()
	assert.Equal(t, 0.8, ci)
}

func TestMerge_EmptyLocationMapClearsOverrides(t *testing.T) {
	older := Restriction{}.WithRemainingFraction(0.5).WithLocation("north", 0.2)
	assert.Equal(t, 0.2, older.EffectiveRemainingFraction("north"))

	merged := older.Merge(Restriction{}.WithLocationRF(map[string]float64{}))
	assert.Equal(t, 0.5, merged.EffectiveRemainingFraction("north"))

	kept := older.Merge(Restriction{}.WithRemainingFraction(0.7))
	assert.Equal(t, 0.2, kept.EffectiveRemainingFraction("north"))
	assert.Equal(t, 0.7, kept.EffectiveRemainingFraction("south"))
}

func TestMerge_Idempotent(t *testing.T) {
	a := Restriction{}.WithRemainingFraction(0.9)
	b := Restriction{}.WithCICorrection(0.4).WithMaskUsage(map[FaceMask]float64{MaskN95: 0.2})

	once := a.Merge(b)
	twice := once.Merge(b)
	assert.True(t, once.Equal(twice), "%s != %s", once, twice)
}

func TestSampleMask_FollowsCumulativeOrder(t *testing.T) {
	r := Restriction{}.WithMaskUsage(map[FaceMask]float64{MaskCloth: 0.3, MaskN95: 0.2})

	// none=0.5, cloth=0.3, surgical=0, n95=0.2
	assert.Equal(t, MaskNone, r.SampleMask(0.1))
	assert.Equal(t, MaskCloth, r.SampleMask(0.6))
	assert.Equal(t, MaskN95, r.SampleMask(0.85))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Restriction
		wantErr bool
	}{
		{"valid", Restriction{}.WithRemainingFraction(0.3).WithCICorrection(0.5), false},
		{"rf above one", Restriction{}.WithRemainingFraction(1.1), true},
		{"rf negative", Restriction{}.WithRemainingFraction(-0.1), true},
		{"ci negative", Restriction{}.WithCICorrection(-1), true},
		{"ci zero allowed", Restriction{}.WithCICorrection(0), false},
		{"ci above one", Restriction{}.WithCICorrection(5), true},
		{"masks over one", Restriction{}.WithMaskUsage(map[FaceMask]float64{MaskCloth: 0.7, MaskN95: 0.5}), true},
		{"location out of range", Restriction{}.WithLocation("north", 2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRestriction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromSpec(t *testing.T) {
	r, err := FromSpec(Spec{
		RemainingFraction: ptr(0.6),
		Masks:             map[string]float64{"cloth": 0.5, "none": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, r.MaskUsage()[MaskCloth])
	_, hasCI := r.CICorrection()
	assert.False(t, hasCI)

	_, err = FromSpec(Spec{Masks: map[string]float64{"cloth": 0.5, "none": 0.2}})
	assert.ErrorIs(t, err, ErrInvalidRestriction)

	_, err = FromSpec(Spec{Masks: map[string]float64{"visor": 0.5}})
	assert.ErrorIs(t, err, ErrInvalidRestriction)
}

func TestJSONRoundTrip(t *testing.T) {
	r := Restriction{}.WithRemainingFraction(0.25).WithCICorrection(0.5).WithLocation("north", 0.1)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Restriction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, r.Equal(back))
}

func TestInterpolate(t *testing.T) {
	r0 := Restriction{}.WithRemainingFraction(0.2).WithCICorrection(1).WithMaskUsage(map[FaceMask]float64{MaskCloth: 0.1})
	r1 := Restriction{}.WithRemainingFraction(0.8).WithCICorrection(0.5).WithMaskUsage(map[FaceMask]float64{MaskCloth: 0.5})

	assert.True(t, Interpolate(r0, r1, 0).Equal(r0))
	assert.True(t, Interpolate(r0, r1, 1).Equal(r1))

	mid := Interpolate(r0, r1, 0.5)
	rf, _ := mid.RemainingFraction()
	ci, _ := mid.CICorrection()
	assert.InDelta(t, 0.5, rf, 1e-12)
	assert.InDelta(t, 0.75, ci, 1e-12)
	assert.InDelta(t, 0.3, mid.MaskUsage()[MaskCloth], 1e-12)
}

func TestInterpolate_MissingFieldKeepsStart(t *testing.T) {
	r0 := Restriction{}.WithRemainingFraction(0.2).WithCICorrection(0.9)
	r1 := Restriction{}.WithRemainingFraction(0.6)

	mid := Interpolate(r0, r1, 0.5)
	ci, ok := mid.CICorrection()
	require.True(t, ok)
	assert.Equal(t, 0.9, ci)
}
