package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draw(s *Stream, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = s.Uint64()
	}
	return out
}

func TestStream_Reproducible(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmHMACSHA256, AlgorithmChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			a := NewSource(42, alg).PersonDay("progression", 3, "p1")
			b := NewSource(42, alg).PersonDay("progression", 3, "p1")
			assert.Equal(t, draw(a, 16), draw(b, 16))
		})
	}
}

func TestStream_IndependentLabels(t *testing.T) {
	src := NewSource(42, AlgorithmHMACSHA256)

	assert.NotEqual(t, draw(src.PersonDay("progression", 3, "p1"), 4), draw(src.PersonDay("progression", 3, "p2"), 4))
	assert.NotEqual(t, draw(src.PersonDay("progression", 3, "p1"), 4), draw(src.PersonDay("progression", 4, "p1"), 4))
	assert.NotEqual(t, draw(NewSource(1, AlgorithmHMACSHA256).Day("seed", 1), 4), draw(NewSource(2, AlgorithmHMACSHA256).Day("seed", 1), 4))
}

func TestStream_Float64Range(t *testing.T) {
	s := NewSource(7, AlgorithmChaCha20).Stream("range")
	for i := 0; i < 10000; i++ {
		f := s.Float64()
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
	}
	assert.Equal(t, uint64(10000), s.Draws())
}

func TestStream_Intn(t *testing.T) {
	s := NewSource(7, AlgorithmHMACSHA256).Stream("intn")
	assert.Equal(t, 0, s.Intn(0))
	for i := 0; i < 1000; i++ {
		v := s.Intn(5)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 5)
	}
}

func TestStream_LogNormalMedian(t *testing.T) {
	s := NewSource(11, AlgorithmHMACSHA256).Stream("lognormal")
	below := 0
	const n = 4000
	for i := 0; i < n; i++ {
		if s.LogNormal(0, 0.5) < 1 {
			below++
		}
	}
	assert.InDelta(t, 0.5, float64(below)/n, 0.05)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmHMACSHA256, alg)

	alg, err = ParseAlgorithm("chacha20")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmChaCha20, alg)

	_, err = ParseAlgorithm("mt19937")
	assert.Error(t, err)
}
