package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoPass computes the sample variance directly, as the reference for the
// online accumulator.
func twoPass(samples []float64) (mean, variance float64) {
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))
	for _, v := range samples {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(samples) - 1)
	return mean, variance
}

func TestBaselineMatchesTwoPass(t *testing.T) {
	samples := []float64{12.5, 80.1, -3.7, 45.0, 45.0, 0.002, 99.9, 23.4}

	var b BaselineState
	for _, v := range samples {
		b.Update(v)
	}

	wantMean, wantVar := twoPass(samples)
	assert.Equal(t, len(samples), b.Count)
	assert.InDelta(t, wantMean, b.Mean, 1e-9)
	assert.InDelta(t, wantVar, b.Variance(), 1e-9)
	assert.InDelta(t, math.Sqrt(wantVar), b.StdDev(), 1e-9)
}

func TestBaselineConstantSignal(t *testing.T) {
	var b BaselineState
	for i := 0; i < 100; i++ {
		b.Update(42)
	}
	assert.InDelta(t, 42, b.Mean, 1e-12)
	assert.InDelta(t, 0, b.Variance(), 1e-12)
}

func TestBaselineVarianceNeedsTwoSamples(t *testing.T) {
	var b BaselineState
	assert.Zero(t, b.Variance())

	b.Update(7)
	assert.Zero(t, b.Variance(), "a single sample has no spread")
}

func TestBaselineReset(t *testing.T) {
	var b BaselineState
	b.Update(1)
	b.Update(2)
	b.Established = true
	require.Equal(t, 2, b.Count)

	b.Reset()
	assert.Zero(t, b.Count)
	assert.Zero(t, b.Mean)
	assert.Zero(t, b.M2)
	assert.False(t, b.Established)
}
