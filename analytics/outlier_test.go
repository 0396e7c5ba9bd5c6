package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

func outlierTag(samples int, factor float64) *types.TagConfig {
	return &types.TagConfig{
		Name:   "temp",
		Active: true,
		Outlier: types.OutlierConfig{
			Enabled:         true,
			BaselineSamples: samples,
			Factor:          factor,
		},
	}
}

func TestOutlierEstablishmentAndDetection(t *testing.T) {
	tag := outlierTag(5, 3)

	// Five identical samples establish the baseline; none of them, including
	// the establishing fifth one, may be flagged.
	for i := 0; i < 5; i++ {
		assert.False(t, observeBaseline(tag, 10), "sample %d during establishment", i+1)
	}
	require.True(t, tag.BaselineSnapshot().Established)

	// A constant baseline has a degenerate standard deviation, so any real
	// deviation fires.
	assert.True(t, observeBaseline(tag, 50))
}

func TestOutlierJudgedAgainstPriorHistory(t *testing.T) {
	tag := outlierTag(4, 2)

	for _, v := range []float64{10, 12, 11, 13} {
		observeBaseline(tag, v)
	}
	require.True(t, tag.BaselineSnapshot().Established)

	before := tag.BaselineSnapshot()
	assert.True(t, observeBaseline(tag, 40))

	// The outlier still entered the expanding window.
	after := tag.BaselineSnapshot()
	assert.Equal(t, before.Count+1, after.Count)
	assert.Greater(t, after.Mean, before.Mean)
}

func TestOutlierWithinFactorNotFlagged(t *testing.T) {
	tag := outlierTag(4, 3)

	for _, v := range []float64{10, 20, 10, 20} {
		observeBaseline(tag, v)
	}
	require.True(t, tag.BaselineSnapshot().Established)

	// Mean 15, sample stddev ~5.77; 25 deviates by 10 < 3*stddev.
	assert.False(t, observeBaseline(tag, 25))
}

func TestClassifyOutlierUnestablished(t *testing.T) {
	b := types.BaselineState{Count: 2, Mean: 10}
	assert.False(t, classifyOutlier(1000, b, 3))
}

func TestClassifyOutlierDegenerateStdDev(t *testing.T) {
	b := types.BaselineState{Count: 10, Mean: 10, Established: true}

	assert.False(t, classifyOutlier(10, b, 3))
	assert.True(t, classifyOutlier(10.001, b, 3))
}
