package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

func goodSample(tag string, raw any) types.AcquiredValue {
	return types.AcquiredValue{
		Tag:       tag,
		Raw:       raw,
		Timestamp: time.Now(),
		Quality:   types.QualityGood,
	}
}

func TestEvaluateThresholdTransitions(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	high := 80.0
	tag := &types.TagConfig{
		Name:   "pressure",
		Active: true,
		Limits: types.AlarmLimits{Enabled: true, High: &high},
	}

	v, tr := e.Evaluate(tag, goodSample("pressure", 50.0))
	assert.Equal(t, types.AlarmNormal, v.State)
	assert.Nil(t, tr, "starting in Normal is not a transition")

	v, tr = e.Evaluate(tag, goodSample("pressure", 85.0))
	assert.Equal(t, types.AlarmHigh, v.State)
	require.NotNil(t, tr)
	assert.Equal(t, types.AlarmNormal, tr.From)
	assert.Equal(t, types.AlarmHigh, tr.To)
	assert.Equal(t, "plc1", tr.Connection)
	assert.NotEmpty(t, v.Message)

	_, tr = e.Evaluate(tag, goodSample("pressure", 86.0))
	assert.Nil(t, tr, "staying in High must not repeat the transition")

	_, tr = e.Evaluate(tag, goodSample("pressure", 50.0))
	require.NotNil(t, tr)
	assert.Equal(t, types.AlarmHigh, tr.From)
	assert.Equal(t, types.AlarmNormal, tr.To)
}

func TestEvaluateStateSinceLifecycle(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	high := 80.0
	tag := &types.TagConfig{
		Name:   "pressure",
		Active: true,
		Limits: types.AlarmLimits{Enabled: true, High: &high},
	}

	e.Evaluate(tag, goodSample("pressure", 50.0))
	assert.True(t, tag.Live().StateSince.IsZero())

	e.Evaluate(tag, goodSample("pressure", 90.0))
	entered := tag.Live().StateSince
	assert.False(t, entered.IsZero())

	e.Evaluate(tag, goodSample("pressure", 91.0))
	assert.Equal(t, entered, tag.Live().StateSince, "staying in state keeps the activation time")

	e.Evaluate(tag, goodSample("pressure", 10.0))
	assert.True(t, tag.Live().StateSince.IsZero(), "returning to Normal clears it")
}

func TestEvaluateBadQualityResetsBaseline(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	tag := outlierTag(3, 3)

	for _, v := range []float64{10, 10, 10} {
		e.Evaluate(tag, goodSample("temp", v))
	}
	require.True(t, tag.BaselineSnapshot().Established)

	bad := goodSample("temp", 10.0)
	bad.Quality = types.QualityBad
	v, tr := e.Evaluate(tag, bad)

	assert.Equal(t, types.AlarmError, v.State)
	require.NotNil(t, tr)
	assert.Equal(t, types.AlarmError, tr.To)
	assert.Equal(t, 0, tag.BaselineSnapshot().Count, "bad quality must reset the baseline")
	assert.False(t, tag.BaselineSnapshot().Established)
}

func TestEvaluateNonNumericIsError(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	tag := &types.TagConfig{Name: "label", Active: true}

	v, _ := e.Evaluate(tag, goodSample("label", struct{}{}))
	assert.Equal(t, types.AlarmError, v.State)
	assert.NotEmpty(t, v.Error)
}

func TestEvaluateErrorTakesPrecedenceOverThresholds(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	high := 80.0
	tag := &types.TagConfig{
		Name:   "pressure",
		Active: true,
		Limits: types.AlarmLimits{Enabled: true, High: &high},
	}

	bad := goodSample("pressure", 95.0)
	bad.Quality = types.QualityBad
	v, _ := e.Evaluate(tag, bad)
	assert.Equal(t, types.AlarmError, v.State, "a bad-quality 95 is Error, not High")
}

func TestEvaluateOutlierOverridesThreshold(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	high := 80.0
	tag := outlierTag(5, 3)
	tag.Limits = types.AlarmLimits{Enabled: true, High: &high}

	for i := 0; i < 5; i++ {
		e.Evaluate(tag, goodSample("temp", 10.0))
	}
	v, _ := e.Evaluate(tag, goodSample("temp", 95.0))
	assert.Equal(t, types.AlarmOutlier, v.State, "outlier wins over the threshold result")
}

func TestEvaluateDisablingOutlierDropsStaleBaseline(t *testing.T) {
	e := NewEngine("plc1", nil, nil)
	tag := outlierTag(3, 3)

	for _, v := range []float64{10, 10, 10} {
		e.Evaluate(tag, goodSample("temp", v))
	}
	require.Positive(t, tag.BaselineSnapshot().Count)

	tag.Outlier.Enabled = false
	e.Evaluate(tag, goodSample("temp", 10.0))
	assert.Equal(t, 0, tag.BaselineSnapshot().Count)
}
