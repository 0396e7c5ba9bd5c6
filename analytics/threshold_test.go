package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

func limitsFull(hh, h, l, ll float64) types.AlarmLimits {
	return types.AlarmLimits{
		Enabled:  true,
		HighHigh: &hh,
		High:     &h,
		Low:      &l,
		LowLow:   &ll,
	}
}

func TestEvaluateThresholdPrecedence(t *testing.T) {
	limits := limitsFull(90, 80, 20, 10)

	tests := []struct {
		name  string
		value float64
		want  types.AlarmState
	}{
		{"above high high", 95, types.AlarmHighHigh},
		{"exactly high high", 90, types.AlarmHighHigh},
		{"between high and high high", 85, types.AlarmHigh},
		{"exactly high", 80, types.AlarmHigh},
		{"normal band", 50, types.AlarmNormal},
		{"between low and low low", 15, types.AlarmLow},
		{"exactly low", 20, types.AlarmLow},
		{"exactly low low", 10, types.AlarmLowLow},
		{"below low low", 5, types.AlarmLowLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, matched := EvaluateThreshold(tt.value, limits)
			assert.Equal(t, tt.want, state)
			if tt.want == types.AlarmNormal {
				assert.Nil(t, matched)
			} else {
				assert.NotNil(t, matched)
			}
		})
	}
}

func TestEvaluateThresholdDisabled(t *testing.T) {
	limits := limitsFull(90, 80, 20, 10)
	limits.Enabled = false

	state, matched := EvaluateThreshold(200, limits)
	assert.Equal(t, types.AlarmNormal, state)
	assert.Nil(t, matched)
}

func TestEvaluateThresholdPartialLimits(t *testing.T) {
	high := 80.0
	limits := types.AlarmLimits{Enabled: true, High: &high}

	state, _ := EvaluateThreshold(95, limits)
	assert.Equal(t, types.AlarmHigh, state, "unset high-high must be skipped")

	state, _ = EvaluateThreshold(-1000, limits)
	assert.Equal(t, types.AlarmNormal, state, "unset low limits must be skipped")
}

func TestEvaluateThresholdMostCriticalWins(t *testing.T) {
	// A pathological configuration where one value matches every limit.
	limits := limitsFull(10, 10, 100, 100)

	state, _ := EvaluateThreshold(50, limits)
	assert.Equal(t, types.AlarmHighHigh, state)
}
