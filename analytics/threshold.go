package analytics

import (
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// EvaluateThreshold classifies a numeric value against a tag's alarm limits.
// It returns the resulting state and the limit that matched (nil for Normal).
//
// Limits are evaluated in strict precedence order: HighHigh, LowLow, High,
// Low. Only the first, most critical match is reported, so the most extreme
// condition wins even when several limits would match. Unset limits are
// skipped; disabled alarming always yields Normal.
func EvaluateThreshold(value float64, limits types.AlarmLimits) (types.AlarmState, *float64) {
	if !limits.Enabled {
		return types.AlarmNormal, nil
	}
	if limits.HighHigh != nil && value >= *limits.HighHigh {
		return types.AlarmHighHigh, limits.HighHigh
	}
	if limits.LowLow != nil && value <= *limits.LowLow {
		return types.AlarmLowLow, limits.LowLow
	}
	if limits.High != nil && value >= *limits.High {
		return types.AlarmHigh, limits.High
	}
	if limits.Low != nil && value <= *limits.Low {
		return types.AlarmLow, limits.Low
	}
	return types.AlarmNormal, nil
}
