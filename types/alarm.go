package types

// AlarmState classifies the most recent value of a tag. A tag is in exactly
// one state at a time; transitions are detected and published by the
// analytics engine.
type AlarmState int

const (
	// AlarmNormal indicates the value is inside all configured limits.
	AlarmNormal AlarmState = iota
	// AlarmLow indicates the value breached the Low limit.
	AlarmLow
	// AlarmHigh indicates the value breached the High limit.
	AlarmHigh
	// AlarmLowLow indicates the value breached the LowLow limit.
	AlarmLowLow
	// AlarmHighHigh indicates the value breached the HighHigh limit.
	AlarmHighHigh
	// AlarmOutlier indicates the value deviates from the established baseline.
	AlarmOutlier
	// AlarmError indicates bad quality or a value that could not be evaluated.
	AlarmError
)

// String returns the string representation of the alarm state
func (s AlarmState) String() string {
	switch s {
	case AlarmNormal:
		return "normal"
	case AlarmLow:
		return "low"
	case AlarmHigh:
		return "high"
	case AlarmLowLow:
		return "lowlow"
	case AlarmHighHigh:
		return "highhigh"
	case AlarmOutlier:
		return "outlier"
	case AlarmError:
		return "error"
	default:
		return "unknown"
	}
}

// IsActive reports whether the state represents an active alarm condition,
// i.e. anything other than Normal. Error counts as active because the tag
// needs operator attention.
func (s AlarmState) IsActive() bool {
	return s != AlarmNormal
}
