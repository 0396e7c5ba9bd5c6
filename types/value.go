package types

import (
	"fmt"
	"strconv"
	"time"
)

// Quality describes the trustworthiness of an acquired value, collapsing the
// protocol-specific status codes (OPC UA status, Modbus exception) into the
// three levels the analytics engine cares about.
type Quality int

const (
	// QualityGood indicates a trustworthy value.
	QualityGood Quality = iota
	// QualityUncertain indicates the server flagged the value as questionable.
	QualityUncertain
	// QualityBad indicates the value must not be used for classification.
	QualityBad
)

// String returns the string representation of the quality level
func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityUncertain:
		return "uncertain"
	case QualityBad:
		return "bad"
	default:
		return "unknown"
	}
}

// AcquiredValue is one sample for one tag. It is produced per read or change
// notification, classified by the analytics engine, and then handed to the
// event sinks. The struct is transient; only the owning TagConfig keeps the
// latest copy.
type AcquiredValue struct {
	Tag       string    `json:"tag"`
	Raw       any       `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
	Quality   Quality   `json:"quality"`
	Error     string    `json:"error,omitempty"`

	// Set by the analytics engine after classification.
	State   AlarmState `json:"state"`
	Message string     `json:"message,omitempty"`
}

// ErrorValue builds a bad-quality sample for a tag whose read failed. The
// timestamp is local time since no server time is available for a failed read.
func ErrorValue(tag string, err error) AcquiredValue {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return AcquiredValue{
		Tag:       tag,
		Timestamp: time.Now(),
		Quality:   QualityBad,
		Error:     msg,
		State:     AlarmError,
	}
}

// Float converts the raw value to a float64 for threshold and outlier
// evaluation. Supports the numeric types the transports actually deliver plus
// bool and numeric strings.
func (v AcquiredValue) Float() (float64, bool) {
	return ToFloat(v.Raw)
}

// ToFloat converts an arbitrary raw sample to float64
func ToFloat(raw any) (float64, bool) {
	switch t := raw.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(t.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// PickTimestamp selects the best available timestamp for a sample: source
// time if the server supplied one, then server time, then local time.
func PickTimestamp(source, server time.Time) time.Time {
	if !source.IsZero() {
		return source
	}
	if !server.IsZero() {
		return server
	}
	return time.Now()
}
