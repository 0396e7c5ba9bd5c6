package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToFloat(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want float64
		ok   bool
	}{
		{"float64", 3.14, 3.14, true},
		{"uint16 register", uint16(1234), 1234, true},
		{"int", -7, -7, true},
		{"bool true", true, 1, true},
		{"bool false", false, 0, true},
		{"numeric string", "42.5", 42.5, true},
		{"non-numeric string", "open", 0, false},
		{"nil", nil, 0, false},
		{"struct", struct{}{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestPickTimestamp(t *testing.T) {
	source := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	server := source.Add(time.Second)

	assert.Equal(t, source, PickTimestamp(source, server))
	assert.Equal(t, server, PickTimestamp(time.Time{}, server))
	assert.WithinDuration(t, time.Now(), PickTimestamp(time.Time{}, time.Time{}), time.Second)
}

func TestErrorValue(t *testing.T) {
	v := ErrorValue("pump", assert.AnError)
	assert.Equal(t, "pump", v.Tag)
	assert.Equal(t, QualityBad, v.Quality)
	assert.Equal(t, AlarmError, v.State)
	assert.Equal(t, assert.AnError.Error(), v.Error)
}
