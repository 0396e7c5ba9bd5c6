package types

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RegisterKind selects the Modbus register table a tag is read from.
type RegisterKind string

// Supported Modbus register kinds.
const (
	RegisterHolding  RegisterKind = "holding"
	RegisterInput    RegisterKind = "input"
	RegisterCoil     RegisterKind = "coil"
	RegisterDiscrete RegisterKind = "discrete"
)

// AlarmLimits holds the optional threshold limits for a tag. Each limit is
// independently settable; a nil pointer means the limit is not configured and
// is skipped during evaluation.
type AlarmLimits struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	HighHigh *float64 `yaml:"high_high,omitempty" json:"high_high,omitempty"`
	High     *float64 `yaml:"high,omitempty" json:"high,omitempty"`
	Low      *float64 `yaml:"low,omitempty" json:"low,omitempty"`
	LowLow   *float64 `yaml:"low_low,omitempty" json:"low_low,omitempty"`
}

// OutlierConfig holds the outlier-detection settings for a tag.
type OutlierConfig struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	BaselineSamples int     `yaml:"baseline_samples" json:"baseline_samples"`
	Factor          float64 `yaml:"factor" json:"factor"`
}

// LiveStatus is a snapshot of the most recent classified sample for a tag,
// kept for observation (UI binding, health reporting). It is written only by
// the analytics path, never by configuration edits.
type LiveStatus struct {
	Raw        any        `json:"raw"`
	Quality    Quality    `json:"quality"`
	Timestamp  time.Time  `json:"timestamp"`
	State      AlarmState `json:"state"`
	StateSince time.Time  `json:"state_since,omitempty"`
}

// TagConfig describes one named data point on a device or server, together
// with its alarm and outlier settings and its live observation state.
//
// Name must be unique within a connection; alarm and baseline lookups key on
// it. The live fields and the baseline accumulator have a single writer (the
// acquisition path that currently owns the tag) and may be read concurrently
// through Live().
type TagConfig struct {
	Name             string        `yaml:"name" json:"name"`
	NodeID           string        `yaml:"node_id,omitempty" json:"node_id,omitempty"`
	Register         uint16        `yaml:"register,omitempty" json:"register,omitempty"`
	RegisterKind     RegisterKind  `yaml:"register_kind,omitempty" json:"register_kind,omitempty"`
	SamplingInterval time.Duration `yaml:"sampling_interval" json:"sampling_interval"`
	Active           bool          `yaml:"active" json:"active"`
	Limits           AlarmLimits   `yaml:"limits" json:"limits"`
	AlarmMessage     string        `yaml:"alarm_message,omitempty" json:"alarm_message,omitempty"`
	Outlier          OutlierConfig `yaml:"outlier" json:"outlier"`

	mu       sync.Mutex
	live     LiveStatus
	baseline BaselineState
}

// Address returns the protocol address of the tag as a comparable string.
// Used for acquisition-set diffing and logging, not for wire encoding.
func (t *TagConfig) Address() string {
	if t.NodeID != "" {
		return t.NodeID
	}
	return fmt.Sprintf("%s:%d", t.RegisterKind, t.Register)
}

// Live returns a copy of the current live status.
func (t *TagConfig) Live() LiveStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// SetLive replaces the live observation fields. Called only from the
// analytics path.
func (t *TagConfig) SetLive(live LiveStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = live
}

// UpdateBaseline runs fn against the tag's baseline accumulator under the
// tag lock. The analytics engine uses this to keep read-modify-write of the
// Welford state atomic with respect to concurrent Live() readers.
func (t *TagConfig) UpdateBaseline(fn func(*BaselineState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.baseline)
}

// BaselineSnapshot returns a copy of the current baseline accumulator.
func (t *TagConfig) BaselineSnapshot() BaselineState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline
}

// Clone returns a deep structural copy of the tag configuration. The live
// status and baseline are not carried over: a clone is a fresh configuration
// value, not a running tag.
func (t *TagConfig) Clone() *TagConfig {
	c := &TagConfig{
		Name:             t.Name,
		NodeID:           t.NodeID,
		Register:         t.Register,
		RegisterKind:     t.RegisterKind,
		SamplingInterval: t.SamplingInterval,
		Active:           t.Active,
		AlarmMessage:     t.AlarmMessage,
		Outlier:          t.Outlier,
	}
	c.Limits.Enabled = t.Limits.Enabled
	c.Limits.HighHigh = cloneFloat(t.Limits.HighHigh)
	c.Limits.High = cloneFloat(t.Limits.High)
	c.Limits.Low = cloneFloat(t.Limits.Low)
	c.Limits.LowLow = cloneFloat(t.Limits.LowLow)
	return c
}

// RenderAlarmMessage fills the tag's alarm message template. The template
// supports {tag}, {value} and {state} placeholders; an empty template yields
// a generic message.
func (t *TagConfig) RenderAlarmMessage(state AlarmState, raw any) string {
	tmpl := t.AlarmMessage
	if tmpl == "" {
		return fmt.Sprintf("%s is %s (value %v)", t.Name, state, raw)
	}
	r := strings.NewReplacer(
		"{tag}", t.Name,
		"{value}", fmt.Sprintf("%v", raw),
		"{state}", state.String(),
	)
	return r.Replace(tmpl)
}

// Validate checks the tag configuration for contract violations.
func (t *TagConfig) Validate(protocol Protocol) error {
	if t.Name == "" {
		return fmt.Errorf("tag name must not be empty")
	}
	switch protocol {
	case ProtocolOPCUA:
		if t.NodeID == "" {
			return fmt.Errorf("tag %s: node_id is required for opcua", t.Name)
		}
	case ProtocolModbus:
		switch t.RegisterKind {
		case RegisterHolding, RegisterInput, RegisterCoil, RegisterDiscrete:
		default:
			return fmt.Errorf("tag %s: unknown register kind %q", t.Name, t.RegisterKind)
		}
	}
	if t.Outlier.Enabled && t.Outlier.BaselineSamples < 2 {
		return fmt.Errorf("tag %s: baseline_samples must be at least 2", t.Name)
	}
	if t.Outlier.Enabled && t.Outlier.Factor <= 0 {
		return fmt.Errorf("tag %s: outlier factor must be positive", t.Name)
	}
	return nil
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
