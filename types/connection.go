package types

import (
	"fmt"
	"time"
)

// Protocol identifies the backend used for a connection.
type Protocol string

// Supported protocols.
const (
	ProtocolOPCUA  Protocol = "opcua"
	ProtocolModbus Protocol = "modbus"
)

// Security holds the transport security and authentication settings of an
// OPC UA connection. Modbus TCP carries no authentication; the fields stay
// empty there.
type Security struct {
	Policy   string `yaml:"policy,omitempty" json:"policy,omitempty"`
	Mode     string `yaml:"mode,omitempty" json:"mode,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
}

// ConnectionConfig describes one endpoint or device together with its tag
// set. The configuration store owns the canonical instance; the session
// manager always works on a deep copy captured at reconfiguration time so
// in-flight operations are not disturbed by concurrent edits.
type ConnectionConfig struct {
	Name         string        `yaml:"name" json:"name"`
	Protocol     Protocol      `yaml:"protocol" json:"protocol"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint"`
	Security     Security      `yaml:"security,omitempty" json:"security,omitempty"`
	UnitID       uint8         `yaml:"unit_id,omitempty" json:"unit_id,omitempty"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	ScanInterval time.Duration `yaml:"scan_interval" json:"scan_interval"`
	Tags         []*TagConfig  `yaml:"tags" json:"tags"`
}

// Clone returns a deep structural copy of the connection configuration,
// including all tags. Live tag state is not carried over.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	clone := *c
	clone.Tags = make([]*TagConfig, len(c.Tags))
	for i, t := range c.Tags {
		clone.Tags[i] = t.Clone()
	}
	return &clone
}

// ActiveTags returns the tags currently enabled for acquisition.
func (c *ConnectionConfig) ActiveTags() []*TagConfig {
	var active []*TagConfig
	for _, t := range c.Tags {
		if t.Active {
			active = append(active, t)
		}
	}
	return active
}

// TagByName looks up a tag by its display name.
func (c *ConnectionConfig) TagByName(name string) (*TagConfig, bool) {
	for _, t := range c.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// EndpointIdentity reports whether the session identity of two configurations
// matches: protocol, endpoint address, security/auth settings and unit id. A
// difference in any of these requires a full reconnect to apply.
func (c *ConnectionConfig) EndpointIdentity(other *ConnectionConfig) bool {
	return c.Protocol == other.Protocol &&
		c.Endpoint == other.Endpoint &&
		c.UnitID == other.UnitID &&
		c.Security == other.Security
}

// Validate checks the configuration for contract violations. Tag names must
// be unique within the connection because alarm and baseline state is keyed
// on them.
func (c *ConnectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connection name must not be empty")
	}
	switch c.Protocol {
	case ProtocolOPCUA, ProtocolModbus:
	default:
		return fmt.Errorf("connection %s: unknown protocol %q", c.Name, c.Protocol)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("connection %s: endpoint must not be empty", c.Name)
	}
	seen := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		if err := t.Validate(c.Protocol); err != nil {
			return fmt.Errorf("connection %s: %w", c.Name, err)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("connection %s: duplicate tag name %q", c.Name, t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}
