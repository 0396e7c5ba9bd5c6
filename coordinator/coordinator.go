// Package coordinator applies a new connection/tag configuration to a
// running session manager and acquisition engine, deciding whether a full
// reconnect, a re-subscription, or no network action at all is required.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/session"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Action reports which route a reconfiguration took.
type Action int

// Reconfiguration outcomes.
const (
	// ActionStored means the manager was not connected; the configuration
	// was stored and applies lazily on the next Connect.
	ActionStored Action = iota
	// ActionApplied means settings were applied in place without any
	// network action.
	ActionApplied
	// ActionRestartedAcquisition means the acquisition set changed; the
	// session was reused but the subscription/poll loop was rebuilt.
	ActionRestartedAcquisition
	// ActionReconnected means the endpoint identity changed; the session
	// was torn down and re-established under the new configuration.
	ActionReconnected
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionStored:
		return "stored"
	case ActionApplied:
		return "applied"
	case ActionRestartedAcquisition:
		return "restarted_acquisition"
	case ActionReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Coordinator routes configuration changes for one connection.
type Coordinator struct {
	manager *session.Manager
	logger  *slog.Logger
}

// New creates a coordinator over a session manager.
func New(manager *session.Manager, deps component.Dependencies) (*Coordinator, error) {
	if manager == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil session manager"),
			"coordinator", "New", "dependency validation")
	}
	return &Coordinator{
		manager: manager,
		logger:  deps.GetLoggerWithComponent("coordinator"),
	}, nil
}

// Apply installs a new configuration. A nil or invalid configuration is a
// contract violation and rejected immediately; runtime connectivity
// failures during a required reconnect are absorbed by the session manager
// and surface as status events, not as errors here.
//
// The coordinator always works on an independent deep copy of next, so
// later mutation of the caller's instance cannot corrupt in-flight state.
func (c *Coordinator) Apply(ctx context.Context, next *types.ConnectionConfig) (Action, error) {
	if next == nil {
		return ActionStored, errors.WrapInvalid(errors.ErrNilConfig, "coordinator", "Apply", "config validation")
	}
	if err := next.Validate(); err != nil {
		return ActionStored, errors.WrapInvalid(err, "coordinator", "Apply", "config validation")
	}

	snapshot := next.Clone()
	current := c.manager.ConfigSnapshot()
	log := c.logger.With("connection", snapshot.Name)

	if !c.manager.IsConnected() {
		if err := c.manager.ReplaceConfig(snapshot); err != nil {
			return ActionStored, err
		}
		log.Info("configuration stored, applies on next connect")
		return ActionStored, nil
	}

	switch {
	case endpointChanged(current, snapshot):
		log.Info("endpoint identity changed, reconnecting")
		if err := c.manager.Disconnect(ctx); err != nil {
			return ActionReconnected, err
		}
		if err := c.manager.ReplaceConfig(snapshot); err != nil {
			return ActionReconnected, err
		}
		if err := c.manager.Connect(ctx); err != nil {
			// Connect failures are transient; the configuration is in
			// place and a later Connect picks it up.
			log.Warn("reconnect under new configuration failed", "error", err)
		}
		return ActionReconnected, nil

	case acquisitionChanged(current, snapshot):
		log.Info("acquisition set changed, restarting acquisition")
		if err := c.manager.ReplaceConfig(snapshot); err != nil {
			return ActionRestartedAcquisition, err
		}
		if err := c.manager.RestartAcquisition(ctx); err != nil {
			return ActionRestartedAcquisition, err
		}
		return ActionRestartedAcquisition, nil

	default:
		if err := c.manager.ApplyTagSettings(snapshot); err != nil {
			return ActionApplied, err
		}
		log.Debug("configuration applied in place")
		return ActionApplied, nil
	}
}

// endpointChanged reports whether any session identity field differs:
// protocol, endpoint address, security/auth settings, unit id.
func endpointChanged(current, next *types.ConnectionConfig) bool {
	return !current.EndpointIdentity(next)
}

// acquisitionChanged reports whether the set of {address, sampling interval}
// pairs among active tags differs, compared order-independently. A change of
// the connection-level scan interval counts too: it drives the poll loop.
func acquisitionChanged(current, next *types.ConnectionConfig) bool {
	if current.ScanInterval != next.ScanInterval {
		return true
	}
	return !equalAcquisitionSets(acquisitionSet(current), acquisitionSet(next))
}

func acquisitionSet(cfg *types.ConnectionConfig) map[string]int {
	set := make(map[string]int)
	for _, t := range cfg.ActiveTags() {
		key := fmt.Sprintf("%s@%s", t.Address(), t.SamplingInterval)
		set[key]++
	}
	return set
}

func equalAcquisitionSets(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, n := range a {
		if b[k] != n {
			return false
		}
	}
	return true
}
