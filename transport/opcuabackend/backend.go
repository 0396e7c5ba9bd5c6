// Package opcuabackend adapts the gopcua client to the transport interfaces.
// Sessions support both sweep reads and server-side subscriptions; liveness
// is probed by periodically reading the server's current-time node.
package opcuabackend

import (
	"context"
	"log/slog"

	"github.com/gopcua/opcua"

	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Backend dials OPC UA endpoints.
type Backend struct {
	logger *slog.Logger
}

// New creates the OPC UA backend.
func New(deps component.Dependencies) transport.Backend {
	return &Backend{logger: deps.GetLoggerWithComponent("opcua")}
}

// Protocol implements transport.Backend.
func (b *Backend) Protocol() types.Protocol { return types.ProtocolOPCUA }

// Connect implements transport.Backend. The secure channel and session are
// fully established before Connect returns; on failure nothing stays open.
func (b *Backend) Connect(ctx context.Context, cfg *types.ConnectionConfig) (transport.Session, error) {
	opts := clientOptions(cfg.Security)

	client, err := opcua.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "opcua", "Connect", "client setup")
	}
	if err := client.Connect(ctx); err != nil {
		return nil, errors.WrapTransient(err, "opcua", "Connect", "dial endpoint")
	}

	log := b.logger.With("connection", cfg.Name, "endpoint", cfg.Endpoint)
	log.Info("session established",
		"policy", orNone(cfg.Security.Policy),
		"mode", orNone(cfg.Security.Mode))

	return newSession(client, cfg.Name, log), nil
}

// clientOptions maps the configured security settings onto gopcua options.
// Empty policy and mode mean an unsecured channel; an empty username means
// anonymous authentication.
func clientOptions(sec types.Security) []opcua.Option {
	var opts []opcua.Option
	if sec.Policy != "" {
		opts = append(opts, opcua.SecurityPolicy(sec.Policy))
	}
	if sec.Mode != "" {
		opts = append(opts, opcua.SecurityModeString(sec.Mode))
	}
	if sec.Username != "" {
		opts = append(opts, opcua.AuthUsername(sec.Username, sec.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
