// Package modbusbackend adapts the goburrow Modbus TCP client to the
// transport interfaces. Modbus has no server-side push, so sessions are
// poll-only; liveness is probed by periodically re-reading one register.
package modbusbackend

import (
	"context"
	"log/slog"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// requestTimeout bounds each Modbus transaction. The TCP client has no
// per-call context, so the deadline lives on the handler.
const requestTimeout = 3 * time.Second

// Backend dials Modbus TCP devices.
type Backend struct {
	logger *slog.Logger
}

// New creates the Modbus TCP backend.
func New(deps component.Dependencies) transport.Backend {
	return &Backend{logger: deps.GetLoggerWithComponent("modbus")}
}

// Protocol implements transport.Backend.
func (b *Backend) Protocol() types.Protocol { return types.ProtocolModbus }

// Connect implements transport.Backend. The TCP connection is established
// eagerly so a wrong endpoint fails here, not on the first sweep.
func (b *Backend) Connect(ctx context.Context, cfg *types.ConnectionConfig) (transport.Session, error) {
	handler := modbus.NewTCPClientHandler(cfg.Endpoint)
	handler.Timeout = requestTimeout
	handler.SlaveId = cfg.UnitID

	dialDone := make(chan error, 1)
	go func() { dialDone <- handler.Connect() }()

	select {
	case <-ctx.Done():
		go func() {
			<-dialDone
			handler.Close()
		}()
		return nil, errors.WrapTransient(ctx.Err(), "modbus", "Connect", "dial device")
	case err := <-dialDone:
		if err != nil {
			return nil, errors.WrapTransient(err, "modbus", "Connect", "dial device")
		}
	}

	log := b.logger.With("connection", cfg.Name, "endpoint", cfg.Endpoint, "unit", cfg.UnitID)
	log.Info("device connected")

	probe := probeTag(cfg)
	return newSession(handler, probe, log), nil
}

// probeTag picks the liveness probe target: the first active tag, falling
// back to any tag. A connection without tags gets no probing; sweep errors
// are the only failure signal then.
func probeTag(cfg *types.ConnectionConfig) *types.TagConfig {
	if active := cfg.ActiveTags(); len(active) > 0 {
		return active[0].Clone()
	}
	if len(cfg.Tags) > 0 {
		return cfg.Tags[0].Clone()
	}
	return nil
}
