package modbusbackend

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

const (
	heartbeatInterval = 5 * time.Second

	// heartbeatFailLimit is the number of consecutive probe failures before
	// the session is reported dead.
	heartbeatFailLimit = 3
)

// session wraps one connected Modbus TCP handler. The goburrow client is not
// safe for concurrent use, so every transaction runs under the session mutex;
// the heartbeat and the gated sweeps serialize here.
type session struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
	probe   *types.TagConfig
	logger  *slog.Logger

	liveness chan error
	stop     chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSession(handler *modbus.TCPClientHandler, probe *types.TagConfig, logger *slog.Logger) *session {
	s := &session{
		handler:  handler,
		client:   modbus.NewClient(handler),
		probe:    probe,
		logger:   logger,
		liveness: make(chan error, 1),
		stop:     make(chan struct{}),
	}
	if probe != nil {
		go s.heartbeat()
	}
	return s
}

// Read implements transport.Session. Each register is read in its own
// transaction; a device exception on one tag yields a bad-quality value for
// that tag while the rest of the sweep proceeds.
func (s *session) Read(ctx context.Context, tags []*types.TagConfig) ([]types.AcquiredValue, error) {
	out := make([]types.AcquiredValue, 0, len(tags))
	for _, t := range tags {
		if err := ctx.Err(); err != nil {
			return out, errors.WrapTransient(err, "modbus", "Read", "sweep cancelled")
		}
		raw, err := s.readRegister(t)
		if err != nil {
			out = append(out, types.ErrorValue(t.Name, err))
			continue
		}
		out = append(out, types.AcquiredValue{
			Tag:       t.Name,
			Raw:       raw,
			Timestamp: time.Now(),
			Quality:   types.QualityGood,
		})
	}
	return out, nil
}

// readRegister performs one transaction for one tag.
func (s *session) readRegister(t *types.TagConfig) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrSessionClosed
	}

	switch t.RegisterKind {
	case types.RegisterHolding:
		data, err := s.client.ReadHoldingRegisters(t.Register, 1)
		return decodeRegister(data, err)
	case types.RegisterInput:
		data, err := s.client.ReadInputRegisters(t.Register, 1)
		return decodeRegister(data, err)
	case types.RegisterCoil:
		data, err := s.client.ReadCoils(t.Register, 1)
		return decodeBit(data, err)
	case types.RegisterDiscrete:
		data, err := s.client.ReadDiscreteInputs(t.Register, 1)
		return decodeBit(data, err)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidAddress, "modbus", "readRegister",
			fmt.Sprintf("register kind %q", t.RegisterKind))
	}
}

func decodeRegister(data []byte, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("short register response (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

func decodeBit(data []byte, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("empty bit response")
	}
	return data[0]&0x01 == 0x01, nil
}

// Liveness implements transport.Session.
func (s *session) Liveness() <-chan error { return s.liveness }

// Close implements transport.Session.
func (s *session) Close(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	err := s.handler.Close()
	s.mu.Unlock()

	close(s.liveness)
	if err != nil {
		return errors.WrapTransient(err, "modbus", "Close", "close connection")
	}
	return nil
}

// heartbeat re-reads the probe tag until the session closes. A device
// exception still proves the transport is alive; only transport errors count
// as failures.
func (s *session) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_, err := s.readRegister(s.probe)
			if err == nil || isDeviceException(err) {
				failures = 0
				continue
			}
			failures++
			s.logger.Debug("heartbeat probe failed", "failures", failures, "error", err)
			if failures >= heartbeatFailLimit {
				s.reportDead(errors.WrapTransient(err, "modbus", "heartbeat", "liveness probe"))
				return
			}
		}
	}
}

// isDeviceException reports whether the error is a Modbus protocol exception
// (illegal address, device busy) rather than a dead TCP connection.
func isDeviceException(err error) bool {
	var mbErr *modbus.ModbusError
	return stderrors.As(err, &mbErr)
}

func (s *session) reportDead(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.liveness <- err:
	default:
	}
}
