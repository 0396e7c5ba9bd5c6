package opcuabackend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

const (
	// currentTimeNode is Server_ServerStatus_CurrentTime, readable on every
	// compliant server, used as the liveness probe target.
	currentTimeNode = "i=2258"

	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 4 * time.Second

	// heartbeatFailLimit is the number of consecutive probe failures before
	// the session is reported dead. A single miss is usually a slow server.
	heartbeatFailLimit = 3
)

// session wraps one connected gopcua client.
type session struct {
	client *opcua.Client
	name   string
	logger *slog.Logger

	liveness chan error
	stop     chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSession(client *opcua.Client, name string, logger *slog.Logger) *session {
	s := &session{
		client:   client,
		name:     name,
		logger:   logger,
		liveness: make(chan error, 1),
		stop:     make(chan struct{}),
	}
	go s.heartbeat()
	return s
}

// Read implements transport.Session with a single batched ReadRequest. A bad
// status on one node yields a bad-quality value for that tag only; a failed
// service call means the session is unusable.
func (s *session) Read(ctx context.Context, tags []*types.TagConfig) ([]types.AcquiredValue, error) {
	nodes := make([]*ua.ReadValueID, 0, len(tags))
	valid := make([]*types.TagConfig, 0, len(tags))
	out := make([]types.AcquiredValue, 0, len(tags))

	for _, t := range tags {
		id, err := ua.ParseNodeID(t.NodeID)
		if err != nil {
			out = append(out, types.ErrorValue(t.Name, err))
			continue
		}
		nodes = append(nodes, &ua.ReadValueID{NodeID: id})
		valid = append(valid, t)
	}
	if len(nodes) == 0 {
		return out, nil
	}

	req := &ua.ReadRequest{
		NodesToRead:        nodes,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	}
	resp, err := s.client.Read(ctx, req)
	if err != nil {
		return nil, errors.WrapTransient(err, "opcua", "Read", "read service call")
	}

	for i, dv := range resp.Results {
		out = append(out, sampleFromDataValue(valid[i].Name, dv))
	}
	return out, nil
}

// sampleFromDataValue maps one OPC UA data value onto an acquired sample,
// collapsing the status code into the three quality levels.
func sampleFromDataValue(tag string, dv *ua.DataValue) types.AcquiredValue {
	if dv == nil {
		return types.ErrorValue(tag, errors.ErrUnsupportedValue)
	}

	v := types.AcquiredValue{
		Tag:       tag,
		Timestamp: types.PickTimestamp(dv.SourceTimestamp, dv.ServerTimestamp),
		Quality:   qualityFromStatus(dv.Status),
	}
	if dv.Value != nil {
		v.Raw = dv.Value.Value()
	}
	if v.Quality == types.QualityBad {
		v.Error = dv.Status.Error()
	}
	return v
}

func qualityFromStatus(code ua.StatusCode) types.Quality {
	switch {
	case code&ua.StatusBad == ua.StatusBad:
		return types.QualityBad
	case code&ua.StatusUncertain == ua.StatusUncertain:
		return types.QualityUncertain
	default:
		return types.QualityGood
	}
}

// Liveness implements transport.Session.
func (s *session) Liveness() <-chan error { return s.liveness }

// Close implements transport.Session.
func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	err := s.client.Close(ctx)
	close(s.liveness)
	if err != nil {
		return errors.WrapTransient(err, "opcua", "Close", "close session")
	}
	return nil
}

// heartbeat probes the server time node until the session closes. Probe
// reads run on their own context so a hung server cannot pin the goroutine.
func (s *session) heartbeat() {
	probeID, err := ua.ParseNodeID(currentTimeNode)
	if err != nil {
		return
	}
	req := &ua.ReadRequest{
		NodesToRead:        []*ua.ReadValueID{{NodeID: probeID}},
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
			_, err := s.client.Read(ctx, req)
			cancel()

			if err == nil {
				failures = 0
				continue
			}
			failures++
			s.logger.Debug("heartbeat probe failed", "failures", failures, "error", err)
			if failures >= heartbeatFailLimit {
				s.reportDead(errors.WrapTransient(err, "opcua", "heartbeat", "liveness probe"))
				return
			}
		}
	}
}

// reportDead delivers a liveness failure once; the manager owns recovery.
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
