// Package natsclient manages the NATS connection used to publish classified
// values and connection-status events to downstream consumers.
package natsclient

import (
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Publish when no connection is available.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client manages a NATS connection with automatic reconnection and exposes
// the small publishing surface the sinks need.
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger *slog.Logger

	name          string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	username      string
	password      string

	onDisconnect func(error)
	onReconnect  func()

	mu     sync.RWMutex
	conn   *nats.Conn
	closed atomic.Bool

	reconnects atomic.Int32
}

// NewClient creates a NATS client for the given server URL. The connection
// is not opened until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default().With("component", "natsclient"),
		name:          "datalogger",
		maxReconnects: -1, // reconnect forever by default
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "NewClient", "apply option")
		}
	}
	c.status.Store(StatusDisconnected)
	return c, nil
}

// Connect establishes the connection. Idempotent while connected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}
	c.status.Store(StatusConnecting)

	natsOpts := []nats.Option{
		nats.Name(c.name),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "error", err)
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(StatusConnected)
			c.reconnects.Add(1)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			if c.onReconnect != nil {
				c.onReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(StatusClosed)
		}),
	}
	if c.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.username, c.password))
	}

	conn, err := nats.Connect(c.url, natsOpts...)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "natsclient", "Connect", "dial")
	}

	c.conn = conn
	c.status.Store(StatusConnected)
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl())
	return nil
}

// Publish sends data on a subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "natsclient", "Publish", subject)
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", subject)
	}
	return nil
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	s, _ := c.status.Load().(ConnectionStatus)
	return s
}

// IsConnected reports whether the underlying connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Reconnects returns the number of automatic reconnections so far.
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// Drain flushes pending publishes before closing; fall back to a
		// hard close if draining fails.
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	c.status.Store(StatusClosed)
}
