// Package transporttest provides scriptable in-memory implementations of the
// transport interfaces for unit tests. Backends can be configured to fail
// dialing, sessions can serve canned values, fail individual tags, report
// liveness loss on demand, and push change notifications into a subscription
// handler.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Backend is a scriptable transport.Backend.
type Backend struct {
	protocol types.Protocol
	push     bool

	mu         sync.Mutex
	connectErr error
	connects   int
	sessions   []*Session
}

// NewBackend creates a poll-only fake backend for the given protocol.
func NewBackend(protocol types.Protocol) *Backend {
	return &Backend{protocol: protocol}
}

// NewPushBackend creates a fake backend whose sessions implement
// transport.Subscriber.
func NewPushBackend(protocol types.Protocol) *Backend {
	return &Backend{protocol: protocol, push: true}
}

// Protocol implements transport.Backend.
func (b *Backend) Protocol() types.Protocol { return b.protocol }

// FailConnect makes subsequent Connect calls return err. Pass nil to restore
// normal dialing.
func (b *Backend) FailConnect(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectErr = err
}

// Connects returns how many times Connect was called.
func (b *Backend) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Sessions returns every session handed out so far, oldest first.
func (b *Backend) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Session, len(b.sessions))
	copy(out, b.sessions)
	return out
}

// LastSession returns the most recently dialed session, or nil.
func (b *Backend) LastSession() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

// Connect implements transport.Backend.
func (b *Backend) Connect(_ context.Context, _ *types.ConnectionConfig) (transport.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if b.connectErr != nil {
		return nil, b.connectErr
	}
	sess := newSession()
	b.sessions = append(b.sessions, sess)
	if b.push {
		return &PushSession{Session: sess}, nil
	}
	return sess, nil
}

// Session is a scriptable transport.Session serving canned values.
type Session struct {
	mu       sync.Mutex
	values   map[string]any
	tagErrs  map[string]error
	readErr  error
	reads    int
	closed   bool
	liveness chan error
}

func newSession() *Session {
	return &Session{
		values:   make(map[string]any),
		tagErrs:  make(map[string]error),
		liveness: make(chan error, 1),
	}
}

// SetValue scripts the raw value served for a tag on subsequent reads.
func (s *Session) SetValue(tag string, raw any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[tag] = raw
	delete(s.tagErrs, tag)
}

// FailTag makes reads of one tag yield a bad-quality value while the rest of
// the sweep succeeds.
func (s *Session) FailTag(tag string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagErrs[tag] = err
}

// FailReads makes whole-sweep reads return err, simulating a dead session.
func (s *Session) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Reads returns how many times Read was called.
func (s *Session) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LoseLiveness delivers a liveness failure to the watching session manager.
func (s *Session) LoseLiveness(err error) {
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

// Read implements transport.Session.
func (s *Session) Read(_ context.Context, tags []*types.TagConfig) ([]types.AcquiredValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([]types.AcquiredValue, 0, len(tags))
	for _, t := range tags {
		if err := s.tagErrs[t.Name]; err != nil {
			out = append(out, types.ErrorValue(t.Name, err))
			continue
		}
		raw, ok := s.values[t.Name]
		if !ok {
			out = append(out, types.ErrorValue(t.Name, fmt.Errorf("no scripted value for %s", t.Name)))
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

// Liveness implements transport.Session.
func (s *Session) Liveness() <-chan error { return s.liveness }

// Close implements transport.Session.
func (s *Session) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.liveness)
	return nil
}

// PushSession is a Session that also implements transport.Subscriber.
type PushSession struct {
	*Session

	mu           sync.Mutex
	subscribeErr error
	rejectTags   map[string]error
	sub          *Subscription
}

// FailSubscribe makes Subscribe fail outright.
func (s *PushSession) FailSubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErr = err
}

// RejectTag makes item registration fail for one tag while the subscription
// itself succeeds.
func (s *PushSession) RejectTag(tag string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectTags == nil {
		s.rejectTags = make(map[string]error)
	}
	s.rejectTags[tag] = err
}

// CurrentSubscription returns the live subscription, or nil.
func (s *PushSession) CurrentSubscription() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// Subscribe implements transport.Subscriber.
func (s *PushSession) Subscribe(_ context.Context, params transport.SubscriptionParams) (transport.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	sub := &Subscription{
		interval: params.Interval,
		handler:  params.Handler,
		failed:   make(map[string]error),
	}
	for _, t := range params.Tags {
		if err := s.rejectTags[t.Name]; err != nil {
			sub.failed[t.Name] = err
			continue
		}
		sub.registered = append(sub.registered, t)
	}
	s.sub = sub
	return sub, nil
}

// Subscription is a scriptable transport.Subscription. Tests drive change
// notifications through Notify.
type Subscription struct {
	interval   time.Duration
	handler    func(types.AcquiredValue)
	registered []*types.TagConfig
	failed     map[string]error

	mu        sync.Mutex
	cancelled bool
}

// Interval returns the publishing interval the engine requested.
func (s *Subscription) Interval() time.Duration { return s.interval }

// Registered implements transport.Subscription.
func (s *Subscription) Registered() []*types.TagConfig { return s.registered }

// Failed implements transport.Subscription.
func (s *Subscription) Failed() map[string]error { return s.failed }

// Cancelled reports whether Cancel has been called.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Notify delivers one change notification, as the server would.
func (s *Subscription) Notify(v types.AcquiredValue) {
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled || s.handler == nil {
		return
	}
	s.handler(v)
}

// Cancel implements transport.Subscription.
func (s *Subscription) Cancel(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	return nil
}
