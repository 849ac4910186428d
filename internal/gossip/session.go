// Package gossip implements the shared publish/subscribe channel the
// peer-status protocol runs on. A Session fans each published payload
// out to its partial view (the peers this node currently forwards to)
// and delivers inbound payloads for subscribed topics on a per-topic
// channel. Delivery is best effort: no acknowledgment, no retry.
package gossip

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peerscope/internal/proto"
	"peerscope/internal/telemetry"
	"peerscope/internal/transport"
)

// ErrClosed reports a publish against a closed session.
var ErrClosed = errors.New("gossip: session closed")

const (
	subBuffer    = 256
	recentFrames = 1024
)

// Message is one payload received on a subscribed topic.
type Message struct {
	Topic  string
	Sender string
	Data   []byte
}

// Session is the gossip endpoint. The node actor is its only writer:
// partial-view membership and publishing are serialized there.
type Session struct {
	selfID   string
	listener *transport.Listener
	log      *zap.Logger

	mu     sync.Mutex
	view   map[string]string // peer id -> gossip addr
	subs   map[string]chan Message
	recent *recentSet
	closed bool
}

func NewSession(selfID string, listener *transport.Listener, log *zap.Logger) *Session {
	return &Session{
		selfID:   selfID,
		listener: listener,
		log:      log,
		view:     make(map[string]string),
		subs:     make(map[string]chan Message),
		recent:   newRecentSet(recentFrames),
	}
}

// Run serves the listener until ctx is canceled, then closes every
// subscription channel so consumers observe shutdown.
func (s *Session) Run(ctx context.Context) error {
	err := s.listener.Serve(ctx, s.handle)
	s.shutdown()
	return err
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[string]chan Message)
}

// Subscribe returns the delivery channel for a topic. The channel is
// closed when the session shuts down.
func (s *Session) Subscribe(topic string) <-chan Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[topic]; ok {
		return ch
	}
	ch := make(chan Message, subBuffer)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs[topic] = ch
	return ch
}

// Publish wraps data in an envelope and sends it to every peer in the
// partial view. A publish with an empty view succeeds and reaches no one.
func (s *Session) Publish(ctx context.Context, topic string, data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	targets := make(map[string]string, len(s.view))
	for id, addr := range s.view {
		targets[id] = addr
	}
	s.mu.Unlock()

	payload, err := proto.EncodeEnvelope(proto.Envelope{
		FrameID: uuid.NewString(),
		Topic:   topic,
		Sender:  s.selfID,
		Data:    data,
	})
	if err != nil {
		return err
	}

	telemetry.MessagesPublished.WithLabelValues(classifyLabel(data)).Inc()
	for id, addr := range targets {
		go func(id, addr string) {
			if err := transport.Send(ctx, addr, payload); err != nil {
				s.log.Debug("publish to peer failed",
					zap.String("peer", id), zap.String("addr", addr), zap.Error(err))
			}
		}(id, addr)
	}
	return nil
}

// AddPeer adds a peer to the partial view. Re-adding updates the address.
func (s *Session) AddPeer(peerID, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view[peerID] = addr
}

// RemovePeer drops a peer from the partial view.
func (s *Session) RemovePeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.view, peerID)
}

// ViewPeers returns the partial-view membership.
func (s *Session) ViewPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.view))
	for id := range s.view {
		out = append(out, id)
	}
	return out
}

func (s *Session) handle(payload []byte) {
	env, err := proto.DecodeEnvelope(payload)
	if err != nil {
		telemetry.MessagesDropped.WithLabelValues("bad_envelope").Inc()
		return
	}
	if env.Sender == s.selfID {
		return
	}

	// The send happens under the mutex: shutdown closes subscription
	// channels under the same mutex with closed set first, so a stream
	// goroutine still inside handle can never send on a closed channel.
	// The send is non-blocking, so the lock is never held across a wait.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.recent.seen(env.FrameID) {
		s.mu.Unlock()
		telemetry.MessagesDropped.WithLabelValues("duplicate").Inc()
		return
	}
	ch, subscribed := s.subs[env.Topic]
	if !subscribed {
		s.mu.Unlock()
		telemetry.MessagesDropped.WithLabelValues("unsubscribed").Inc()
		return
	}
	delivered := true
	select {
	case ch <- Message{Topic: env.Topic, Sender: env.Sender, Data: env.Data}:
	default:
		// Consumer is saturated; broadcast delivery is best effort.
		delivered = false
	}
	s.mu.Unlock()

	if delivered {
		telemetry.MessagesReceived.WithLabelValues(classifyLabel(env.Data)).Inc()
	} else {
		telemetry.MessagesDropped.WithLabelValues("backpressure").Inc()
	}
}

func classifyLabel(data []byte) string {
	t, err := proto.Classify(data)
	if err != nil {
		return "unknown"
	}
	return t
}

// recentSet remembers the last n frame ids for duplicate suppression.
type recentSet struct {
	cap   int
	order []string
	ids   map[string]struct{}
}

func newRecentSet(cap int) *recentSet {
	return &recentSet{cap: cap, ids: make(map[string]struct{}, cap)}
}

// seen records id and reports whether it was already present.
func (r *recentSet) seen(id string) bool {
	if _, ok := r.ids[id]; ok {
		return true
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.cap {
		delete(r.ids, r.order[0])
		r.order = r.order[1:]
	}
	return false
}
