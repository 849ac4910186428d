// Package discovery finds peers on the local network. Every node
// announces itself with a small UDP multicast beacon on an interval;
// a peer that stops beaconing past the TTL is reported expired. This
// mirrors what mDNS gives a LAN overlay: appearance and expiry events
// plus a live set, with no manual configuration.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"peerscope/internal/telemetry"
)

type EventKind int

const (
	PeerAppeared EventKind = iota
	PeerExpired
)

// Event reports a change in the discovered-peer set.
type Event struct {
	Kind   EventKind
	PeerID string
	Addr   string
}

// beacon is the announcement wire format.
type beacon struct {
	PeerID string `json:"peer_id"`
	Addr   string `json:"addr"`
}

const maxBeaconSize = 1 << 10

// Options configures a discovery Service.
type Options struct {
	SelfID   string
	SelfAddr string // gossip listen address to advertise
	Group    string // multicast group, host:port
	Interval time.Duration
	TTL      time.Duration
}

type entry struct {
	addr string
	last time.Time
}

// Service announces the local node and tracks beacons from others.
type Service struct {
	opts  Options
	group *net.UDPAddr
	recv  *net.UDPConn
	send  *net.UDPConn
	log   *zap.Logger

	mu   sync.Mutex
	seen map[string]entry

	events chan Event
}

func New(opts Options, log *zap.Logger) (*Service, error) {
	if opts.SelfID == "" {
		return nil, fmt.Errorf("discovery: missing self id")
	}
	group, err := net.ResolveUDPAddr("udp4", opts.Group)
	if err != nil {
		return nil, fmt.Errorf("discovery: bad group %q: %w", opts.Group, err)
	}
	recv, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("discovery: join %s: %w", opts.Group, err)
	}
	if err := recv.SetReadBuffer(maxBeaconSize * 64); err != nil {
		log.Debug("set read buffer failed", zap.Error(err))
	}
	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("discovery: dial %s: %w", opts.Group, err)
	}
	return &Service{
		opts:   opts,
		group:  group,
		recv:   recv,
		send:   send,
		log:    log,
		seen:   make(map[string]entry),
		events: make(chan Event, 64),
	}, nil
}

// Events is the appearance/expiry stream. It is closed when Run returns,
// which consumers treat as the shutdown signal.
func (s *Service) Events() <-chan Event { return s.events }

// Peers returns the ids currently considered live.
func (s *Service) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	return out
}

// Addr returns the advertised gossip address of a live peer.
func (s *Service) Addr(peerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.seen[peerID]
	return e.addr, ok
}

// Run announces and listens until ctx is canceled. This loop is the
// only sender on the events channel: the read goroutine hands raw
// datagrams over and never touches events, so closing it on return
// cannot race a send.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.events)
	defer s.recv.Close()
	defer s.send.Close()

	datagrams := make(chan []byte, 16)
	go s.readLoop(ctx, datagrams)

	announce := time.NewTicker(s.opts.Interval)
	defer announce.Stop()
	sweep := time.NewTicker(s.opts.Interval)
	defer sweep.Stop()

	s.announce()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-datagrams:
			if ev, ok := s.observe(data, time.Now()); ok {
				s.emit(ctx, ev)
			}
		case <-announce.C:
			s.announce()
		case now := <-sweep.C:
			for _, ev := range s.sweep(now) {
				s.emit(ctx, ev)
			}
		}
	}
}

func (s *Service) announce() {
	data, err := json.Marshal(beacon{PeerID: s.opts.SelfID, Addr: s.opts.SelfAddr})
	if err != nil {
		return
	}
	if _, err := s.send.Write(data); err != nil {
		s.log.Debug("beacon send failed", zap.Error(err))
	}
}

func (s *Service) readLoop(ctx context.Context, datagrams chan<- []byte) {
	buf := make([]byte, maxBeaconSize)
	for ctx.Err() == nil {
		if err := s.recv.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return
		}
		n, _, err := s.recv.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case datagrams <- data:
		case <-ctx.Done():
			return
		}
	}
}

// observe folds one received beacon into the table. A beacon from an
// unknown peer yields an appearance event; a known peer just refreshes
// its deadline.
func (s *Service) observe(data []byte, now time.Time) (Event, bool) {
	var b beacon
	if err := json.Unmarshal(data, &b); err != nil || b.PeerID == "" {
		return Event{}, false
	}
	if b.PeerID == s.opts.SelfID {
		return Event{}, false
	}
	telemetry.BeaconsSeen.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, known := s.seen[b.PeerID]
	s.seen[b.PeerID] = entry{addr: b.Addr, last: now}
	if known {
		return Event{}, false
	}
	telemetry.DiscoveredPeers.Set(float64(len(s.seen)))
	return Event{Kind: PeerAppeared, PeerID: b.PeerID, Addr: b.Addr}, true
}

// sweep expires peers whose last beacon is older than the TTL.
func (s *Service) sweep(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for id, e := range s.seen {
		if now.Sub(e.last) > s.opts.TTL {
			delete(s.seen, id)
			out = append(out, Event{Kind: PeerExpired, PeerID: id, Addr: e.addr})
		}
	}
	if len(out) > 0 {
		telemetry.DiscoveredPeers.Set(float64(len(s.seen)))
	}
	return out
}

func (s *Service) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
