package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		opts: Options{
			SelfID:   "self",
			SelfAddr: "127.0.0.1:1000",
			Interval: 100 * time.Millisecond,
			TTL:      300 * time.Millisecond,
		},
		log:    zap.NewNop(),
		seen:   make(map[string]entry),
		events: make(chan Event, 64),
	}
}

func beaconBytes(t *testing.T, id, addr string) []byte {
	t.Helper()
	data, err := json.Marshal(beacon{PeerID: id, Addr: addr})
	if err != nil {
		t.Fatalf("marshal beacon failed: %v", err)
	}
	return data
}

func TestObserveNewPeerAppears(t *testing.T) {
	s := newTestService(t)
	now := time.Now()

	ev, ok := s.observe(beaconBytes(t, "p2", "127.0.0.1:2000"), now)
	if !ok {
		t.Fatal("expected appearance event")
	}
	if ev.Kind != PeerAppeared || ev.PeerID != "p2" || ev.Addr != "127.0.0.1:2000" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// Same peer again only refreshes.
	if _, ok := s.observe(beaconBytes(t, "p2", "127.0.0.1:2000"), now.Add(time.Millisecond)); ok {
		t.Fatal("known peer must not re-appear")
	}
	if got := s.Peers(); len(got) != 1 || got[0] != "p2" {
		t.Fatalf("Peers() = %v, want [p2]", got)
	}
}

func TestObserveIgnoresSelfAndGarbage(t *testing.T) {
	s := newTestService(t)
	if _, ok := s.observe(beaconBytes(t, "self", "x"), time.Now()); ok {
		t.Fatal("own beacon must be ignored")
	}
	if _, ok := s.observe([]byte("not json"), time.Now()); ok {
		t.Fatal("garbage must be ignored")
	}
	if _, ok := s.observe([]byte(`{"addr":"no id"}`), time.Now()); ok {
		t.Fatal("beacon without peer_id must be ignored")
	}
}

func TestSweepExpiresSilentPeer(t *testing.T) {
	s := newTestService(t)
	start := time.Now()
	s.observe(beaconBytes(t, "p2", "127.0.0.1:2000"), start)
	s.observe(beaconBytes(t, "p3", "127.0.0.1:3000"), start)

	// p3 keeps beaconing, p2 goes silent.
	s.observe(beaconBytes(t, "p3", "127.0.0.1:3000"), start.Add(250*time.Millisecond))

	evs := s.sweep(start.Add(400 * time.Millisecond))
	if len(evs) != 1 {
		t.Fatalf("expected 1 expiry, got %d", len(evs))
	}
	if evs[0].Kind != PeerExpired || evs[0].PeerID != "p2" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if _, ok := s.Addr("p2"); ok {
		t.Fatal("expired peer still in table")
	}
	if addr, ok := s.Addr("p3"); !ok || addr != "127.0.0.1:3000" {
		t.Fatal("live peer missing from table")
	}
}

func TestExpiredPeerReappearsOnNextBeacon(t *testing.T) {
	s := newTestService(t)
	start := time.Now()
	s.observe(beaconBytes(t, "p2", "127.0.0.1:2000"), start)
	s.sweep(start.Add(time.Second))

	ev, ok := s.observe(beaconBytes(t, "p2", "127.0.0.1:2000"), start.Add(2*time.Second))
	if !ok || ev.Kind != PeerAppeared {
		t.Fatalf("expected re-appearance, got (%+v, %v)", ev, ok)
	}
}

// Shutdown while beacons are still arriving: cancellation must close the
// events channel cleanly even with inbound traffic in flight and nobody
// draining events.
func TestRunShutdownWithInflightBeacons(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := recv.LocalAddr().(*net.UDPAddr)
	send, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	s := &Service{
		opts: Options{
			SelfID:   "self",
			SelfAddr: "127.0.0.1:1000",
			Interval: 5 * time.Millisecond,
			TTL:      20 * time.Millisecond,
		},
		recv:   recv,
		send:   send,
		log:    zap.NewNop(),
		seen:   make(map[string]entry),
		events: make(chan Event, 4),
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	blaster, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer blaster.Close()
	blastDone := make(chan struct{})
	go func() {
		defer close(blastDone)
		for i := 0; ctx.Err() == nil; i++ {
			// Fresh ids so every beacon produces an appearance event.
			data, _ := json.Marshal(beacon{PeerID: fmt.Sprintf("p%d", i), Addr: "127.0.0.1:2000"})
			_, _ = blaster.Write(data)
			time.Sleep(time.Millisecond)
		}
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-blastDone

	// The channel must be closed, with no sends racing the close.
	for range s.events {
	}
}

func TestObserveUpdatesAddr(t *testing.T) {
	s := newTestService(t)
	s.observe(beaconBytes(t, "p2", "127.0.0.1:2000"), time.Now())
	s.observe(beaconBytes(t, "p2", "127.0.0.1:2001"), time.Now())
	if addr, _ := s.Addr("p2"); addr != "127.0.0.1:2001" {
		t.Fatalf("addr = %q, want updated 127.0.0.1:2001", addr)
	}
}
