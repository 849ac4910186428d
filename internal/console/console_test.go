package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"peerscope/internal/discovery"
	"peerscope/internal/gossip"
	"peerscope/internal/node"
	"peerscope/internal/proto"
)

type stubSession struct{ published int }

func (s *stubSession) Publish(context.Context, string, []byte) error {
	s.published++
	return nil
}
func (s *stubSession) AddPeer(string, string) {}
func (s *stubSession) RemovePeer(string)      {}

type stubDiscovery struct{ peers []string }

func (s *stubDiscovery) Peers() []string            { return s.peers }
func (s *stubDiscovery) Addr(string) (string, bool) { return "", false }

func startNode(t *testing.T, sess *stubSession, disco *stubDiscovery) *node.Node {
	t.Helper()
	n := node.New(node.Options{
		SelfID:    "p1",
		Record:    proto.PeerRecord{ID: "p1", Hostname: "h1", Description: "d1"},
		Topic:     "status",
		Session:   sess,
		Discovery: disco,
		Messages:  make(chan gossip.Message),
		Events:    make(chan discovery.Event),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return n
}

func runScript(t *testing.T, n *node.Node, script string) string {
	t.Helper()
	var out bytes.Buffer
	c := New(n.Client(), n.Broadcasts(), strings.NewReader(script), &out, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("console run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("console did not exit")
	}
	return out.String()
}

func TestListPeers(t *testing.T) {
	n := startNode(t, &stubSession{}, &stubDiscovery{peers: []string{"p3", "p2"}})
	out := runScript(t, n, "ls p\nquit\n")
	if !strings.Contains(out, "p2\np3\n") {
		t.Fatalf("output missing sorted peers:\n%s", out)
	}
}

func TestRequestAllPublishes(t *testing.T) {
	sess := &stubSession{}
	n := startNode(t, sess, &stubDiscovery{})
	out := runScript(t, n, "req all\nquit\n")
	if !strings.Contains(out, "status request sent") {
		t.Fatalf("missing confirmation:\n%s", out)
	}
}

func TestSendBroadcast(t *testing.T) {
	n := startNode(t, &stubSession{}, &stubDiscovery{})
	out := runScript(t, n, "send hello everyone\nquit\n")
	if !strings.Contains(out, "broadcast sent") {
		t.Fatalf("missing confirmation:\n%s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	n := startNode(t, &stubSession{}, &stubDiscovery{})
	out := runScript(t, n, "frobnicate\nquit\n")
	if !strings.Contains(out, "unknown command") {
		t.Fatalf("missing error message:\n%s", out)
	}
}

func TestExitsOnEOF(t *testing.T) {
	n := startNode(t, &stubSession{}, &stubDiscovery{})
	out := runScript(t, n, "help\n")
	if !strings.Contains(out, "list discovered peers") {
		t.Fatalf("missing help text:\n%s", out)
	}
}
