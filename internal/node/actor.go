// Package node contains the actor that owns all mutable network state.
// One goroutine runs the control loop; everything else talks to it
// through the Client handle. That single loop is the whole concurrency
// story: the directory, the partial view, and publishing are only ever
// touched from inside it.
package node

import (
	"context"

	"go.uber.org/zap"

	"peerscope/internal/discovery"
	"peerscope/internal/gossip"
	"peerscope/internal/proto"
	"peerscope/internal/telemetry"
)

// Session is the slice of the gossip session the actor drives.
type Session interface {
	Publish(ctx context.Context, topic string, data []byte) error
	AddPeer(peerID, addr string)
	RemovePeer(peerID string)
}

// Discovery is the read side of local-network discovery.
type Discovery interface {
	Peers() []string
	Addr(peerID string) (string, bool)
}

const (
	cmdBuffer       = 16
	broadcastBuffer = 16
)

// Options wires a Node to its collaborators. Messages and Events are the
// two inbound streams the loop selects over alongside commands.
type Options struct {
	SelfID    string
	Record    proto.PeerRecord
	Topic     string
	Session   Session
	Discovery Discovery
	Messages  <-chan gossip.Message
	Events    <-chan discovery.Event
	Log       *zap.Logger
}

// Node is the actor. Construct with New, drive with Run, talk to it via
// Client.
type Node struct {
	opts Options
	dir  *directory

	cmds       chan command
	broadcasts chan proto.BroadcastMsg
	done       chan struct{}
}

func New(opts Options) *Node {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Node{
		opts:       opts,
		dir:        newDirectory(),
		cmds:       make(chan command, cmdBuffer),
		broadcasts: make(chan proto.BroadcastMsg, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Broadcasts surfaces received free-text messages for the console. When
// nobody drains it, messages are dropped rather than stalling the loop.
func (n *Node) Broadcasts() <-chan proto.BroadcastMsg { return n.broadcasts }

// Run executes the control loop until ctx is canceled or an input stream
// closes. Either way the node shuts down cleanly; pending and future
// Client calls fail with ErrNodeStopped.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)
	log := n.opts.Log
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-n.cmds:
			n.handleCommand(ctx, cmd)

		case msg, ok := <-n.opts.Messages:
			if !ok {
				log.Info("gossip stream closed, shutting down")
				return nil
			}
			n.apply(ctx, DispatchMessage(msg, n.opts.SelfID, n.opts.Record))

		case ev, ok := <-n.opts.Events:
			if !ok {
				log.Info("discovery stream closed, shutting down")
				return nil
			}
			_, stillLive := n.opts.Discovery.Addr(ev.PeerID)
			n.apply(ctx, DispatchDiscovery(ev, stillLive))
		}
	}
}

func (n *Node) handleCommand(ctx context.Context, cmd command) {
	var res result
	switch cmd.op {
	case opListPeers:
		res.peers = n.opts.Discovery.Peers()

	case opRequestStatus:
		res.err = n.publishRequest(ctx, cmd.mode)
		if res.err == nil && cmd.mode.Kind == proto.ModeAll {
			// A new all-peers request starts a fresh accumulation window.
			n.dir.clear()
		}

	case opStatusSnapshot:
		res.dir = n.dir.snapshot()

	case opBroadcast:
		res.err = n.publishBroadcast(ctx, cmd.text)
	}

	// Best effort: the caller may have given up on the reply.
	select {
	case cmd.reply <- res:
	default:
	}
}

func (n *Node) publishRequest(ctx context.Context, mode proto.Mode) error {
	data, err := proto.EncodeStatusRequestMsg(proto.StatusRequestMsg{Mode: mode})
	if err != nil {
		return err
	}
	if err := n.opts.Session.Publish(ctx, n.opts.Topic, data); err != nil {
		n.opts.Log.Warn("status request publish failed", zap.Error(err))
		return err
	}
	return nil
}

func (n *Node) publishBroadcast(ctx context.Context, text string) error {
	data, err := proto.EncodeBroadcastMsg(proto.BroadcastMsg{
		Message:  text,
		Hostname: n.opts.Record.Hostname,
	})
	if err != nil {
		return err
	}
	if err := n.opts.Session.Publish(ctx, n.opts.Topic, data); err != nil {
		n.opts.Log.Warn("broadcast publish failed", zap.Error(err))
		return err
	}
	return nil
}

// apply executes the actions a dispatched event produced.
func (n *Node) apply(ctx context.Context, a Actions) {
	if a.Store != nil {
		n.dir.insert(*a.Store)
		telemetry.ResponsesStored.Inc()
	}
	if a.Publish != nil {
		if err := n.opts.Session.Publish(ctx, n.opts.Topic, a.Publish); err != nil {
			n.opts.Log.Warn("response publish failed", zap.Error(err))
		}
	}
	if a.AddPeer != nil {
		n.opts.Session.AddPeer(a.AddPeer.PeerID, a.AddPeer.Addr)
	}
	if a.RemovePeer != "" {
		n.opts.Session.RemovePeer(a.RemovePeer)
	}
	if a.Broadcast != nil {
		select {
		case n.broadcasts <- *a.Broadcast:
		default:
		}
	}
}
