package node

import (
	"context"
	"errors"
	"sort"

	"peerscope/internal/proto"
)

// ErrNodeStopped reports a call against a node whose loop has exited.
// Callers get this instead of hanging on a reply that will never come.
var ErrNodeStopped = errors.New("node: stopped")

type commandOp int

const (
	opListPeers commandOp = iota
	opRequestStatus
	opStatusSnapshot
	opBroadcast
)

type command struct {
	op    commandOp
	mode  proto.Mode
	text  string
	reply chan result
}

type result struct {
	peers []string
	dir   map[string]proto.PeerRecord
	err   error
}

// Client is a clonable handle on the actor. It is a plain value: copy it
// freely, call it from any goroutine. Every method sends one command and
// waits for its one-shot reply.
type Client struct {
	cmds chan<- command
	done <-chan struct{}
}

// Client returns a handle on n. All handles share the node's command
// channel.
func (n *Node) Client() Client {
	return Client{cmds: n.cmds, done: n.done}
}

// ListDiscoveredPeers returns the ids currently visible on the local
// network, sorted and deduplicated.
func (c Client) ListDiscoveredPeers(ctx context.Context) ([]string, error) {
	res, err := c.call(ctx, command{op: opListPeers})
	if err != nil {
		return nil, err
	}
	peers := res.peers
	sort.Strings(peers)
	return peers, nil
}

// RequestAllPeerStatus broadcasts an all-peers status request and clears
// the accumulated directory, starting a fresh collection window.
func (c Client) RequestAllPeerStatus(ctx context.Context) error {
	res, err := c.call(ctx, command{op: opRequestStatus, mode: proto.AllPeers()})
	if err != nil {
		return err
	}
	return res.err
}

// RequestPeerStatus asks one specific peer for its status. The directory
// keeps accumulating; only all-peers requests clear it.
func (c Client) RequestPeerStatus(ctx context.Context, peerID string) error {
	res, err := c.call(ctx, command{op: opRequestStatus, mode: proto.OnePeer(peerID)})
	if err != nil {
		return err
	}
	return res.err
}

// AccumulatedPeerStatus returns a copy of the responses collected since
// the last all-peers request.
func (c Client) AccumulatedPeerStatus(ctx context.Context) (map[string]proto.PeerRecord, error) {
	res, err := c.call(ctx, command{op: opStatusSnapshot})
	if err != nil {
		return nil, err
	}
	return res.dir, nil
}

// Broadcast publishes a free-text message to every subscribed peer.
func (c Client) Broadcast(ctx context.Context, text string) error {
	res, err := c.call(ctx, command{op: opBroadcast, text: text})
	if err != nil {
		return err
	}
	return res.err
}

func (c Client) call(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)

	select {
	case c.cmds <- cmd:
	case <-c.done:
		return result{}, ErrNodeStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res, nil
	case <-c.done:
		// The actor may have replied just before stopping.
		select {
		case res := <-cmd.reply:
			return res, nil
		default:
			return result{}, ErrNodeStopped
		}
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}
