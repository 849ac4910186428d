package node

import (
	"peerscope/internal/discovery"
	"peerscope/internal/gossip"
	"peerscope/internal/proto"
)

// Actions is what a dispatched event asks the actor to do. The
// dispatcher itself touches no state and performs no I/O; the actor
// applies whatever is set.
type Actions struct {
	// Store folds a status response addressed to this node into the
	// directory.
	Store *proto.PeerRecord
	// Publish is an encoded protocol message to put on the shared topic.
	Publish []byte
	// AddPeer / RemovePeer adjust the gossip partial view.
	AddPeer    *Membership
	RemovePeer string
	// Broadcast surfaces a free-text message to the console.
	Broadcast *proto.BroadcastMsg
}

// Membership names a peer and the address it gossips on.
type Membership struct {
	PeerID string
	Addr   string
}

// DispatchMessage classifies one payload heard on the status topic.
//
// Responses are terminal: one addressed to this node is stored, any
// other is someone else's reply and is discarded. A request addressed
// to everyone or to this node specifically yields a response to publish.
// Anything else, broadcasts aside, is expected noise on a shared
// topic and produces no action at all.
func DispatchMessage(msg gossip.Message, selfID string, self proto.PeerRecord) Actions {
	msgType, err := proto.Classify(msg.Data)
	if err != nil {
		return Actions{}
	}
	switch msgType {
	case proto.MsgTypeStatusResponse:
		resp, err := proto.DecodeStatusResponseMsg(msg.Data)
		if err != nil {
			return Actions{}
		}
		if resp.Receiver != selfID {
			return Actions{}
		}
		rec := resp.Data
		return Actions{Store: &rec}

	case proto.MsgTypeStatusRequest:
		req, err := proto.DecodeStatusRequestMsg(msg.Data)
		if err != nil {
			return Actions{}
		}
		if req.Mode.Kind == proto.ModeOne && req.Mode.PeerID != selfID {
			return Actions{}
		}
		data, err := proto.EncodeStatusResponseMsg(proto.StatusResponseMsg{
			Mode:     req.Mode,
			Receiver: msg.Sender,
			Data:     self,
		})
		if err != nil {
			return Actions{}
		}
		return Actions{Publish: data}

	case proto.MsgTypeBroadcast:
		b, err := proto.DecodeBroadcastMsg(msg.Data)
		if err != nil {
			return Actions{}
		}
		return Actions{Broadcast: &b}
	}
	return Actions{}
}

// DispatchDiscovery turns an appearance or expiry on the local network
// into a partial-view change. stillLive reports whether discovery
// continues to see the peer; an expiry for a peer that is still being
// announced must not flap it out of the view.
func DispatchDiscovery(ev discovery.Event, stillLive bool) Actions {
	switch ev.Kind {
	case discovery.PeerAppeared:
		return Actions{AddPeer: &Membership{PeerID: ev.PeerID, Addr: ev.Addr}}
	case discovery.PeerExpired:
		if stillLive {
			return Actions{}
		}
		return Actions{RemovePeer: ev.PeerID}
	}
	return Actions{}
}
