// Package proto defines the wire messages of the peer-status protocol.
// Every message is a self-describing JSON record carrying a "type"
// discriminant so receivers classify with a single branch instead of
// decode-by-trial.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MsgTypeStatusRequest  = "ps_request"
	MsgTypeStatusResponse = "ps_response"
	MsgTypeBroadcast      = "broadcast"

	MaxMessageSize = 16 << 10
)

var ErrUnknownType = errors.New("proto: unknown message type")

// PeerRecord is one node's self-reported status. Records are replaced
// wholesale, never field-mutated.
type PeerRecord struct {
	ID          string `json:"id"`
	Hostname    string `json:"hostname"`
	Description string `json:"description"`
}

const (
	ModeAll = "all"
	ModeOne = "one"
)

// Mode selects which peers a status request addresses: every subscriber
// (ModeAll) or a single peer (ModeOne with PeerID set).
type Mode struct {
	Kind   string `json:"kind"`
	PeerID string `json:"peer_id,omitempty"`
}

func AllPeers() Mode             { return Mode{Kind: ModeAll} }
func OnePeer(peerID string) Mode { return Mode{Kind: ModeOne, PeerID: peerID} }

func (m Mode) validate() error {
	switch m.Kind {
	case ModeAll:
		return nil
	case ModeOne:
		if m.PeerID == "" {
			return fmt.Errorf("proto: mode %q requires peer_id", ModeOne)
		}
		return nil
	default:
		return fmt.Errorf("proto: invalid mode kind %q", m.Kind)
	}
}

type StatusRequestMsg struct {
	Type string `json:"type"`
	Mode Mode   `json:"mode"`
}

type StatusResponseMsg struct {
	Type     string     `json:"type"`
	Mode     Mode       `json:"mode"`
	Receiver string     `json:"receiver"`
	Data     PeerRecord `json:"data"`
}

type BroadcastMsg struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Hostname string `json:"hostname"`
}

func EncodeStatusRequestMsg(m StatusRequestMsg) ([]byte, error) {
	if m.Type == "" {
		m.Type = MsgTypeStatusRequest
	}
	if err := m.Mode.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func DecodeStatusRequestMsg(data []byte) (StatusRequestMsg, error) {
	var m StatusRequestMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return StatusRequestMsg{}, err
	}
	if m.Type != MsgTypeStatusRequest {
		return StatusRequestMsg{}, fmt.Errorf("unexpected msg type: %s", m.Type)
	}
	if err := m.Mode.validate(); err != nil {
		return StatusRequestMsg{}, err
	}
	return m, nil
}

func EncodeStatusResponseMsg(m StatusResponseMsg) ([]byte, error) {
	if m.Type == "" {
		m.Type = MsgTypeStatusResponse
	}
	if err := m.Mode.validate(); err != nil {
		return nil, err
	}
	if m.Receiver == "" {
		return nil, fmt.Errorf("proto: response requires receiver")
	}
	if m.Data.ID == "" {
		return nil, fmt.Errorf("proto: response requires data.id")
	}
	return json.Marshal(m)
}

func DecodeStatusResponseMsg(data []byte) (StatusResponseMsg, error) {
	var m StatusResponseMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return StatusResponseMsg{}, err
	}
	if m.Type != MsgTypeStatusResponse {
		return StatusResponseMsg{}, fmt.Errorf("unexpected msg type: %s", m.Type)
	}
	if err := m.Mode.validate(); err != nil {
		return StatusResponseMsg{}, err
	}
	if m.Receiver == "" || m.Data.ID == "" {
		return StatusResponseMsg{}, fmt.Errorf("proto: incomplete response")
	}
	return m, nil
}

func EncodeBroadcastMsg(m BroadcastMsg) ([]byte, error) {
	if m.Type == "" {
		m.Type = MsgTypeBroadcast
	}
	return json.Marshal(m)
}

func DecodeBroadcastMsg(data []byte) (BroadcastMsg, error) {
	var m BroadcastMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return BroadcastMsg{}, err
	}
	if m.Type != MsgTypeBroadcast {
		return BroadcastMsg{}, fmt.Errorf("unexpected msg type: %s", m.Type)
	}
	return m, nil
}

// Classify reads the type discriminant of an encoded message without
// decoding the full payload. Noise on a shared topic is expected, so an
// unclassifiable payload is reported with ErrUnknownType rather than a
// decode error per field.
func Classify(data []byte) (string, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownType, err)
	}
	switch hdr.Type {
	case MsgTypeStatusRequest, MsgTypeStatusResponse, MsgTypeBroadcast:
		return hdr.Type, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, hdr.Type)
	}
}
