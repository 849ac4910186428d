package proto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single gossip frame on the wire. A frame carries
// one envelope, and an envelope carries at most one protocol message.
const MaxFrameSize = 64 << 10

// Envelope is the gossip session's wire unit: one published payload plus
// the routing metadata the session needs for topic filtering and duplicate
// suppression. FrameID is assigned once per publish and survives fan-out,
// so a node that hears the same publish twice drops the second copy.
type Envelope struct {
	FrameID string `json:"frame_id"`
	Topic   string `json:"topic"`
	Sender  string `json:"sender"`
	Data    []byte `json:"data"`
}

func EncodeEnvelope(e Envelope) ([]byte, error) {
	if e.FrameID == "" {
		return nil, fmt.Errorf("proto: envelope requires frame_id")
	}
	if e.Topic == "" {
		return nil, fmt.Errorf("proto: envelope requires topic")
	}
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("proto: empty envelope data")
	}
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	if e.FrameID == "" || e.Topic == "" || len(e.Data) == 0 {
		return Envelope{}, fmt.Errorf("proto: incomplete envelope")
	}
	return e, nil
}

// EncodeFrame prefixes a payload with its big-endian length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("payload too large")
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

// ReadFrame reads one length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("invalid frame size")
	}
	payload := make([]byte, int(n))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	total := 0
	for total < len(frame) {
		n, err := w.Write(frame[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("short write")
		}
		total += n
	}
	return nil
}
