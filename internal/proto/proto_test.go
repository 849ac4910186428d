package proto

import (
	"strings"
	"testing"
)

func TestStatusRequestRoundTrip(t *testing.T) {
	data, err := EncodeStatusRequestMsg(StatusRequestMsg{Mode: AllPeers()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	m, err := DecodeStatusRequestMsg(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if m.Type != MsgTypeStatusRequest {
		t.Fatalf("type = %q, want %q", m.Type, MsgTypeStatusRequest)
	}
	if m.Mode.Kind != ModeAll {
		t.Fatalf("mode kind = %q, want %q", m.Mode.Kind, ModeAll)
	}
}

func TestStatusRequestOneKeepsPeerID(t *testing.T) {
	data, err := EncodeStatusRequestMsg(StatusRequestMsg{Mode: OnePeer("p42")})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	m, err := DecodeStatusRequestMsg(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if m.Mode.Kind != ModeOne || m.Mode.PeerID != "p42" {
		t.Fatalf("mode = %+v, want one/p42", m.Mode)
	}
}

func TestStatusRequestRejectsBadMode(t *testing.T) {
	if _, err := EncodeStatusRequestMsg(StatusRequestMsg{Mode: Mode{Kind: "some"}}); err == nil {
		t.Fatal("expected encode error for invalid mode kind")
	}
	if _, err := EncodeStatusRequestMsg(StatusRequestMsg{Mode: Mode{Kind: ModeOne}}); err == nil {
		t.Fatal("expected encode error for one-mode without peer_id")
	}
	if _, err := DecodeStatusRequestMsg([]byte(`{"type":"ps_request","mode":{"kind":"one"}}`)); err == nil {
		t.Fatal("expected decode error for one-mode without peer_id")
	}
}

func TestStatusResponseRoundTrip(t *testing.T) {
	in := StatusResponseMsg{
		Mode:     AllPeers(),
		Receiver: "p1",
		Data:     PeerRecord{ID: "p2", Hostname: "h2", Description: "d2"},
	}
	data, err := EncodeStatusResponseMsg(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	m, err := DecodeStatusResponseMsg(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if m.Receiver != "p1" {
		t.Fatalf("receiver = %q, want p1", m.Receiver)
	}
	if m.Data != in.Data {
		t.Fatalf("data = %+v, want %+v", m.Data, in.Data)
	}
}

func TestStatusResponseRejectsIncomplete(t *testing.T) {
	if _, err := DecodeStatusResponseMsg([]byte(`{"type":"ps_response","mode":{"kind":"all"},"data":{"id":"p2"}}`)); err == nil {
		t.Fatal("expected decode error without receiver")
	}
	if _, err := DecodeStatusResponseMsg([]byte(`{"type":"ps_response","mode":{"kind":"all"},"receiver":"p1"}`)); err == nil {
		t.Fatal("expected decode error without data.id")
	}
}

func TestBroadcastRoundTrip(t *testing.T) {
	data, err := EncodeBroadcastMsg(BroadcastMsg{Message: "hello", Hostname: "h1"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	m, err := DecodeBroadcastMsg(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if m.Message != "hello" || m.Hostname != "h1" {
		t.Fatalf("got %+v", m)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
		ok   bool
	}{
		{"request", `{"type":"ps_request","mode":{"kind":"all"}}`, MsgTypeStatusRequest, true},
		{"response", `{"type":"ps_response"}`, MsgTypeStatusResponse, true},
		{"broadcast", `{"type":"broadcast"}`, MsgTypeBroadcast, true},
		{"unknown type", `{"type":"delta_b"}`, "", false},
		{"no type", `{"mode":{"kind":"all"}}`, "", false},
		{"garbage", `not json at all`, "", false},
	}
	for _, tc := range cases {
		got, err := Classify([]byte(tc.data))
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%s: Classify = (%q, %v), want (%q, nil)", tc.name, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected classify error", tc.name)
		}
	}
}

func TestDecodeRejectsCrossType(t *testing.T) {
	data, err := EncodeBroadcastMsg(BroadcastMsg{Message: "m", Hostname: "h"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	_, err = DecodeStatusRequestMsg(data)
	if err == nil {
		t.Fatal("broadcast decoded as status request")
	}
	if !strings.Contains(err.Error(), "unexpected msg type") {
		t.Fatalf("unexpected error: %v", err)
	}
}
