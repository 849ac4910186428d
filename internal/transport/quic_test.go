package transport

import (
	"bytes"
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSendDeliversFrame(t *testing.T) {
	log := zap.NewNop()
	l, err := Listen("127.0.0.1:0", log)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	go func() {
		_ = l.Serve(ctx, func(payload []byte) {
			got <- append([]byte(nil), payload...)
		})
	}()

	want := []byte(`{"frame_id":"f1","topic":"t","sender":"p1","data":"eyJ9"}`)
	if err := Send(ctx, l.Addr(), want); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case payload := <-got:
		if !bytes.Equal(payload, want) {
			t.Fatalf("payload = %q, want %q", payload, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestSendToDeadAddrFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Send(ctx, "127.0.0.1:1", []byte("x")); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestServeStopsOnClose(t *testing.T) {
	l, err := Listen("127.0.0.1:0", zap.NewNop())
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(context.Background(), func([]byte) {})
	}()
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
