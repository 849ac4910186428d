// Package transport carries gossip frames between peers over QUIC.
// Each frame travels on its own unidirectional stream exchange: the
// sender opens a stream, writes one length-prefixed payload, and closes.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/big"
	"net"
	"time"

	quic "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"peerscope/internal/proto"
)

const alpnProto = "peerscope-quic"

const dialTimeout = 5 * time.Second

// Handler consumes one received payload. It must not retain the slice.
type Handler func(payload []byte)

// Listener accepts inbound gossip frames on a QUIC endpoint.
type Listener struct {
	ql  *quic.Listener
	log *zap.Logger
}

// Listen binds a QUIC endpoint on addr with a fresh self-signed
// certificate. Peer identity on the wire is claimed, not proven; the
// protocol above treats it as such.
func Listen(addr string, log *zap.Logger) (*Listener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("quic listen %s: %w", addr, err)
	}
	log.Info("transport listening", zap.String("addr", ql.Addr().String()))
	return &Listener{ql: ql, log: log}, nil
}

// Addr returns the bound address, with the port resolved when addr was
// requested with port 0.
func (l *Listener) Addr() string { return l.ql.Addr().String() }

// Serve accepts connections and streams until ctx is canceled or the
// listener is closed. Each stream delivers at most one frame to handle.
func (l *Listener) Serve(ctx context.Context, handle Handler) error {
	for {
		conn, err := l.ql.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go l.serveConn(ctx, conn, handle)
	}
}

func (l *Listener) serveConn(ctx context.Context, conn *quic.Conn, handle Handler) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go func(s *quic.Stream) {
			defer s.Close()
			payload, err := proto.ReadFrame(s)
			if err != nil {
				// Malformed traffic is expected noise, not an error.
				l.log.Debug("dropping unreadable frame", zap.Error(err))
				return
			}
			handle(payload)
		}(stream)
	}
}

func (l *Listener) Close() error { return l.ql.Close() }

// Send dials addr and delivers one frame.
func Send(ctx context.Context, addr string, payload []byte) error {
	tlsConf := clientTLSConfig()
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return fmt.Errorf("quic dial %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return err
	}
	if err := proto.WriteFrame(stream, payload); err != nil {
		_ = stream.Close()
		return err
	}
	return stream.Close()
}

func serverTLSConfig() (*tls.Config, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProto},
	}, nil
}

func clientTLSConfig() *tls.Config {
	// Peers present ephemeral self-signed certs; there is no CA on a LAN
	// overlay, so verification is skipped and identity lives in the
	// protocol layer.
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProto},
	}
}

func selfSignedCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}
