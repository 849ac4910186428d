// Package pprofutil starts an optional pprof HTTP endpoint when enabled
// through the environment. It stays off by default and refuses non-loopback
// binds unless explicitly allowed.
package pprofutil

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAddr = "127.0.0.1:6060"

// Server is a running pprof endpoint. A nil *Server is valid and means
// pprof was not enabled.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Env names the variables checked by StartFromEnv.
const (
	EnvEnable      = "PEERSCOPE_PPROF"
	EnvAddr        = "PEERSCOPE_PPROF_ADDR"
	EnvAllowPublic = "PEERSCOPE_PPROF_ALLOW_PUBLIC"
)

// StartFromEnv starts a pprof server when PEERSCOPE_PPROF=1. getenv is
// usually os.Getenv; it is a parameter so tests can run hermetically.
func StartFromEnv(getenv func(string) string, log *zap.Logger) (*Server, error) {
	if strings.TrimSpace(getenv(EnvEnable)) != "1" {
		return nil, nil
	}
	addr := strings.TrimSpace(getenv(EnvAddr))
	if addr == "" {
		addr = defaultAddr
	}
	allowPublic := strings.TrimSpace(getenv(EnvAllowPublic)) == "1"
	if !allowPublic && !isLoopbackBind(addr) {
		return nil, fmt.Errorf("%s must be loopback unless %s=1: %s", EnvAddr, EnvAllowPublic, addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pprof listen failed: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}
	log.Info("pprof enabled", zap.String("url", fmt.Sprintf("http://%s/debug/pprof/", ln.Addr())))
	go func() { _ = s.srv.Serve(ln) }()
	return s, nil
}

// Addr returns the bound address, or "" when pprof is not running.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the server. Safe on a nil receiver.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.srv.Close()
}

func isLoopbackBind(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
