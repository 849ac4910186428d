// Package admin exposes the node over HTTP: trigger a status request,
// read the accumulated directory, list discovered peers. It talks to
// the actor exclusively through a Client handle, like any other caller.
package admin

import (
	"context"
	"embed"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"peerscope/internal/node"
	"peerscope/internal/proto"
	"peerscope/internal/telemetry"
)

//go:embed public/index.html
var assets embed.FS

const callTimeout = 10 * time.Second

// Server serves the admin surface.
type Server struct {
	client node.Client
	log    *zap.Logger
}

func NewServer(client node.Client, log *zap.Logger) *Server {
	return &Server{client: client, log: log}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", telemetry.MetricsHandler())

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/send_ps", telemetry.Instrument("send_ps", http.HandlerFunc(s.handleSendStatusRequest)))
		r.Method(http.MethodGet, "/events", telemetry.Instrument("events", http.HandlerFunc(s.handleEvents)))
		r.Method(http.MethodGet, "/peers", telemetry.Instrument("peers", http.HandlerFunc(s.handlePeers)))
	})

	return r
}

// ListenAndServe runs the admin server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("admin server listening", zap.String("addr", srv.Addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleSendStatusRequest triggers a fresh all-peers status request.
func (s *Server) handleSendStatusRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	if err := s.client.RequestAllPeerStatus(ctx); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requested"})
}

// handleEvents renders the accumulated peer directory.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	dir, err := s.client.AccumulatedPeerStatus(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]proto.PeerRecord, 0, len(dir))
	for _, rec := range dir {
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePeers lists peers currently discovered on the local network.
func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	peers, err := s.client.ListDiscoveredPeers(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data, err := assets.ReadFile("public/index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, node.ErrNodeStopped) {
		status = http.StatusServiceUnavailable
	}
	s.log.Warn("admin request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
