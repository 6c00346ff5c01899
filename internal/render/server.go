package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// AvatarEndpoint is the path for avatar WebSocket connections.
	AvatarEndpoint = "/avatar"

	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"

	shutdownTimeout = 5 * time.Second
)

// Server exposes a Hub over HTTP alongside any extra handlers, such as metrics.
type Server struct {
	hub    *Hub
	log    zerolog.Logger
	mux    *http.ServeMux
	server *http.Server
	ln     net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runningMu sync.Mutex
	running   bool
}

// NewServer routes the hub and health endpoints; extra maps additional paths.
func NewServer(hub *Hub, logger zerolog.Logger, extra map[string]http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle(AvatarEndpoint, hub)
	mux.HandleFunc(HealthEndpoint, hub.HandleHealth)
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return &Server{hub: hub, log: logger, mux: mux}
}

// Start listens on addr and serves in the background. Use ":0" for an
// ephemeral port and Addr to read it back.
func (s *Server) Start(addr string) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		return fmt.Errorf("render server already running")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ln, s.cancel = ln, cancel
	s.server = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	s.running = true

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", ln.Addr().String()).Msg("Avatar server listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Avatar server error")
		}
	}()
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down and disconnects every avatar client.
func (s *Server) Stop() error {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return nil
	}
	s.running = false
	s.runningMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()

	s.log.Info().Msg("Avatar server stopped")
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
