package server

import (
	"context"
	"net/http"
	"time"

	"vanna/internal/adapters/config"
	"vanna/internal/domain/chain"
	"vanna/internal/metrics"
	"vanna/internal/session"
	"vanna/pkg/logger"
)

// SnapshotFeeder starts snapshot loops on demand as clients subscribe.
type SnapshotFeeder interface {
	Ensure(underlying string)
}

// ChainAssembler builds on-demand snapshots for the pull endpoints.
type ChainAssembler interface {
	Assemble(ctx context.Context, underlying string) (*chain.ChainSnapshot, error)
	Spot(ctx context.Context, underlying string) (float64, error)
}

// BrokerAuth performs the upstream broker login handshake.
type BrokerAuth interface {
	Login(ctx context.Context, clientCode, password, totp string) (session.Session, error)
}

// Server owns the HTTP surface: websocket streaming, pull fallback,
// broker auth and health endpoints.
type Server struct {
	cfg             config.ServerConfig
	version         string
	assembleTimeout time.Duration

	hub       *Hub
	feeder    SnapshotFeeder
	assembler ChainAssembler
	store     chain.TickStore
	sessions  session.Store
	auth      BrokerAuth

	httpServer *http.Server
	log        *logger.Logger
}

func NewServer(
	cfg config.ServerConfig,
	version string,
	assembleTimeout time.Duration,
	hub *Hub,
	feeder SnapshotFeeder,
	assembler ChainAssembler,
	store chain.TickStore,
	sessions session.Store,
	auth BrokerAuth,
) *Server {
	return &Server{
		cfg:             cfg,
		version:         version,
		assembleTimeout: assembleTimeout,
		hub:             hub,
		feeder:          feeder,
		assembler:       assembler,
		store:           store,
		sessions:        sessions,
		auth:            auth,
		log:             logger.Get().With("component", "http_server"),
	}
}

// Routes builds the request mux. Exposed separately so tests can mount it
// on an httptest server.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws/{symbol}/{client}", s.handleWS)
	mux.HandleFunc("GET /api/option-chain/{symbol}", s.handleOptionChain)
	mux.HandleFunc("GET /api/spot/{symbol}", s.handleSpot)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/session/{client}", s.handleSession)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        s.cfg.Addr(),
		Handler:     s.Routes(),
		ReadTimeout: s.cfg.ReadTimeout,
		// WriteTimeout would kill long-lived websocket connections; the
		// write pump enforces its own per-message deadline instead.
	}

	s.log.Infow("HTTP server starting", "addr", s.cfg.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
