// Package gateway exposes the HTTP surface: the SSE chat endpoint, channel
// webhooks, conversation and trace reads, health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhinav155942/wobble/internal/agent"
	"github.com/abhinav155942/wobble/internal/channels"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

// Orchestrator is the slice of the turn engine the HTTP layer needs.
type Orchestrator interface {
	Run(ctx context.Context, req agent.Request) (<-chan agent.Event, error)
	RunSync(ctx context.Context, req agent.Request) (*agent.SyncResult, error)
}

// Config holds the server's listen address and timeouts.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Server is the wobble HTTP server.
type Server struct {
	config       Config
	orchestrator Orchestrator
	enhancer     *PromptEnhancer
	hub          *channels.Hub
	stores       storage.StoreSet
	logger       *observability.Logger
	metrics      *observability.Metrics

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(cfg Config, orch Orchestrator, enhancer *PromptEnhancer, hub *channels.Hub, stores storage.StoreSet, logger *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		config:       cfg,
		orchestrator: orch,
		enhancer:     enhancer,
		hub:          hub,
		stores:       stores,
		logger:       logger.WithFields("component", "gateway"),
		metrics:      metrics,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/chat", s.instrument("/v1/chat", s.handleChat))
	mux.HandleFunc("POST /v1/agents/{id}/enhance-prompt", s.instrument("/v1/agents/{id}/enhance-prompt", s.handleEnhancePrompt))
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.instrument("/v1/conversations/{id}/messages", s.handleListMessages))
	mux.HandleFunc("GET /v1/messages/{id}/traces", s.instrument("/v1/messages/{id}/traces", s.handleListTraces))

	for _, ch := range s.hub.Channels() {
		ch := ch
		path := fmt.Sprintf("/webhooks/%s/{agentID}", ch)
		mux.HandleFunc("POST "+path, s.instrument(path, func(w http.ResponseWriter, r *http.Request) {
			s.hub.Handle(ch, r.PathValue("agentID"), w, r)
		}))
		if ch == models.ChannelWhatsApp || ch == models.ChannelInstagram {
			mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
				s.hub.HandleVerify(ch, r.PathValue("agentID"), w, r)
			})
		}
	}

	return mux
}

// Start begins serving and returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "http server error", "error", err)
		}
	}()

	s.logger.Info(ctx, "http server started", "addr", addr)
	return nil
}

// Addr returns the bound listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// instrument wraps a handler with request metrics keyed by route pattern,
// not raw path, to keep label cardinality flat.
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, pattern, fmt.Sprint(sw.status), time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Flush keeps SSE streaming working through the metrics wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
