package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crosslink-ai/crosslink/internal/config"
	"github.com/crosslink-ai/crosslink/internal/history"
	"github.com/crosslink-ai/crosslink/internal/logger"
	"github.com/crosslink-ai/crosslink/internal/metrics"
	"github.com/crosslink-ai/crosslink/internal/runner"
)

// Invoker is the slice of the runner the tool handlers need.
type Invoker interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
	Agents() []config.AgentDef
}

// HistoryStore persists and retrieves invocation records.
type HistoryStore interface {
	Save(rec *history.Record) error
	Get(id string) (*history.Record, error)
	List(filter *history.ListFilter) ([]*history.Record, error)
}

// Pinger reports whether a backing runtime is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Options tune the HTTP layer. Zero values fall back to defaults.
type Options struct {
	RequestsPerSecond float64
	RequestBurst      int
}

// Server exposes the agents over MCP's streamable HTTP transport.
type Server struct {
	invoker   Invoker
	store     HistoryStore
	sandbox   Pinger // nil when sandboxing is disabled
	registry  *Registry
	mcpServer *mcp_sdk.Server
	version   string
	opts      Options
}

// NewServer creates a new MCP server instance. store, sandbox, and opts may
// be nil.
func NewServer(invoker Invoker, store HistoryStore, sandbox Pinger, version string, opts *Options) *Server {
	s := &Server{
		invoker:  invoker,
		store:    store,
		sandbox:  sandbox,
		registry: NewRegistry(),
		version:  version,
	}
	if opts != nil {
		s.opts = *opts
	}
	s.registerAllTools(s.registry)
	return s
}

func (s *Server) rateLimiter() *RateLimiter {
	if s.opts.RequestsPerSecond > 0 && s.opts.RequestBurst > 0 {
		return NewRateLimiter(s.opts.RequestsPerSecond, s.opts.RequestBurst)
	}
	return DefaultRateLimiter()
}

// GetRegistry returns the tool registry for external access
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Handler builds the HTTP handler: MCP endpoints wrapped with request ID
// logging, rate limiting, and metrics, plus unauthenticated health and
// metrics endpoints.
func (s *Server) Handler() (http.Handler, error) {
	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "crosslink",
		Version: s.version,
	}, nil)

	if err := s.registry.RegisterWithMCPServer(s.mcpServer); err != nil {
		return nil, err
	}

	// Enable EventStore for SSE stream resumption support
	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.InfoContext(ctx, "http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		mcpHandler.ServeHTTP(w, r)
	})

	rateLimitedHandler := RateLimitMiddleware(s.rateLimiter())(loggingHandler)

	mainMux := http.NewServeMux()
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)

	// Prometheus scraping, no rate limit
	mainMux.Handle("/metrics", metrics.Handler())

	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	return mainMux, nil
}

// Serve starts the MCP HTTP server on addr and blocks.
func (s *Server) Serve(addr string) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	logger.Slog().Info("crosslink MCP server listening", "addr", addr)
	logger.Slog().Info("health check available", "url", "http://localhost"+addr+"/health")
	logger.Slog().Info("metrics available", "url", "http://localhost"+addr+"/metrics")
	return http.ListenAndServe(addr, handler)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Only meaningful when a sandbox runtime is configured
	if s.sandbox != nil {
		if err := s.sandbox.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","reason":"sandbox runtime unavailable"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
