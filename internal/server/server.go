// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/channelchat/internal/config"
	"github.com/jeranaias/channelchat/internal/dispatch"
	"github.com/jeranaias/channelchat/internal/ingest"
	"github.com/jeranaias/channelchat/internal/progress"
	"github.com/jeranaias/channelchat/internal/session"
	"github.com/jeranaias/channelchat/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds JSON request bodies.
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxUploadSize bounds one attachment upload.
	MaxUploadSize = 32 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"

	shutdownGrace = 10 * time.Second
)

// TurnStore is the read side of the turn records the server exposes.
type TurnStore interface {
	ListTurns(ctx context.Context, sessionID string) ([]*storage.Turn, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Deps are the components the server routes requests to.
type Deps struct {
	Sessions   *session.Manager
	Turns      TurnStore
	Dispatcher *dispatch.Dispatcher
	// Pipeline is nil when no collection source is configured; the
	// ingestion endpoint then answers 500.
	Pipeline *ingest.Pipeline
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP surface: ingestion and chat sessions.
type Server struct {
	addr        string
	mux         *http.ServeMux
	server      *http.Server
	deps        Deps
	cors        *CORSConfig
	limiter     *RateLimiter
	turnTimeout time.Duration
	started     time.Time
	logger      *zap.Logger
}

// New creates a Server. A nil logger disables logging.
func New(cfg config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	cors := DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}

	s := &Server{
		addr:        cfg.Addr,
		mux:         http.NewServeMux(),
		deps:        deps,
		cors:        cors,
		turnTimeout: time.Duration(cfg.TurnTimeoutSecs) * time.Second,
		started:     time.Now(),
		logger:      logger.Named("server"),
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	s.setupRoutes()
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/youtube/channel-data", s.handleChannelData)

	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/attachments", s.handleAttach)
	s.mux.HandleFunc("POST /api/sessions/{id}/turns", s.handleTurn)
	s.mux.HandleFunc("GET /api/sessions/{id}/turns", s.handleListTurns)

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mw := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
	}
	if s.limiter != nil {
		mw = append(mw, RateLimitMiddleware(s.limiter, s.logger))
	}
	return Chain(mw...)(s.mux)
}

// ============================================================================
// INGESTION HANDLER
// ============================================================================

// handleChannelData handles POST /api/youtube/channel-data. The response is
// an event stream of ingest.Event values ending in complete or error.
func (s *Server) handleChannelData(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusInternalServerError, "YOUTUBE_API_KEY not configured on server")
		return
	}

	var body map[string]any
	if !s.decodeJSON(w, r, &body) {
		return
	}
	req := ingest.Request{
		Reference: strings.TrimSpace(firstString(body, "url", "reference")),
		Limit:     ingest.ParseLimit(firstValue(body, "maxVideos", "limit")),
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	pw, err := progress.NewHTTPWriter(w)
	if err != nil {
		s.logger.Error("SSE_UNSUPPORTED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	defer pw.Close()

	job, err := s.deps.Pipeline.Run(r.Context(), req, func(ev ingest.Event) error {
		return pw.Send(ev)
	})
	if err != nil {
		s.logger.Info("INGEST_REQUEST_ENDED",
			zap.String("job", job.ID),
			zap.Stringer("state", job.State),
			zap.Error(err))
	}
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
	Ingestion     string `json:"ingestion"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Sessions:      s.deps.Sessions.Len(),
		Ingestion:     "configured",
	}
	if s.deps.Pipeline == nil {
		h.Ingestion = "not_configured"
	}
	writeJSON(w, http.StatusOK, h)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: event streams stay open for the whole job or turn.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("SERVER_START", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
		errc <- s.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("SERVER_SHUTDOWN")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	var body ErrorBody
	body.Error.Message = message
	body.Error.Code = status
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched. It writes the error response itself and reports success.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		s.logger.Debug("INVALID_REQUEST_BODY", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	return true
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
