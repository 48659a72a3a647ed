package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fdg312/informes-hub/internal/config"
	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/export"
	"github.com/fdg312/informes-hub/internal/session"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const ServiceName = "informes-hub"

// Deps are the collaborators the server routes to.
type Deps struct {
	Sessions *session.Manager
	Exports  *export.Service
	// Upstream is probed by /health/readiness.
	Upstream connectivity.Checker
	Logger   *zap.Logger
	Version  string
}

// Server представляет HTTP сервер
type Server struct {
	config   *config.Config
	mux      *http.ServeMux
	sessions *session.Manager
	exports  *export.Service
	upstream connectivity.Checker
	auth     *session.Middleware
	logger   *zap.Logger
	version  string
	upgrader websocket.Upgrader

	// cancelled on Shutdown so hijacked websocket streams end too
	streamCtx    context.Context
	cancelStream context.CancelFunc

	httpServer *http.Server
}

// New создаёт новый HTTP сервер
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:       cfg,
		mux:          http.NewServeMux(),
		sessions:     deps.Sessions,
		exports:      deps.Exports,
		upstream:     deps.Upstream,
		auth:         session.NewMiddleware(deps.Sessions, logger),
		logger:       logger,
		version:      version,
		streamCtx:    ctx,
		cancelStream: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.routes()
	return s
}

// routes регистрирует маршруты
func (s *Server) routes() {
	// Health checks (no session required)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/liveness", s.handleLiveness)
	s.mux.HandleFunc("GET /health/readiness", s.handleReadiness)

	// POST /v1/sessions - open a dashboard session
	s.mux.HandleFunc("POST /v1/sessions", s.handleOpenSession)

	// DELETE /v1/sessions/current - teardown
	s.mux.Handle("DELETE /v1/sessions/current", s.protect(s.handleCloseSession))

	// Connectivity
	s.mux.Handle("GET /v1/connectivity", s.protect(s.handleGetConnectivity))
	s.mux.Handle("POST /v1/connectivity/check", s.protect(s.handleCheckConnectivity))

	// File intake
	s.mux.Handle("POST /v1/intake", s.protect(s.handleIntake))
	s.mux.Handle("GET /v1/intake", s.protect(s.handleGetIntake))
	s.mux.Handle("DELETE /v1/intake", s.protect(s.handleClearIntake))

	// Submissions
	s.mux.Handle("POST /v1/submissions", s.protect(s.handleSubmit))
	s.mux.Handle("GET /v1/submission", s.protect(s.handleGetSubmission))
	s.mux.Handle("POST /v1/submission/reset", s.protect(s.handleResetSubmission))

	// Report and exports
	exportHandlers := export.NewHandlers(s.exports, exportSubject, s.logger)
	s.mux.Handle("GET /v1/report", s.protect(s.handleGetReport))
	s.mux.Handle("PUT /v1/report/title", s.protect(s.handleSetTitle))
	s.mux.Handle("POST /v1/report/exports", s.protect(exportHandlers.HandleCreate))
	s.mux.Handle("GET /v1/exports/{id}/download", s.protect(exportHandlers.HandleDownload))

	// Live stream
	s.mux.Handle("GET /v1/events", s.protect(s.handleEvents))
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return s.auth.RequireSession(h)
}

func exportSubject(r *http.Request) (export.Subject, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return export.Subject{}, false
	}
	return sess.ExportSubject(), true
}

// Handler builds the middleware chain (outermost first): CORS → Rate Limit → Router
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	return handler
}

// Start запускает HTTP сервер. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("http: listening",
		zap.String("addr", addr),
		zap.String("health", fmt.Sprintf("http://localhost%s/healthz", addr)),
		zap.String("sessions", fmt.Sprintf("http://localhost%s/v1/sessions", addr)),
	)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, ends websocket streams and waits
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelStream()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
