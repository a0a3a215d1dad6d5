// Package web serves the runtime's HTTP surface: control routes,
// registered webhook routes, and the Prometheus metrics endpoint.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledgerworks/integration-runtime/internal/auth"
	"github.com/ledgerworks/integration-runtime/internal/httputil"
	"github.com/ledgerworks/integration-runtime/internal/integration"
	"github.com/ledgerworks/integration-runtime/internal/metrics"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// StatusSource supplies the composite status served by /status.
type StatusSource interface {
	Status() integration.Status
}

// ServerConfig carries the HTTP server settings.
type ServerConfig struct {
	Port              int
	IntegrationID     string
	RequestsPerSecond int
	Burst             int
}

// Server is the runtime HTTP endpoint. Webhook routes are registered
// on its router by the webhook context before Start is called.
type Server struct {
	cfg    ServerConfig
	router *mux.Router
	levels *auth.RouteLevels
	source StatusSource
	log    *logger.Logger
	srv    *http.Server
	stopBg context.CancelFunc
}

// NewServer assembles the router middleware chain and the control
// routes. The router and levels registry are shared with the webhook
// context so webhook routes pass through the same auth middleware.
func NewServer(cfg ServerConfig, router *mux.Router, levels *auth.RouteLevels, authmw *auth.Middleware, source StatusSource, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("web")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 200
	}

	s := &Server{
		cfg:    cfg,
		router: router,
		levels: levels,
		source: source,
		log:    log,
	}

	bgCtx, stopBg := context.WithCancel(context.Background())
	s.stopBg = stopBg

	limiter := NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, log.Component("ratelimit"))
	limiter.StartCleanup(bgCtx, time.Minute)

	router.Use(requestID)
	router.Use(accessLog(log))
	router.Use(limiter.Handler)
	router.Use(instrument)
	router.Use(authmw.Handler)

	s.registerControlRoutes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// registerControlRoutes declares the health and control endpoints. The
// prefixed variants require a token for any party on the configured
// ledger; the unprefixed duplicates stay public for ingress health
// probes that cannot attach a token.
func (s *Server) registerControlRoutes() {
	prefix := "/integration/" + s.cfg.IntegrationID

	register := func(name, path string, level auth.Level, methods []string, fn http.HandlerFunc) {
		s.router.HandleFunc(path, fn).Methods(methods...).Name(name)
		s.levels.Set(name, level)
	}

	register("control-healthz", prefix+"/healthz", auth.AnyParty,
		[]string{http.MethodGet}, s.handleHealthz)
	register("control-status", prefix+"/status", auth.AnyParty,
		[]string{http.MethodGet}, s.handleStatus)
	register("control-log-level", prefix+"/log-level", auth.AnyParty,
		[]string{http.MethodGet, http.MethodPost}, s.handleLogLevel)

	register("control-healthz-public", "/healthz", auth.Public,
		[]string{http.MethodGet}, s.handleHealthz)
	register("control-status-public", "/status", auth.Public,
		[]string{http.MethodGet}, s.handleStatus)
	register("control-log-level-public", "/log-level", auth.Public,
		[]string{http.MethodGet, http.MethodPost}, s.handleLogLevel)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name("metrics")
	s.levels.Set("metrics", auth.Public)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.source.Status())
}

type logLevelBody struct {
	LogLevel int `json:"log_level"`
}

type logLevelResponse struct {
	LogLevel int   `json:"log_level"`
	Options  []int `json:"options"`
}

func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		httputil.WriteJSON(w, http.StatusOK, logLevelResponse{
			LogLevel: logger.Verbosity(),
			Options:  logger.VerbosityOptions(),
		})
		return
	}

	var body logLevelBody
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := logger.SetVerbosity(body.LogLevel); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.log.WithField("log_level", body.LogLevel).Info("log level changed")

	httputil.WriteJSON(w, http.StatusOK, logLevelResponse{
		LogLevel: logger.Verbosity(),
		Options:  logger.VerbosityOptions(),
	})
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, stops the server, and stops its
// background maintenance loops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopBg()
	return s.srv.Shutdown(ctx)
}
