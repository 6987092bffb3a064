package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/app"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/config"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

const (
	// ActorHeader carries the authenticated analyst name set by the fronting proxy
	ActorHeader     = "X-SOC-Actor"
	RequestIDHeader = "X-Request-ID"
)

// Server represents the HTTP API server
type Server struct {
	config     *config.Config
	app        *app.App
	logger     *zap.Logger
	gatherer   prometheus.Gatherer
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new API server instance. gatherer may be nil when
// metrics are disabled.
func NewServer(cfg *config.Config, a *app.App, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()

	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Security.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Accept", ActorHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(logger)), handlers.PrintRecoveryStack(false))

	server := &Server{
		config:   cfg,
		app:      a,
		logger:   logger,
		gatherer: gatherer,
		router:   router,
		handler:  recovery(corsMiddleware(router)),
	}
	server.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestMiddleware)

	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")
	if s.config.Observability.MetricsEnabled && s.gatherer != nil {
		s.router.Handle(s.config.Observability.MetricsPath,
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := s.router.PathPrefix(s.config.Server.APIPrefix).Subrouter()
	api.Use(s.authMiddleware)

	// Evidence endpoints
	api.HandleFunc("/evidence", s.uploadEvidence).Methods("POST")
	api.HandleFunc("/evidence/manual", s.manualEvidence).Methods("POST")
	api.HandleFunc("/evidence", s.listEvidence).Methods("GET")

	// Pipeline runs
	api.HandleFunc("/analysis/run", s.runAnalysis).Methods("POST")
	api.HandleFunc("/classifications", s.listClassifications).Methods("GET")
	api.HandleFunc("/correlation/run", s.runCorrelation).Methods("POST")

	// Correlated events endpoints
	api.HandleFunc("/events", s.listEvents).Methods("GET")
	api.HandleFunc("/events/{id:[0-9]+}", s.getEvent).Methods("GET")
	api.HandleFunc("/events/{id:[0-9]+}/promote", s.promoteEvent).Methods("POST")

	// Incident endpoints
	api.HandleFunc("/incidents", s.listIncidents).Methods("GET")
	api.HandleFunc("/incidents/{id}", s.getIncident).Methods("GET")
	api.HandleFunc("/incidents/{id}/status", s.updateIncidentStatus).Methods("PATCH")
	api.HandleFunc("/incidents/{id}/assignee", s.assignIncident).Methods("PATCH")
	api.HandleFunc("/incidents/{id}/history", s.incidentHistory).Methods("GET")

	// Dashboard
	api.HandleFunc("/summary", s.getSummary).Methods("GET")

	// Audit endpoints
	api.HandleFunc("/audit", s.listAudit).Methods("GET")
	api.HandleFunc("/audit/verify", s.verifyAudit).Methods("GET")

	// Detection config endpoints
	api.HandleFunc("/config", s.getConfig).Methods("GET")
	api.HandleFunc("/config", s.updateConfig).Methods("PUT")
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimSpace(s.config.Security.APIToken)
		if secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		const bearerPrefix = "Bearer "
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			writeMessage(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		if token == "" || token != secret {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMiddleware tags each request with an id, then logs and counts it by route template
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.app.Metrics.ObserveHTTP(r.Method, route, strconv.Itoa(rec.status))
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("actor", r.Header.Get(ActorHeader)),
		)
	})
}

// attribution identifies the caller of a mutating request
func attribution(r *http.Request) models.Attribution {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return models.Attribution{
		Actor: strings.TrimSpace(r.Header.Get(ActorHeader)),
		IP:    ip,
	}
}
