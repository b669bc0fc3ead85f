package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dgreene/pulse/pkg/analytics"
	"github.com/dgreene/pulse/pkg/cache"
	"github.com/dgreene/pulse/pkg/httputil"
	"github.com/dgreene/pulse/pkg/ingest"
	"github.com/dgreene/pulse/pkg/notify"
	"github.com/dgreene/pulse/pkg/observability"
)

const apiVersion = "1.0.0"

// Server represents our API server
type Server struct {
	router    *mux.Router
	analytics *analytics.Service
	refresher *analytics.Refresher
	ingest    *ingest.Store
	hub       *notify.Hub
	db        *sql.DB
	store     cache.Store
	logger    *observability.Logger
	metrics   *observability.Metrics
	handler   http.Handler
}

// NewServer creates a new API server
func NewServer(
	svc *analytics.Service,
	refresher *analytics.Refresher,
	ingestStore *ingest.Store,
	hub *notify.Hub,
	db *sql.DB,
	store cache.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		analytics: svc,
		refresher: refresher,
		ingest:    ingestStore,
		hub:       hub,
		db:        db,
		store:     store,
		logger:    logger,
		metrics:   metrics,
	}

	s.setupRoutes()
	s.handler = httputil.Chain(s.router,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger, metrics),
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.root).Methods("GET")
	s.router.HandleFunc("/health", s.health).Methods("GET")

	// Ingestion routes
	s.router.HandleFunc("/events", s.createEvent).Methods("POST")
	s.router.HandleFunc("/orders", s.createOrder).Methods("POST")

	// Analytics routes
	s.router.HandleFunc("/analytics/dashboard", s.getDashboardMetrics).Methods("GET")
	s.router.HandleFunc("/analytics/cohorts", s.getCohortAnalysis).Methods("GET")
	s.router.HandleFunc("/analytics/funnel", s.getFunnelAnalysis).Methods("GET")
	s.router.HandleFunc("/analytics/revenue", s.getRevenueAnalysis).Methods("GET")
	s.router.HandleFunc("/analytics/rfm", s.getRFMSegmentation).Methods("GET")
	s.router.HandleFunc("/analytics/realtime", s.getRealtimeMetrics).Methods("GET")
	s.router.HandleFunc("/analytics/custom-query", s.executeCustomQuery).Methods("POST")

	// Admin routes
	s.router.HandleFunc("/admin/refresh-views", s.triggerRefresh).Methods("POST")
	s.router.HandleFunc("/admin/refresh-status", s.getRefreshStatus).Methods("GET")

	// WebSocket for change notifications
	s.router.HandleFunc("/ws", s.serveWebSocket).Methods("GET")

	// Prometheus metrics
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// root handles GET /
func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{
		"message": "Pulse Analytics API",
		"version": apiVersion,
	})
}

// health handles GET /health with connectivity probes for the database
// and the cache
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		httputil.WriteServiceUnavailable(w, "database unreachable: "+err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			httputil.WriteServiceUnavailable(w, "cache unreachable: "+err.Error())
			return
		}
	}

	httputil.WriteSuccess(w, map[string]string{
		"status":   "healthy",
		"database": "connected",
		"cache":    "connected",
	})
}
