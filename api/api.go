package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"bastion/core"
	"bastion/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// LogIngester accepts raw log events at the ingestion boundary
type LogIngester interface {
	Ingest(ctx context.Context, event *core.Event) (*core.Event, error)
}

// AlertManager exposes alert queries and lifecycle transitions
type AlertManager interface {
	GetAlerts(ctx context.Context, limit, offset int, minSeverity core.Severity) ([]core.Alert, error)
	GetAlert(ctx context.Context, id string) (*core.Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status core.AlertStatus) (*core.Alert, error)
}

// API handles HTTP endpoints for the monitor
type API struct {
	router   *mux.Router
	server   *http.Server
	logs     LogIngester
	logStore storage.LogStorageInterface
	alerts   AlertManager
	rules    storage.RuleStorageInterface
	hub      *Hub
	validate *validator.Validate
	limiter  *rateLimiter
	logger   *zap.SugaredLogger
}

// Config holds the HTTP server settings
type Config struct {
	ListenAddr     string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewAPI creates a new API server instance
func NewAPI(
	cfg Config,
	logs LogIngester,
	logStore storage.LogStorageInterface,
	alerts AlertManager,
	rules storage.RuleStorageInterface,
	hub *Hub,
	logger *zap.SugaredLogger,
) *API {
	if logger == nil {
		panic("api: logger is required")
	}

	a := &API{
		router:   mux.NewRouter(),
		logs:     logs,
		logStore: logStore,
		alerts:   alerts,
		rules:    rules,
		hub:      hub,
		validate: validator.New(),
		limiter:  newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:   logger,
	}

	a.setupRoutes()

	a.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      a.router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.loggingMiddleware)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(a.rateLimitMiddleware)

	v1.HandleFunc("/logs", a.handleCreateLog).Methods("POST")
	v1.HandleFunc("/logs", a.handleGetLogs).Methods("GET")
	v1.HandleFunc("/logs/{id}", a.handleGetLog).Methods("GET")

	v1.HandleFunc("/alerts", a.handleGetAlerts).Methods("GET")
	v1.HandleFunc("/alerts/{id}", a.handleGetAlert).Methods("GET")
	v1.HandleFunc("/alerts/{id}/status", a.handleUpdateAlertStatus).Methods("POST")

	v1.HandleFunc("/rules", a.handleGetRules).Methods("GET")
	v1.HandleFunc("/rules", a.handleCreateRule).Methods("POST")
	v1.HandleFunc("/rules/{id}", a.handleGetRule).Methods("GET")
	v1.HandleFunc("/rules/{id}", a.handleUpdateRule).Methods("PUT")
	v1.HandleFunc("/rules/{id}", a.handleDeleteRule).Methods("DELETE")
	v1.HandleFunc("/rules/{id}/enable", a.handleEnableRule).Methods("POST")
	v1.HandleFunc("/rules/{id}/disable", a.handleDisableRule).Methods("POST")

	a.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(a.hub, a.logger, w, r)
	})

	a.router.Handle("/metrics", promhttp.Handler())
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
}

// Start begins listening for HTTP requests. Blocks until the server exits.
func (a *API) Start() error {
	a.logger.Infow("API server starting", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (a *API) Shutdown(ctx context.Context) error {
	a.logger.Info("API server shutting down")
	return a.server.Shutdown(ctx)
}

// Router exposes the underlying router, mainly for tests
func (a *API) Router() http.Handler {
	return a.router
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"subscribers": a.hub.SubscriberCount(),
	})
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
