package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/mentiq/dashboard-api/internal/admin"
	"github.com/mentiq/dashboard-api/internal/auth"
	"github.com/mentiq/dashboard-api/internal/billing"
	"github.com/mentiq/dashboard-api/internal/events"
	"github.com/mentiq/dashboard-api/internal/healthscore"
	"github.com/mentiq/dashboard-api/internal/mailchimp"
	"github.com/mentiq/dashboard-api/internal/retention"
)

// Gateway is the HTTP boundary of the dashboard API.
type Gateway struct {
	server  *http.Server
	router  *mux.Router
	config  GatewayConfig
	deps    Deps
	metrics *GatewayMetrics
}

// Deps carries the services the gateway routes to. Billing, Mailchimp,
// Admin, Composer, and Events may be nil; their routes then answer 503.
type Deps struct {
	Engine    *healthscore.Engine
	Sessions  *auth.Verifier
	Billing   *billing.Service
	Mailchimp *mailchimp.Service
	Admin     *admin.Service
	Composer  *retention.Composer
	Events    events.Producer
}

// GatewayConfig represents gateway configuration.
type GatewayConfig struct {
	Host           string        `yaml:"host" json:"host"`
	Port           int           `yaml:"port" json:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
	MaxRequestSize int64         `yaml:"max_request_size" json:"max_request_size"`
}

// DefaultGatewayConfig returns default gateway configuration.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		MaxRequestSize: 1 << 20, // 1MB
	}
}

// GatewayMetrics tracks request counts per path, method, and status.
type GatewayMetrics struct {
	mu               sync.Mutex
	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	RequestsByPath   map[string]int64 `json:"requests_by_path"`
	RequestsByMethod map[string]int64 `json:"requests_by_method"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
}

// NewGateway creates the API gateway and wires all routes.
func NewGateway(config GatewayConfig, deps Deps) *Gateway {
	router := mux.NewRouter()

	gateway := &Gateway{
		router: router,
		config: config,
		deps:   deps,
		metrics: &GatewayMetrics{
			RequestsByPath:   make(map[string]int64),
			RequestsByMethod: make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
	}

	gateway.setupMiddleware()
	gateway.setupRoutes()

	handler := http.Handler(router)
	if config.EnableCORS {
		handler = cors.New(cors.Options{
			AllowedOrigins:   config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	gateway.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return gateway
}

func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", g.handleHealth).Methods("GET")
	api.HandleFunc("/health-score/context", g.handleHealthScoreExample).Methods("GET")
	api.HandleFunc("/billing/plans", g.handleListPlans).Methods("GET")
	api.HandleFunc("/billing/webhook", g.handleStripeWebhook).Methods("POST")
	api.HandleFunc("/mailchimp/callback", g.handleMailchimpCallback).Methods("GET")

	// Authenticated routes
	protected := api.NewRoute().Subrouter()
	protected.Use(g.authMiddleware)
	protected.HandleFunc("/health-score/context", g.handleHealthScoreContext).Methods("POST")
	protected.HandleFunc("/billing/checkout", g.handleCreateCheckout).Methods("POST")
	protected.HandleFunc("/mailchimp/auth-url", g.handleMailchimpAuthURL).Methods("GET")
	protected.HandleFunc("/mailchimp/sync-logs", g.handleMailchimpSyncLogs).Methods("GET")
	protected.HandleFunc("/retention/email", g.handleRetentionEmail).Methods("POST")

	// Admin routes
	adminRoutes := api.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(g.authMiddleware, g.adminMiddleware)
	adminRoutes.HandleFunc("/waitlist", g.handleListWaitlist).Methods("GET")
	adminRoutes.HandleFunc("/waitlist/{id}/approve", g.handleApproveWaitlist).Methods("POST")
	adminRoutes.HandleFunc("/users", g.handleListUsers).Methods("GET")
	adminRoutes.HandleFunc("/test-users", g.handleCreateTestUser).Methods("POST")
	adminRoutes.HandleFunc("/metrics", g.handleMetrics).Methods("GET")
}

func (g *Gateway) setupMiddleware() {
	g.router.Use(g.requestIDMiddleware)
	g.router.Use(g.securityHeadersMiddleware)
	g.router.Use(g.metricsMiddleware)
}

// Start starts the API gateway.
func (g *Gateway) Start() error {
	log.Printf("Starting API gateway on %s", g.server.Addr)
	return g.server.ListenAndServe()
}

// Stop stops the API gateway.
func (g *Gateway) Stop(ctx context.Context) error {
	log.Printf("Stopping API gateway")
	return g.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Response envelope

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	writeJSONResponse(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func writeSuccessResponse(w http.ResponseWriter, data interface{}) {
	writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// Middleware

func (g *Gateway) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := g.deps.Sessions.VerifyRequest(r)
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

func (g *Gateway) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := auth.FromContext(r.Context())
		if err != nil || session.Role != "admin" {
			writeErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		g.updateMetrics(r, wrapped.statusCode)
	})
}

func (g *Gateway) updateMetrics(r *http.Request, statusCode int) {
	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()

	g.metrics.RequestsTotal++
	if statusCode >= 500 {
		g.metrics.RequestsFailed++
	}
	g.metrics.RequestsByPath[r.URL.Path]++
	g.metrics.RequestsByMethod[r.Method]++
	g.metrics.RequestsByStatus[statusCode]++
	g.metrics.LastRequest = time.Now()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
