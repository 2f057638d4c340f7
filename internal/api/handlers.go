package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mentiq/dashboard-api/internal/auth"
	"github.com/mentiq/dashboard-api/internal/backend"
	"github.com/mentiq/dashboard-api/internal/billing"
	"github.com/mentiq/dashboard-api/internal/events"
	"github.com/mentiq/dashboard-api/internal/healthscore"
)

// HealthScoreResponse is the wire shape of a computed health score. The
// overall score travels as healthScore on the wire; the timestamp is
// attached here at the boundary, never by the engine.
type HealthScoreResponse struct {
	HealthScore     int                              `json:"healthScore"`
	ScoreRange      healthscore.Range                `json:"scoreRange"`
	Components      map[string]healthscore.Component `json:"components"`
	Recommendations []string                         `json:"recommendations"`
	Signals         []healthscore.Signal             `json:"signals"`
	LLMContext      healthscore.LLMContext           `json:"llmContext"`
	Timestamp       time.Time                        `json:"timestamp"`
}

func newHealthScoreResponse(result healthscore.Result, at time.Time) HealthScoreResponse {
	return HealthScoreResponse{
		HealthScore:     result.OverallScore,
		ScoreRange:      result.ScoreRange,
		Components:      result.Components,
		Recommendations: result.Recommendations,
		Signals:         result.Signals,
		LLMContext:      result.LLMContext,
		Timestamp:       at,
	}
}

// POST /api/v1/health-score/context
func (g *Gateway) handleHealthScoreContext(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body", "")
		return
	}
	defer r.Body.Close()

	input, err := healthscore.ResolveInput(body)
	if err != nil {
		if errors.Is(err, healthscore.ErrUnrecognizedShape) {
			writeErrorResponse(w, http.StatusBadRequest, "UNRECOGNIZED_SHAPE",
				"Body matches neither health-score input nor raw analytics shape", "")
			return
		}
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	result := g.deps.Engine.Calculate(input)
	now := time.Now().UTC()

	if g.deps.Events != nil {
		event := events.ScoreComputedEvent{
			Score:      result.OverallScore,
			ScoreRange: result.ScoreRange,
			OccurredAt: now,
		}
		if session, err := auth.FromContext(r.Context()); err == nil {
			event.AccountID = session.UserID
		}
		// Best effort: a publish failure never fails the request.
		if err := g.deps.Events.PublishScoreComputed(r.Context(), event); err != nil {
			log.Printf("Failed to publish score event: %v", err)
		}
	}

	writeSuccessResponse(w, newHealthScoreResponse(result, now))
}

// GET /api/v1/health-score/context
//
// Illustrative endpoint: returns a documented example input together with
// the engine's output for it.
func (g *Gateway) handleHealthScoreExample(w http.ResponseWriter, r *http.Request) {
	input := healthscore.ExampleInput()
	result := g.deps.Engine.Calculate(input)

	writeSuccessResponse(w, map[string]interface{}{
		"exampleInput": input,
		"result":       newHealthScoreResponse(result, time.Now().UTC()),
	})
}

// GET /api/v1/health
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccessResponse(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// GET /api/v1/admin/metrics
func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.metrics.mu.Lock()
	snapshot := struct {
		RequestsTotal    int64            `json:"requests_total"`
		RequestsFailed   int64            `json:"requests_failed"`
		RequestsByPath   map[string]int64 `json:"requests_by_path"`
		RequestsByMethod map[string]int64 `json:"requests_by_method"`
		RequestsByStatus map[int]int64    `json:"requests_by_status"`
		LastRequest      time.Time        `json:"last_request"`
	}{
		RequestsTotal:    g.metrics.RequestsTotal,
		RequestsFailed:   g.metrics.RequestsFailed,
		RequestsByPath:   copyCounters(g.metrics.RequestsByPath),
		RequestsByMethod: copyCounters(g.metrics.RequestsByMethod),
		RequestsByStatus: copyStatusCounters(g.metrics.RequestsByStatus),
		LastRequest:      g.metrics.LastRequest,
	}
	g.metrics.mu.Unlock()

	writeSuccessResponse(w, snapshot)
}

func copyCounters(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStatusCounters(m map[int]int64) map[int]int64 {
	out := make(map[int]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Billing handlers

type CreateCheckoutRequest struct {
	PlanID string `json:"planId"`
}

// POST /api/v1/billing/checkout
func (g *Gateway) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if g.deps.Billing == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Billing is not configured", "")
		return
	}

	session, err := auth.FromContext(r.Context())
	if err != nil {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", "")
		return
	}

	var req CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "planId is required", "")
		return
	}

	checkoutURL, err := g.deps.Billing.CreateCheckoutSession(r.Context(), session.UserID, session.Email, req.PlanID)
	if err != nil {
		log.Printf("Failed to create checkout session: %v", err)
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create checkout session", "")
		return
	}

	writeSuccessResponse(w, map[string]string{"checkoutUrl": checkoutURL})
}

// GET /api/v1/billing/plans
func (g *Gateway) handleListPlans(w http.ResponseWriter, r *http.Request) {
	if g.deps.Billing == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Billing is not configured", "")
		return
	}
	writeSuccessResponse(w, g.deps.Billing.Plans())
}

// POST /api/v1/billing/webhook
func (g *Gateway) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if g.deps.Billing == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Billing is not configured", "")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read webhook payload", "")
		return
	}
	defer r.Body.Close()

	err = g.deps.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			writeErrorResponse(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Webhook signature verification failed", "")
			return
		}
		log.Printf("Failed to process webhook: %v", err)
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process webhook", "")
		return
	}

	writeSuccessResponse(w, map[string]bool{"received": true})
}

// Mailchimp handlers

// GET /api/v1/mailchimp/auth-url
func (g *Gateway) handleMailchimpAuthURL(w http.ResponseWriter, r *http.Request) {
	if g.deps.Mailchimp == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Mailchimp is not configured", "")
		return
	}

	session, err := auth.FromContext(r.Context())
	if err != nil {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", "")
		return
	}

	writeSuccessResponse(w, map[string]interface{}{
		"authUrl":   g.deps.Mailchimp.AuthURL(session.UserID),
		"connected": g.deps.Mailchimp.Connected(r.Context(), session.UserID),
	})
}

// GET /api/v1/mailchimp/callback
//
// OAuth redirect target. The state parameter carries the account ID that
// initiated the flow via the auth-url endpoint.
func (g *Gateway) handleMailchimpCallback(w http.ResponseWriter, r *http.Request) {
	if g.deps.Mailchimp == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Mailchimp is not configured", "")
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "code and state are required", "")
		return
	}

	if err := g.deps.Mailchimp.ExchangeCode(r.Context(), code, state); err != nil {
		log.Printf("Mailchimp token exchange failed: %v", err)
		writeErrorResponse(w, http.StatusBadGateway, "EXCHANGE_FAILED", "Failed to complete Mailchimp authorization", "")
		return
	}

	writeSuccessResponse(w, map[string]bool{"connected": true})
}

// GET /api/v1/mailchimp/sync-logs
func (g *Gateway) handleMailchimpSyncLogs(w http.ResponseWriter, r *http.Request) {
	if g.deps.Mailchimp == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Mailchimp is not configured", "")
		return
	}

	session, err := auth.FromContext(r.Context())
	if err != nil {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", "")
		return
	}

	logs, err := g.deps.Mailchimp.SyncLogs(r.Context(), session.UserID)
	if err != nil {
		log.Printf("Failed to fetch sync logs: %v", err)
		writeErrorResponse(w, http.StatusBadGateway, "BACKEND_ERROR", "Failed to fetch sync logs", "")
		return
	}

	writeSuccessResponse(w, logs)
}

// Retention handlers

type RetentionEmailRequest struct {
	LLMContext healthscore.LLMContext `json:"llmContext"`
}

// POST /api/v1/retention/email
func (g *Gateway) handleRetentionEmail(w http.ResponseWriter, r *http.Request) {
	if g.deps.Composer == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Retention email drafting is not configured", "")
		return
	}

	var req RetentionEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LLMContext.Summary == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "llmContext with a summary is required", "")
		return
	}

	draft, err := g.deps.Composer.ComposeEmail(r.Context(), req.LLMContext)
	if err != nil {
		log.Printf("Failed to compose retention email: %v", err)
		writeErrorResponse(w, http.StatusBadGateway, "COMPOSE_FAILED", "Failed to draft retention email", "")
		return
	}

	writeSuccessResponse(w, draft)
}

// Admin handlers

// GET /api/v1/admin/waitlist
func (g *Gateway) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	if g.deps.Admin == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Admin surface is not configured", "")
		return
	}

	entries, err := g.deps.Admin.Waitlist(r.Context())
	if err != nil {
		log.Printf("Failed to list waitlist: %v", err)
		writeErrorResponse(w, http.StatusBadGateway, "BACKEND_ERROR", "Failed to list waitlist", "")
		return
	}
	writeSuccessResponse(w, entries)
}

// POST /api/v1/admin/waitlist/{id}/approve
func (g *Gateway) handleApproveWaitlist(w http.ResponseWriter, r *http.Request) {
	if g.deps.Admin == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Admin surface is not configured", "")
		return
	}

	id := mux.Vars(r)["id"]
	if err := g.deps.Admin.ApproveWaitlistEntry(r.Context(), id); err != nil {
		log.Printf("Failed to approve waitlist entry %s: %v", id, err)
		writeErrorResponse(w, http.StatusBadGateway, "BACKEND_ERROR", "Failed to approve waitlist entry", "")
		return
	}
	writeSuccessResponse(w, map[string]string{"id": id, "status": "approved"})
}

// GET /api/v1/admin/users
func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if g.deps.Admin == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Admin surface is not configured", "")
		return
	}

	users, err := g.deps.Admin.Users(r.Context())
	if err != nil {
		log.Printf("Failed to list users: %v", err)
		writeErrorResponse(w, http.StatusBadGateway, "BACKEND_ERROR", "Failed to list users", "")
		return
	}
	writeSuccessResponse(w, users)
}

// POST /api/v1/admin/test-users
func (g *Gateway) handleCreateTestUser(w http.ResponseWriter, r *http.Request) {
	if g.deps.Admin == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Admin surface is not configured", "")
		return
	}

	var req backend.CreateTestUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	testUser, err := g.deps.Admin.CreateTestUser(r.Context(), req)
	if err != nil {
		log.Printf("Failed to create test user: %v", err)
		writeErrorResponse(w, http.StatusBadGateway, "BACKEND_ERROR", "Failed to create test user", "")
		return
	}
	writeSuccessResponse(w, testUser)
}
