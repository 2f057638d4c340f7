package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mentiq/dashboard-api/internal/auth"
	"github.com/mentiq/dashboard-api/internal/healthscore"
)

const testSecret = "gateway-test-secret-0123456789"

func newTestGateway(t *testing.T) (*Gateway, *auth.Verifier) {
	t.Helper()
	sessions := auth.NewVerifier(testSecret, "mentiq")
	gateway := NewGateway(DefaultGatewayConfig(), Deps{
		Engine:   healthscore.NewEngine(healthscore.DefaultConfig()),
		Sessions: sessions,
	})
	return gateway, sessions
}

func bearerToken(t *testing.T, sessions *auth.Verifier, role string) string {
	t.Helper()
	token, err := sessions.Issue("user-1", "ada@example.com", role, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue test token: %v", err)
	}
	return "Bearer " + token
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, json.RawMessage, *APIError) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not a valid envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return envelope.Success, envelope.Data, envelope.Error
}

func TestHealthEndpoint(t *testing.T) {
	gateway, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	gateway.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	success, _, _ := decodeEnvelope(t, rec)
	if !success {
		t.Fatal("expected success envelope")
	}
}

func TestHealthScoreExampleEndpoint(t *testing.T) {
	gateway, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	gateway.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health-score/context", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	_, data, _ := decodeEnvelope(t, rec)

	var body struct {
		ExampleInput healthscore.Input   `json:"exampleInput"`
		Result       HealthScoreResponse `json:"result"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("failed to decode example payload: %v", err)
	}
	if body.Result.HealthScore != 71 {
		t.Fatalf("expected example health score 71, got %d", body.Result.HealthScore)
	}
	if body.ExampleInput.Engagement == nil {
		t.Fatal("example input missing engagement metrics")
	}
}

func TestHealthScoreContextRequiresAuth(t *testing.T) {
	gateway, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/health-score/context", strings.NewReader(`{"engagement":{}}`))
	gateway.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	success, _, apiErr := decodeEnvelope(t, rec)
	if success || apiErr == nil || apiErr.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED error, got %+v", apiErr)
	}
}

func TestHealthScoreContextDirectShape(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	body := `{
		"engagement": {"stickinessRatio": 0.167, "sessionFrequency": 3.5, "sessionLength": 420, "dau": 50},
		"adoption": {"adoptionRate": 0.6, "featureDepth": 8, "timeToFirstKeyAction": 2},
		"churnRisk": {"daysSinceLastLogin": 3, "rageClickCount": 0, "dropOffCount": 1,
			"supportTicketsLast30Days": 0, "bounceRate": 0.35, "errorRate": 0.02}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/health-score/context", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, sessions, "user"))
	gateway.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	_, data, _ := decodeEnvelope(t, rec)

	var result HealthScoreResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.HealthScore != 71 {
		t.Fatalf("expected health score 71, got %d", result.HealthScore)
	}
	if result.ScoreRange != healthscore.RangeHealthy {
		t.Fatalf("expected healthy range, got %q", result.ScoreRange)
	}
	if len(result.Components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(result.Components))
	}
	if result.Timestamp.IsZero() {
		t.Fatal("expected a response timestamp")
	}
}

func TestHealthScoreContextRawShape(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	body := `{
		"sessionData": {"dailyActiveUsers": 50, "monthlyActiveUsers": 300, "avgSessionsPerUser": 3.5, "avgSessionSeconds": 420},
		"churnData": {"daysSinceLastLogin": 3, "bounceRate": "35%"}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/health-score/context", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, sessions, "user"))
	gateway.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthScoreContextUnrecognizedShape(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	for _, body := range []string{`{}`, `{"foo": 1}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/health-score/context", strings.NewReader(body))
		req.Header.Set("Authorization", bearerToken(t, sessions, "user"))
		gateway.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
		_, _, apiErr := decodeEnvelope(t, rec)
		if apiErr == nil || apiErr.Code != "UNRECOGNIZED_SHAPE" {
			t.Fatalf("body %s: expected UNRECOGNIZED_SHAPE, got %+v", body, apiErr)
		}
	}
}

func TestHealthScoreContextMalformedBody(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/health-score/context", strings.NewReader(`not json`))
	req.Header.Set("Authorization", bearerToken(t, sessions, "user"))
	gateway.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnconfiguredServicesAnswer503(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	cases := []struct {
		method string
		path   string
		token  string
	}{
		{"GET", "/api/v1/billing/plans", ""},
		{"POST", "/api/v1/billing/checkout", bearerToken(t, sessions, "user")},
		{"GET", "/api/v1/mailchimp/auth-url", bearerToken(t, sessions, "user")},
		{"POST", "/api/v1/retention/email", bearerToken(t, sessions, "user")},
		{"GET", "/api/v1/admin/waitlist", bearerToken(t, sessions, "admin")},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{}`))
		if tc.token != "" {
			req.Header.Set("Authorization", tc.token)
		}
		gateway.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/admin/waitlist", nil)
	req.Header.Set("Authorization", bearerToken(t, sessions, "user"))
	gateway.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	_, _, apiErr := decodeEnvelope(t, rec)
	if apiErr == nil || apiErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN error, got %+v", apiErr)
	}
}

func TestRequestIDHeader(t *testing.T) {
	gateway, _ := newTestGateway(t)

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		gateway.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatal("expected a generated X-Request-ID header")
		}
	})

	t.Run("echoed when present", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		req.Header.Set("X-Request-ID", "req-abc")
		gateway.Handler().ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "req-abc" {
			t.Fatalf("expected echoed request ID, got %q", got)
		}
	})
}

func TestMetricsTracking(t *testing.T) {
	gateway, sessions := newTestGateway(t)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		gateway.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/admin/metrics", nil)
	req.Header.Set("Authorization", bearerToken(t, sessions, "admin"))
	gateway.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	_, data, _ := decodeEnvelope(t, rec)

	var metrics struct {
		RequestsTotal  int64            `json:"requests_total"`
		RequestsByPath map[string]int64 `json:"requests_by_path"`
	}
	if err := json.Unmarshal(data, &metrics); err != nil {
		t.Fatalf("failed to decode metrics: %v", err)
	}
	if metrics.RequestsTotal < 3 {
		t.Fatalf("expected at least 3 requests recorded, got %d", metrics.RequestsTotal)
	}
	if metrics.RequestsByPath["/api/v1/health"] != 3 {
		t.Fatalf("expected 3 health requests, got %d", metrics.RequestsByPath["/api/v1/health"])
	}
}
