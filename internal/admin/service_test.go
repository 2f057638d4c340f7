package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mentiq/dashboard-api/internal/auth"
	"github.com/mentiq/dashboard-api/internal/backend"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *auth.Verifier) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := backend.NewClient(backend.Config{
		BaseURL:       srv.URL,
		SigningSecret: "test-signing-secret",
	})
	sessions := auth.NewVerifier("admin-test-secret-0123456789", "mentiq")
	return NewService(client, sessions), sessions
}

func TestApproveWaitlistEntryRequiresID(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called for an empty id")
	})

	if err := svc.ApproveWaitlistEntry(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty waitlist id")
	}
}

func TestCreateTestUser(t *testing.T) {
	svc, sessions := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/users/test" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req backend.CreateTestUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req.PlanTier != "launch" {
			t.Errorf("expected default plan tier launch, got %q", req.PlanTier)
		}
		json.NewEncoder(w).Encode(backend.AccountUser{
			ID: "u-1", Email: req.Email, PlanTier: req.PlanTier, IsTest: true,
		})
	})

	testUser, err := svc.CreateTestUser(context.Background(), backend.CreateTestUserRequest{
		Email: "qa@example.com",
	})
	if err != nil {
		t.Fatalf("CreateTestUser failed: %v", err)
	}
	if testUser.User.ID != "u-1" || !testUser.User.IsTest {
		t.Fatalf("unexpected user: %+v", testUser.User)
	}

	session, err := sessions.Verify(testUser.SessionToken)
	if err != nil {
		t.Fatalf("issued session token does not verify: %v", err)
	}
	if session.UserID != "u-1" || session.Role != "user" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestCreateTestUserRequiresEmail(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called without an email")
	})

	if _, err := svc.CreateTestUser(context.Background(), backend.CreateTestUserRequest{}); err == nil {
		t.Fatal("expected error for missing email")
	}
}
