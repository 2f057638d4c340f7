package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/mentiq/dashboard-api/internal/auth"
	"github.com/mentiq/dashboard-api/internal/backend"
)

// Service exposes the admin surface: waitlist review, user listing, and
// test-user provisioning. All state lives in the backend; this is a thin
// proxy layer.
type Service struct {
	backend  *backend.Client
	sessions *auth.Verifier
}

func NewService(backendClient *backend.Client, sessions *auth.Verifier) *Service {
	return &Service{backend: backendClient, sessions: sessions}
}

func (s *Service) Waitlist(ctx context.Context) ([]backend.WaitlistEntry, error) {
	return s.backend.ListWaitlist(ctx)
}

func (s *Service) ApproveWaitlistEntry(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("waitlist entry id is required")
	}
	return s.backend.ApproveWaitlistEntry(ctx, id)
}

func (s *Service) Users(ctx context.Context) ([]backend.AccountUser, error) {
	return s.backend.ListUsers(ctx)
}

// TestUser bundles a provisioned test user with a ready-to-use session token.
type TestUser struct {
	User         backend.AccountUser `json:"user"`
	SessionToken string              `json:"sessionToken"`
}

// CreateTestUser provisions a disposable user in the backend and issues a
// short-lived session token for it so QA can log in immediately.
func (s *Service) CreateTestUser(ctx context.Context, req backend.CreateTestUserRequest) (*TestUser, error) {
	if req.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if req.PlanTier == "" {
		req.PlanTier = "launch"
	}

	user, err := s.backend.CreateTestUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}

	token, err := s.sessions.Issue(user.ID, user.Email, "user", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &TestUser{User: *user, SessionToken: token}, nil
}
