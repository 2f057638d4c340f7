package mailchimp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mentiq/dashboard-api/internal/backend"
)

const (
	authorizeURL = "https://login.mailchimp.com/oauth2/authorize"
	tokenURL     = "https://login.mailchimp.com/oauth2/token"
)

// Service handles the Mailchimp OAuth exchange and proxies sync-log reads
// from the backend. Access tokens are kept in the injected TokenStore, not
// in process-wide state, so handlers stay independently testable.
type Service struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
	tokens       TokenStore
	backend      *backend.Client
}

// Config holds Mailchimp OAuth configuration.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

func NewService(cfg Config, tokens TokenStore, backendClient *backend.Client) *Service {
	return &Service{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		tokens:       tokens,
		backend:      backendClient,
	}
}

// AuthURL builds the Mailchimp authorization URL. The state parameter
// round-trips the account ID through the OAuth redirect.
func (s *Service) AuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.clientID)
	q.Set("redirect_uri", s.redirectURL)
	q.Set("state", state)
	return authorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for an access token and stores
// it for the account.
func (s *Service) ExchangeCode(ctx context.Context, code, accountID string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("redirect_uri", s.redirectURL)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("token exchange returned empty access token")
	}

	return s.tokens.Save(ctx, accountID, body.AccessToken)
}

// Connected reports whether the account has a stored Mailchimp token.
func (s *Service) Connected(ctx context.Context, accountID string) bool {
	token, err := s.tokens.Get(ctx, accountID)
	return err == nil && token != ""
}

// SyncLogs returns the backend's record of Mailchimp sync runs for an account.
func (s *Service) SyncLogs(ctx context.Context, accountID string) ([]backend.SyncLog, error) {
	return s.backend.ListSyncLogs(ctx, accountID)
}
