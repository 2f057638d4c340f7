package backend

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a thin, signed HTTP client for the external backend API. Every
// request carries an HMAC signature over timestamp, method, path, and body
// so the backend can authenticate this service.
type Client struct {
	baseURL       string
	signingSecret []byte
	httpClient    *http.Client
	now           func() time.Time
}

// Config holds backend client configuration.
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	SigningSecret string        `yaml:"signing_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		signingSecret: []byte(cfg.SigningSecret),
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: timeout,
		},
		now: time.Now,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mentiq-Timestamp", timestamp)
	req.Header.Set("X-Mentiq-Signature", c.sign(timestamp, method, path, payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d for %s %s: %s", resp.StatusCode, method, path, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// sign computes the hex HMAC-SHA256 over timestamp, method, path, and body.
func (c *Client) sign(timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, c.signingSecret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// UpdateSubscriptionRequest mirrors the backend's updateSubscription contract.
type UpdateSubscriptionRequest struct {
	UserID             string    `json:"userId"`
	PlanID             string    `json:"planId"`
	Status             string    `json:"status"`
	SubscriptionID     string    `json:"subscriptionId"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool      `json:"cancelAtPeriodEnd"`
}

// RecordPaymentRequest mirrors the backend's recordPayment contract.
type RecordPaymentRequest struct {
	UserID    string    `json:"userId"`
	InvoiceID string    `json:"invoiceId"`
	Amount    int64     `json:"amount"` // in cents
	Currency  string    `json:"currency"`
	Status    string    `json:"status"` // succeeded or failed
	PaidAt    time.Time `json:"paidAt"`
}

// SyncLog is one Mailchimp sync run recorded by the backend.
type SyncLog struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Status      string    `json:"status"`
	ContactsOut int       `json:"contactsOut"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// WaitlistEntry is one pending signup.
type WaitlistEntry struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Company   string    `json:"company,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AccountUser is a dashboard user as the backend stores it.
type AccountUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	PlanTier  string    `json:"planTier"`
	IsTest    bool      `json:"isTest"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateTestUserRequest provisions a disposable user for QA.
type CreateTestUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PlanTier string `json:"planTier"`
}

func (c *Client) UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) error {
	return c.do(ctx, http.MethodPost, "/internal/subscriptions/update", req, nil)
}

func (c *Client) RecordPayment(ctx context.Context, req RecordPaymentRequest) error {
	return c.do(ctx, http.MethodPost, "/internal/payments/record", req, nil)
}

func (c *Client) ListSyncLogs(ctx context.Context, accountID string) ([]SyncLog, error) {
	var logs []SyncLog
	if err := c.do(ctx, http.MethodGet, "/internal/mailchimp/sync-logs?accountId="+accountID, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) ListWaitlist(ctx context.Context) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	if err := c.do(ctx, http.MethodGet, "/internal/waitlist", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) ApproveWaitlistEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/internal/waitlist/"+id+"/approve", nil, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]AccountUser, error) {
	var users []AccountUser
	if err := c.do(ctx, http.MethodGet, "/internal/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) CreateTestUser(ctx context.Context, req CreateTestUserRequest) (*AccountUser, error) {
	var user AccountUser
	if err := c.do(ctx, http.MethodPost, "/internal/users/test", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
