package mailchimp

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func TestAuthURL(t *testing.T) {
	svc := NewService(Config{
		ClientID:    "client-123",
		RedirectURL: "https://app.example.com/api/v1/mailchimp/callback",
	}, NewMemoryTokenStore(), nil)

	raw := svc.AuthURL("acct-42")
	if !strings.HasPrefix(raw, authorizeURL+"?") {
		t.Fatalf("unexpected auth URL: %s", raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("auth URL does not parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("client_id") != "client-123" {
		t.Errorf("missing client_id: %s", raw)
	}
	if q.Get("state") != "acct-42" {
		t.Errorf("state must carry the account ID: %s", raw)
	}
	if q.Get("response_type") != "code" {
		t.Errorf("missing response_type: %s", raw)
	}
	if q.Get("redirect_uri") != "https://app.example.com/api/v1/mailchimp/callback" {
		t.Errorf("missing redirect_uri: %s", raw)
	}
}

func TestConnected(t *testing.T) {
	tokens := NewMemoryTokenStore()
	svc := NewService(Config{ClientID: "client-123"}, tokens, nil)
	ctx := context.Background()

	if svc.Connected(ctx, "acct-1") {
		t.Fatal("account must not be connected before a token is stored")
	}

	if err := tokens.Save(ctx, "acct-1", "token-abc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !svc.Connected(ctx, "acct-1") {
		t.Fatal("account must be connected after a token is stored")
	}
	if svc.Connected(ctx, "acct-2") {
		t.Fatal("other accounts must stay disconnected")
	}
}

func TestMemoryTokenStore(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	token, err := store.Get(ctx, "missing")
	if err != nil || token != "" {
		t.Fatalf("expected empty token for unknown account, got %q, %v", token, err)
	}

	if err := store.Save(ctx, "acct-1", "token-1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "acct-1", "token-2"); err != nil {
		t.Fatalf("Save overwrite failed: %v", err)
	}

	token, err = store.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if token != "token-2" {
		t.Fatalf("expected latest token, got %q", token)
	}
}
