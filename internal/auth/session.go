package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session identifies the authenticated caller of a request. Sessions are
// issued by the external auth provider; this package only verifies them.
type Session struct {
	UserID string
	Email  string
	Role   string
}

// Claims is the token payload shared with the auth provider.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates bearer session tokens.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a session token string.
func (v *Verifier) Verify(tokenStr string) (*Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}
	return &Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// VerifyRequest extracts and validates the bearer token from a request.
func (v *Verifier) VerifyRequest(r *http.Request) (*Session, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("malformed Authorization header")
	}
	return v.Verify(parts[1])
}

// Issue creates a signed session token. Used for test-user provisioning and
// in tests; production sessions come from the auth provider.
func (v *Verifier) Issue(userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession attaches a session to a request context.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// FromContext returns the session attached to a request context.
func FromContext(ctx context.Context) (*Session, error) {
	value := ctx.Value(sessionContextKey)
	if value == nil {
		return nil, fmt.Errorf("no session in context")
	}
	session, ok := value.(*Session)
	if !ok {
		return nil, fmt.Errorf("invalid session type in context")
	}
	return session, nil
}
