package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const loginPath = "/services/auth/login"

// AuthStrategy selects how the client authenticates. Exactly two
// strategies exist: a static token, which never re-authenticates, and a
// username/password session, which holds a replaceable session key.
type AuthStrategy interface {
	// sessionBased reports whether the strategy can recover from an auth
	// failure by logging in again.
	sessionBased() bool
}

// TokenAuth authenticates every request with a static API token. A static
// token cannot self-heal: auth failures surface immediately.
type TokenAuth struct {
	Token string
}

func (TokenAuth) sessionBased() bool { return false }

// SessionAuth authenticates by exchanging a username and password for a
// session key at login, replacing the key on expiry.
type SessionAuth struct {
	Username string
	Password string
}

func (SessionAuth) sessionBased() bool { return true }

// SessionManager owns the authentication strategy and the current session
// credential. Safe for concurrent use; re-authentication is single-flight,
// so concurrent callers hitting an expired session share one login.
type SessionManager struct {
	strategy  AuthStrategy
	transport Transport

	mu         sync.RWMutex
	sessionKey string
	expiry     time.Time // zero when the key carries no expiry

	reauth singleflight.Group
}

// NewSessionManager creates a session manager for the given strategy.
func NewSessionManager(strategy AuthStrategy, transport Transport) *SessionManager {
	return &SessionManager{
		strategy:  strategy,
		transport: transport,
	}
}

// Username returns the session owner, empty for token strategies.
func (m *SessionManager) Username() string {
	if auth, ok := m.strategy.(SessionAuth); ok {
		return auth.Username
	}
	return ""
}

// sessionBased reports whether the manager can recover from auth failures.
func (m *SessionManager) sessionBased() bool {
	return m.strategy.sessionBased()
}

// Login performs the authentication exchange. For TokenAuth it is a no-op
// success: the static token already is the credential. For SessionAuth it
// posts the credentials and stores the resulting session key.
func (m *SessionManager) Login(ctx context.Context) error {
	auth, ok := m.strategy.(SessionAuth)
	if !ok {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"username": auth.Username,
		"password": auth.Password,
	})
	if err != nil {
		return invalidResponse("encoding login request", err)
	}

	req := &Request{Method: http.MethodPost, Path: loginPath, Body: body}
	req.SetHeader("Content-Type", "application/json")

	resp, err := m.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
		return authFailed("credentials rejected for "+auth.Username, nil)
	}
	if apiErr := classifyResponse(resp, loginPath, false, ""); apiErr != nil {
		return apiErr
	}

	var payload struct {
		SessionKey string `json:"session_key"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil || payload.SessionKey == "" {
		return invalidResponse("login response missing session key", err)
	}

	m.mu.Lock()
	m.sessionKey = payload.SessionKey
	m.expiry = sessionKeyExpiry(payload.SessionKey)
	m.mu.Unlock()

	return nil
}

// Attach adds the current credential to an outgoing request. For session
// strategies an expired key fails with SessionExpired before any round
// trip, which the executor recovers from like any other auth failure.
func (m *SessionManager) Attach(req *Request) error {
	switch auth := m.strategy.(type) {
	case TokenAuth:
		req.SetHeader("Authorization", "Bearer "+auth.Token)
		return nil

	case SessionAuth:
		m.mu.RLock()
		key, expiry := m.sessionKey, m.expiry
		m.mu.RUnlock()

		if key == "" {
			return sessionExpired(auth.Username)
		}
		if !expiry.IsZero() && time.Now().After(expiry) {
			return sessionExpired(auth.Username)
		}
		req.SetHeader("Authorization", "Bearer "+key)
		return nil
	}

	return authFailed("unknown auth strategy", nil)
}

// HandleAuthFailure attempts credential recovery after an auth failure.
// For TokenAuth it returns the failure immediately: no retry is possible.
// For SessionAuth it re-invokes Login; concurrent callers share a single
// in-flight login rather than issuing their own, and all of them observe
// its outcome. A failed re-login propagates the login error so operators
// see the root cause, not the original 401.
func (m *SessionManager) HandleAuthFailure(ctx context.Context) error {
	if !m.strategy.sessionBased() {
		return unauthorized("static token rejected by server")
	}

	_, err, _ := m.reauth.Do("relogin", func() (any, error) {
		return nil, m.Login(ctx)
	})
	return err
}

// sessionKeyExpiry reads the expiry claim from a JWT-format session key.
// The key is parsed unverified: the client holds no signing key, and the
// claim is only used to refresh proactively instead of burning a round
// trip on a guaranteed 401. Opaque keys yield a zero expiry.
func sessionKeyExpiry(key string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
