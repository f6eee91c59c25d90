package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/searchctl/resilience"
)

// fakeTransport is the test double for the wire layer. The handler sees
// every request after credential attachment; calls are recorded for
// attempt-count assertions.
type fakeTransport struct {
	mu      sync.Mutex
	handler func(ctx context.Context, req *Request) (*Response, error)
	calls   []recordedCall
}

type recordedCall struct {
	Method        string
	Path          string
	Authorization string
}

func (f *fakeTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call := recordedCall{Method: req.Method, Path: req.Path}
	if req.Header != nil {
		call.Authorization = req.Header.Get("Authorization")
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return nil, connectionRefused("fake", nil)
	}
	return handler(ctx, req)
}

// countPath returns how many requests hit the given path.
func (f *fakeTransport) countPath(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// lastAuth returns the Authorization header of the most recent request to
// the given path.
func (f *fakeTransport) lastAuth(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Path == path {
			return f.calls[i].Authorization
		}
	}
	return ""
}

func jsonResponse(status int, body string) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: []byte(body)}
}

// fastBackoff keeps retry sleeps out of test runtime.
func fastBackoff() *resilience.Backoff {
	return resilience.NewBackoff(resilience.BackoffConfig{
		Strategy:     resilience.BackoffConstant,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	})
}

func newTestClient(t *testing.T, config Config, handler func(ctx context.Context, req *Request) (*Response, error)) (*Client, *fakeTransport) {
	t.Helper()

	ft := &fakeTransport{handler: handler}
	config.Transport = ft
	if config.BaseURL == "" {
		config.BaseURL = "https://search.example:8089"
	}
	if config.Backoff == nil {
		config.Backoff = fastBackoff()
	}

	c, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, ft
}

// TestNew_Validation covers construction failures.
func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{BaseURL: "https://search.example:8089"}); err == nil {
		t.Error("expected error for missing auth strategy")
	}

	_, err := New(Config{BaseURL: "ftp://search.example", Auth: TokenAuth{Token: "t"}})
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindInvalidURL {
		t.Errorf("expected invalid-url error, got %v", err)
	}
}

// TestClient_ServerInfo verifies the basic decode path.
func TestClient_ServerInfo(t *testing.T) {
	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(200, `{"server_name":"idx-1","version":"9.2.1","roles":["indexer"]}`), nil
	})

	info, err := c.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}
	if info.ServerName != "idx-1" || info.Version != "9.2.1" {
		t.Errorf("info = %+v", info)
	}
	if got := ft.lastAuth("/services/server/info"); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", got)
	}
}

// TestClient_SessionExpiryRecovery is the canonical recovery flow: a stale
// session key draws a 401, the client re-logs-in exactly once, and the
// retried attempt carries the fresh key.
func TestClient_SessionExpiryRecovery(t *testing.T) {
	var mu sync.Mutex
	logins := 0
	validKey := ""

	handler := func(ctx context.Context, req *Request) (*Response, error) {
		mu.Lock()
		defer mu.Unlock()

		if req.Path == loginPath {
			logins++
			validKey = fmt.Sprintf("k%d", logins)
			return jsonResponse(200, fmt.Sprintf(`{"session_key":%q}`, validKey)), nil
		}
		if req.Header.Get("Authorization") != "Bearer "+validKey {
			return jsonResponse(401, `{"message":"session invalid"}`), nil
		}
		return jsonResponse(200, `{"server_name":"idx-1"}`), nil
	}

	c, ft := newTestClient(t, Config{Auth: SessionAuth{Username: "admin", Password: "x"}}, handler)

	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Invalidate the session server-side: the held key k1 now draws 401.
	mu.Lock()
	validKey = "rotated"
	mu.Unlock()

	info, err := c.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerInfo after expiry: %v", err)
	}
	if info.ServerName != "idx-1" {
		t.Errorf("info = %+v", info)
	}

	if got := ft.countPath("/services/server/info"); got != 2 {
		t.Errorf("server/info attempts = %d, want 2 (failed + recovered)", got)
	}
	if got := ft.countPath(loginPath); got != 2 {
		t.Errorf("logins = %d, want 2 (initial + recovery)", got)
	}
	if got := ft.lastAuth("/services/server/info"); got != "Bearer k2" {
		t.Errorf("recovered attempt Authorization = %q, want Bearer k2", got)
	}
}

// TestClient_FirstRequestAutoLogin verifies a session client needs no
// explicit Login: the first request recovers from the missing key.
func TestClient_FirstRequestAutoLogin(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		if req.Path == loginPath {
			return jsonResponse(200, `{"session_key":"k1"}`), nil
		}
		if req.Header.Get("Authorization") != "Bearer k1" {
			return jsonResponse(401, ""), nil
		}
		return jsonResponse(200, `{"server_name":"idx-1"}`), nil
	}

	c, ft := newTestClient(t, Config{Auth: SessionAuth{Username: "admin", Password: "x"}}, handler)

	if _, err := c.ServerInfo(context.Background()); err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}

	// The missing key fails pre-flight, so the wire sees exactly one
	// authenticated request plus one login.
	if got := ft.countPath("/services/server/info"); got != 1 {
		t.Errorf("server/info attempts = %d, want 1", got)
	}
	if got := ft.countPath(loginPath); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
}

// TestClient_TokenRejectedFailsImmediately verifies the token strategy
// never attempts recovery.
func TestClient_TokenRejectedFailsImmediately(t *testing.T) {
	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "stale"}}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(401, `{"message":"token revoked"}`), nil
	})

	_, err := c.ServerInfo(context.Background())
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	if got := ft.countPath("/services/server/info"); got != 1 {
		t.Errorf("attempts = %d, want 1 (no recovery, no retry)", got)
	}
	if got := ft.countPath(loginPath); got != 0 {
		t.Errorf("logins = %d, want 0 for token strategy", got)
	}
}

// TestClient_SecondAuthFailurePropagates verifies recovery runs at most
// once per operation: a 401 after a successful re-login is terminal.
func TestClient_SecondAuthFailurePropagates(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		if req.Path == loginPath {
			return jsonResponse(200, `{"session_key":"k1"}`), nil
		}
		return jsonResponse(401, ""), nil // rejects every key
	}

	c, ft := newTestClient(t, Config{Auth: SessionAuth{Username: "admin", Password: "x"}}, handler)

	_, err := c.ServerInfo(context.Background())
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindSessionExpired {
		t.Fatalf("expected session-expired error, got %v", err)
	}

	if got := ft.countPath(loginPath); got != 1 {
		t.Errorf("logins = %d, want exactly 1 recovery attempt", got)
	}
}

// TestClient_RetriesServerErrors verifies transient 5xx responses are
// retried within the budget.
func TestClient_RetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}, MaxRetries: 3}, func(ctx context.Context, req *Request) (*Response, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			return jsonResponse(500, `{"message":"splunkd restarting"}`), nil
		}
		return jsonResponse(200, `{"server_name":"idx-1"}`), nil
	})

	if _, err := c.ServerInfo(context.Background()); err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}
	if got := ft.countPath("/services/server/info"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

// TestClient_ExhaustedBudgetReturnsLastError verifies the final failure is
// the one reported.
func TestClient_ExhaustedBudgetReturnsLastError(t *testing.T) {
	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}, MaxRetries: 2}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(503, `{"message":"overloaded"}`), nil
	})

	_, err := c.ServerInfo(context.Background())
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindAPIError || ce.Status != 503 {
		t.Fatalf("expected API error 503, got %v", err)
	}
	if got := ft.countPath("/services/server/info"); got != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
}

// TestClient_FailsFastOnClientError verifies 4xx responses are never
// retried.
func TestClient_FailsFastOnClientError(t *testing.T) {
	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}, MaxRetries: 3}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(400, `{"message":"bad search syntax"}`), nil
	})

	_, err := c.CreateSearchJob(context.Background(), "index=| bogus", SearchJobOptions{})
	var ce *Error
	if !errors.As(err, &ce) || ce.Status != 400 {
		t.Fatalf("expected API error 400, got %v", err)
	}
	if got := ft.countPath("/services/search/jobs"); got != 1 {
		t.Errorf("attempts = %d, want 1 (fail fast)", got)
	}
}

// TestClient_RateLimitedThenSuccess verifies 429 is retryable.
func TestClient_RateLimitedThenSuccess(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return jsonResponse(429, ""), nil
		}
		return jsonResponse(200, `{"server_name":"idx-1"}`), nil
	})

	if _, err := c.ServerInfo(context.Background()); err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}
	if got := ft.countPath("/services/server/info"); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

// TestClient_BreakerOpensAndRejects verifies repeated failures open the
// endpoint's circuit and subsequent calls are rejected without touching the
// wire.
func TestClient_BreakerOpensAndRejects(t *testing.T) {
	c, ft := newTestClient(t, Config{
		Auth:       TokenAuth{Token: "tok"},
		MaxRetries: 2,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
		},
	}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(500, ""), nil
	})

	// One operation burns the whole budget: 3 attempts, 3 recorded
	// failures, threshold reached.
	if _, err := c.ServerInfo(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if got := c.BreakerState(EndpointServerInfo); got != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	wireCalls := ft.countPath("/services/server/info")
	_, err := c.ServerInfo(context.Background())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := ft.countPath("/services/server/info"); got != wireCalls {
		t.Errorf("rejected call touched the wire: %d -> %d", wireCalls, got)
	}

	// Endpoint isolation: a different endpoint still flows.
	ft.mu.Lock()
	ft.handler = func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(200, `{"indexes":[{"name":"main"}]}`), nil
	}
	ft.mu.Unlock()

	if _, err := c.Indexes(context.Background()); err != nil {
		t.Errorf("sibling endpoint should be unaffected, got %v", err)
	}

	// Operator override closes it again.
	c.ResetBreaker(EndpointServerInfo)
	if got := c.BreakerState(EndpointServerInfo); got != resilience.StateClosed {
		t.Errorf("breaker state after reset = %v, want closed", got)
	}
}

// TestClient_CreateSearchJob covers the job submission round trip.
func TestClient_CreateSearchJob(t *testing.T) {
	c, _ := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		if req.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", req.Method)
		}
		return jsonResponse(201, `{"job_id":"sj-17"}`), nil
	})

	jobID, err := c.CreateSearchJob(context.Background(), "search index=main error", SearchJobOptions{EarliestTime: "-1h"})
	if err != nil {
		t.Fatalf("CreateSearchJob: %v", err)
	}
	if jobID != "sj-17" {
		t.Errorf("jobID = %q, want sj-17", jobID)
	}
}

// TestClient_CreateSearchJob_MissingID verifies a malformed creation
// response is an invalid-response error.
func TestClient_CreateSearchJob_MissingID(t *testing.T) {
	c, _ := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(200, `{}`), nil
	})

	_, err := c.CreateSearchJob(context.Background(), "search *", SearchJobOptions{})
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindInvalidResponse {
		t.Fatalf("expected invalid-response error, got %v", err)
	}
}

// TestClient_MalformedBody verifies undecodable success bodies classify as
// invalid responses.
func TestClient_MalformedBody(t *testing.T) {
	c, _ := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(200, `<html>not json</html>`), nil
	})

	_, err := c.ServerInfo(context.Background())
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindInvalidResponse {
		t.Fatalf("expected invalid-response error, got %v", err)
	}
}

// TestClient_SendEvents covers batch ingestion.
func TestClient_SendEvents(t *testing.T) {
	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(200, `{}`), nil
	})

	events := []Event{{Time: time.Now(), Data: "line one"}, {Time: time.Now(), Data: "line two"}}
	if err := c.SendEvents(context.Background(), events); err != nil {
		t.Fatalf("SendEvents: %v", err)
	}
	if got := ft.countPath("/services/receivers/batch"); got != 1 {
		t.Errorf("ingest calls = %d, want 1", got)
	}

	// Empty batch short-circuits.
	if err := c.SendEvents(context.Background(), nil); err != nil {
		t.Fatalf("SendEvents(empty): %v", err)
	}
	if got := ft.countPath("/services/receivers/batch"); got != 1 {
		t.Errorf("empty batch touched the wire")
	}
}

// TestClient_CancelledContext verifies cancellation surfaces as the
// context's own error.
func TestClient_CancelledContext(t *testing.T) {
	c, ft := newTestClient(t, Config{Auth: TokenAuth{Token: "tok"}}, func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(200, `{}`), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ServerInfo(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := ft.countPath("/services/server/info"); got != 0 {
		t.Errorf("cancelled call touched the wire %d times", got)
	}
}
