package client

import (
	"fmt"
	"testing"
	"time"
)

// TestError_Retryable verifies only server-attributable transient failures
// are retryable.
func TestError_Retryable(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"server error 500", apiError(500, "/services/server/info", "oops", ""), true},
		{"server error 503", apiError(503, "/services/server/info", "busy", ""), true},
		{"not found 404", apiError(404, "/services/data/indexes", "no such index", ""), false},
		{"bad request 400", apiError(400, "/services/search/jobs", "bad query", ""), false},
		{"forbidden 403", apiError(403, "/services/server/info", "denied", ""), false},
		{"rate limited", rateLimited(2 * time.Second), true},
		{"operation timeout", operationTimeout("fetch indexes", 30*time.Second), true},
		{"connection refused", connectionRefused("search.example:8089", nil), false},
		{"tls failure", tlsError("certificate signed by unknown authority", nil), false},
		{"invalid url", invalidURL("::bogus", nil), false},
		{"not found host", notFound("nosuch.example", nil), false},
		{"auth failed", authFailed("credentials rejected", nil), false},
		{"unauthorized", unauthorized("token rejected"), false},
		{"session expired", sessionExpired("admin"), false},
		{"invalid response", invalidResponse("truncated body", nil), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Retryable(); got != tc.want {
				t.Errorf("Retryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestError_AuthRelated verifies the auth-recovery classification.
func TestError_AuthRelated(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"auth failed", authFailed("rejected", nil), true},
		{"unauthorized", unauthorized("rejected"), true},
		{"session expired", sessionExpired("admin"), true},
		{"api 401", apiError(401, "/x", "", ""), true},
		{"api 403", apiError(403, "/x", "", ""), true},
		{"api 500", apiError(500, "/x", "", ""), false},
		{"rate limited", rateLimited(0), false},
		{"connection refused", connectionRefused("host", nil), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.AuthRelated(); got != tc.want {
				t.Errorf("AuthRelated() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestIsRetryable_Wrapped verifies classification survives wrapping.
func TestIsRetryable_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("fetching overview: %w", rateLimited(time.Second))
	if !IsRetryable(wrapped) {
		t.Error("wrapped rate-limit error should stay retryable")
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("non-client error should not be retryable")
	}
	if IsAuthError(wrapped) {
		t.Error("rate-limit error should not be auth-related")
	}
	if !IsAuthError(fmt.Errorf("attach: %w", sessionExpired("admin"))) {
		t.Error("wrapped session-expired error should stay auth-related")
	}
}

// TestRetryAfterHint verifies the delay hint extraction.
func TestRetryAfterHint(t *testing.T) {
	if got := retryAfterHint(rateLimited(3 * time.Second)); got != 3*time.Second {
		t.Errorf("hint = %v, want 3s", got)
	}
	if got := retryAfterHint(rateLimited(0)); got != 0 {
		t.Errorf("hint = %v, want 0 for absent header", got)
	}
	if got := retryAfterHint(apiError(503, "/x", "", "")); got != 0 {
		t.Errorf("hint = %v, want 0 for non-rate-limit error", got)
	}
}

// TestError_Messages spot-checks the human-readable forms.
func TestError_Messages(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{connectionRefused("search.example:8089", nil), "client: connection refused by search.example:8089"},
		{sessionExpired("admin"), "client: session expired for admin"},
		{rateLimited(2 * time.Second), "client: rate limited, retry after 2s"},
		{rateLimited(0), "client: rate limited"},
		{
			apiError(500, "/services/server/info", "internal error", "req-42"),
			"client: API error 500 from /services/server/info: internal error (request req-42)",
		},
	}

	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

// TestError_Unwrap verifies the cause chain is preserved.
func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := connectionRefused("host:8089", cause)
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if sessionExpired("admin").Unwrap() != nil {
		t.Error("expected nil cause for session expired")
	}
}
