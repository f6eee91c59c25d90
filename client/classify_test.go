package client

import (
	"net/http"
	"testing"
	"time"
)

func makeResponse(status int, body string, header http.Header) *Response {
	if header == nil {
		header = make(http.Header)
	}
	return &Response{Status: status, Header: header, Body: []byte(body)}
}

// TestClassifyResponse_Success verifies 2xx responses classify as nil.
func TestClassifyResponse_Success(t *testing.T) {
	for _, status := range []int{200, 201, 204} {
		if err := classifyResponse(makeResponse(status, "{}", nil), "/x", false, ""); err != nil {
			t.Errorf("status %d: expected nil, got %v", status, err)
		}
	}
}

// TestClassifyResponse_AuthStatuses verifies 401/403 route by strategy.
func TestClassifyResponse_AuthStatuses(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		sessionAuth bool
		wantKind    Kind
	}{
		{"401 under session", 401, true, KindSessionExpired},
		{"401 under token", 401, false, KindUnauthorized},
		{"403 under session", 403, true, KindSessionExpired},
		{"403 under token", 403, false, KindAPIError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyResponse(makeResponse(tc.status, `{"message":"denied"}`, nil), "/services/server/info", tc.sessionAuth, "admin")
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Kind != tc.wantKind {
				t.Errorf("kind = %v, want %v", err.Kind, tc.wantKind)
			}
			if tc.wantKind == KindSessionExpired && err.Username != "admin" {
				t.Errorf("username = %q, want %q", err.Username, "admin")
			}
		})
	}
}

// TestClassifyResponse_RateLimited verifies 429 handling with and without a
// Retry-After header.
func TestClassifyResponse_RateLimited(t *testing.T) {
	header := make(http.Header)
	header.Set("Retry-After", "5")
	err := classifyResponse(makeResponse(429, "", header), "/x", false, "")
	if err == nil || err.Kind != KindRateLimited {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	if err.RetryAfter != 5*time.Second {
		t.Errorf("RetryAfter = %v, want 5s", err.RetryAfter)
	}

	err = classifyResponse(makeResponse(429, "", nil), "/x", false, "")
	if err == nil || err.RetryAfter != 0 {
		t.Errorf("expected zero RetryAfter without header, got %v", err)
	}

	header = make(http.Header)
	header.Set("Retry-After", "soon")
	err = classifyResponse(makeResponse(429, "", header), "/x", false, "")
	if err == nil || err.RetryAfter != 0 {
		t.Errorf("expected zero RetryAfter for malformed header, got %v", err)
	}
}

// TestClassifyResponse_RemoteNotFound verifies a server 404 is an API
// error: the server answered, the answer was "no".
func TestClassifyResponse_RemoteNotFound(t *testing.T) {
	err := classifyResponse(makeResponse(404, `{"message":"no such index"}`, nil), "/services/data/indexes", true, "admin")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != KindAPIError {
		t.Errorf("kind = %v, want %v", err.Kind, KindAPIError)
	}
	if err.Status != 404 {
		t.Errorf("status = %d, want 404", err.Status)
	}
	if err.Message != "no such index" {
		t.Errorf("message = %q, want %q", err.Message, "no such index")
	}
}

// TestClassifyResponse_MessageExtraction covers the error envelope and the
// fallbacks.
func TestClassifyResponse_MessageExtraction(t *testing.T) {
	// Full envelope
	err := classifyResponse(makeResponse(500, `{"message":"disk full","request_id":"req-7"}`, nil), "/x", false, "")
	if err.Message != "disk full" || err.RequestID != "req-7" {
		t.Errorf("envelope not extracted: message=%q requestID=%q", err.Message, err.RequestID)
	}

	// Non-JSON body falls back to status text
	err = classifyResponse(makeResponse(500, "<html>oops</html>", nil), "/x", false, "")
	if err.Message != http.StatusText(500) {
		t.Errorf("message = %q, want status text fallback", err.Message)
	}

	// Request ID from header when envelope lacks it
	header := make(http.Header)
	header.Set("X-Request-Id", "hdr-9")
	err = classifyResponse(makeResponse(502, `{"message":"bad gateway"}`, header), "/x", false, "")
	if err.RequestID != "hdr-9" {
		t.Errorf("requestID = %q, want header fallback hdr-9", err.RequestID)
	}
}
