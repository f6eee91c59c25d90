package client

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one variant of the closed error taxonomy. Every failure
// crossing the client boundary is an *Error carrying exactly one Kind; no
// other error type escapes the package (circuit rejections surface as
// resilience.ErrCircuitOpen, and context errors as themselves, so callers
// can distinguish "deliberately avoided" and "cancelled" from "failed").
type Kind int

const (
	// KindConnectionRefused means the transport could not reach the
	// address. Never retried: backoff cannot fix a down address.
	KindConnectionRefused Kind = iota
	// KindTLSError means TLS negotiation or certificate validation failed.
	KindTLSError
	// KindInvalidURL means the target address is malformed.
	KindInvalidURL
	// KindNotFound means a client-side resource is missing (an unknown
	// host, a missing transport route). A remote 404 is an APIError, not
	// this: the server answered, the answer was "no".
	KindNotFound
	// KindAPIError means the server answered with a non-success status.
	KindAPIError
	// KindAuthFailed means an authentication exchange was rejected.
	KindAuthFailed
	// KindUnauthorized means the server rejected the presented credential.
	KindUnauthorized
	// KindSessionExpired means the session credential is stale and may be
	// refreshed by re-authenticating.
	KindSessionExpired
	// KindRateLimited means the server is shedding load (HTTP 429).
	KindRateLimited
	// KindOperationTimeout means an operation exceeded its time budget.
	KindOperationTimeout
	// KindInvalidResponse means the response body did not parse as the
	// expected shape.
	KindInvalidResponse
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnectionRefused:
		return "connection-refused"
	case KindTLSError:
		return "tls-error"
	case KindInvalidURL:
		return "invalid-url"
	case KindNotFound:
		return "not-found"
	case KindAPIError:
		return "api-error"
	case KindAuthFailed:
		return "auth-failed"
	case KindUnauthorized:
		return "unauthorized"
	case KindSessionExpired:
		return "session-expired"
	case KindRateLimited:
		return "rate-limited"
	case KindOperationTimeout:
		return "operation-timeout"
	case KindInvalidResponse:
		return "invalid-response"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by every remote operation.
// Fields beyond Kind are populated per variant; see the Kind constants.
type Error struct {
	Kind Kind

	// Address is the unreachable address (ConnectionRefused).
	Address string

	// Detail carries variant-specific context (TLSError, InvalidURL,
	// NotFound, AuthFailed, Unauthorized, InvalidResponse).
	Detail string

	// Status, URL, Message, RequestID describe an APIError.
	Status    int
	URL       string
	Message   string
	RequestID string

	// Username is the session owner (SessionExpired).
	Username string

	// RetryAfter is the server's retry hint, zero when absent (RateLimited).
	RetryAfter time.Duration

	// Operation and Timeout describe an OperationTimeout.
	Operation string
	Timeout   time.Duration

	// cause is the underlying error, if any.
	cause error
}

// Error returns a human-readable message for the variant.
func (e *Error) Error() string {
	switch e.Kind {
	case KindConnectionRefused:
		return fmt.Sprintf("client: connection refused by %s", e.Address)
	case KindTLSError:
		return fmt.Sprintf("client: TLS failure: %s", e.Detail)
	case KindInvalidURL:
		return fmt.Sprintf("client: invalid URL: %s", e.Detail)
	case KindNotFound:
		return fmt.Sprintf("client: not found: %s", e.Detail)
	case KindAPIError:
		if e.RequestID != "" {
			return fmt.Sprintf("client: API error %d from %s: %s (request %s)", e.Status, e.URL, e.Message, e.RequestID)
		}
		return fmt.Sprintf("client: API error %d from %s: %s", e.Status, e.URL, e.Message)
	case KindAuthFailed:
		return fmt.Sprintf("client: authentication failed: %s", e.Detail)
	case KindUnauthorized:
		return fmt.Sprintf("client: unauthorized: %s", e.Detail)
	case KindSessionExpired:
		return fmt.Sprintf("client: session expired for %s", e.Username)
	case KindRateLimited:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("client: rate limited, retry after %s", e.RetryAfter)
		}
		return "client: rate limited"
	case KindOperationTimeout:
		return fmt.Sprintf("client: %s timed out after %s", e.Operation, e.Timeout)
	case KindInvalidResponse:
		return fmt.Sprintf("client: invalid response: %s", e.Detail)
	default:
		return "client: unknown error"
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether retrying with backoff may help: true only for
// server-attributable transient conditions (5xx, rate limiting, timeouts).
// Everything else, including connection refused and the 4xx family, fails
// fast: a 404 is never worth retrying.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindAPIError:
		return e.Status >= 500
	case KindRateLimited, KindOperationTimeout:
		return true
	default:
		return false
	}
}

// AuthRelated reports whether the error is an authentication failure that
// a session-strategy client may recover from by re-authenticating.
func (e *Error) AuthRelated() bool {
	switch e.Kind {
	case KindAuthFailed, KindUnauthorized, KindSessionExpired:
		return true
	case KindAPIError:
		return e.Status == 401 || e.Status == 403
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Retryable()
}

// IsAuthError reports whether err is an authentication-related *Error.
func IsAuthError(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.AuthRelated()
}

// retryAfterHint extracts the server-supplied retry delay from a
// rate-limit error, zero when absent.
func retryAfterHint(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) && ce.Kind == KindRateLimited {
		return ce.RetryAfter
	}
	return 0
}

func connectionRefused(address string, cause error) *Error {
	return &Error{Kind: KindConnectionRefused, Address: address, cause: cause}
}

func tlsError(detail string, cause error) *Error {
	return &Error{Kind: KindTLSError, Detail: detail, cause: cause}
}

func invalidURL(detail string, cause error) *Error {
	return &Error{Kind: KindInvalidURL, Detail: detail, cause: cause}
}

func notFound(resource string, cause error) *Error {
	return &Error{Kind: KindNotFound, Detail: resource, cause: cause}
}

func apiError(status int, url, message, requestID string) *Error {
	return &Error{Kind: KindAPIError, Status: status, URL: url, Message: message, RequestID: requestID}
}

func authFailed(detail string, cause error) *Error {
	return &Error{Kind: KindAuthFailed, Detail: detail, cause: cause}
}

func unauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

func sessionExpired(username string) *Error {
	return &Error{Kind: KindSessionExpired, Username: username}
}

func rateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter}
}

func operationTimeout(operation string, timeout time.Duration) *Error {
	return &Error{Kind: KindOperationTimeout, Operation: operation, Timeout: timeout}
}

func invalidResponse(detail string, cause error) *Error {
	return &Error{Kind: KindInvalidResponse, Detail: detail, cause: cause}
}
