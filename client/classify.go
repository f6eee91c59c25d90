package client

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// apiMessage is the server's error envelope.
type apiMessage struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// classifyResponse maps a non-2xx response to the taxonomy. sessionAuth
// selects the recovery path for auth statuses; username labels the session
// owner in SessionExpired errors.
func classifyResponse(resp *Response, reqURL string, sessionAuth bool, username string) *Error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}

	message, requestID := extractMessage(resp)

	switch resp.Status {
	case http.StatusUnauthorized:
		if sessionAuth {
			// Signal for re-authentication: the session key is stale.
			return sessionExpired(username)
		}
		return unauthorized(message)

	case http.StatusForbidden:
		if sessionAuth {
			// Treated identically to 401 for session strategies, for
			// compatibility with the server's behavior. This conflates
			// "bad session" with "insufficient privilege"; a re-login
			// will not fix a genuine permissions error, and the second
			// 403 surfaces after one recovery attempt.
			return sessionExpired(username)
		}
		return apiError(resp.Status, reqURL, message, requestID)

	case http.StatusTooManyRequests:
		return rateLimited(retryAfterHeader(resp.Header))

	default:
		// Includes 404: the server answered, the answer was "no". The
		// NotFound kind is reserved for client-side missing routes.
		return apiError(resp.Status, reqURL, message, requestID)
	}
}

// extractMessage pulls the error message and request ID out of the
// response, falling back to the status text for non-JSON bodies.
func extractMessage(resp *Response) (message, requestID string) {
	var env apiMessage
	if err := json.Unmarshal(resp.Body, &env); err == nil && env.Message != "" {
		message = env.Message
		requestID = env.RequestID
	}
	if message == "" {
		message = http.StatusText(resp.Status)
	}
	if requestID == "" {
		requestID = resp.Header.Get("X-Request-Id")
	}
	return message, requestID
}

// retryAfterHeader parses a Retry-After header, seconds form only;
// zero when absent or malformed.
func retryAfterHeader(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
