// Package client is the resilient access layer over the remote
// search-and-indexing server's management API.
//
// It turns an unreliable, authenticated, rate-limited HTTP backend into a
// dependable set of operations: every call rides a per-endpoint circuit
// breaker, a classified retry policy with exponential backoff, and, for
// session strategies, automatic single-flight re-authentication. On top
// of the per-call layer sit FetchAll, a bounded-concurrency aggregator for
// dashboard-style overviews that degrades per resource instead of
// aborting, and WaitForCompletion, a cancellable long-poll tracker for
// search jobs with per-poll progress callbacks.
//
// Every failure crossing this boundary is an *Error carrying one Kind of
// a closed taxonomy; circuit rejections surface as
// resilience.ErrCircuitOpen and cancellation as the context's own error,
// so callers can always tell what happened and what to do about it.
//
//	c, err := client.New(client.Config{
//	    BaseURL: "https://search.example:8089",
//	    Auth:    client.SessionAuth{Username: "admin", Password: pass},
//	})
//	if err != nil {
//	    return err
//	}
//	info, err := c.ServerInfo(ctx)
//
// The client holds no cross-process state: each instance owns its own
// breaker registry and session credential.
package client
