package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PollConfig tunes WaitForCompletion.
type PollConfig struct {
	// Interval is the sleep between status polls.
	// Default: 2 seconds
	Interval time.Duration

	// MaxWait bounds the whole wait; exceeding it returns an
	// OperationTimeout error.
	// Default: 10 minutes
	MaxWait time.Duration

	// MaxRetries is the retry budget for each individual status poll.
	// Default: the client's configured budget.
	MaxRetries int

	// OnProgress, when set, is invoked synchronously once per successful
	// poll with the job's fractional progress (0.0-1.0), before the next
	// sleep. It never runs concurrently with itself. A non-nil return
	// terminates the wait and propagates; panics are deliberately not
	// recovered, so a buggy operator-supplied callback is visible rather
	// than silently swallowed.
	OnProgress func(progress float64) error
}

// WaitForCompletion polls a search job until it completes, the wait times
// out, or the context is cancelled. Each poll is an executor-wrapped
// status query, so transient failures retry within the poll and a
// non-retryable error or exhausted budget fails the wait.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, config PollConfig) (*JobStatus, error) {
	// Apply defaults
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 10 * time.Minute
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = c.executor.Config().MaxRetries
	}

	deadline := time.Now().Add(config.MaxWait)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := c.jobStatusWithRetries(ctx, jobID, config.MaxRetries)
		if err != nil {
			return nil, err
		}

		if config.OnProgress != nil {
			if cbErr := config.OnProgress(status.Progress); cbErr != nil {
				return nil, cbErr
			}
		}

		if status.Done {
			return status, nil
		}

		if time.Now().After(deadline) {
			return nil, operationTimeout("wait for job "+jobID, config.MaxWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(config.Interval):
		}
	}
}

// jobStatusWithRetries is JobStatus with a caller-supplied retry budget.
func (c *Client) jobStatusWithRetries(ctx context.Context, jobID string, maxRetries int) (*JobStatus, error) {
	var status JobStatus
	path := fmt.Sprintf("/services/search/jobs/%s", url.PathEscape(jobID))
	if err := c.doWithRetries(ctx, EndpointJobStatus, maxRetries, http.MethodGet, path, nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
