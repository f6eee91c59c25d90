package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/searchctl/resilience"
)

// Resource type names accepted by FetchAll.
const (
	ResourceServer  = "server"
	ResourceCluster = "cluster"
	ResourcePeers   = "peers"
	ResourceIndexes = "indexes"
	ResourceLicense = "license"
	ResourceJobs    = "jobs"
)

// ResourceSummary status labels.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// DefaultResources returns every known resource type, in display order.
func DefaultResources() []string {
	return []string{
		ResourceServer, ResourceCluster, ResourcePeers,
		ResourceIndexes, ResourceLicense, ResourceJobs,
	}
}

// AggregateConfig tunes FetchAll.
type AggregateConfig struct {
	// MaxConcurrency bounds in-flight fetches regardless of how many
	// resource types were requested.
	// Default: 5
	MaxConcurrency int

	// FetchTimeout bounds each individual fetch.
	// Default: 30 seconds
	FetchTimeout time.Duration
}

// FetchAll fans the requested resource fetches out over a bounded worker
// pool and returns one summary per requested name, in completion order.
// Failures degrade, never abort: a timed-out or failing resource reports
// its status while siblings proceed; one unreachable resource type must
// not blank out a whole dashboard. Each fetch is itself executor-wrapped,
// so per-endpoint breakers and retry policy apply underneath the pool.
//
// Cancellation observed before dispatch fails the whole call; observed
// mid-flight it marks the remaining resources cancelled without affecting
// fetches already under way.
func (c *Client) FetchAll(ctx context.Context, resources []string, config AggregateConfig) ([]ResourceSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Apply defaults
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}

	pool := resilience.NewBulkhead(resilience.BulkheadConfig{
		MaxConcurrent: config.MaxConcurrency,
		Block:         true,
	})

	results := make(chan ResourceSummary, len(resources))
	var wg sync.WaitGroup
	for _, name := range resources {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			results <- c.fetchOne(ctx, pool, name, config.FetchTimeout)
		}(name)
	}
	wg.Wait()
	close(results)

	out := make([]ResourceSummary, 0, len(resources))
	for summary := range results {
		out = append(out, summary)
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, pool *resilience.Bulkhead, name string, timeout time.Duration) ResourceSummary {
	if err := pool.Acquire(ctx); err != nil {
		return ResourceSummary{Resource: name, Status: StatusCancelled, Detail: err.Error()}
	}
	defer pool.Release()

	if err := ctx.Err(); err != nil {
		return ResourceSummary{Resource: name, Status: StatusCancelled, Detail: err.Error()}
	}

	fetch := c.resourceFetcher(name)
	if fetch == nil {
		return ResourceSummary{Resource: name, Status: StatusError, Detail: "unknown resource type"}
	}

	var count int
	err := resilience.ExecuteWithTimeout(ctx, timeout, func(ctx context.Context) error {
		n, err := fetch(ctx)
		if err != nil {
			return err
		}
		count = n
		return nil
	})

	switch {
	case err == nil:
		return ResourceSummary{Resource: name, Count: count, Status: StatusOK}
	case errors.Is(err, resilience.ErrTimeout):
		return ResourceSummary{
			Resource: name,
			Status:   StatusTimeout,
			Detail:   operationTimeout("fetch "+name, timeout).Error(),
		}
	case errors.Is(err, context.Canceled):
		return ResourceSummary{Resource: name, Status: StatusCancelled, Detail: err.Error()}
	default:
		return ResourceSummary{Resource: name, Status: StatusError, Detail: err.Error()}
	}
}

// resourceFetcher maps a resource type name to its counting fetch. Each
// fetch rides the normal executor-wrapped operation for its endpoint.
func (c *Client) resourceFetcher(name string) func(context.Context) (int, error) {
	switch name {
	case ResourceServer:
		return func(ctx context.Context) (int, error) {
			if _, err := c.ServerInfo(ctx); err != nil {
				return 0, err
			}
			return 1, nil
		}
	case ResourceCluster:
		return func(ctx context.Context) (int, error) {
			if _, err := c.ClusterInfo(ctx); err != nil {
				return 0, err
			}
			return 1, nil
		}
	case ResourcePeers:
		return func(ctx context.Context) (int, error) {
			peers, err := c.ClusterPeers(ctx)
			return len(peers), err
		}
	case ResourceIndexes:
		return func(ctx context.Context) (int, error) {
			indexes, err := c.Indexes(ctx)
			return len(indexes), err
		}
	case ResourceLicense:
		return func(ctx context.Context) (int, error) {
			usage, err := c.LicenseUsage(ctx)
			if err != nil {
				return 0, err
			}
			return len(usage.Pools), nil
		}
	case ResourceJobs:
		return func(ctx context.Context) (int, error) {
			jobs, err := c.ListJobs(ctx)
			return len(jobs), err
		}
	default:
		return nil
	}
}
