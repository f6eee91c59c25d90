package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/searchctl/observe"
	"github.com/jonwraymond/searchctl/resilience"
)

// Logical endpoints: the unit of granularity for circuit breaking and
// retry policy. One name per class of remote operation, not per URL.
const (
	EndpointServerInfo   = "server/info"
	EndpointClusterInfo  = "cluster/config"
	EndpointClusterPeers = "cluster/peers"
	EndpointIndexes      = "data/indexes"
	EndpointLicense      = "license/usage"
	EndpointSearchJobs   = "search/jobs"
	EndpointJobStatus    = "search/jobs/status"
	EndpointIngest       = "receivers/batch"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the server's base URL, e.g. "https://search.example:8089".
	BaseURL string

	// Auth selects the authentication strategy. Required.
	Auth AuthStrategy

	// Transport overrides the default net/http transport. Tests inject
	// fakes here.
	Transport Transport

	// RequestTimeout bounds each individual request.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// MaxRetries is the retry budget per logical operation.
	// Default: 3
	MaxRetries int

	// Backoff overrides the retry delay policy.
	// Default: exponential, 100ms initial, 30s cap, jittered.
	Backoff *resilience.Backoff

	// Breaker tunes the per-endpoint circuit breakers.
	Breaker resilience.BreakerConfig

	// IngestThrottle self-throttles event ingestion when set.
	IngestThrottle *resilience.ThrottleConfig

	// Logger receives client activity. Nil means silent.
	Logger observe.Logger

	// Meter receives breaker and retry counters. Nil means no metrics:
	// the side-channel is optional and has no effect on behavior.
	Meter metric.Meter
}

// Client is the resilient API access layer over one remote server. Every
// logical operation is executor-wrapped: circuit-breaker admission,
// classified retry with backoff, and automatic re-authentication for
// session strategies. Safe for concurrent use.
type Client struct {
	config    Config
	transport Transport
	session   *SessionManager
	breaker   *resilience.Breaker
	executor  *resilience.Executor
	throttle  *resilience.Throttle
	metrics   *clientMetrics
	logger    observe.Logger
}

// New creates a client. The base URL is validated here so a malformed
// address fails at construction, not on first call.
func New(config Config) (*Client, error) {
	if config.Auth == nil {
		return nil, authFailed("no auth strategy configured", nil)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	transport := config.Transport
	if transport == nil {
		var err error
		transport, err = NewHTTPTransport(config.BaseURL, config.RequestTimeout)
		if err != nil {
			return nil, err
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}

	metrics, err := newClientMetrics(config.Meter)
	if err != nil {
		return nil, invalidResponse("building metric instruments", err)
	}

	c := &Client{
		config:    config,
		transport: transport,
		session:   NewSessionManager(config.Auth, transport),
		metrics:   metrics,
		logger:    logger,
	}

	breakerConfig := config.Breaker
	userHook := breakerConfig.OnStateChange
	breakerConfig.OnStateChange = func(endpoint string, from, to resilience.State) {
		c.metrics.recordTransition(endpoint, from, to)
		c.logger.Warn(context.Background(), "circuit state change",
			observe.Field{Key: "endpoint", Value: endpoint},
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()})
		if userHook != nil {
			userHook(endpoint, from, to)
		}
	}
	c.breaker = resilience.NewBreaker(breakerConfig)

	executorConfig := resilience.ExecutorConfig{
		MaxRetries:     config.MaxRetries,
		Backoff:        config.Backoff,
		RetryIf:        IsRetryable,
		AuthErrorIf:    IsAuthError,
		RetryDelayHint: retryAfterHint,
		OnRejected: func(endpoint string) {
			c.metrics.recordRejection(endpoint)
		},
		OnRetry: func(endpoint string, attempt int, err error, delay time.Duration) {
			c.metrics.recordRetry(endpoint)
			c.logger.Debug(context.Background(), "retrying request",
				observe.Field{Key: "endpoint", Value: endpoint},
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "delay", Value: delay.String()},
				observe.Field{Key: "error", Value: err.Error()})
		},
		OnReauth: func(endpoint string) {
			c.metrics.recordReauth(endpoint)
		},
	}
	if c.session.sessionBased() {
		executorConfig.OnAuthFailure = c.session.HandleAuthFailure
	}
	c.executor = resilience.NewExecutor(c.breaker, executorConfig)

	if config.IngestThrottle != nil {
		c.throttle = resilience.NewThrottle(*config.IngestThrottle)
	}

	return c, nil
}

// Login performs the initial authentication exchange. Optional for token
// strategies; session strategies may also rely on the first request's
// automatic recovery, at the cost of one failed round trip.
func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

// ServerInfo fetches the server's identity and role information.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.get(ctx, EndpointServerInfo, "/services/server/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ClusterInfo fetches the indexing cluster configuration.
func (c *Client) ClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	var info ClusterInfo
	if err := c.get(ctx, EndpointClusterInfo, "/services/cluster/config", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ClusterPeers lists the cluster's peer nodes.
func (c *Client) ClusterPeers(ctx context.Context) ([]PeerInfo, error) {
	var payload struct {
		Peers []PeerInfo `json:"peers"`
	}
	if err := c.get(ctx, EndpointClusterPeers, "/services/cluster/peers", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Peers, nil
}

// Indexes lists the server's indexes.
func (c *Client) Indexes(ctx context.Context) ([]IndexInfo, error) {
	var payload struct {
		Indexes []IndexInfo `json:"indexes"`
	}
	if err := c.get(ctx, EndpointIndexes, "/services/data/indexes", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Indexes, nil
}

// LicenseUsage fetches license quota and consumption.
func (c *Client) LicenseUsage(ctx context.Context) (*LicenseUsage, error) {
	var usage LicenseUsage
	if err := c.get(ctx, EndpointLicense, "/services/license/usage", nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// CreateSearchJob submits a search and returns the new job's ID.
func (c *Client) CreateSearchJob(ctx context.Context, query string, opts SearchJobOptions) (string, error) {
	body := map[string]any{"search": query}
	if opts.EarliestTime != "" {
		body["earliest_time"] = opts.EarliestTime
	}
	if opts.LatestTime != "" {
		body["latest_time"] = opts.LatestTime
	}
	if opts.MaxCount > 0 {
		body["max_count"] = opts.MaxCount
	}

	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := c.post(ctx, EndpointSearchJobs, "/services/search/jobs", body, &payload); err != nil {
		return "", err
	}
	if payload.JobID == "" {
		return "", invalidResponse("job creation response missing job_id", nil)
	}
	return payload.JobID, nil
}

// ListJobs lists the server's search jobs.
func (c *Client) ListJobs(ctx context.Context) ([]JobStatus, error) {
	var payload struct {
		Jobs []JobStatus `json:"jobs"`
	}
	if err := c.get(ctx, EndpointSearchJobs, "/services/search/jobs", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// JobStatus fetches one search job's progress snapshot.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	path := fmt.Sprintf("/services/search/jobs/%s", url.PathEscape(jobID))
	if err := c.get(ctx, EndpointJobStatus, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelJob cancels a running search job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	path := fmt.Sprintf("/services/search/jobs/%s/control", url.PathEscape(jobID))
	return c.post(ctx, EndpointJobStatus, path, map[string]string{"action": "cancel"}, nil)
}

// SendEvents ingests a batch of events. When an ingest throttle is
// configured the batch is paced before dispatch.
func (c *Client) SendEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if c.throttle != nil {
		if err := c.throttle.WaitN(ctx, len(events)); err != nil {
			return err
		}
	}
	return c.post(ctx, EndpointIngest, "/services/receivers/batch", map[string]any{"events": events}, nil)
}

// BreakerMetrics returns per-endpoint circuit snapshots for diagnostic
// tooling.
func (c *Client) BreakerMetrics() []resilience.CircuitMetrics {
	return c.breaker.Metrics()
}

// BreakerState returns one endpoint's circuit state.
func (c *Client) BreakerState(endpoint string) resilience.State {
	return c.breaker.State(endpoint)
}

// ResetBreaker forces one endpoint's circuit closed: an operator
// override, not part of the automatic failure path.
func (c *Client) ResetBreaker(endpoint string) {
	c.breaker.Reset(endpoint)
}

// ResetBreakers forces every circuit closed.
func (c *Client) ResetBreakers() {
	c.breaker.ResetAll()
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.do(ctx, endpoint, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return invalidResponse("encoding request body", err)
	}
	return c.do(ctx, endpoint, http.MethodPost, path, nil, encoded, out)
}

// do runs one logical operation through the executor: breaker admission,
// credential attachment, dispatch, classification, retry policy.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body []byte, out any) error {
	return c.doWithRetries(ctx, endpoint, c.executor.Config().MaxRetries, method, path, query, body, out)
}

// doWithRetries is do with a caller-supplied retry budget.
func (c *Client) doWithRetries(ctx context.Context, endpoint string, maxRetries int, method, path string, query url.Values, body []byte, out any) error {
	return c.executor.ExecuteWithRetries(ctx, endpoint, maxRetries, func(ctx context.Context) error {
		req := &Request{Method: method, Path: path, Query: query, Body: body}
		if len(body) > 0 {
			req.SetHeader("Content-Type", "application/json")
		}
		if err := c.session.Attach(req); err != nil {
			return err
		}

		resp, err := c.transport.Send(ctx, req)
		if err != nil {
			return err
		}
		if apiErr := classifyResponse(resp, path, c.session.sessionBased(), c.session.Username()); apiErr != nil {
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body, out); err != nil {
				return invalidResponse("decoding "+path, err)
			}
		}
		return nil
	})
}
