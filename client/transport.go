package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// Request is one outgoing API request. Credentials are attached by the
// SessionManager, never by callers.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// SetHeader sets a header, allocating the map on first use.
func (r *Request) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Response is the raw outcome of a request: a status and a fully-read
// body. Interpreting either is the caller's job.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport is the single capability the client consumes from the wire
// layer: send a request, get a status+body or a transport failure. TLS
// configuration, connection pooling and proxying are entirely the
// transport's concern.
//
// Implementations must be safe for concurrent use and must return
// transport failures already classified as *Error.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the default net/http-backed transport.
type HTTPTransport struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPTransport creates a transport rooted at baseURL. The timeout
// bounds each individual request.
// Default timeout: 30 seconds.
func NewHTTPTransport(baseURL string, timeout time.Duration) (*HTTPTransport, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, invalidURL(baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, invalidURL("unsupported scheme in "+baseURL, nil)
	}
	if base.Host == "" {
		return nil, invalidURL("missing host in "+baseURL, nil)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPTransport{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Send issues the request and reads the full body. Transport-level
// failures come back as classified *Error values.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	target := t.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, invalidURL(target.String(), err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		// Cancellation passes through untouched so it stays
		// distinguishable from transport failure.
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, classifyTransportError(target.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, invalidResponse("reading response body", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

// classifyTransportError maps a raw net/http failure into the taxonomy.
func classifyTransportError(host string, err error) *Error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return connectionRefused(host, err)

	case isTLSError(err):
		return tlsError(rootMessage(err), err)

	case isDNSError(err):
		// The name never resolved: a missing transport route, not a
		// server-side 404.
		return notFound(host, err)

	case isTimeout(err):
		return operationTimeout("request to "+host, 0)

	default:
		// Unreachable for any other reason (reset, no route, EOF before
		// response). Operators should read all of these as "server may be
		// unreachable".
		return connectionRefused(host, err)
	}
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert)
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// rootMessage strips the url.Error wrapper so detail strings stay short.
func rootMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
