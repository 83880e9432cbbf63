package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	ierr "backoffice/internal/errors"
	"backoffice/internal/logger"

	"github.com/hashicorp/go-retryablehttp"
)

// Request represents an HTTP request
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Client interface for making HTTP requests
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// RetryClient implements Client on top of go-retryablehttp. Only GET requests
// are retried; writes go through a client with retries disabled.
type RetryClient struct {
	client *retryablehttp.Client
	writes *retryablehttp.Client
}

func NewRetryClient(cfg ClientConfig, log *logger.Logger) *RetryClient {
	return &RetryClient{
		client: newRetryableClient(cfg, cfg.RetryMax, log),
		writes: newRetryableClient(cfg, 0, log),
	}
}

func newRetryableClient(cfg ClientConfig, retryMax int, log *logger.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	if log != nil {
		rc.Logger = log.Retry()
	} else {
		rc.Logger = nil
	}
	rc.CheckRetry = idempotentRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// idempotentRetryPolicy only retries server errors for GET so a create is never replayed.
func idempotentRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Send makes an HTTP request and returns the response
func (c *RetryClient) Send(ctx context.Context, req *Request) (*Response, error) {
	var body interface{}
	if req.Body != nil {
		body = req.Body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not build the request to the API").
			Mark(ierr.ErrHTTPClient)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := c.client
	if req.Method != http.MethodGet {
		client = c.writes
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The API could not be reached").
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The API response could not be read").
			Mark(ierr.ErrHTTPClient)
	}

	headers := make(map[string]string)
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	if resp.StatusCode >= 400 {
		return nil, NewError(resp.StatusCode, respBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bytes.TrimSpace(respBody),
		Headers:    headers,
	}, nil
}
