package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxTries        = 3
	DefaultInitialInterval = 500 * time.Millisecond
)

var defaultHeaders = map[string]string{
	"User-Agent": "potd_downloader/1.0",
}

type Config struct {
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
	Headers         map[string]string
}

// Client performs GET requests with a bounded timeout and retries transient failures.
type Client struct {
	httpClient      *http.Client
	headers         map[string]string
	maxTries        uint
	initialInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		headers:         lo.Assign(defaultHeaders, cfg.Headers),
		maxTries:        lo.Ternary(cfg.MaxTries == 0, uint(DefaultMaxTries), cfg.MaxTries),
		initialInterval: lo.Ternary(cfg.InitialInterval == 0, DefaultInitialInterval, cfg.InitialInterval),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}

		c.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport()),
			Timeout:   timeout,
		}
	}

	return c
}

// Get issues a GET request for url. A non-2xx response or a transport failure is
// returned as a *potd.RequestError; temporary ones are retried with exponential backoff.
// The caller owns the returned response body.
func (c *Client) Get(ctx context.Context, operation, url string) (*http.Response, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &potd.RequestError{Operation: operation, URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		resp, err := c.do(req, operation)
		if err == nil {
			return resp, nil
		}

		var reqErr *potd.RequestError
		if errors.As(err, &reqErr) && reqErr.Temporary() && ctx.Err() == nil {
			return nil, err
		}

		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WarnContext(ctx, "request failed, retrying", "operation", operation, "retry_in", next.String(), "err", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	url := req.URL.String()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &potd.RequestError{Operation: operation, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()

		return nil, &potd.RequestError{
			Operation:  operation,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return resp, nil
}
