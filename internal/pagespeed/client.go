package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/shyim/vitals-dashboard/internal/models"
)

const DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// ErrMalformedBody is returned when the response is not a PageSpeed JSON document.
var ErrMalformedBody = errors.New("pagespeed: malformed response body")

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("PageSpeed API error: %s", e.Status)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Options struct {
	Endpoint string
	// RequestsPerSecond and Burst shape the outbound token bucket.
	RequestsPerSecond float64
	Burst             int
	// Retries is the number of extra attempts after a 429 or 5xx.
	Retries   int
	RetryWait time.Duration
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	retryWait  time.Duration
}

var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          20,
	MaxConnsPerHost:       8,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	return &Client{
		endpoint: opts.Endpoint,
		// No client timeout: the caller's context carries the deadline.
		httpClient: &http.Client{Transport: otelhttp.NewTransport(defaultTransport)},
		limiter:    rate.NewLimiter(limit, opts.Burst),
		retries:    opts.Retries,
		retryWait:  opts.RetryWait,
	}
}

// Run performs one performance analysis of target.
func (c *Client) Run(ctx context.Context, target string, device models.Device, key string) (*models.PageSpeedResponse, error) {
	params := url.Values{}
	params.Set("url", target)
	params.Set("strategy", string(device))
	params.Set("category", "performance")
	params.Set("key", key)
	reqURL := c.endpoint + "?" + params.Encode()

	var report *models.PageSpeedResponse
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait fails early when no token frees up before the deadline
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return backoff.Permanent(err)
		}
		r, err := c.do(ctx, reqURL)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		report = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait
	b.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx)); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Client) do(ctx context.Context, reqURL string) (*models.PageSpeedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var report models.PageSpeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return &report, nil
}
