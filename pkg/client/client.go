// Package client provides the HTTP client for the MJP listing API with
// request pacing, session cookies, and error classification.
//
// The client never retries: a failed listing request is reported to the
// caller, which degrades the affected feed to zero records.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for listing API operations.
var (
	mjpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjp_requests_total",
		Help: "Total listing API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	mjpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mjp_request_duration_seconds",
		Help:    "Listing API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	mjpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjp_errors_total",
		Help: "Total listing API errors by class",
	}, []string{"class"})
)

// maxBodyBytes bounds the listing response size read into memory.
const maxBodyBytes = 64 << 20

// Client is the listing API client.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	jar        http.CookieJar
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	// RequestsPerSecond paces requests; <= 0 disables pacing.
	RequestsPerSecond float64

	// Burst is the token bucket size.
	Burst int

	// Jar carries the browser session cookies. A fresh jar is created when nil.
	Jar http.CookieJar
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:         userAgent,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		Burst:             2,
	}
}

// New creates a new listing API client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "mjp-client").Logger()

	jar := cfg.Jar
	if jar == nil {
		var err error
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst, logger),
		jar:     jar,
		config:  cfg,
		logger:  logger,
	}, nil
}

// SetCookies stores session cookies for u, typically exported from the
// authenticated browser.
func (c *Client) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.jar.SetCookies(u, cookies)
	c.logger.Debug().
		Str("host", u.Host).
		Int("cookies", len(cookies)).
		Msg("Session cookies installed")
}

// Do performs an HTTP request with pacing and error classification.
// Non-2xx responses are returned as *APIError; the body is closed in that case.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		mjpRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return nil, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", req.URL.RawQuery).
		Msg("Executing listing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		mjpErrorsTotal.WithLabelValues(string(errClass)).Inc()
		mjpRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return nil, &APIError{ErrorClass: errClass, Message: "request failed", Err: err}
	}

	mjpRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := c.classifyError(resp, nil)
		mjpErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Listing request error")
		resp.Body.Close()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	return resp, nil
}

// GetJSON performs a GET request and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		mjpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	if err := json.Unmarshal(body, v); err != nil {
		mjpErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode body",
			Err:        err,
		}
	}
	return nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			c.logger.Debug().Str("class", string(ErrorClassNetwork)).Msg("Timeout classified as network error")
		}
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// SetHTTPClient sets a custom HTTP client (for testing). The client's cookie
// jar is kept.
func (c *Client) SetHTTPClient(client *http.Client) {
	client.Jar = c.jar
	c.httpClient = client
}
