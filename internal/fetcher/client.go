// Package fetcher retrieves JSON and text payloads from upstream skill sources.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/javainthinking/skillspick/internal/logger"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns          = 100
	defaultMaxIdleConnsPerHost   = 10
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 32 << 20
	// maxErrorBodyBytes caps the body excerpt kept on a FetchError.
	maxErrorBodyBytes = 512
)

// RequestRecorder receives one observation per completed HTTP exchange.
// code is 0 when no response was received.
type RequestRecorder interface {
	ObserveRequest(host string, code int)
}

// Client performs upstream HTTP requests with no-cache semantics, an
// optional rate limit and optional bearer credentials.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       logger.Logger
	recorder  RequestRecorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the whole-request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRecorder sets the per-request observer, typically Prometheus metrics.
func WithRecorder(r RequestRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a Client. Without options it uses a pooled transport with a
// 30s timeout and no rate limit.
func New(opts ...Option) *Client {
	c := &Client{
		http:      newHTTPClient(DefaultTimeout),
		userAgent: "skillspick",
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

type requestOptions struct {
	headers http.Header
	bearer  string
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.headers.Add(key, value) }
}

// WithBearer sets `Authorization: Bearer <token>` when token is non-empty.
func WithBearer(token string) RequestOption {
	return func(o *requestOptions) { o.bearer = token }
}

// FetchJSON GETs rawURL and decodes the JSON body into out.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, out any, opts ...RequestOption) error {
	body, err := c.do(ctx, http.MethodGet, rawURL, nil, opts)
	if err != nil {
		return err
	}
	if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
		return fmt.Errorf("decode %s: %w", rawURL, decodeErr)
	}
	return nil
}

// FetchBytes GETs rawURL and returns the raw body.
func (c *Client) FetchBytes(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, opts)
}

// FetchText GETs rawURL and returns the body as a string.
func (c *Client) FetchText(ctx context.Context, rawURL string, opts ...RequestOption) (string, error) {
	body, err := c.do(ctx, http.MethodGet, rawURL, nil, opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PostJSON POSTs payload as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload, out any, opts ...RequestOption) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", rawURL, err)
	}

	opts = append(opts, WithHeader("Content-Type", "application/json"))
	body, err := c.do(ctx, http.MethodPost, rawURL, encoded, opts)
	if err != nil {
		return err
	}
	if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
		return fmt.Errorf("decode %s: %w", rawURL, decodeErr)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte, opts []RequestOption) ([]byte, error) {
	ro := requestOptions{headers: http.Header{}}
	for _, opt := range opts {
		opt(&ro)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", rawURL, err)
	}

	for key, values := range ro.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if ro.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+ro.bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(req.URL, 0)
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	c.observe(req.URL, resp.StatusCode)
	c.log.Debug("Upstream request",
		logger.String("method", method),
		logger.String("url", rawURL),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        rawURL,
			Body:       string(excerpt),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	return body, nil
}

func (c *Client) observe(u *url.URL, code int) {
	if c.recorder == nil || u == nil {
		return
	}
	c.recorder.ObserveRequest(u.Host, code)
}
