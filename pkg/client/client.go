// Package client provides the upstream HTTP fetcher for SWAPI resources.
// Failures never escape as errors: every GET resolves to a Result that is
// either a parsed JSON document or an absent value carrying the reason.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-loader/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for upstream fetches.
var (
	swapiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_requests_total",
		Help: "Total upstream requests by resource kind and status",
	}, []string{"resource", "status"})

	swapiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapi_request_duration_seconds",
		Help:    "Upstream request duration in seconds by resource kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	}, []string{"resource"})

	swapiFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_fetch_failures_total",
		Help: "Total fetches that resolved to an absent value, by error class",
	}, []string{"class"})
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses and unusable URLs.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents 2xx responses whose body is not JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// ResponseCache stores successful response bodies keyed by URL.
// *cache.Manager satisfies it.
type ResponseCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Result is the outcome of one fetch: a JSON document, or absent with a reason.
type Result struct {
	URL  string
	Body json.RawMessage
	Err  error
}

// OK reports whether the fetch produced a document.
func (r Result) OK() bool {
	return r.Err == nil
}

// Decode unmarshals the fetched document into v.
func (r Result) Decode(v any) error {
	if !r.OK() {
		return r.Err
	}
	return json.Unmarshal(r.Body, v)
}

// Client fetches SWAPI resources over a shared connection pool.
type Client struct {
	httpClient *http.Client
	cache      ResponseCache
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// RequestTimeout bounds a single GET; expiry is treated as a network failure
	RequestTimeout time.Duration

	// MaxIdleConnsPerHost sizes the keep-alive pool
	MaxIdleConnsPerHost int

	// Cache is optional; nil disables response caching
	Cache ResponseCache
}

// DefaultConfig returns a default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:           userAgent,
		RequestTimeout:      15 * time.Second,
		MaxIdleConnsPerHost: 64,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("request_timeout must be >= 0 (got %s)", cfg.RequestTimeout)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		cache:      cfg.Cache,
		config:     cfg,
		logger:     log.With().Str("component", "swapi-client").Logger(),
	}, nil
}

// Fetch issues one GET for rawURL and parses the JSON body.
// Any failure is reported on Result.Err; there is no retry.
func (c *Client) Fetch(ctx context.Context, rawURL string) Result {
	if strings.TrimSpace(rawURL) == "" {
		return c.fail(Result{URL: rawURL}, &FetchError{
			URL:        rawURL,
			ErrorClass: ErrorClassClient,
			Message:    "no url",
			Err:        ErrEmptyURL,
		})
	}

	key := cache.CacheKey{URL: rawURL}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("url", rawURL).Msg("Cache hit")
			return Result{URL: rawURL, Body: entry.Data}
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
		}
	}

	resource := resourceKind(rawURL)
	startTime := time.Now()
	defer func() {
		swapiRequestDuration.WithLabelValues(resource).Observe(time.Since(startTime).Seconds())
	}()

	reqCtx := ctx
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		swapiRequestsTotal.WithLabelValues(resource, "invalid").Inc()
		return c.fail(Result{URL: rawURL}, &FetchError{
			URL:        rawURL,
			ErrorClass: ErrorClassClient,
			Message:    "create request",
			Err:        err,
		})
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		swapiRequestsTotal.WithLabelValues(resource, "network_error").Inc()
		return c.fail(Result{URL: rawURL}, &FetchError{
			URL:        rawURL,
			ErrorClass: classifyError(nil, err),
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	swapiRequestsTotal.WithLabelValues(resource, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.fail(Result{URL: rawURL}, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyError(resp, nil),
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(Result{URL: rawURL}, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		})
	}
	if !json.Valid(body) {
		return c.fail(Result{URL: rawURL}, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "parse body",
			Err:        ErrNotJSON,
		})
	}

	if c.cache != nil {
		entry := cache.NewEntry(body, resp.StatusCode, resp.Header)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache response")
		}
	}

	return Result{URL: rawURL, Body: body}
}

// FetchAll fetches every URL concurrently and waits for all of them.
// The output is positionally aligned with urls; failed entries are absent.
func (c *Client) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}

	var g errgroup.Group
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = c.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// fail records the failure and attaches it to r.
func (c *Client) fail(r Result, fe *FetchError) Result {
	swapiFetchFailuresTotal.WithLabelValues(string(fe.ErrorClass)).Inc()
	c.logger.Warn().
		Str("url", fe.URL).
		Int("status", fe.StatusCode).
		Str("error_class", string(fe.ErrorClass)).
		AnErr("cause", fe.Err).
		Msg("Fetch failed")
	r.Err = fe
	return r
}

// classifyError categorizes a failed request for observability.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// resourceKind extracts the collection name from a SWAPI URL
// (".../api/films/2/" -> "films") for use as a metric label.
func resourceKind(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "unknown"
	}
	return parts[len(parts)-2]
}
