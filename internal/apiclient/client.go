package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"namegofer/internal/config"
	"namegofer/internal/recordnames"
)

// Config for creating a new Client
type Config struct {
	BaseURL          string
	AuthToken        string
	Published        bool
	RequestTimeout   time.Duration
	CircuitBreaker   CircuitBreakerConfig
	BreakerCacheSize int
	Logger           zerolog.Logger
}

var _ recordnames.Fetcher = (*Client)(nil)

// Client fetches record names from the builder API
type Client struct {
	baseURL   string
	authToken string
	published bool

	httpClient *http.Client
	breakerCfg CircuitBreakerConfig
	breakers   *lru.Cache[recordnames.SourceID, *CircuitBreaker]
	requests   atomic.Uint64
	logger     zerolog.Logger
}

// New creates a new Client
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	size := cfg.BreakerCacheSize
	if size <= 0 {
		size = config.DefaultBreakerCacheSize
	}
	breakers, err := lru.New[recordnames.SourceID, *CircuitBreaker](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create breaker cache: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		published: cfg.Published,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		breakerCfg: cfg.CircuitBreaker,
		breakers:   breakers,
		logger:     cfg.Logger.With().Str("component", "apiclient").Logger(),
	}, nil
}

// NewFromConfig creates a Client from the service config
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	clientCfg := Config{
		BaseURL:          cfg.APIURL,
		AuthToken:        cfg.AuthToken,
		Published:        cfg.Published,
		RequestTimeout:   cfg.GetRequestTimeoutDuration(),
		BreakerCacheSize: cfg.BreakerCacheSize,
		Logger:           logger,
	}
	if cfg.IsCircuitBreakerEnabled() {
		clientCfg.CircuitBreaker = CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:     cfg.CircuitBreaker.GetRecoveryTimeoutDuration(),
			HalfOpenMaxRequests: cfg.CircuitBreaker.HalfOpenMaxRequests,
		}
	}
	return New(clientCfg)
}

// RecordNamesURL returns the endpoint URL for a lookup
func (c *Client) RecordNamesURL(source recordnames.SourceID, records []recordnames.RecordID) string {
	path := "/builder/data-source/%d/record-names/"
	if c.published {
		path = "/builder/domains/published/data-source/%d/record-names/"
	}

	query := url.Values{}
	query.Set("record_ids", recordnames.JoinRecordIDs(records))

	return c.baseURL + fmt.Sprintf(path, source) + "?" + query.Encode()
}

// FetchRecordNames asks the API for the names of records in source
func (c *Client) FetchRecordNames(ctx context.Context, source recordnames.SourceID, records []recordnames.RecordID) (recordnames.Names, error) {
	breaker := c.breaker(source)
	if breaker == nil {
		return c.fetch(ctx, source, records)
	}
	if err := breaker.Allow(); err != nil {
		return nil, fmt.Errorf("data source %d: %w", source, err)
	}

	names, err := c.fetch(ctx, source, records)
	breaker.Done(err)
	return names, err
}

func (c *Client) fetch(ctx context.Context, source recordnames.SourceID, records []recordnames.RecordID) (recordnames.Names, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RecordNamesURL(source, records), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "JWT "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	c.requests.Add(1)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	names, skipped := recordnames.ParseNames(raw)
	if len(skipped) > 0 {
		c.logger.Debug().
			Int64("source", int64(source)).
			Strs("keys", skipped).
			Msg("skipped non numeric record ids in response")
	}

	c.logger.Debug().
		Int64("source", int64(source)).
		Int("requested", len(records)).
		Int("found", len(names)).
		Msg("record names fetched")

	return names, nil
}

// breaker returns the data source's breaker, or nil when disabled
func (c *Client) breaker(source recordnames.SourceID) *CircuitBreaker {
	if !c.breakerCfg.Enabled {
		return nil
	}
	fresh := NewCircuitBreaker(c.breakerCfg)
	if existing, ok, _ := c.breakers.PeekOrAdd(source, fresh); ok {
		c.breakers.Get(source)
		return existing
	}
	return fresh
}

// BreakerState returns the breaker state of a data source
func (c *Client) BreakerState(source recordnames.SourceID) string {
	if b, ok := c.breakers.Peek(source); ok {
		return b.State()
	}
	return breakerClosed.String()
}

// SwapRequestCount returns the number of HTTP calls made since the last
// call and resets the counter
func (c *Client) SwapRequestCount() uint64 {
	return c.requests.Swap(0)
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
