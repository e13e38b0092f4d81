package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned when the upstream's circuit breaker rejects the call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the upstream in logs, metrics and the registry.
	Name string

	// Timeout bounds each individual attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 0 (a single attempt)
	MaxRetries uint64

	// InitialInterval is the first exponential backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// UserAgent is sent with every request that does not set its own.
	UserAgent string

	// Transport is the underlying round tripper (optional).
	Transport http.RoundTripper

	// CircuitBreaker overrides DefaultCircuitBreakerConfig (optional).
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives the client on creation (optional).
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults used for upstream calls.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cb,
	}
}

// Client is an HTTP client guarded by a circuit breaker with optional retries.
type Client struct {
	name           string
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	cfg            ClientConfig
	logger         zerolog.Logger

	mu            sync.RWMutex
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastError     string
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	if cbConfig.OnStateChange == nil {
		logger := cfg.Logger
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		cfg:            cfg,
		logger:         cfg.Logger,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// Get issues a GET request for url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do executes req through the circuit breaker. Network errors and 5xx
// responses are retried with exponential backoff up to MaxRetries times.
// When retries run out on a 5xx the last response is returned without error.
// Returns ErrCircuitOpen without calling the upstream if the breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var lastResp *http.Response
	operation := func() error {
		if lastResp != nil {
			lastResp.Body.Close()
			lastResp = nil
		}

		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			r, err := c.httpClient.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			lastResp = resp
			return err
		}

		lastResp = resp
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("upstream", c.name).Dur("retry_in", wait).Msg("upstream request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		c.recordFailure(err)
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

// ServerError represents an HTTP 5xx answer from the upstream.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}

// Health returns a snapshot of the client's health.
func (c *Client) Health() ProviderHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := ProviderHealth{
		Name:         c.name,
		CircuitState: c.circuitBreaker.State(),
		Counts:       c.circuitBreaker.Counts(),
		LastError:    c.lastError,
	}
	if !c.lastSuccessAt.IsZero() {
		t := c.lastSuccessAt
		h.LastSuccessAt = &t
	}
	if !c.lastFailureAt.IsZero() {
		t := c.lastFailureAt
		h.LastFailureAt = &t
	}
	return h
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSuccessAt = time.Now()
}

func (c *Client) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFailureAt = time.Now()
	c.lastError = err.Error()
}
