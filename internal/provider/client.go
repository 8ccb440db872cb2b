package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rickgao/barsync/internal/metrics"
)

// BreakerSettings configures the circuit breaker around provider calls.
type BreakerSettings struct {
	MaxRequests         uint32        // Probes allowed while half-open
	Interval            time.Duration // Closed-state counting window
	Timeout             time.Duration // Open duration before half-open
	ConsecutiveFailures uint32        // Failures that trip the breaker
}

// DefaultBreakerSettings returns sensible defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Client fetches candles from the provider REST API.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector

	maxRetries   int
	retryBackoff time.Duration

	limiter           *rate.Limiter
	breakerSettings   BreakerSettings
	breaker           *gobreaker.CircuitBreaker[[]byte]
	includeIncomplete bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		name:    "oanda",
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:          slog.Default(),
		maxRetries:      3,
		retryBackoff:    time.Second,
		limiter:         rate.NewLimiter(rate.Inf, 1),
		breakerSettings: DefaultBreakerSettings(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.breaker = newBreaker(c.name, c.breakerSettings, c.logger)
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outgoing requests at perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(s BreakerSettings) ClientOption {
	return func(c *Client) {
		c.breakerSettings = s
	}
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithName sets the provider name used in logs and metrics.
func WithName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithIncomplete keeps candles the provider marks as not yet complete.
func WithIncomplete(include bool) ClientOption {
	return func(c *Client) {
		c.includeIncomplete = include
	}
}

// Name implements Provider.
func (c *Client) Name() string {
	return c.name
}

func newBreaker(name string, s BreakerSettings, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	trip := s.ConsecutiveFailures
	if trip == 0 {
		trip = DefaultBreakerSettings().ConsecutiveFailures
	}
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		// Only transport failures and server-side errors count against the
		// provider's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var perr *Error
			if errors.As(err, &perr) {
				return !perr.IsRetryable()
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state change",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}
