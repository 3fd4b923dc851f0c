// Package upstream holds the JSON HTTP clients for the services the gateway
// depends on: configuration, fraud, member profile, payment templates and
// the transaction service.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// BreakerConfig configures the circuit breaker in front of one upstream
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration
	// MaxRequestsHalfOpen is how many trial requests run while half-open
	MaxRequestsHalfOpen uint32
}

// DefaultBreakerConfig returns sensible defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// StatusError is a non-2xx answer from an upstream
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Client is a JSON client for one upstream service
type Client struct {
	name    string
	rest    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a client. timeout bounds a single HTTP exchange; callers
// still pass their own deadline through the context.
func NewClient(name, baseURL string, timeout time.Duration, cfg BreakerConfig, logger *zap.Logger) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequestsHalfOpen,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// 4xx answers mean the upstream is healthy
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		name:    name,
		rest:    rest,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// WithTransport replaces the underlying HTTP transport
func (c *Client) WithTransport(t http.RoundTripper) *Client {
	c.rest.SetTransport(t)
	return c
}

// Name returns the upstream's name
func (c *Client) Name() string { return c.name }

// Do sends body (if any) and decodes a 2xx JSON answer into out (if any).
// Errors come back as domain errors: GATEWAY_TIMEOUT when the deadline
// passed, UPSTREAM_UNAVAILABLE otherwise, with any *StatusError wrapped.
func (c *Client) Do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.rest.R().SetContext(ctx)
		if len(query) > 0 {
			req.SetQueryParams(query)
		}
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &StatusError{Service: c.name, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}

	c.logger.Warn("Upstream call failed",
		zap.String("service", c.name),
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(err),
	)
	return c.translate(err)
}

func (c *Client) translate(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrorCodeGatewayTimeout, c.name+" timed out", err).
			WithDetail("service", c.name)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.WrapError(domain.ErrorCodeUpstreamUnavailable, c.name+" circuit open", err).
			WithDetail("service", c.name)
	default:
		return domain.WrapError(domain.ErrorCodeUpstreamUnavailable, c.name+" request failed", err).
			WithDetail("service", c.name)
	}
}

// StatusCode returns the HTTP status wrapped in err, or 0
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
