package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	errx "bookgpt/backend/internal/core/error"
	logx "bookgpt/backend/pkg/logger"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `envconfig:"LLM_BREAKER_MAX_FAILURES" default:"5"`
	// Timeout is how long the circuit stays open before a trial request is allowed.
	Timeout time.Duration `envconfig:"LLM_BREAKER_TIMEOUT" default:"30s"`
	// Interval clears failure counts while closed.
	Interval time.Duration `envconfig:"LLM_BREAKER_INTERVAL" default:"60s"`
}

// BreakerClient wraps a Client so repeated provider failures fail fast.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[*Response]
}

func NewBreakerClient(inner Client, cfg BreakerConfig) *BreakerClient {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logx.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		// Caller cancellations say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerClient{inner: inner, breaker: cb}
}

func (c *BreakerClient) Name() string { return c.inner.Name() }

func (c *BreakerClient) Send(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.inner.Send(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: provider %q circuit open: %v", errx.ErrNetwork, c.inner.Name(), err)
		}
		return nil, err
	}
	return resp, nil
}

// State returns the current circuit breaker state.
func (c *BreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
