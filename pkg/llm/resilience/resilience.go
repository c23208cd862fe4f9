// Package resilience 为 LLM 网关调用提供重试与熔断。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/kart-io/logger"
	"github.com/sony/gobreaker"
)

// RetryConfig 指数退避重试参数。
type RetryConfig struct {
	// MaxAttempts 包括首次调用。
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable 为 nil 时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryConfig returns 3 attempts starting at 500ms, doubling up to 10s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Retryable:    IsRetryableError,
	}
}

func (c *RetryConfig) delay(n uint, _ error, _ *retry.Config) time.Duration {
	return time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(n)))
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. Exhaustion wraps the last error.
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}
	attempts := max(cfg.MaxAttempts, 1)

	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.DelayType(cfg.delay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debugw("llm call failed, retrying", "attempt", n+1, "error", err.Error())
		}),
	)
	if err == nil || ctx.Err() != nil || !retryable(err) {
		return err
	}
	logger.Warnw("llm retries exhausted", "attempts", attempts, "error", err.Error())
	return fmt.Errorf("max retry attempts (%d) reached: %w", attempts, err)
}

// CircuitBreakerConfig 熔断参数。
type CircuitBreakerConfig struct {
	// MaxFailures 连续失败达到该值时打开。
	MaxFailures int
	// Timeout 打开后经过该时长进入半开。
	Timeout time.Duration
	// HalfOpenMaxCalls 半开状态放行的探测调用数。
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig opens after 5 consecutive failures for 60s.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// ErrCircuitBreakerOpen is returned without calling the provider while the
// breaker is open or its half-open probes are in flight.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards one provider operation.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker; name appears in state-change logs.
func NewCircuitBreaker(name string, cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	maxFailures := uint32(max(cfg.MaxFailures, 1))

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(max(cfg.HalfOpenMaxCalls, 1)),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		// 调用方取消不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warnw("circuit breaker opened", "breaker", name, "from", from.String())
				return
			}
			logger.Infow("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})}
}

// Execute runs fn through the breaker.
func (b *CircuitBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitBreakerOpen
	}
	return err
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// ConsecutiveFailures returns the failures counted since the last success.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	return int(b.cb.Counts().ConsecutiveFailures)
}

// RetryWithCircuitBreaker retries fn, each attempt passing through cb.
func RetryWithCircuitBreaker(ctx context.Context, cfg *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, cfg, func() error {
		return cb.Execute(fn)
	})
}
