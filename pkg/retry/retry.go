package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0; 0 keeps delays exact
}

// DefaultConfig returns sensible defaults for connecting to the remote store
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// applyJitter adds random jitter to a delay to prevent thundering herd.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// delayFor returns the wait before retry number n (1-based).
func (c *Config) delayFor(n int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < n; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	return applyJitter(delay, c.JitterFactor)
}

// Do executes fn with exponential backoff retry logic
// Returns nil on success, or last error after all retries exhausted
// Respects context cancellation during wait periods
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn and returns both result and error
// Useful for functions that return values (like pgxpool.New)
// Respects context cancellation during wait periods
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err
		result = r // Keep last result even on error

		if attempt < cfg.MaxRetries {
			if err := wait(ctx, cfg.delayFor(attempt+1)); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableError is an interface for errors that explicitly declare their retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"server closed the connection",
	"unexpected eof",
	// Throttling
	"rate limit",
	"quota",
	"resource exhausted",
	"too many requests",
	"service unavailable",
}

// IsRetryable determines if an error is transient and worth retrying
// This prevents wasting retries on permanent failures (permission errors, bad input, etc.)
//
// The function checks errors in this order:
// 1. If the error implements RetryableError interface, use its IsRetryable() method
// 2. Otherwise, pattern-match against known retryable error strings
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Class groups failures that share a retry budget.
type Class int

const (
	// Permanent failures are returned immediately.
	Permanent Class = iota
	// Transient failures (network, contention) use the transient budget.
	Transient
	// Throttled failures (quota, rate limit) use the longer throttled budget.
	Throttled
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Throttled:
		return "throttled"
	default:
		return "permanent"
	}
}

// Policy assigns a separate backoff budget to each retryable class.
type Policy struct {
	Transient *Config
	Throttled *Config

	// Classify maps an error to its class. Nil uses IsRetryable.
	Classify func(error) Class

	// OnRetry is called before each wait.
	OnRetry func(class Class, attempt int, delay time.Duration, err error)
}

// ExhaustedError is returned when a class ran out of retries.
type ExhaustedError struct {
	Class    Class
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s error after %d retries: %v", e.Class, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// DoWithPolicy executes fn, retrying transient and throttled failures with their
// own budgets. Permanent failures return immediately, unwrapped. A class that
// exceeds its MaxRetries returns *ExhaustedError.
func DoWithPolicy(ctx context.Context, p *Policy, fn func() error) error {
	classify := p.Classify
	if classify == nil {
		classify = func(err error) Class {
			if IsRetryable(err) {
				return Transient
			}
			return Permanent
		}
	}

	attempts := make(map[Class]int, 2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}

		class := classify(err)
		var cfg *Config
		switch class {
		case Transient:
			cfg = p.Transient
		case Throttled:
			cfg = p.Throttled
		}
		if cfg == nil {
			return err
		}

		attempts[class]++
		n := attempts[class]
		if n > cfg.MaxRetries {
			return &ExhaustedError{Class: class, Attempts: n - 1, Err: err}
		}

		delay := cfg.delayFor(n)
		if p.OnRetry != nil {
			p.OnRetry(class, n, delay, err)
		}
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}
