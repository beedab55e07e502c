// Package resilience provides fault-tolerance patterns:
// retry with exponential backoff, circuit breaker, and bulkhead.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
	// MaxBackoff caps Backoff; zero means no cap.
	MaxBackoff time.Duration
}

// Backoff returns the wait before retry number attempt (zero based):
// InitialBackoff * 2^attempt plus up to 50% jitter, capped by MaxBackoff.
func Backoff(cfg Config, attempt int) time.Duration {
	if cfg.InitialBackoff <= 0 {
		return 0
	}
	backoff := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
	if cfg.MaxBackoff > 0 && (backoff > cfg.MaxBackoff || backoff <= 0) {
		backoff = cfg.MaxBackoff
	}
	if half := int64(backoff / 2); half > 0 {
		backoff += time.Duration(rand.Int63n(half))
	}
	return backoff
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation and stops on a *Permanent error,
// returning the wrapped cause.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return perm.Err
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(Backoff(cfg, attempt)):
			}
		}
	}
	return lastErr
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
// Errors for which isSuccessful returns true (e.g. not found) do not count
// as failures; pass nil to count every error.
func NewCircuitBreaker(name string, isSuccessful func(error) bool) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return isSuccessful != nil && isSuccessful(err)
		},
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}
