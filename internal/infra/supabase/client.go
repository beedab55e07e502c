// Package supabase provides clients for Supabase (PostgREST + GoTrue).
// PostgREST backs the document store; GoTrue is the identity provider.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	bulkhead       *resilience.Bulkhead
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		bulkhead:       resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:            cfg,
		logger:         logger,
	}
}

// IsNotFound tells the circuit breaker that a missing document is a
// successful call.
func IsNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

// statusError is a non-2xx PostgREST response.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// retryable reports whether a retry could change the outcome.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return true
}

// execute runs fn behind the bulkhead, the circuit breaker and the retry
// loop. Client errors (4xx) are not retried.
func (c *Client) execute(ctx context.Context, service string, fn func() error) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return &domain.ErrTimeout{Operation: service}
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			err := fn()
			if err != nil && (!retryable(err) || IsNotFound(err)) {
				return &resilience.Permanent{Err: err}
			}
			return err
		})
	})

	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: service}
	default:
		return &domain.ErrExternalService{Service: service, Err: err}
	}
}

// doRequest executes an authenticated request to Supabase PostgREST.
// A 404 or 204 yields a nil body.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	c.setHeaders(req, "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}
