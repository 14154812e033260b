package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned for network failures, timeouts and non-2xx
	// answers. A fallback chain treats it as "try the next provider".
	ErrUnavailable = errors.New("client: provider unavailable")

	// ErrNoData is returned when a provider cannot serve any of the
	// requested variables or answers with an unusable payload.
	ErrNoData = errors.New("client: no usable data")

	// ErrRangeTooLarge is returned before any network call when a query
	// exceeds a provider's date range limit.
	ErrRangeTooLarge = errors.New("client: date range too large")
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BaseClient is the shared HTTP core of the REST providers: one attempt per
// call, guarded by a circuit breaker. Retrying is the fallback chain's job.
type BaseClient struct {
	client    HTTPClient
	logger    *zap.Logger
	breaker   *gobreaker.CircuitBreaker
	userAgent string
}

type ClientConfig struct {
	Timeout        time.Duration
	BreakerTimeout time.Duration
	UserAgent      string
}

func NewBaseClient(name string, config ClientConfig, logger *zap.Logger) *BaseClient {
	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	breakerSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BaseClient{
		client:    httpClient,
		logger:    logger,
		breaker:   gobreaker.NewCircuitBreaker(breakerSettings),
		userAgent: config.UserAgent,
	}
}

// Get fetches url once through the circuit breaker.
func (c *BaseClient) Get(ctx context.Context, url string) ([]byte, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return body.([]byte), nil
}

func (c *BaseClient) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("HTTP request failed",
			zap.String("url", url),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("HTTP request rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}

	c.logger.Debug("Request successful",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_size", len(body)))

	return body, nil
}
