package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "netflows/0.1"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Source string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: request failed (%s): %s", e.Source, e.Status, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type FetcherConfig struct {
	Source     string
	UserAgent  string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	RateLimit  int
}

// Fetcher issues GET requests with a fixed-delay retry policy. A request is
// attempted once plus Retries more times; transport failures, 429 and 5xx
// responses are retried, anything else fails immediately.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rateLimiter
	logger  *zap.Logger
}

func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger.With(zap.String("source", cfg.Source)),
	}
}

func (f *Fetcher) Get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	attempts := f.config.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := f.do(ctx, endpoint, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			break
		}
		f.logger.Warn("request failed, retrying",
			zap.String("url", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("delay", f.config.RetryDelay),
			zap.Error(err))
		if err := SleepWithContext(ctx, f.config.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) do(ctx context.Context, endpoint, accept string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.config.Source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", f.config.Source, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{
			Source: f.config.Source,
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}

func SleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rateLimiter spaces requests at least one interval apart.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newRateLimiter(ratePerSec int) *rateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	return &rateLimiter{interval: time.Second / time.Duration(ratePerSec)}
}

func (l *rateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	now := time.Now()
	wait := l.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	l.next = now.Add(wait + l.interval)
	l.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}
	return SleepWithContext(ctx, wait)
}
