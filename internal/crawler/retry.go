package crawler

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy decides whether a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(result FetchResult, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ExponentialRetryPolicy retries network failures and retryable statuses with
// jittered exponential backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts total attempts.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// NoRetry returns a policy that makes exactly one attempt.
func NoRetry() *ExponentialRetryPolicy {
	return NewExponentialRetryPolicy(1, 0, 0)
}

// MaxAttempts returns the total number of attempts allowed.
func (p *ExponentialRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry implements RetryPolicy. attempt counts finished attempts.
func (p *ExponentialRetryPolicy) ShouldRetry(result FetchResult, attempt int) bool {
	if result.Success || attempt >= p.maxAttempts {
		return false
	}
	switch result.Kind {
	case FailureNetwork:
		return !strings.HasPrefix(result.Error, "canceled")
	case FailureHTTP:
		return result.StatusCode == http.StatusTooManyRequests || result.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

type retryingFetcher struct {
	inner  URLFetcher
	policy RetryPolicy
	logger *zap.Logger
}

// Retrying wraps a URLFetcher with an explicit retry policy. A nil policy
// means a single attempt.
func Retrying(inner URLFetcher, policy RetryPolicy, logger *zap.Logger) URLFetcher {
	if policy == nil {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingFetcher{inner: inner, policy: policy, logger: logger}
}

func (r *retryingFetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	for attempt := 1; ; attempt++ {
		result := r.inner.Fetch(ctx, rawURL)
		if !r.policy.ShouldRetry(result, attempt) {
			return result
		}
		delay := r.policy.Backoff(attempt)
		r.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.String("error", result.Error),
			zap.Duration("backoff", delay),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return result
		}
	}
}
