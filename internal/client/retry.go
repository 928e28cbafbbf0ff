package client

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig retries three times starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// retryable reports whether a failed attempt is worth repeating: transport errors other
// than cancellation, 429 and 5xx.
func retryable(err error, statusCode int) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// attemptFunc performs one attempt. A non-nil error with statusCode 0 is a transport error.
type attemptFunc func(attempt int) (statusCode int, err error)

// withRetry runs fn until it succeeds, fails with a non-retryable outcome, or runs out of
// attempts. The last attempt's error is returned.
func withRetry(ctx context.Context, cfg RetryConfig, logger *zap.Logger, op string, fn attemptFunc) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := cfg.delay(attempt - 1)
			logger.Debug("retrying request",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", cfg.MaxRetries+1),
				zap.Duration("delay", d))

			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		statusCode, err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logger.Debug("request succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !retryable(transportErr(err, statusCode), statusCode) || attempt == cfg.MaxRetries {
			return err
		}
		logger.Warn("request failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("status", statusCode),
			zap.Error(err))
	}
	return lastErr
}

// transportErr keeps err only when no HTTP status was received.
func transportErr(err error, statusCode int) error {
	if statusCode != 0 {
		return nil
	}
	return err
}
