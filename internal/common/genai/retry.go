package genai

import (
	"context"
	"errors"
	"time"

	httpclient "nlquery-agent/internal/common/http"
	"nlquery-agent/internal/common/logger"
)

const defaultRetryBaseDelay = 100 * time.Millisecond

// RetryingClient retries transient completion failures with exponential backoff.
type RetryingClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
	logger     logger.Logger
}

func NewRetryingClient(inner Client, maxRetries int, baseDelay time.Duration, log logger.Logger) *RetryingClient {
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &RetryingClient{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     log,
	}
}

func (c *RetryingClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", unavailable(ctx.Err())
			}
		}

		text, err := c.inner.Complete(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return "", err
		}
		c.logger.Warn("completion attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return "", lastErr
}

// retryable treats client-side statuses (bad request, auth) as final.
func retryable(err error) bool {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
