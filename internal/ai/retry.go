package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/altiplano-labs/archivador/pkg/logging"
	openai "github.com/sashabaranov/go-openai"
)

// RetryClient wraps an LLMClient with exponential backoff on transient
// failures (rate limits and server-side errors). All other failures
// propagate after a single attempt.
type RetryClient struct {
	client      LLMClient
	maxAttempts int
	baseDelay   time.Duration
	logger      *logging.Logger

	sleep func(context.Context, time.Duration) error
}

func NewRetryClient(client LLMClient, maxAttempts int, baseDelay time.Duration, logger *logging.Logger) *RetryClient {
	if client == nil {
		panic("ai: retry client requires an underlying client")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryClient{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

func (c *RetryClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	delay := c.baseDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetriable(err) || attempt == c.maxAttempts {
			break
		}
		c.logger.Warn("transient llm failure, backing off", "error", err, "attempt", attempt, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return LLMResponse{}, err
		}
		delay *= 2
	}
	return LLMResponse{}, lastErr
}

// IsRetriable reports whether err is a rate-limit or server-side failure.
func IsRetriable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}

	// AWS SDK errors expose the HTTP status through the response error chain.
	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}

	var throttled interface{ ErrorCode() string }
	if errors.As(err, &throttled) {
		switch throttled.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "ModelNotReadyException":
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
