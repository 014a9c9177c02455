package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds the completion retry loop.
type RetryConfig struct {
	// MaxRetries is the attempt cap for transient errors.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// BaseWait is multiplied by the attempt number: the backoff grows
	// linearly, not exponentially.
	BaseWait time.Duration `yaml:"base_wait" json:"base_wait"`
	// OnRetry, when set, is invoked once per transient failure before the
	// backoff sleep. Used to surface retry counts to metrics.
	OnRetry func(attempt int) `yaml:"-" json:"-"`
}

// DefaultRetryConfig returns the default completion retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseWait:   5 * time.Second,
	}
}

// ChatWithRetry runs a completion call with linear backoff over transient
// failures. Terminal errors (auth, permission, malformed request) stop
// immediately. When retries are exhausted or a terminal error is hit it
// returns nil: the caller degrades to an empty reply rather than propagating
// the failure.
func ChatWithRetry(ctx context.Context, provider Provider, req *ChatRequest, config RetryConfig, logger *zap.Logger) *ChatResponse {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultRetryConfig().MaxRetries
	}

	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		resp, err := provider.Chat(ctx, req)
		if err == nil {
			return resp
		}

		if !retryable(err) {
			logger.Error("terminal completion error",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
			return nil
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt)
		}
		if attempt == config.MaxRetries {
			break
		}

		wait := config.BaseWait * time.Duration(attempt)
		logger.Error("transient completion error, retrying",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", config.MaxRetries),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}

	logger.Error("completion retries exhausted",
		zap.String("provider", provider.Name()),
		zap.Int("max_retries", config.MaxRetries),
	)
	return nil
}

// retryable reports whether an error is worth another attempt. Untyped
// errors are treated as transient connectivity failures.
func retryable(err error) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Retryable
	}
	return true
}
