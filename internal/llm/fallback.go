package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/carobot/internal/prompt"
	"go.uber.org/zap"
)

// FallbackClient tries primary first and falls back on error.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *zap.Logger
}

func NewFallbackClient(primary, fallback Client, logger *zap.Logger) *FallbackClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, pc prompt.Context) (string, error) {
	if c == nil || c.primary == nil {
		if c != nil && c.fallback != nil {
			return c.fallback.Complete(ctx, pc)
		}
		return "", fmt.Errorf("fallback client misconfigured")
	}
	text, err := c.primary.Complete(ctx, pc)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if c.fallback == nil {
		return "", err
	}
	c.logger.Warn("primary llm failed, using fallback", zap.Error(err))
	text, fallbackErr := c.fallback.Complete(ctx, pc)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary llm error: %w; fallback llm error: %v", err, fallbackErr)
	}
	return text, nil
}
