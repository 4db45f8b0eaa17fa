// Package llm provides the language-model collaborator: it turns a composed
// prompt.Context into a reply text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/carobot/internal/prompt"
	"go.uber.org/zap"
)

// Client completes a composed prompt. Implementations return *UpstreamError
// when the provider fails.
type Client interface {
	Complete(ctx context.Context, c prompt.Context) (string, error)
}

// UpstreamError reports a failed or unusable provider response.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s upstream: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrEmptyReply is wrapped in an UpstreamError when the provider answers
// with no text.
var ErrEmptyReply = errors.New("empty reply")

// Config controls client construction.
type Config struct {
	Provider string // auto, ark, http, mock

	HTTPURL   string
	HTTPKey   string
	HTTPModel string

	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
	ArkRegion  string

	Timeout time.Duration
}

// NewClient builds the configured client and returns the provider name in
// use. In auto mode ark wins over http, and mock is used when neither is
// configured.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (Client, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		return newAutoClient(ctx, cfg, logger)
	case "ark":
		c, err := NewEinoClient(ctx, ArkConfig{
			APIKey:  cfg.ArkAPIKey,
			Model:   cfg.ArkModel,
			BaseURL: cfg.ArkBaseURL,
			Region:  cfg.ArkRegion,
		})
		if err != nil {
			return nil, provider, err
		}
		return c, provider, nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, provider, errors.New("LLM_HTTP_URL is required for http provider")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.HTTPKey, cfg.HTTPModel, cfg.Timeout, logger), provider, nil
	case "mock":
		return NewMockClient(), provider, nil
	default:
		return nil, provider, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newAutoClient(ctx context.Context, cfg Config, logger *zap.Logger) (Client, string, error) {
	var secondary Client
	secondaryName := ""
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		secondary = NewHTTPClient(cfg.HTTPURL, cfg.HTTPKey, cfg.HTTPModel, cfg.Timeout, logger)
		secondaryName = "http"
	}

	if strings.TrimSpace(cfg.ArkAPIKey) != "" && strings.TrimSpace(cfg.ArkModel) != "" {
		ark, err := NewEinoClient(ctx, ArkConfig{
			APIKey:  cfg.ArkAPIKey,
			Model:   cfg.ArkModel,
			BaseURL: cfg.ArkBaseURL,
			Region:  cfg.ArkRegion,
		})
		if err == nil {
			if secondary != nil {
				return NewFallbackClient(ark, secondary, logger), "ark+" + secondaryName, nil
			}
			return ark, "ark", nil
		}
		logger.Warn("ark client unavailable", zap.Error(err))
	}

	if secondary != nil {
		return secondary, secondaryName, nil
	}
	return NewMockClient(), "mock", nil
}
