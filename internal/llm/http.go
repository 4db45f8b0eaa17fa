package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/carobot/internal/prompt"
	"github.com/ent0n29/carobot/internal/reliability"
	"go.uber.org/zap"
)

const (
	providerHTTP = "http"

	httpMaxAttempts = 3
	httpBackoffBase = 250 * time.Millisecond
	httpBackoffCap  = 2 * time.Second
)

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPClient(url, apiKey, model string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) Complete(ctx context.Context, pc prompt.Context) (string, error) {
	req := chatRequest{Model: c.model, Messages: make([]chatMessage, 0, len(pc.Blocks))}
	for _, b := range pc.Blocks {
		req.Messages = append(req.Messages, chatMessage{Role: string(b.Role), Content: b.Content})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	policy := reliability.Policy{Attempts: httpMaxAttempts, Base: httpBackoffBase, Cap: httpBackoffCap}
	err = reliability.Do(ctx, policy, func(attempt int) (bool, error) {
		out, retryable, err := c.do(ctx, payload)
		if err != nil {
			if retryable {
				c.logger.Debug("llm request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			}
			return retryable, err
		}
		text = out
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *HTTPClient) do(ctx context.Context, payload []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", true, &UpstreamError{Provider: providerHTTP, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode), &UpstreamError{
			Provider:   providerHTTP,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return "", false, &UpstreamError{Provider: providerHTTP, StatusCode: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", false, &UpstreamError{Provider: providerHTTP, StatusCode: res.StatusCode, Err: ErrEmptyReply}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), false, nil
}
