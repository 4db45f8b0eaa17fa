package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/ent0n29/carobot/internal/prompt"
)

const providerArk = "ark"

// ArkConfig selects a Volcengine Ark chat model.
type ArkConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Region  string
}

// EinoClient adapts an eino chat model to Client.
type EinoClient struct {
	model    model.BaseChatModel
	provider string
}

// NewEinoClient creates an ark-backed client.
func NewEinoClient(ctx context.Context, cfg ArkConfig) (*EinoClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ARK_API_KEY and ARK_MODEL are required for ark provider")
	}
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Region:  cfg.Region,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	return NewEinoClientFromModel(cm, providerArk), nil
}

// NewEinoClientFromModel wraps any eino chat model.
func NewEinoClientFromModel(m model.BaseChatModel, provider string) *EinoClient {
	if provider == "" {
		provider = "eino"
	}
	return &EinoClient{model: m, provider: provider}
}

func (c *EinoClient) Complete(ctx context.Context, pc prompt.Context) (string, error) {
	resp, err := c.model.Generate(ctx, ToMessages(pc))
	if err != nil {
		if ctx.Err() != nil {
			return "", &UpstreamError{Provider: c.provider, Err: ctx.Err()}
		}
		return "", &UpstreamError{Provider: c.provider, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &UpstreamError{Provider: c.provider, Err: ErrEmptyReply}
	}
	return strings.TrimSpace(resp.Content), nil
}

// ToMessages converts prompt blocks to eino messages, preserving order.
func ToMessages(pc prompt.Context) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(pc.Blocks))
	for _, b := range pc.Blocks {
		switch b.Role {
		case prompt.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(b.Content))
		case prompt.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(b.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(b.Content))
		}
	}
	return msgs
}
