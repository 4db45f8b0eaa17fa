package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/carobot/internal/prompt"
)

// MockClient returns deterministic local replies when no provider is
// configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, pc prompt.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	base := strings.TrimSpace(pc.Utterance())
	if base == "" {
		return "Acá estoy.", nil
	}
	facts := pc.Count(prompt.KindFact)
	if facts == 0 {
		return fmt.Sprintf("Te escuché: %s", base), nil
	}
	return fmt.Sprintf("Te escuché: %s (recuerdo %d cosas)", base, facts), nil
}
