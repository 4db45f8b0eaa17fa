package voice

import (
	"context"
	"errors"
	"strings"
)

// MockProvider is an offline Transcriber and Synthesizer. It treats audio
// bytes as UTF-8 text and "synthesizes" text as plain bytes.
type MockProvider struct {
	Transcript string
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Transcript != "" {
		return p.Transcript, nil
	}
	text := strings.TrimSpace(string(audio))
	if text == "" {
		return "", &TranscriptionError{Provider: "mock", Err: errors.New("empty audio")}
	}
	return text, nil
}

func (p *MockProvider) Synthesize(ctx context.Context, text string) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	return Audio{Data: []byte(text), Format: "txt"}, nil
}
