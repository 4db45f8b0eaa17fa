package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/carobot/internal/reliability"
)

const (
	providerWhisper = "whisper"

	DefaultWhisperURL   = "https://api.openai.com/v1/audio/transcriptions"
	DefaultWhisperModel = "whisper-1"

	whisperMaxAttempts = 2
)

type WhisperConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// WhisperTranscriber posts audio to a Whisper-compatible transcription
// endpoint.
type WhisperTranscriber struct {
	cfg    WhisperConfig
	client *http.Client
}

func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultWhisperURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultWhisperModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &WhisperTranscriber{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", &TranscriptionError{Provider: providerWhisper, Err: errors.New("empty audio")}
	}
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if format == "" {
		format = "ogg"
	}
	if format == "pcm" {
		wav, err := WrapPCM16(audio, DefaultPCMSampleRate)
		if err != nil {
			return "", &TranscriptionError{Provider: providerWhisper, Err: err}
		}
		audio, format = wav, "wav"
	}

	body, contentType, err := t.encode(audio, format)
	if err != nil {
		return "", &TranscriptionError{Provider: providerWhisper, Err: err}
	}

	var text string
	policy := reliability.Policy{Attempts: whisperMaxAttempts, Base: 300 * time.Millisecond, Cap: 2 * time.Second}
	err = reliability.Do(ctx, policy, func(int) (bool, error) {
		out, retryable, err := t.do(ctx, body, contentType)
		if err != nil {
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

func (t *WhisperTranscriber) encode(audio []byte, format string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("model", t.cfg.Model); err != nil {
		return nil, "", err
	}
	fw, err := w.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (t *WhisperTranscriber) do(ctx context.Context, body []byte, contentType string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", false, &TranscriptionError{Provider: providerWhisper, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	if key := strings.TrimSpace(t.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return "", true, &TranscriptionError{Provider: providerWhisper, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode), &TranscriptionError{
			Provider:   providerWhisper,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return "", false, &TranscriptionError{Provider: providerWhisper, StatusCode: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", false, &TranscriptionError{Provider: providerWhisper, StatusCode: res.StatusCode, Err: errors.New("empty transcript")}
	}
	return text, false, nil
}
