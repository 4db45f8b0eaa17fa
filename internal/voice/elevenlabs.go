package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ent0n29/carobot/internal/reliability"
	"github.com/gorilla/websocket"
)

const providerElevenLabs = "elevenlabs"

type ElevenLabsConfig struct {
	APIKey          string
	WSBaseURL       string
	VoiceID         string
	ModelID         string
	OutputFormat    string
	Stability       float64
	SimilarityBoost float64
}

// ElevenLabsSynthesizer renders a full reply through the stream-input
// websocket and collects the audio chunks until the final message.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	cfg.Stability = clamp01(cfg.Stability, 0.45)
	cfg.SimilarityBoost = clamp01(cfg.SimilarityBoost, 0.8)
	return &ElevenLabsSynthesizer{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, &SynthesisError{Provider: providerElevenLabs, Err: errors.New("empty text")}
	}
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return Audio{}, &SynthesisError{Provider: providerElevenLabs, Err: errors.New("voice_id is required")}
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return Audio{}, &SynthesisError{Provider: providerElevenLabs, Err: err}
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		code := ""
		if resp != nil {
			code = strconv.Itoa(resp.StatusCode)
		}
		return Audio{}, &SynthesisError{Provider: providerElevenLabs, Code: code, Err: fmt.Errorf("dial tts websocket: %w", err)}
	}
	defer conn.Close()

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	frames := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Stability,
				"similarity_boost": s.cfg.SimilarityBoost,
			},
		},
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return Audio{}, s.wrapErr(ctx, "", fmt.Errorf("write frame: %w", err))
		}
	}

	var out []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(out) > 0 {
				break
			}
			return Audio{}, s.wrapErr(ctx, "", fmt.Errorf("read frame: %w", err))
		}
		var msg struct {
			Audio       string `json:"audio"`
			IsFinal     bool   `json:"isFinal"`
			IsFinalAlt  bool   `json:"is_final"`
			Error       string `json:"error"`
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return Audio{}, &SynthesisError{
				Provider: providerElevenLabs,
				Code:     msg.MessageType,
				Err:      fmt.Errorf("%s (retryable=%t)", msg.Error, reliability.IsRetryableRealtimeMessageType(msg.MessageType)),
			}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return Audio{}, &SynthesisError{Provider: providerElevenLabs, Err: fmt.Errorf("decode audio chunk: %w", err)}
			}
			out = append(out, chunk...)
		}
		if msg.IsFinal || msg.IsFinalAlt {
			break
		}
	}
	if len(out) == 0 {
		return Audio{}, &SynthesisError{Provider: providerElevenLabs, Err: errors.New("no audio received")}
	}
	return Audio{Data: out, Format: formatFromOutput(s.cfg.OutputFormat)}, nil
}

func (s *ElevenLabsSynthesizer) wrapErr(ctx context.Context, code string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &SynthesisError{Provider: providerElevenLabs, Code: code, Err: err}
}

// formatFromOutput maps an ElevenLabs output format ("mp3_44100_128") to
// its container name.
func formatFromOutput(outputFormat string) string {
	codec, _, _ := strings.Cut(outputFormat, "_")
	if codec == "" {
		return "mp3"
	}
	return codec
}

func clamp01(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	if v > 1 {
		return 1
	}
	return v
}
