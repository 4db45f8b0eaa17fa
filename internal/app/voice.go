package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/carobot/internal/config"
	"github.com/ent0n29/carobot/internal/voice"
)

type voiceSetup struct {
	transcriber voice.Transcriber
	synthesizer voice.Synthesizer
	detail      string
}

func resolveVoiceProviders(cfg config.Config) (voiceSetup, error) {
	voiceMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if voiceMode == "" {
		voiceMode = "auto"
	}

	cloud := func() (voiceSetup, bool) {
		if cfg.WhisperAPIKey == "" && cfg.WhisperURL == "" {
			return voiceSetup{}, false
		}
		setup := voiceSetup{
			transcriber: voice.NewWhisperTranscriber(voice.WhisperConfig{
				URL:     cfg.WhisperURL,
				APIKey:  cfg.WhisperAPIKey,
				Model:   cfg.WhisperModel,
				Timeout: cfg.LLMTimeout,
			}),
			detail: "whisper",
		}
		// Without a voice the reply stays text-only.
		if cfg.ElevenLabsAPIKey != "" && cfg.ElevenLabsTTSVoice != "" {
			setup.synthesizer = voice.NewElevenLabsSynthesizer(voice.ElevenLabsConfig{
				APIKey:       cfg.ElevenLabsAPIKey,
				WSBaseURL:    cfg.ElevenLabsWSBaseURL,
				VoiceID:      cfg.ElevenLabsTTSVoice,
				ModelID:      cfg.ElevenLabsTTSModel,
				OutputFormat: cfg.ElevenLabsTTSOutputFormat,
			})
			setup.detail = "whisper + elevenlabs"
		}
		return setup, true
	}

	switch voiceMode {
	case "off":
		return voiceSetup{detail: "off"}, nil
	case "mock":
		p := voice.NewMockProvider()
		return voiceSetup{transcriber: p, synthesizer: p, detail: "mock"}, nil
	case "cloud":
		setup, ok := cloud()
		if !ok {
			return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=cloud but WHISPER_API_KEY/WHISPER_URL are not set")
		}
		return setup, nil
	case "auto":
		if setup, ok := cloud(); ok {
			return setup, nil
		}
		return voiceSetup{detail: "off"}, nil
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|cloud|mock|off)", cfg.VoiceProvider)
	}
}
