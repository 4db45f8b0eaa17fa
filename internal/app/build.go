package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/carobot/internal/assistant"
	"github.com/ent0n29/carobot/internal/config"
	"github.com/ent0n29/carobot/internal/emotion"
	"github.com/ent0n29/carobot/internal/httpapi"
	"github.com/ent0n29/carobot/internal/llm"
	"github.com/ent0n29/carobot/internal/memory"
	"github.com/ent0n29/carobot/internal/observability"
	"github.com/ent0n29/carobot/internal/prompt"
)

// defaultProfile seeds participant A when PROFILE_PATH is unset.
var defaultProfile = memory.Profile{
	Owner: memory.ParticipantA,
	Facts: []string{
		"Me llamo Carola Gentile, nací en Rosario, Argentina.",
		"Estudié Bellas Artes.",
		"Soy una persona sensible, creativa y empática.",
		"Me gusta dibujar, mirar películas y pasar tiempo con mis hermanos.",
		"Trabajé como profesora de dibujo para adolescentes.",
		"Me interesa el arte, la naturaleza y las emociones humanas.",
	},
}

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Engine  *assistant.Engine
	Metrics *observability.Metrics
	Status  httpapi.Status

	// Cleanup should be called on shutdown to release external resources (DB connections).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	names := memory.Names{A: cfg.ParticipantAName, B: cfg.ParticipantBName}

	profile := defaultProfile
	if cfg.ProfilePath != "" {
		p, err := memory.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("profile load failed: %w", err)
		}
		profile = p
	}

	backend, storeKind, err := memory.NewBackend(ctx, memory.BackendOptions{
		Kind:        cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("memory backend init failed: %w", err)
	}

	storeLogger := logger.Named("memory")
	facts := memory.NewFactStore(backend, nil, names, profile, storeLogger)
	mood := memory.NewMoodTracker(backend, nil, cfg.MoodFollowupThreshold, storeLogger)
	conversation := memory.NewConversationLog(backend, storeLogger)
	facts.SetRecoveryHook(metrics.StorageRecovered)
	mood.SetRecoveryHook(metrics.StorageRecovered)
	conversation.SetRecoveryHook(metrics.StorageRecovered)

	client, llmProvider, err := llm.NewClient(ctx, llm.Config{
		Provider:   cfg.LLMProvider,
		HTTPURL:    cfg.LLMHTTPURL,
		HTTPKey:    cfg.LLMAPIKey,
		HTTPModel:  cfg.LLMModel,
		ArkAPIKey:  cfg.ArkAPIKey,
		ArkModel:   cfg.ArkModel,
		ArkBaseURL: cfg.ArkBaseURL,
		ArkRegion:  cfg.ArkRegion,
		Timeout:    cfg.LLMTimeout,
	}, logger.Named("llm"))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}

	detector, detectorName := resolveEmotionDetector(cfg.EmotionDetector, client, llmProvider, logger.Named("emotion"))

	voiceSetup, err := resolveVoiceProviders(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	composer := prompt.NewComposer(prompt.Config{
		SystemPrompt:     cfg.SystemPrompt,
		MaxFacts:         cfg.ContextMaxFacts,
		MaxTurns:         cfg.ContextMaxTurns,
		MaxHistoryTokens: cfg.ContextMaxHistoryTokens,
		Names:            names,
		Location:         cfg.Location(),
	}, facts, conversation, mood, logger.Named("prompt"))

	engine, err := assistant.New(assistant.Config{
		FallbackReply: cfg.FallbackReply,
		LLMTimeout:    cfg.LLMTimeout,
	}, assistant.Deps{
		Facts:       facts,
		Mood:        mood,
		Log:         conversation,
		Composer:    composer,
		LLM:         client,
		Emotion:     detector,
		Transcriber: voiceSetup.transcriber,
		Synthesizer: voiceSetup.synthesizer,
		Names:       names,
		Metrics:     metrics,
		Logger:      logger.Named("engine"),
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	status := httpapi.Status{
		Store:   storeKind,
		LLM:     llmProvider,
		Emotion: detectorName,
		Voice:   voiceSetup.detail,
	}
	api := httpapi.New(engine, status, logger.Named("http"))

	logger.Info("assistant ready",
		zap.String("store", storeKind),
		zap.String("llm", llmProvider),
		zap.String("emotion", detectorName),
		zap.String("voice", voiceSetup.detail),
		zap.Int("profile_facts", len(profile.Facts)))

	cleanup := func() error {
		var errs []string
		if err := backend.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Engine:  engine,
		Metrics: metrics,
		Status:  status,
		Cleanup: cleanup,
	}, nil
}

// resolveEmotionDetector picks the detector for EMOTION_DETECTOR. In auto
// mode a real language model is asked first with the keyword vocabulary as
// fallback; with the mock model only keywords are used.
func resolveEmotionDetector(mode string, client llm.Client, llmProvider string, logger *zap.Logger) (emotion.Detector, string) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "off":
		return emotion.Noop{}, "off"
	case "keyword":
		return emotion.NewKeywordDetector(), "keyword"
	case "llm":
		return emotion.NewLLMDetector(client, logger), "llm"
	default:
		if llmProvider == "mock" {
			return emotion.NewKeywordDetector(), "keyword"
		}
		return emotion.NewFallbackDetector(emotion.NewLLMDetector(client, logger), emotion.NewKeywordDetector(), logger), "llm+keyword"
	}
}
