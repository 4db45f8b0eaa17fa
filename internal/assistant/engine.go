// Package assistant runs a conversational turn end to end: it absorbs facts
// and mood from the utterance, composes the prompt, calls the language
// model, adapts the reply and records the exchange.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ent0n29/carobot/internal/emotion"
	"github.com/ent0n29/carobot/internal/llm"
	"github.com/ent0n29/carobot/internal/memory"
	"github.com/ent0n29/carobot/internal/observability"
	"github.com/ent0n29/carobot/internal/policy"
	"github.com/ent0n29/carobot/internal/prompt"
	"github.com/ent0n29/carobot/internal/voice"
	"go.uber.org/zap"
)

const (
	DefaultFallbackReply   = "No pude procesar tu mensaje."
	DefaultVoiceErrorReply = "Hubo un problema procesando tu audio."
	DefaultLLMTimeout      = 60 * time.Second

	logPreviewRunes = 80
)

var (
	ErrEmptyUtterance   = errors.New("empty utterance")
	ErrVoiceUnavailable = errors.New("voice turns are not configured")
)

// Reply is what the transport delivers back to the participant.
type Reply struct {
	Text     string
	Emotion  string
	Fallback bool
	// Voice turns only.
	Transcript string
	Audio      *voice.Audio
}

type Config struct {
	FallbackReply   string
	VoiceErrorReply string
	// LLMTimeout bounds the language-model and emotion calls only.
	LLMTimeout time.Duration
}

// Deps are the collaborators of an Engine. Facts, Mood, Log, Composer and LLM
// are required.
type Deps struct {
	Facts    *memory.FactStore
	Mood     *memory.MoodTracker
	Log      *memory.ConversationLog
	Composer *prompt.Composer
	LLM      llm.Client
	Emotion  emotion.Detector

	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer

	Names   memory.Names
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

type Engine struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Facts == nil || deps.Mood == nil || deps.Log == nil || deps.Composer == nil || deps.LLM == nil {
		return nil, errors.New("assistant: facts, mood, log, composer and llm are required")
	}
	if strings.TrimSpace(cfg.FallbackReply) == "" {
		cfg.FallbackReply = DefaultFallbackReply
	}
	if strings.TrimSpace(cfg.VoiceErrorReply) == "" {
		cfg.VoiceErrorReply = DefaultVoiceErrorReply
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if deps.Emotion == nil {
		deps.Emotion = emotion.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// HandleText runs one text turn. Collaborator failures never surface as
// errors: the reply then carries the fallback text and nothing is logged
// to the conversation. Errors are returned only for invalid input.
func (e *Engine) HandleText(ctx context.Context, speaker memory.Participant, text string) (Reply, error) {
	return e.handleText(ctx, "text", speaker, text)
}

func (e *Engine) handleText(ctx context.Context, channel string, speaker memory.Participant, text string) (Reply, error) {
	if !speaker.Valid() {
		return Reply{}, memory.ErrUnknownParticipant
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyUtterance
	}

	started := time.Now()
	now := e.deps.Now()
	logger := e.deps.Logger.With(
		zap.String("channel", channel),
		zap.String("speaker", e.deps.Names.Of(speaker)),
	)
	logger.Debug("turn received", zap.String("utterance", policy.LogPreview(text, logPreviewRunes)))

	e.absorb(ctx, logger, speaker, text, now)

	label := e.detectEmotion(ctx, logger, text)

	composed, err := e.deps.Composer.Compose(ctx, prompt.Request{
		Speaker:   speaker,
		Utterance: text,
		Emotion:   label,
		Now:       now,
	})
	if err != nil {
		logger.Error("compose prompt failed", zap.Error(err))
		e.deps.Metrics.ObserveTurn(channel, "fallback", time.Since(started))
		return Reply{Text: e.cfg.FallbackReply, Emotion: label, Fallback: true}, nil
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	raw, err := e.deps.LLM.Complete(llmCtx, composed)
	cancel()
	if err != nil {
		e.deps.Composer.Release(composed)
		logger.Warn("language model call failed", zap.Error(err))
		e.deps.Metrics.IncUpstreamError("llm")
		e.deps.Metrics.ObserveTurn(channel, "fallback", time.Since(started))
		return Reply{Text: e.cfg.FallbackReply, Emotion: label, Fallback: true}, nil
	}

	reply := emotion.Adapt(raw, label)

	if _, err := e.deps.Log.Append(ctx, memory.Turn{
		Timestamp: now,
		Speaker:   speaker,
		Input:     text,
		Output:    reply,
		Emotion:   label,
	}); err != nil {
		logger.Warn("append conversation turn failed", zap.Error(err))
	}

	if err := e.deps.Composer.Commit(ctx, composed, now); err != nil {
		logger.Warn("commit follow-up failed", zap.Error(err))
	} else if composed.FollowupInjected {
		e.deps.Metrics.IncFollowup()
		logger.Info("mood follow-up delivered", zap.String("mood", string(composed.Followup.Mood)))
	}

	e.deps.Metrics.ObserveTurn(channel, "ok", time.Since(started))
	logger.Info("turn completed",
		zap.String("emotion", label),
		zap.Int("prompt_blocks", len(composed.Blocks)),
		zap.Duration("elapsed", time.Since(started)))
	return Reply{Text: reply, Emotion: label}, nil
}

// absorb applies the memory side effects of an utterance: a correction
// replaces facts, otherwise a self-description is added, and the mood
// record is refreshed. Storage failures are logged and the turn goes on.
func (e *Engine) absorb(ctx context.Context, logger *zap.Logger, speaker memory.Participant, text string, now time.Time) {
	if memory.IsCorrection(text, e.deps.Facts.NegationToken()) {
		fact, err := e.deps.Facts.Correct(ctx, text, speaker, now)
		switch {
		case err != nil:
			logger.Warn("fact correction failed", zap.Error(err))
		case fact != nil:
			e.deps.Metrics.IncFact("corrected")
			logger.Info("fact corrected",
				zap.String("owner", e.deps.Names.Of(fact.Owner)),
				zap.String("fact", policy.LogPreview(fact.Text, logPreviewRunes)))
		}
	} else {
		fact, err := e.deps.Facts.Add(ctx, text, speaker, now)
		switch {
		case err != nil:
			logger.Warn("fact add failed", zap.Error(err))
		case fact != nil:
			e.deps.Metrics.IncFact("added")
			logger.Info("fact learned",
				zap.String("owner", e.deps.Names.Of(fact.Owner)),
				zap.String("fact", policy.LogPreview(fact.Text, logPreviewRunes)))
		}
	}

	mood, err := e.deps.Mood.Update(ctx, text, now)
	if err != nil {
		logger.Warn("mood update failed", zap.Error(err))
		return
	}
	if mood != memory.MoodNone {
		logger.Debug("mood recorded", zap.String("mood", string(mood)))
	}
}

func (e *Engine) detectEmotion(ctx context.Context, logger *zap.Logger, text string) string {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()
	label, err := e.deps.Emotion.Detect(dctx, text)
	if err != nil {
		logger.Warn("emotion detection failed", zap.Error(err))
		e.deps.Metrics.IncUpstreamError("emotion")
		return ""
	}
	return label
}

// HandleVoice transcribes audio, runs the text turn and synthesizes the
// reply. A failed transcription yields the voice error reply; a failed
// synthesis degrades to a text-only reply.
func (e *Engine) HandleVoice(ctx context.Context, speaker memory.Participant, audio []byte, format string) (Reply, error) {
	if e.deps.Transcriber == nil {
		return Reply{}, ErrVoiceUnavailable
	}
	if !speaker.Valid() {
		return Reply{}, memory.ErrUnknownParticipant
	}
	logger := e.deps.Logger.With(zap.String("channel", "voice"), zap.String("speaker", e.deps.Names.Of(speaker)))

	transcript, err := e.deps.Transcriber.Transcribe(ctx, audio, format)
	if err == nil && strings.TrimSpace(transcript) == "" {
		err = ErrEmptyUtterance
	}
	if err != nil {
		logger.Warn("transcription failed", zap.Int("audio_bytes", len(audio)), zap.Error(err))
		e.deps.Metrics.IncUpstreamError("transcription")
		reply := Reply{Text: e.cfg.VoiceErrorReply, Fallback: true}
		e.attachAudio(ctx, logger, &reply)
		return reply, nil
	}

	reply, err := e.handleText(ctx, "voice", speaker, transcript)
	if err != nil {
		return Reply{}, err
	}
	reply.Transcript = transcript
	e.attachAudio(ctx, logger, &reply)
	return reply, nil
}

func (e *Engine) attachAudio(ctx context.Context, logger *zap.Logger, reply *Reply) {
	if e.deps.Synthesizer == nil {
		return
	}
	audio, err := e.deps.Synthesizer.Synthesize(ctx, reply.Text)
	if err != nil {
		logger.Warn("speech synthesis failed, replying with text only", zap.Error(err))
		e.deps.Metrics.IncUpstreamError("synthesis")
		return
	}
	reply.Audio = &audio
}

// VoiceEnabled reports whether voice turns can be handled.
func (e *Engine) VoiceEnabled() bool { return e.deps.Transcriber != nil }

// Names returns the display names of the participants.
func (e *Engine) Names() memory.Names { return e.deps.Names }

func (e *Engine) Facts(ctx context.Context, p memory.Participant) ([]memory.Fact, error) {
	return e.deps.Facts.List(ctx, p)
}

// Mood returns the live mood record, or nil.
func (e *Engine) Mood(ctx context.Context) *memory.MoodState {
	return e.deps.Mood.Current(ctx)
}

func (e *Engine) History(ctx context.Context, n int) ([]memory.Turn, error) {
	return e.deps.Log.Recent(ctx, n)
}

func (e *Engine) ResetConversation(ctx context.Context) error {
	if err := e.deps.Log.Reset(ctx); err != nil {
		return err
	}
	e.deps.Logger.Info("conversation reset")
	return nil
}
