package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/carobot/internal/llm"
	"github.com/ent0n29/carobot/internal/memory"
	"github.com/ent0n29/carobot/internal/prompt"
	"github.com/ent0n29/carobot/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = memory.Names{A: "Carola", B: "Guido"}

type stubLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  []prompt.Context
}

func (s *stubLLM) Complete(_ context.Context, pc prompt.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, pc)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubLLM) last() prompt.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[len(s.seen)-1]
}

func (s *stubLLM) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fixedEmotion string

func (f fixedEmotion) Detect(context.Context, string) (string, error) { return string(f), nil }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	engine *Engine
	llm    *stubLLM
	clock  *clock
	facts  *memory.FactStore
	mood   *memory.MoodTracker
	log    *memory.ConversationLog
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	backend := memory.NewMemoryBackend()
	profile := memory.Profile{Owner: memory.ParticipantA, Facts: []string{"Estudié Bellas Artes."}}
	facts := memory.NewFactStore(backend, nil, names, profile, nil)
	mood := memory.NewMoodTracker(backend, nil, 24*time.Hour, nil)
	log := memory.NewConversationLog(backend, nil)
	composer := prompt.NewComposer(prompt.Config{Names: names, Location: time.UTC}, facts, log, mood, nil)

	h := &harness{
		llm:   &stubLLM{reply: "Te escucho."},
		clock: &clock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		facts: facts,
		mood:  mood,
		log:   log,
	}
	deps := Deps{
		Facts:    facts,
		Mood:     mood,
		Log:      log,
		Composer: composer,
		LLM:      h.llm,
		Names:    names,
		Now:      h.clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	e, err := New(Config{}, deps)
	require.NoError(t, err)
	h.engine = e
	return h
}

func factTexts(facts []memory.Fact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Text)
	}
	return out
}

func TestEngineLearnsAndCorrectsFacts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.HandleText(ctx, memory.ParticipantB, "me llamo Ana")
	require.NoError(t, err)
	facts, err := h.engine.Facts(ctx, memory.ParticipantB)
	require.NoError(t, err)
	assert.Equal(t, []string{"Me llamo Ana"}, factTexts(facts))

	reply, err := h.engine.HandleText(ctx, memory.ParticipantB, "No, me llamo Sofía")
	require.NoError(t, err)
	assert.False(t, reply.Fallback)

	facts, err = h.engine.Facts(ctx, memory.ParticipantB)
	require.NoError(t, err)
	assert.Equal(t, []string{"Me llamo Sofía"}, factTexts(facts))

	facts, err = h.engine.Facts(ctx, memory.ParticipantA)
	require.NoError(t, err)
	assert.Equal(t, []string{"Estudié Bellas Artes."}, factTexts(facts))

	turns, err := h.engine.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "No, me llamo Sofía", turns[1].Input)
	assert.Equal(t, "Te escucho.", turns[1].Output)
	assert.Equal(t, memory.ParticipantB, turns[1].Speaker)

	pc := h.llm.last()
	assert.Equal(t, "No, me llamo Sofía", pc.Utterance())
	assert.Equal(t, 1, pc.Count(prompt.KindFact))
}

func TestEngineFollowupInjectedOnceAfterThreshold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.HandleText(ctx, memory.ParticipantB, "me siento muy triste")
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)
	_, err = h.engine.HandleText(ctx, memory.ParticipantB, "hoy fui a correr")
	require.NoError(t, err)
	assert.True(t, h.llm.last().FollowupInjected)
	assert.Equal(t, 1, h.llm.last().Count(prompt.KindFollowup))

	state := h.engine.Mood(ctx)
	require.NotNil(t, state)
	assert.True(t, state.FollowupAsked)
	require.NotNil(t, state.FollowupAskedAt)
	assert.True(t, state.FollowupAskedAt.Equal(h.clock.now))

	h.clock.Advance(time.Hour)
	_, err = h.engine.HandleText(ctx, memory.ParticipantB, "¿qué cocinamos?")
	require.NoError(t, err)
	assert.False(t, h.llm.last().FollowupInjected)
}

func TestEngineFailedModelCallKeepsFollowupAndLog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.HandleText(ctx, memory.ParticipantB, "estoy re angustiado")
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)

	h.llm.fail(&llm.UpstreamError{Provider: "stub", StatusCode: 503, Err: errors.New("unavailable")})
	reply, err := h.engine.HandleText(ctx, memory.ParticipantB, "hola")
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Equal(t, DefaultFallbackReply, reply.Text)

	turns, err := h.engine.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
	assert.False(t, h.engine.Mood(ctx).FollowupAsked)

	h.llm.fail(nil)
	reply, err = h.engine.HandleText(ctx, memory.ParticipantB, "hola de nuevo")
	require.NoError(t, err)
	assert.False(t, reply.Fallback)
	assert.True(t, h.llm.last().FollowupInjected)
	assert.True(t, h.engine.Mood(ctx).FollowupAsked)
}

func TestEngineAdaptsReplyToEmotion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *Deps) { d.Emotion = fixedEmotion("tristeza") })

	reply, err := h.engine.HandleText(ctx, memory.ParticipantB, "se fue mi perro")
	require.NoError(t, err)
	assert.Equal(t, "Te abrazo fuerte desde acá. Te escucho.", reply.Text)
	assert.Equal(t, "tristeza", reply.Emotion)
	assert.Contains(t, h.llm.last().Blocks[0].Content, "La emoción del mensaje recibido es: tristeza.")

	turns, err := h.engine.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, reply.Text, turns[0].Output)
	assert.Equal(t, "tristeza", turns[0].Emotion)
}

func TestEngineRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.HandleText(ctx, "z", "hola")
	assert.ErrorIs(t, err, memory.ErrUnknownParticipant)

	_, err = h.engine.HandleText(ctx, memory.ParticipantA, "   ")
	assert.ErrorIs(t, err, ErrEmptyUtterance)

	_, err = h.engine.HandleVoice(ctx, memory.ParticipantA, []byte("hola"), "ogg")
	assert.ErrorIs(t, err, ErrVoiceUnavailable)
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, string) (voice.Audio, error) {
	return voice.Audio{}, &voice.SynthesisError{Provider: "stub", Err: errors.New("down")}
}

type failingTranscriber struct{}

func (failingTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "", &voice.TranscriptionError{Provider: "stub", Err: errors.New("garbled")}
}

func TestEngineHandleVoice(t *testing.T) {
	ctx := context.Background()
	mock := voice.NewMockProvider()
	h := newHarness(t, func(d *Deps) {
		d.Transcriber = mock
		d.Synthesizer = mock
	})

	reply, err := h.engine.HandleVoice(ctx, memory.ParticipantB, []byte("vivo en Rosario"), "ogg")
	require.NoError(t, err)
	assert.Equal(t, "vivo en Rosario", reply.Transcript)
	assert.Equal(t, "Te escucho.", reply.Text)
	require.NotNil(t, reply.Audio)
	assert.Equal(t, "Te escucho.", string(reply.Audio.Data))

	facts, err := h.engine.Facts(ctx, memory.ParticipantB)
	require.NoError(t, err)
	assert.Equal(t, []string{"Vivo en Rosario"}, factTexts(facts))
}

func TestEngineHandleVoiceDegrades(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, func(d *Deps) {
		d.Transcriber = voice.NewMockProvider()
		d.Synthesizer = failingSynth{}
	})
	reply, err := h.engine.HandleVoice(ctx, memory.ParticipantB, []byte("hola"), "ogg")
	require.NoError(t, err)
	assert.Equal(t, "Te escucho.", reply.Text)
	assert.Nil(t, reply.Audio)

	h = newHarness(t, func(d *Deps) { d.Transcriber = failingTranscriber{} })
	reply, err = h.engine.HandleVoice(ctx, memory.ParticipantB, []byte("..."), "ogg")
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Equal(t, DefaultVoiceErrorReply, reply.Text)
	turns, err := h.engine.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestEngineResetConversation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.engine.HandleText(ctx, memory.ParticipantA, "hola")
	require.NoError(t, err)
	require.NoError(t, h.engine.ResetConversation(ctx))

	turns, err := h.engine.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestEngineConcurrentTurnsKeepEveryExchange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.HandleText(ctx, memory.ParticipantB, "hola")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns, err := h.engine.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 10)
}
