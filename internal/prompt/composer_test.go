package prompt

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/carobot/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = memory.Names{A: "Carola", B: "Guido"}

type fixture struct {
	facts   *memory.FactStore
	log     *memory.ConversationLog
	mood    *memory.MoodTracker
	backend *memory.MemoryBackend
}

func newFixture(profile memory.Profile) fixture {
	b := memory.NewMemoryBackend()
	return fixture{
		facts:   memory.NewFactStore(b, nil, names, profile, nil),
		log:     memory.NewConversationLog(b, nil),
		mood:    memory.NewMoodTracker(b, nil, 24*time.Hour, nil),
		backend: b,
	}
}

func (f fixture) composer(cfg Config) *Composer {
	cfg.Names = names
	cfg.Location = time.UTC
	return NewComposer(cfg, f.facts, f.log, f.mood, nil)
}

func TestComposeOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.Profile{Owner: memory.ParticipantA, Facts: []string{"Estudié Bellas Artes."}})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := f.facts.Add(ctx, "me llamo Guido", memory.ParticipantB, now)
	require.NoError(t, err)
	_, err = f.log.Append(ctx, memory.Turn{Input: "hola", Output: "¡Hola Guido!", Emotion: "alegría"})
	require.NoError(t, err)

	out, err := f.composer(Config{}).Compose(ctx, Request{
		Speaker:   memory.ParticipantB,
		Utterance: "¿cómo andás?",
		Emotion:   "calma",
		Now:       now,
	})
	require.NoError(t, err)

	kinds := make([]Kind, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []Kind{KindSystem, KindProfile, KindFact, KindHistory, KindHistory, KindUtterance}, kinds)

	assert.Contains(t, out.Blocks[0].Content, DefaultSystemPrompt)
	assert.Contains(t, out.Blocks[0].Content, "La emoción del mensaje recibido es: calma.")
	assert.Contains(t, out.Blocks[0].Content, "Últimamente, Guido ha estado sintiendo: alegría.")
	assert.Equal(t, "Hechos conocidos sobre Carola:\n- Estudié Bellas Artes.", out.Blocks[1].Content)
	assert.Equal(t, "Recordá esto sobre Guido: Me llamo Guido", out.Blocks[2].Content)
	assert.Equal(t, RoleUser, out.Blocks[3].Role)
	assert.Equal(t, RoleAssistant, out.Blocks[4].Role)
	assert.Equal(t, "¿cómo andás?", out.Utterance())
	assert.Equal(t, RoleUser, out.Blocks[len(out.Blocks)-1].Role)
	assert.False(t, out.FollowupInjected)
}

func TestComposeBoundsHistoryAndFacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.Profile{})

	for i := 0; i < 8; i++ {
		_, err := f.facts.Add(ctx, fmt.Sprintf("tengo %d plantas", i), memory.ParticipantA, time.Now())
		require.NoError(t, err)
		_, err = f.log.Append(ctx, memory.Turn{Input: fmt.Sprintf("in-%d", i), Output: fmt.Sprintf("out-%d", i)})
		require.NoError(t, err)
	}

	out, err := f.composer(Config{MaxFacts: 3, MaxTurns: 4}).Compose(ctx, Request{Speaker: memory.ParticipantA, Utterance: "che"})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Count(KindFact))
	assert.Equal(t, 8, out.Count(KindHistory))
	assert.Equal(t, "che", out.Utterance())

	var inputs []string
	for _, b := range out.Blocks {
		if b.Kind == KindHistory && b.Role == RoleUser {
			inputs = append(inputs, b.Content)
		}
	}
	assert.Equal(t, []string{"in-4", "in-5", "in-6", "in-7"}, inputs)
	assert.Contains(t, out.Blocks[1].Content, "Tengo 5 plantas")
}

func TestComposeTrimsOldestTurnsToBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.Profile{Owner: memory.ParticipantA, Facts: []string{"Soy Carola."}})

	long := strings.Repeat("x", 400) // 100 tokens
	for i := 0; i < 5; i++ {
		_, err := f.log.Append(ctx, memory.Turn{Input: fmt.Sprintf("%d-%s", i, long), Output: ""})
		require.NoError(t, err)
	}

	out, err := f.composer(Config{MaxTurns: 10, MaxHistoryTokens: 250}).Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "hola"})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Count(KindHistory), "two turns fit the budget")
	assert.Equal(t, 1, out.Count(KindSystem))
	assert.Equal(t, 1, out.Count(KindProfile))
	for _, b := range out.Blocks {
		if b.Kind == KindHistory && b.Role == RoleUser {
			assert.True(t, strings.HasPrefix(b.Content, "3-") || strings.HasPrefix(b.Content, "4-"))
		}
	}
}

func TestComposeFollowupInjectedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.Profile{})
	set := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	_, err := f.mood.Update(ctx, "me siento muy triste", set)
	require.NoError(t, err)

	c := f.composer(Config{})
	now := set.Add(25 * time.Hour)

	out, err := c.Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "¿qué hacés?", Now: now})
	require.NoError(t, err)
	require.True(t, out.FollowupInjected)
	require.Equal(t, 1, out.Count(KindFollowup))
	hint := out.Blocks[len(out.Blocks)-2]
	assert.Equal(t, KindFollowup, hint.Kind)
	assert.Contains(t, hint.Content, "01/03/2025 09:30")
	assert.Contains(t, hint.Content, "mal")
	assert.Contains(t, hint.Content, "me siento muy triste")

	// An overlapping turn does not inject the hint a second time.
	again, err := c.Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "¿qué hacés?", Now: now})
	require.NoError(t, err)
	assert.False(t, again.FollowupInjected)

	// Releasing after a failed model call leaves the follow-up due.
	c.Release(out)
	out, err = c.Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "¿qué hacés?", Now: now})
	require.NoError(t, err)
	require.True(t, out.FollowupInjected)

	require.NoError(t, c.Commit(ctx, out, now))
	third, err := c.Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "¿y vos?", Now: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, third.FollowupInjected)
	assert.Zero(t, third.Count(KindFollowup))
}

func TestCommitLeavesNewerMoodFollowupDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.Profile{})
	sad := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := f.mood.Update(ctx, "me siento muy triste", sad)
	require.NoError(t, err)

	c := f.composer(Config{})
	now := sad.Add(25 * time.Hour)
	out, err := c.Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "¿qué hacés?", Now: now})
	require.NoError(t, err)
	require.True(t, out.FollowupInjected)

	// Another turn records a new mood while this one waits on the model.
	_, err = f.mood.Update(ctx, "estoy muy feliz", now)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, out, now))

	state := f.mood.Current(ctx)
	require.NotNil(t, state)
	assert.Equal(t, memory.MoodPositive, state.Mood)
	assert.False(t, state.FollowupAsked)

	next, err := c.Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "¿y vos?", Now: now.Add(26 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, next.FollowupInjected)
	assert.Contains(t, next.Blocks[len(next.Blocks)-2].Content, "bien")
}

func TestComposeSkipsFollowupWhenUtteranceCarriesMood(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.Profile{})
	set := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := f.mood.Update(ctx, "estoy muy triste", set)
	require.NoError(t, err)

	out, err := f.composer(Config{}).Compose(ctx, Request{Speaker: memory.ParticipantB, Utterance: "hoy estoy feliz", Now: set.Add(30 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, out.FollowupInjected)
	assert.NoError(t, f.composer(Config{}).Commit(ctx, out, set.Add(30*time.Hour)))

	state := f.mood.Current(ctx)
	require.NotNil(t, state)
	assert.False(t, state.FollowupAsked)
}

func TestComposeRejectsUnknownSpeaker(t *testing.T) {
	f := newFixture(memory.Profile{})
	_, err := f.composer(Config{}).Compose(context.Background(), Request{Speaker: "x", Utterance: "hola"})
	assert.ErrorIs(t, err, memory.ErrUnknownParticipant)
}

func TestRecentTrend(t *testing.T) {
	turns := []memory.Turn{
		{Emotion: "tristeza"}, {Emotion: "alegría"}, {Emotion: ""}, {Emotion: "Alegría"}, {Emotion: "tristeza"},
	}
	assert.Equal(t, "tristeza", RecentTrend(turns, 10))
	assert.Equal(t, "alegría", RecentTrend(turns, 3))
	assert.Equal(t, NeutralEmotion, RecentTrend(nil, 10))
	assert.Equal(t, NeutralEmotion, RecentTrend([]memory.Turn{{Input: "x"}}, 10))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hola"))
	assert.Equal(t, 2, EstimateTokens("canción"))
}
