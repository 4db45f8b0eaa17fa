package prompt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/carobot/internal/memory"
	"go.uber.org/zap"
)

const (
	DefaultSystemPrompt     = "Eres Carola, la hermana de Guido. Responde con cariño y empatía."
	DefaultMaxFacts         = 20
	DefaultMaxTurns         = 20
	DefaultMaxHistoryTokens = 2000
	DefaultTrendWindow      = 10

	// NeutralEmotion is reported as the recent trend when no turn carries an
	// emotion label.
	NeutralEmotion = "neutra"
)

// Facts is the read side of memory.FactStore used by the composer.
type Facts interface {
	Profile() memory.Profile
	All(ctx context.Context) []memory.Fact
}

// History is the read side of memory.ConversationLog.
type History interface {
	Recent(ctx context.Context, n int) ([]memory.Turn, error)
}

// Mood is the part of memory.MoodTracker the composer drives.
type Mood interface {
	Detect(utterance string) memory.Mood
	FollowupDue(ctx context.Context, now time.Time) (memory.MoodState, bool)
	MarkAsked(ctx context.Context, recordedAt, now time.Time) error
}

// Config bounds the composed context. Zero values select the defaults; a
// negative MaxFacts, MaxTurns or MaxHistoryTokens disables that bound.
type Config struct {
	SystemPrompt     string
	MaxFacts         int
	MaxTurns         int
	MaxHistoryTokens int
	TrendWindow      int
	Names            memory.Names
	Location         *time.Location
}

// Request is the input of one composition.
type Request struct {
	Speaker   memory.Participant
	Utterance string
	// Emotion is the label detected for Utterance, empty when unknown.
	Emotion string
	Now     time.Time
}

// Composer reads fresh snapshots of the stores on every call. The only
// state it keeps is the set of follow-ups claimed by turns still waiting on
// the model, so overlapping turns inject a hint at most once.
type Composer struct {
	cfg     Config
	facts   Facts
	history History
	mood    Mood
	logger  *zap.Logger

	mu      sync.Mutex
	claimed map[int64]struct{}
}

func NewComposer(cfg Config, facts Facts, history History, mood Mood, logger *zap.Logger) *Composer {
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxFacts == 0 {
		cfg.MaxFacts = DefaultMaxFacts
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxHistoryTokens == 0 {
		cfg.MaxHistoryTokens = DefaultMaxHistoryTokens
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultTrendWindow
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{cfg: cfg, facts: facts, history: history, mood: mood, logger: logger}
}

// Compose builds the prompt in fixed order: system instruction, profile,
// stored facts, history, optional follow-up hint and the utterance last.
// Only the history window is ever trimmed to fit the size budget.
func (c *Composer) Compose(ctx context.Context, req Request) (Context, error) {
	if !req.Speaker.Valid() {
		return Context{}, memory.ErrUnknownParticipant
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	// The trend line may look further back than the history window.
	limit := 0
	if c.cfg.MaxTurns >= 0 {
		limit = max(c.cfg.MaxTurns, c.cfg.TrendWindow)
	}
	turns, err := c.history.Recent(ctx, limit)
	if err != nil {
		return Context{}, fmt.Errorf("read history: %w", err)
	}

	var out Context
	out.Blocks = append(out.Blocks, Block{Role: RoleSystem, Kind: KindSystem, Content: c.systemBlock(req, turns)})

	profile := c.facts.Profile()
	if len(profile.Facts) > 0 {
		out.Blocks = append(out.Blocks, Block{Role: RoleSystem, Kind: KindProfile, Content: c.profileBlock(profile)})
	}

	for _, f := range lastN(c.facts.All(ctx), c.cfg.MaxFacts) {
		out.Blocks = append(out.Blocks, Block{
			Role:    RoleSystem,
			Kind:    KindFact,
			Content: fmt.Sprintf("Recordá esto sobre %s: %s", c.cfg.Names.Of(f.Owner), f.Text),
		})
	}

	window := c.historyWindow(turns)
	for _, t := range window {
		out.Blocks = append(out.Blocks,
			Block{Role: RoleUser, Kind: KindHistory, Content: t.Input},
			Block{Role: RoleAssistant, Kind: KindHistory, Content: t.Output},
		)
	}

	if c.mood.Detect(req.Utterance) == memory.MoodNone {
		if state, due := c.mood.FollowupDue(ctx, now); due && c.claim(state.Timestamp) {
			out.Blocks = append(out.Blocks, Block{Role: RoleSystem, Kind: KindFollowup, Content: c.followupBlock(state, req.Speaker)})
			out.FollowupInjected = true
			out.Followup = state
		}
	}

	out.Blocks = append(out.Blocks, Block{Role: RoleUser, Kind: KindUtterance, Content: req.Utterance})
	return out, nil
}

// Commit finalizes a context whose model call succeeded. It consumes the
// one-shot follow-up when the hint was injected.
func (c *Composer) Commit(ctx context.Context, composed Context, now time.Time) error {
	if !composed.FollowupInjected {
		return nil
	}
	defer c.Release(composed)
	if err := c.mood.MarkAsked(ctx, composed.Followup.Timestamp, now); err != nil {
		return fmt.Errorf("mark follow-up asked: %w", err)
	}
	return nil
}

// Release drops the follow-up claim of a context whose model call failed,
// leaving the follow-up due for the next turn.
func (c *Composer) Release(composed Context) {
	if !composed.FollowupInjected {
		return
	}
	c.mu.Lock()
	delete(c.claimed, composed.Followup.Timestamp.UnixNano())
	c.mu.Unlock()
}

func (c *Composer) claim(recordedAt time.Time) bool {
	key := recordedAt.UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.claimed[key]; taken {
		return false
	}
	if c.claimed == nil {
		c.claimed = make(map[int64]struct{})
	}
	c.claimed[key] = struct{}{}
	return true
}

func (c *Composer) systemBlock(req Request, turns []memory.Turn) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.cfg.SystemPrompt))
	if emotion := strings.TrimSpace(req.Emotion); emotion != "" {
		fmt.Fprintf(&sb, "\nLa emoción del mensaje recibido es: %s.", emotion)
	}
	fmt.Fprintf(&sb, "\nÚltimamente, %s ha estado sintiendo: %s.", c.cfg.Names.Of(req.Speaker), RecentTrend(turns, c.cfg.TrendWindow))
	return sb.String()
}

func (c *Composer) profileBlock(p memory.Profile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hechos conocidos sobre %s:", c.cfg.Names.Of(p.Owner))
	for _, f := range p.Facts {
		sb.WriteString("\n- ")
		sb.WriteString(f)
	}
	return sb.String()
}

func (c *Composer) followupBlock(state memory.MoodState, speaker memory.Participant) string {
	feeling := "bien"
	if state.Mood == memory.MoodNegative {
		feeling = "mal"
	}
	when := state.Timestamp.In(c.cfg.Location).Format("02/01/2006 15:04")
	return fmt.Sprintf(
		"El %s, %s contó que se sentía %s (\"%s\"). Preguntale con suavidad cómo sigue con eso.",
		when, c.cfg.Names.Of(speaker), feeling, state.Summary,
	)
}

// historyWindow keeps the most recent MaxTurns turns and then drops the
// oldest until the estimated size fits MaxHistoryTokens.
func (c *Composer) historyWindow(turns []memory.Turn) []memory.Turn {
	window := lastN(turns, c.cfg.MaxTurns)
	if c.cfg.MaxHistoryTokens < 0 {
		return window
	}
	total := 0
	for _, t := range window {
		total += turnTokens(t)
	}
	dropped := 0
	for len(window) > 0 && total > c.cfg.MaxHistoryTokens {
		total -= turnTokens(window[0])
		window = window[1:]
		dropped++
	}
	if dropped > 0 {
		c.logger.Debug("history trimmed to fit prompt budget",
			zap.Int("dropped_turns", dropped),
			zap.Int("kept_turns", len(window)),
			zap.Int("budget_tokens", c.cfg.MaxHistoryTokens))
	}
	return window
}

func turnTokens(t memory.Turn) int {
	return EstimateTokens(t.Input) + EstimateTokens(t.Output)
}

// RecentTrend returns the most frequent emotion label among the last window
// turns. Ties go to the label seen first. NeutralEmotion is returned when no
// turn carries a label.
func RecentTrend(turns []memory.Turn, window int) string {
	turns = lastN(turns, window)
	counts := make(map[string]int)
	var order []string
	for _, t := range turns {
		label := strings.ToLower(strings.TrimSpace(t.Emotion))
		if label == "" {
			continue
		}
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
	}
	best := NeutralEmotion
	bestCount := 0
	for _, label := range order {
		if counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return best
}

// lastN returns the last n items; n < 0 means all.
func lastN[T any](items []T, n int) []T {
	if n < 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
