package emotion

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ent0n29/carobot/internal/prompt"
	"go.uber.org/zap"
)

// Detector labels the dominant emotion of a text with one word. An empty
// label means no emotion could be determined.
type Detector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// Completer is the language-model call used by LLMDetector.
type Completer interface {
	Complete(ctx context.Context, c prompt.Context) (string, error)
}

const detectPrompt = "Detectá la emoción dominante del siguiente texto con una sola palabra " +
	"(por ejemplo: alegría, tristeza, enojo, miedo, sorpresa, calma, amor, ansiedad):\n\nTexto: %s"

// LLMDetector asks the language model for a single-word label.
type LLMDetector struct {
	llm    Completer
	logger *zap.Logger
}

func NewLLMDetector(llm Completer, logger *zap.Logger) *LLMDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMDetector{llm: llm, logger: logger}
}

func (d *LLMDetector) Detect(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	out, err := d.llm.Complete(ctx, prompt.Context{Blocks: []prompt.Block{{
		Role:    prompt.RoleUser,
		Kind:    prompt.KindUtterance,
		Content: fmt.Sprintf(detectPrompt, text),
	}}})
	if err != nil {
		return "", fmt.Errorf("detect emotion: %w", err)
	}
	label := NormalizeLabel(out)
	d.logger.Debug("emotion detected", zap.String("label", label))
	return label, nil
}

// KeywordDetector labels text from fixed Spanish vocabularies without any
// network call.
type KeywordDetector struct {
	buckets []bucket
}

type bucket struct {
	label   string
	pattern *regexp.Regexp
}

func wordsPattern(alternation string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + alternation + `)(?:[^\p{L}]|$)`)
}

func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{buckets: []bucket{
		{"enojo", wordsPattern(`enojad[oa]|enojo|furios[oa]|bronca|odio|harta|harto|me indigna|rabia`)},
		{"miedo", wordsPattern(`miedo|asustad[oa]|aterrad[oa]|pánico|temor`)},
		{"ansiedad", wordsPattern(`ansiedad|ansios[oa]|nervios[oa]|angustia|angustiad[oa]|estresad[oa]|preocupad[oa]`)},
		{"tristeza", wordsPattern(`triste|tristeza|deprimid[oa]|llor\p{L}*|sol[oa]|bajón|extraño|desanimad[oa]`)},
		{"amor", wordsPattern(`te quiero|te amo|amor|cariño|enamorad[oa]`)},
		{"sorpresa", wordsPattern(`sorpresa|sorprendid[oa]|no puedo creer|increíble|wow`)},
		{"alegría", wordsPattern(`feliz|alegre|alegría|content[oa]|genial|emocionad[oa]|buenísimo|joya`)},
		{"calma", wordsPattern(`tranquil[oa]|calma|relajad[oa]|en paz`)},
	}}
}

func (d *KeywordDetector) Detect(_ context.Context, text string) (string, error) {
	for _, b := range d.buckets {
		if b.pattern.MatchString(text) {
			return b.label, nil
		}
	}
	return "", nil
}

// FallbackDetector tries primary and, when it fails or finds nothing, the
// secondary detector.
type FallbackDetector struct {
	primary   Detector
	secondary Detector
	logger    *zap.Logger
}

func NewFallbackDetector(primary, secondary Detector, logger *zap.Logger) *FallbackDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackDetector{primary: primary, secondary: secondary, logger: logger}
}

func (d *FallbackDetector) Detect(ctx context.Context, text string) (string, error) {
	label, err := d.primary.Detect(ctx, text)
	if err == nil && label != "" {
		return label, nil
	}
	if err != nil {
		d.logger.Warn("primary emotion detector failed", zap.Error(err))
	}
	if d.secondary == nil {
		return "", err
	}
	return d.secondary.Detect(ctx, text)
}

// Noop never detects an emotion.
type Noop struct{}

func (Noop) Detect(context.Context, string) (string, error) { return "", nil }
