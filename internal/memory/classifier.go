package memory

import (
	"regexp"
	"strings"
)

// Classifier decides which utterances carry durable facts and which carry a
// mood. The state machines only depend on this interface so a model-based
// classifier can replace the keyword heuristics.
type Classifier interface {
	// FactKeywords returns the self-description keywords present in text,
	// in vocabulary order. An empty result means text asserts no fact.
	FactKeywords(text string) []string
	// DetectMood returns the mood expressed by text, or MoodNone.
	DetectMood(text string) Mood
}

// DefaultFactKeywords covers identity, preference, occupation, residence and
// relationship statements.
var DefaultFactKeywords = []string{
	"soy", "me llamo", "me gusta", "estudié", "trabajo", "vivo", "nací", "tengo", "novia", "novio",
}

type moodRule struct {
	pattern *regexp.Regexp
	mood    Mood
}

// KeywordClassifier implements Classifier with fixed Spanish vocabularies.
// Fact keywords match as substrings of the lowercased text; mood rules are
// evaluated in order and the first match wins.
type KeywordClassifier struct {
	factKeywords []string
	moodRules    []moodRule
}

// Letters on both sides of a vocabulary word must not be letters, so that
// "solo" does not match inside "consolado". \b is ASCII-only in RE2.
func wordPattern(alternation string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + alternation + `)(?:[^\p{L}]|$)`)
}

const (
	feelingVerbs      = `me siento|me sentí|me estoy sintiendo|estoy|ando|me encuentro|sigo`
	intensifiers      = `(?:(?:muy|re|tan|bastante|medio|un poco|algo)\s+)?`
	negativeAdjective = `mal|triste|sol[oa]|cansad[oa]|agotad[oa]|angustiad[oa]|deprimid[oa]|ansios[oa]|preocupad[oa]|estresad[oa]|enojad[oa]|nervios[oa]|desanimad[oa]|bajonead[oa]|abrumad[oa]|harta|harto`
	positiveAdjective = `bien|feliz|content[oa]|genial|alegre|tranquil[oa]|emocionad[oa]|entusiasmad[oa]|orgullos[oa]|de maravilla|súper bien|joya`
)

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		factKeywords: DefaultFactKeywords,
		moodRules: []moodRule{
			{wordPattern(`no\s+(?:` + feelingVerbs + `)\s+(?:muy\s+|tan\s+)?(?:bien|feliz|content[oa])`), MoodNegative},
			{wordPattern(`(?:` + feelingVerbs + `)\s+` + intensifiers + `(?:` + negativeAdjective + `)`), MoodNegative},
			{wordPattern(`triste|tristeza|deprimid[oa]|depresión|angustia|angustiad[oa]|ansiedad|ansios[oa]|llorando|lloré|lloro|miedo|preocupad[oa]|estresad[oa]|desanimad[oa]|bajón|soledad`), MoodNegative},
			{wordPattern(`(?:` + feelingVerbs + `)\s+` + intensifiers + `(?:` + positiveAdjective + `)`), MoodPositive},
			{wordPattern(`feliz|felicidad|content[oa]|alegre|alegría|emocionad[oa]|entusiasmad[oa]|orgullos[oa]|encantad[oa]`), MoodPositive},
		},
	}
}

func (c *KeywordClassifier) FactKeywords(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, k := range c.factKeywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}

func (c *KeywordClassifier) DetectMood(text string) Mood {
	if strings.TrimSpace(text) == "" {
		return MoodNone
	}
	for _, rule := range c.moodRules {
		if rule.pattern.MatchString(text) {
			return rule.mood
		}
	}
	return MoodNone
}
