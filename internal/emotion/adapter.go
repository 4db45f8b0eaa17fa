// Package emotion detects the emotion of an utterance and adapts replies to
// it with a short empathetic opener.
package emotion

import (
	"strings"
	"unicode"
)

// Category groups emotion labels that share an opener.
type Category string

const (
	CategoryNone     Category = ""
	CategoryDistress Category = "distress"
	CategoryPositive Category = "positive"
	CategoryAnger    Category = "anger"
)

type rule struct {
	category Category
	labels   []string
	opener   string
}

// Categories are matched in this order; the first one containing the label
// wins.
var rules = []rule{
	{
		category: CategoryDistress,
		labels:   []string{"tristeza", "ansiedad", "miedo", "sadness", "anxiety", "fear"},
		opener:   "Te abrazo fuerte desde acá. ",
	},
	{
		category: CategoryPositive,
		labels:   []string{"alegría", "amor", "sorpresa", "joy", "love", "surprise"},
		opener:   "¡Me alegra tanto escuchar eso! ",
	},
	{
		category: CategoryAnger,
		labels:   []string{"enojo", "anger"},
		opener:   "Puedo sentir tu enojo. Vamos a charlarlo. ",
	},
}

// Classify maps a free-form label to its category. Labels are compared
// lowercased without surrounding punctuation, so "Tristeza." matches.
func Classify(label string) Category {
	norm := NormalizeLabel(label)
	if norm == "" {
		return CategoryNone
	}
	for _, r := range rules {
		for _, l := range r.labels {
			if l == norm {
				return r.category
			}
		}
	}
	return CategoryNone
}

// Adapt prefixes reply with the opener of the label's category. Unknown or
// empty labels leave reply unchanged.
func Adapt(reply, label string) string {
	cat := Classify(label)
	if cat == CategoryNone {
		return reply
	}
	for _, r := range rules {
		if r.category == cat {
			return r.opener + reply
		}
	}
	return reply
}

// NormalizeLabel lowercases label, keeps its first word and strips the
// punctuation around it.
func NormalizeLabel(label string) string {
	fields := strings.Fields(strings.ToLower(label))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimFunc(fields[0], func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
