package memory

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const factsCollection = "facts"

// SecondPersonMarkers route a statement to the participant being addressed.
var SecondPersonMarkers = []string{"vos", "tú", "usted"}

// FactStore keeps the deduplicated facts of both participants.
type FactStore struct {
	coll          *collection[[]Fact]
	classifier    Classifier
	names         Names
	profile       Profile
	negationToken string
	addressee     []*regexp.Regexp
}

func NewFactStore(backend Backend, classifier Classifier, names Names, profile Profile, logger *zap.Logger) *FactStore {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	s := &FactStore{
		coll:          newCollection[[]Fact](factsCollection, backend, logger),
		classifier:    classifier,
		names:         names,
		profile:       profile,
		negationToken: DefaultNegationToken,
	}
	for _, marker := range SecondPersonMarkers {
		s.addressee = append(s.addressee, wordPattern(regexp.QuoteMeta(marker)))
	}
	return s
}

// SetRecoveryHook registers a callback for unreadable persisted facts.
func (s *FactStore) SetRecoveryHook(hook func(collection string)) {
	s.coll.onRecover = hook
}

// NegationToken returns the token that opens a correction.
func (s *FactStore) NegationToken() string { return s.negationToken }

// Profile returns the immutable seed profile.
func (s *FactStore) Profile() Profile { return s.profile }

// ResolveOwner applies the address heuristic: a second-person marker or the
// name of the other participant routes the statement to that participant,
// otherwise the speaker owns it.
func (s *FactStore) ResolveOwner(text string, speaker Participant) Participant {
	other := speaker.Other()
	for _, re := range s.addressee {
		if re.MatchString(text) {
			return other
		}
	}
	if name := strings.TrimSpace(s.names.Of(other)); name != "" {
		if wordPattern(regexp.QuoteMeta(name)).MatchString(text) {
			return other
		}
	}
	return speaker
}

// Add stores utterance as a fact when it contains a self-description
// keyword. It returns nil when nothing was stored, including when the
// normalized text already exists for the owner.
func (s *FactStore) Add(ctx context.Context, utterance string, speaker Participant, now time.Time) (*Fact, error) {
	if !speaker.Valid() {
		return nil, ErrUnknownParticipant
	}
	if len(s.classifier.FactKeywords(utterance)) == 0 {
		return nil, nil
	}
	text := Normalize(utterance)
	owner := s.ResolveOwner(utterance, speaker)

	var added *Fact
	err := s.coll.update(ctx, func(facts *[]Fact) (bool, error) {
		added = nil
		if containsFact(*facts, owner, text) {
			return false, nil
		}
		f := newFact(owner, text, now)
		*facts = append(*facts, f)
		added = &f
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Correct handles an utterance opening with the negation token. The text
// after the token becomes the replacement fact. Every stored fact of the
// resolved owner that shares a keyword with the replacement is removed
// before the replacement is added. The overlap test is deliberately coarse:
// "No, me gusta el té" drops every stored "me gusta" fact of that owner.
func (s *FactStore) Correct(ctx context.Context, utterance string, speaker Participant, now time.Time) (*Fact, error) {
	if !speaker.Valid() {
		return nil, ErrUnknownParticipant
	}
	if !IsCorrection(utterance, s.negationToken) {
		return nil, nil
	}
	remainder := correctionRemainder(utterance, s.negationToken)
	text := Normalize(remainder)
	if text == "" {
		return nil, nil
	}
	owner := s.ResolveOwner(remainder, speaker)
	shared := s.classifier.FactKeywords(text)

	var replacement *Fact
	err := s.coll.update(ctx, func(facts *[]Fact) (bool, error) {
		replacement = nil
		kept := make([]Fact, 0, len(*facts))
		changed := false
		for _, f := range *facts {
			if f.Owner == owner && f.Text != text && sharesKeyword(s.classifier.FactKeywords(f.Text), shared) {
				changed = true
				continue
			}
			kept = append(kept, f)
		}
		if !containsFact(kept, owner, text) {
			f := newFact(owner, text, now)
			kept = append(kept, f)
			replacement = &f
			changed = true
		}
		*facts = kept
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// List returns the profile facts of p, if p owns the profile, followed by
// the stored facts in insertion order.
func (s *FactStore) List(ctx context.Context, p Participant) ([]Fact, error) {
	if !p.Valid() {
		return nil, ErrUnknownParticipant
	}
	stored, err := s.Stored(ctx, p)
	if err != nil {
		return nil, err
	}
	return append(s.profile.FactsFor(p), stored...), nil
}

// Stored returns only the persisted facts of p in insertion order.
func (s *FactStore) Stored(ctx context.Context, p Participant) ([]Fact, error) {
	all := s.coll.snapshot(ctx)
	var out []Fact
	for _, f := range all {
		if f.Owner == p {
			out = append(out, f)
		}
	}
	return out, nil
}

// All returns the persisted facts of both participants in insertion order.
func (s *FactStore) All(ctx context.Context) []Fact {
	return s.coll.snapshot(ctx)
}

func newFact(owner Participant, text string, now time.Time) Fact {
	if now.IsZero() {
		now = time.Now()
	}
	return Fact{ID: uuid.NewString(), Owner: owner, Text: text, CreatedAt: now.UTC()}
}

func containsFact(facts []Fact, owner Participant, text string) bool {
	for _, f := range facts {
		if f.Owner == owner && f.Text == text {
			return true
		}
	}
	return false
}

func sharesKeyword(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
