package memory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	moodCollection = "mood"

	DefaultFollowupThreshold = 24 * time.Hour
)

// MoodTracker owns the single MoodState record. Its lifecycle is
// NoMood -> MoodRecorded -> (FollowupDue) -> FollowupAsked, and any new
// detection starts over at MoodRecorded. FollowupDue is derived, never stored.
type MoodTracker struct {
	coll       *collection[*MoodState]
	classifier Classifier
	threshold  time.Duration
}

func NewMoodTracker(backend Backend, classifier Classifier, threshold time.Duration, logger *zap.Logger) *MoodTracker {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if threshold <= 0 {
		threshold = DefaultFollowupThreshold
	}
	return &MoodTracker{
		coll:       newCollection[*MoodState](moodCollection, backend, logger),
		classifier: classifier,
		threshold:  threshold,
	}
}

// SetRecoveryHook registers a callback for an unreadable persisted mood.
func (t *MoodTracker) SetRecoveryHook(hook func(collection string)) {
	t.coll.onRecover = hook
}

func (t *MoodTracker) Threshold() time.Duration { return t.threshold }

// Detect classifies utterance without touching state.
func (t *MoodTracker) Detect(utterance string) Mood {
	return t.classifier.DetectMood(utterance)
}

// Update replaces the record when utterance carries a mood and leaves it
// untouched otherwise. It returns the detected mood.
func (t *MoodTracker) Update(ctx context.Context, utterance string, now time.Time) (Mood, error) {
	mood := t.Detect(utterance)
	if mood == MoodNone {
		return MoodNone, nil
	}
	err := t.coll.update(ctx, func(state **MoodState) (bool, error) {
		*state = &MoodState{
			Mood:      mood,
			Timestamp: now.UTC(),
			Summary:   summarize(utterance),
		}
		return true, nil
	})
	if err != nil {
		return mood, err
	}
	return mood, nil
}

// Current returns the live record, or nil when no mood was recorded.
func (t *MoodTracker) Current(ctx context.Context) *MoodState {
	return t.coll.snapshot(ctx)
}

// FollowupDue reports whether a one-shot check-in is owed at now, and
// returns the record it concerns.
func (t *MoodTracker) FollowupDue(ctx context.Context, now time.Time) (MoodState, bool) {
	state := t.Current(ctx)
	if state == nil || state.Mood == MoodNone || state.FollowupAsked {
		return MoodState{}, false
	}
	if now.Sub(state.Timestamp) < t.threshold {
		return MoodState{}, false
	}
	return *state, true
}

// MarkAsked records that the follow-up for the mood recorded at recordedAt
// was delivered. A record replaced in the meantime is left untouched.
func (t *MoodTracker) MarkAsked(ctx context.Context, recordedAt, now time.Time) error {
	return t.coll.update(ctx, func(state **MoodState) (bool, error) {
		cur := *state
		if cur == nil || cur.FollowupAsked || !cur.Timestamp.Equal(recordedAt) {
			return false, nil
		}
		at := now.UTC()
		next := *cur
		next.FollowupAsked = true
		next.FollowupAskedAt = &at
		*state = &next
		return true, nil
	})
}

func summarize(utterance string) string {
	s := strings.Join(strings.Fields(utterance), " ")
	runes := []rune(s)
	if len(runes) <= MaxMoodSummary {
		return s
	}
	return strings.TrimSpace(string(runes[:MaxMoodSummary-1])) + "…"
}
