// Package memory holds the long-lived knowledge of the assistant: facts about
// the two participants, the current mood record and the conversation log.
// Every collection is persisted through a Backend with atomic load/save.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Participant identifies one of the two fixed conversational partners.
type Participant string

const (
	ParticipantA Participant = "a"
	ParticipantB Participant = "b"
)

var ErrUnknownParticipant = errors.New("unknown participant")

func (p Participant) Valid() bool {
	return p == ParticipantA || p == ParticipantB
}

// Other returns the opposite participant.
func (p Participant) Other() Participant {
	if p == ParticipantA {
		return ParticipantB
	}
	return ParticipantA
}

// Names maps participants to their display names.
type Names struct {
	A string
	B string
}

func (n Names) Of(p Participant) string {
	switch p {
	case ParticipantA:
		return n.A
	case ParticipantB:
		return n.B
	default:
		return string(p)
	}
}

// Parse resolves a transport identity ("a", "b" or a display name) to a
// Participant. Matching is case-insensitive.
func (n Names) Parse(identity string) (Participant, error) {
	id := strings.ToLower(strings.TrimSpace(identity))
	switch {
	case id == "":
		return "", ErrUnknownParticipant
	case id == string(ParticipantA) || (n.A != "" && id == strings.ToLower(n.A)):
		return ParticipantA, nil
	case id == string(ParticipantB) || (n.B != "" && id == strings.ToLower(n.B)):
		return ParticipantB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownParticipant, identity)
	}
}

// Fact is a short durable statement attributed to a participant.
type Fact struct {
	ID        string      `json:"id"`
	Owner     Participant `json:"owner"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

// Turn is one exchange of the conversation log.
type Turn struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Speaker   Participant `json:"speaker,omitempty"`
	Input     string      `json:"input"`
	Output    string      `json:"output"`
	Emotion   string      `json:"emotion,omitempty"`
}

// Mood is the coarse sentiment of the last emotionally charged utterance.
type Mood string

const (
	MoodNone     Mood = "none"
	MoodPositive Mood = "positive"
	MoodNegative Mood = "negative"
)

// MaxMoodSummary bounds MoodState.Summary in runes.
const MaxMoodSummary = 140

// MoodState is the single live mood record.
type MoodState struct {
	Mood            Mood       `json:"mood"`
	Timestamp       time.Time  `json:"timestamp"`
	Summary         string     `json:"summary"`
	FollowupAsked   bool       `json:"followup_asked"`
	FollowupAskedAt *time.Time `json:"followup_asked_at,omitempty"`
}
