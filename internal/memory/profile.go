package memory

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is the immutable seed knowledge about one participant. It is shown
// ahead of that participant's stored facts and never persisted.
type Profile struct {
	Owner Participant `yaml:"participant"`
	Facts []string    `yaml:"facts"`
}

// LoadProfile reads a YAML profile file:
//
//	participant: a
//	facts:
//	  - Me llamo Carola, nací en Rosario.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Owner == "" {
		p.Owner = ParticipantA
	}
	p.Owner = Participant(strings.ToLower(string(p.Owner)))
	if !p.Owner.Valid() {
		return Profile{}, fmt.Errorf("parse profile %s: %w: %q", path, ErrUnknownParticipant, p.Owner)
	}
	facts := make([]string, 0, len(p.Facts))
	for _, f := range p.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	p.Facts = facts
	return p, nil
}

// FactsFor returns the profile as Facts when p owns it.
func (pr Profile) FactsFor(p Participant) []Fact {
	if pr.Owner != p || len(pr.Facts) == 0 {
		return nil
	}
	out := make([]Fact, 0, len(pr.Facts))
	for i, text := range pr.Facts {
		out = append(out, Fact{ID: "profile-" + strconv.Itoa(i+1), Owner: pr.Owner, Text: text})
	}
	return out
}
