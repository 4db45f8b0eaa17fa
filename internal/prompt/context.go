// Package prompt assembles the bounded, role-tagged context sent to the
// language model for a single turn.
package prompt

import (
	"strings"

	"github.com/ent0n29/carobot/internal/memory"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind tells which composer step produced a block.
type Kind string

const (
	KindSystem    Kind = "system"
	KindProfile   Kind = "profile"
	KindFact      Kind = "fact"
	KindHistory   Kind = "history"
	KindFollowup  Kind = "followup"
	KindUtterance Kind = "utterance"
)

type Block struct {
	Role    Role   `json:"role"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

// Context is the ordered prompt for one turn. FollowupInjected records
// whether the mood check-in hint is part of it, so the caller can mark the
// follow-up as asked once the model call succeeded.
type Context struct {
	Blocks           []Block
	FollowupInjected bool
	Followup         memory.MoodState
}

// Utterance returns the content of the final user block.
func (c Context) Utterance() string {
	if len(c.Blocks) == 0 {
		return ""
	}
	return c.Blocks[len(c.Blocks)-1].Content
}

// Count returns how many blocks of kind k the context holds.
func (c Context) Count(k Kind) int {
	n := 0
	for _, b := range c.Blocks {
		if b.Kind == k {
			n++
		}
	}
	return n
}

// Render flattens the context into a single transcript, used by providers
// without a chat message API and by debug logging.
func (c Context) Render() string {
	var sb strings.Builder
	for i, b := range c.Blocks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(string(b.Role))
		sb.WriteString(": ")
		sb.WriteString(b.Content)
	}
	return sb.String()
}

// EstimateTokens approximates the token count of s at four characters per
// token.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
