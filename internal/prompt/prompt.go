// Package prompt turns cached history into the ordered completion prompt
// and owns the text-shaping rules around it: the composed block for
// replies and forwards, mention stripping, and the fixed reply strings.
package prompt

import (
	"fmt"
	"strings"

	"github.com/perchbot/perch/internal/chat"
	"github.com/perchbot/perch/internal/history"
	"github.com/perchbot/perch/internal/openai"
)

const RoleSystem = "system"

// Fixed user-visible strings. These are the only non-model texts a user
// ever sees.
const (
	// Apology replaces the model reply on any completion failure. It is
	// appended to history and treated as a normal turn.
	Apology = "Sorry, I'm having trouble processing your request right now."

	// EmptyMentionReply is sent when a trigger carries no text once the
	// mention is stripped. Never sent to the model, never recorded.
	EmptyMentionReply = "Please provide a message after mentioning me."
)

// DefaultInstruction is the stock persona; deployments override it via
// configuration.
const DefaultInstruction = `You are a friendly AI enthusiast in a group chat of people interested in artificial intelligence and personal growth. Your communication style is:
- Warm and engaging
- Slightly playful with a dash of witty sarcasm
- Responsive to the user's language and communication style

When discussing AI, share insights with enthusiasm, using analogies and light humor to make complex topics accessible. Always aim to inspire curiosity and encourage learning.

Language Protocol:
- Respond in the language the user initiates
- Maintain your core personality across all languages`

// Build produces the ordered completion prompt: the system instruction
// followed by the history verbatim. No filtering, truncation, or
// redaction happens here; entries are already role-tagged and formatted.
func Build(instruction string, entries []history.Entry) []openai.Message {
	msgs := make([]openai.Message, 0, len(entries)+1)
	msgs = append(msgs, openai.Message{Role: RoleSystem, Content: instruction})
	for _, e := range entries {
		msgs = append(msgs, openai.Message{Role: e.Role, Content: e.Content})
	}
	return msgs
}

// ComposeText returns the effective message text for persistence and
// history. Replies and forwards get a header naming the origin and the
// quoted original framed by === delimiters; plain messages pass through
// unchanged (empty for non-text content).
func ComposeText(m *chat.Message) string {
	switch {
	case m.IsReply():
		return fmt.Sprintf("[Reply to %s]\nText from replied message:\n===\n%s\n===\n\n%s",
			m.ReplyTo.From.DisplayName(), m.ReplyTo.Text, history.FormatUser(m.From.DisplayName(), m.Text))
	case m.IsForwarded():
		return fmt.Sprintf("[Forwarded from %s]\nText from forwarded message:\n===\n%s\n===\n%s",
			forwardOrigin(m), m.Text, history.FormatUser(m.From.DisplayName(), m.Text))
	default:
		return m.Text
	}
}

func forwardOrigin(m *chat.Message) string {
	if m.ForwardFrom != nil && m.ForwardFrom.DisplayName() != "" {
		return m.ForwardFrom.DisplayName()
	}
	return m.ForwardSenderName
}

// StripMention removes every occurrence of the bot mention from the text
// and trims surrounding space. An empty result means the trigger carried
// no actual message.
func StripMention(text, botUsername string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "@"+botUsername, ""))
}
