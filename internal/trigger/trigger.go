// Package trigger decides whether an inbound message addresses the bot.
// All predicates are pure functions over the event's metadata; nothing is
// cached between events.
package trigger

import "github.com/perchbot/perch/internal/chat"

// Mentioned reports whether the message text contains a mention entity
// whose span equals @<botUsername> exactly. The compare is case-sensitive
// against the raw span, matching the transport's entity semantics.
func Mentioned(m *chat.Message, botUsername string) bool {
	want := "@" + botUsername
	for _, e := range m.Entities {
		if e.Type != chat.EntityTypeMention {
			continue
		}
		if m.EntityText(e) == want {
			return true
		}
	}
	return false
}

// ReplyToBot reports whether the message replies to a message authored by
// the bot itself.
func ReplyToBot(m *chat.Message, botUsername string) bool {
	return m.IsReply() && m.ReplyTo.From.Username == botUsername
}

// Forwarded reports whether the message carries forward-origin metadata,
// from either a visible account or a privacy-hidden sender name.
func Forwarded(m *chat.Message) bool {
	return m.IsForwarded()
}

// ReplyOrForwardMention reports whether a reply or forward also mentions
// the bot. Subsumed by Mentioned ∪ Forwarded but kept as a named rule so
// the combined case stays independently auditable.
func ReplyOrForwardMention(m *chat.Message, botUsername string) bool {
	return (m.IsReply() || m.IsForwarded()) && Mentioned(m, botUsername)
}

// Classify reports whether the bot must respond to the message: any of
// the four rules suffices. An event with no mention entities and no
// reply/forward context never triggers.
func Classify(m *chat.Message, botUsername string) bool {
	return Mentioned(m, botUsername) ||
		ReplyToBot(m, botUsername) ||
		Forwarded(m) ||
		ReplyOrForwardMention(m, botUsername)
}
