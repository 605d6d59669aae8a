package chat

import "github.com/google/uuid"

// User identifies a message author on the transport.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// DisplayName returns the username, falling back to the full name for
// accounts without one.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FullName
}

// Entity is a span of the message text with transport-assigned semantics
// (mention, url, hashtag, ...). Offsets are byte offsets into Text.
type Entity struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Type   string `json:"type"`
}

// EntityTypeMention marks an @username span.
const EntityTypeMention = "mention"

// ReplyContext is the message being replied to, when the inbound message
// is a reply.
type ReplyContext struct {
	From User   `json:"from"`
	Text string `json:"text"`
}

// Message is one inbound conversational event as delivered by the
// transport gateway. Optional metadata is modelled with explicit pointer
// fields rather than attribute probing: a nil ReplyTo means "not a reply",
// a nil ForwardFrom plus empty ForwardSenderName means "not a forward".
type Message struct {
	EventID   uuid.UUID `json:"event_id"`
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	From      User      `json:"from"`

	// Text is empty for non-text content (stickers, photos, ...); the
	// event is still recorded with an empty text string.
	Text     string   `json:"text,omitempty"`
	Entities []Entity `json:"entities,omitempty"`

	ReplyTo *ReplyContext `json:"reply_to,omitempty"`

	// Forward origin. ForwardFrom is set when the original sender is a
	// visible account; ForwardSenderName when privacy settings hide it.
	ForwardFrom       *User  `json:"forward_from,omitempty"`
	ForwardSenderName string `json:"forward_sender_name,omitempty"`
}

// IsReply reports whether the message replies to another message.
func (m *Message) IsReply() bool {
	return m.ReplyTo != nil
}

// IsForwarded reports whether the message carries forward-origin metadata.
func (m *Message) IsForwarded() bool {
	return m.ForwardFrom != nil || m.ForwardSenderName != ""
}

// EntityText returns the span of Text covered by the entity, or "" when
// the span falls outside the text.
func (m *Message) EntityText(e Entity) string {
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(m.Text) {
		return ""
	}
	return m.Text[e.Offset : e.Offset+e.Length]
}
