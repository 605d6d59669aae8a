// Package history holds the in-memory rolling conversation history, one
// bounded window per chat, lazily hydrated from the persistent message
// log. After the first touch of a chat, memory is authoritative: the
// store is never re-read for that chat within the process lifetime.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/perchbot/perch/internal/store"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one turn of a conversation. User entries carry the
// "<display name>: <text>" formatting baked into Content so the flat
// sequence doubles as the literal prompt.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Loader is the slice of the message log the cache hydrates from.
type Loader interface {
	LoadHistory(ctx context.Context, chatID int64) ([]store.StoredMessage, error)
}

// Cache maps chat ids to their history windows. The top-level map is
// guarded by mu; each conversation has its own lock so chats don't
// contend with each other.
type Cache struct {
	loader        Loader
	logger        *slog.Logger
	trimThreshold int
	retain        int

	mu    sync.Mutex
	chats map[int64]*conversation
}

type conversation struct {
	mu       sync.Mutex
	hydrated bool
	entries  []Entry
}

// New builds a cache. trimThreshold is the length above which a user
// append trims; retain is how many tail entries survive a trim. The two
// are independent settings that default equal upstream.
func New(loader Loader, trimThreshold, retain int, logger *slog.Logger) *Cache {
	return &Cache{
		loader:        loader,
		logger:        logger,
		trimThreshold: trimThreshold,
		retain:        retain,
		chats:         make(map[int64]*conversation),
	}
}

// FormatUser renders the denormalized user-entry content.
func FormatUser(name, text string) string {
	return fmt.Sprintf("%s: %s", name, text)
}

func (c *Cache) conversation(chatID int64) *conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.chats[chatID]
	if !ok {
		conv = &conversation{}
		c.chats[chatID] = conv
	}
	return conv
}

// hydrate loads the chat's stored history exactly once per process.
// Load failures degrade to an empty history; the chat is still marked
// hydrated so the store is not hammered on every message.
func (c *Cache) hydrate(ctx context.Context, chatID int64, conv *conversation) {
	if conv.hydrated {
		return
	}
	conv.hydrated = true

	msgs, err := c.loader.LoadHistory(ctx, chatID)
	if err != nil {
		c.logger.Error("failed to load chat history", "chat_id", chatID, "error", err)
		return
	}
	for _, m := range msgs {
		conv.entries = append(conv.entries, Entry{Role: RoleUser, Content: FormatUser(m.Username, m.Text)})
	}
	c.logger.Info("hydrated chat history", "chat_id", chatID, "messages", len(msgs))
}

// Get returns a snapshot of the chat's history, hydrating it from the
// store on first access.
func (c *Cache) Get(ctx context.Context, chatID int64) []Entry {
	conv := c.conversation(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	c.hydrate(ctx, chatID, conv)

	out := make([]Entry, len(conv.entries))
	copy(out, conv.entries)
	return out
}

// AppendUser records an inbound message. It must be called for every
// observed message, triggered or not; non-text content arrives as an
// empty text string. The trim policy applies after the append, so the
// window invariant holds on every user turn.
func (c *Cache) AppendUser(ctx context.Context, chatID int64, name, text string) {
	conv := c.conversation(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	c.hydrate(ctx, chatID, conv)

	conv.entries = append(conv.entries, Entry{Role: RoleUser, Content: FormatUser(name, text)})
	if len(conv.entries) > c.trimThreshold {
		keep := c.retain
		if keep > len(conv.entries) {
			keep = len(conv.entries)
		}
		conv.entries = conv.entries[len(conv.entries)-keep:]
	}
}

// AppendAssistant records the bot's reply after a completion round. No
// trim here: a response round may exceed the window by one entry until
// the next user append.
func (c *Cache) AppendAssistant(chatID int64, content string) {
	conv := c.conversation(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	conv.entries = append(conv.entries, Entry{Role: RoleAssistant, Content: content})
}

// Len reports the current window length for a chat without hydrating it.
func (c *Cache) Len(chatID int64) int {
	conv := c.conversation(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return len(conv.entries)
}
