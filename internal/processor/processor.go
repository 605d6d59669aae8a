// Package processor wires the relay pipeline: every inbound message is
// recorded and cached, the trigger classifier decides whether the bot is
// being addressed, and triggered messages flow through the context
// builder to the completion service and back out as a reply.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/perchbot/perch/internal/chat"
	"github.com/perchbot/perch/internal/history"
	"github.com/perchbot/perch/internal/openai"
	"github.com/perchbot/perch/internal/prompt"
	"github.com/perchbot/perch/internal/store"
	"github.com/perchbot/perch/internal/trigger"
)

// Completer is the completion service boundary.
type Completer interface {
	Complete(ctx context.Context, messages []openai.Message) (string, error)
}

// ReplySender delivers a plain-text reply into a chat.
type ReplySender interface {
	SendReply(chatID, replyToMessageID int64, text string) error
}

type Processor struct {
	store       store.MessageLog
	cache       *history.Cache
	llm         Completer
	sender      ReplySender
	logger      *slog.Logger
	botUsername string
	instruction string

	mu        sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

func New(s store.MessageLog, cache *history.Cache, llm Completer, sender ReplySender, botUsername, instruction string, logger *slog.Logger) *Processor {
	return &Processor{
		store:       s,
		cache:       cache,
		llm:         llm,
		sender:      sender,
		logger:      logger,
		botUsername: botUsername,
		instruction: instruction,
		chatLocks:   make(map[int64]*sync.Mutex),
	}
}

// chatLock returns the per-conversation mutual-exclusion token. Events in
// one chat serialize around the full record→trigger→reply sequence;
// distinct chats proceed in parallel.
func (p *Processor) chatLock(chatID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		p.chatLocks[chatID] = l
	}
	return l
}

// HandleInboundMessage is the gateway handler for chat message events.
func (p *Processor) HandleInboundMessage(subject string, data []byte) {
	var m chat.Message
	if err := json.Unmarshal(data, &m); err != nil {
		p.logger.Error("failed to parse inbound message", "subject", subject, "error", err)
		return
	}
	p.Process(context.Background(), &m)
}

// Process runs one message through the pipeline.
func (p *Processor) Process(ctx context.Context, m *chat.Message) {
	lock := p.chatLock(m.ChatID)
	lock.Lock()
	defer lock.Unlock()

	name := m.From.DisplayName()
	text := prompt.ComposeText(m)

	p.logger.Info("message received",
		"event_id", m.EventID,
		"chat_id", m.ChatID,
		"from", name,
	)

	// Cache first so hydration sees the store without the current message,
	// then record. Both happen for every message, triggered or not; a
	// failed write degrades to in-memory history only.
	p.cache.AppendUser(ctx, m.ChatID, name, text)
	if err := p.store.Append(ctx, m.ChatID, m.From.ID, name, text); err != nil {
		p.logger.Error("failed to store message", "chat_id", m.ChatID, "error", err)
	}

	if !trigger.Classify(m, p.botUsername) {
		return
	}
	p.logger.Info("bot triggered", "chat_id", m.ChatID, "event_id", m.EventID)

	// A trigger with nothing left after the mention gets the fixed prompt,
	// never the model; that reply is not recorded anywhere.
	if prompt.StripMention(text, p.botUsername) == "" {
		p.logger.Warn("mention without message", "chat_id", m.ChatID, "from", name)
		p.reply(m, prompt.EmptyMentionReply)
		return
	}

	msgs := prompt.Build(p.instruction, p.cache.Get(ctx, m.ChatID))

	replyText, err := p.llm.Complete(ctx, msgs)
	if err != nil {
		p.logger.Error("completion failed", "chat_id", m.ChatID, "error", err)
		replyText = prompt.Apology
	}

	p.reply(m, replyText)
	p.cache.AppendAssistant(m.ChatID, replyText)
}

func (p *Processor) reply(m *chat.Message, text string) {
	if err := p.sender.SendReply(m.ChatID, m.MessageID, text); err != nil {
		p.logger.Error("failed to send reply", "chat_id", m.ChatID, "error", err)
	}
}
