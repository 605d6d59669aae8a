package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/perchbot/perch/internal/chat"
	"github.com/perchbot/perch/internal/history"
	"github.com/perchbot/perch/internal/openai"
	"github.com/perchbot/perch/internal/prompt"
	"github.com/perchbot/perch/internal/store"
)

const botName = "perch_bot"

type appendCall struct {
	chatID   int64
	userID   int64
	username string
	text     string
}

type fakeLog struct {
	mu      sync.Mutex
	appends []appendCall
	rows    []store.StoredMessage
	err     error
}

func (f *fakeLog) Append(ctx context.Context, chatID, userID int64, username, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, appendCall{chatID, userID, username, text})
	return f.err
}

func (f *fakeLog) LoadHistory(ctx context.Context, chatID int64) ([]store.StoredMessage, error) {
	return f.rows, nil
}

func (f *fakeLog) Recent(ctx context.Context, chatID int64, limit int) ([]store.StoredMessage, error) {
	return nil, nil
}

func (f *fakeLog) Ping(ctx context.Context) error { return nil }
func (f *fakeLog) Close()                         {}

type fakeCompleter struct {
	calls int
	got   []openai.Message
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []openai.Message) (string, error) {
	f.calls++
	f.got = messages
	return f.reply, f.err
}

type sentReply struct {
	chatID    int64
	messageID int64
	text      string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentReply
}

func (f *fakeSender) SendReply(chatID, replyToMessageID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReply{chatID, replyToMessageID, text})
	return nil
}

type fixture struct {
	proc   *Processor
	log    *fakeLog
	llm    *fakeCompleter
	sender *fakeSender
	cache  *history.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	log := &fakeLog{}
	llm := &fakeCompleter{reply: "model says hi"}
	sender := &fakeSender{}
	cache := history.New(log, 10, 10, logger)
	proc := New(log, cache, llm, sender, botName, "test persona", logger)
	return &fixture{proc: proc, log: log, llm: llm, sender: sender, cache: cache}
}

func mentionMsg(text string) *chat.Message {
	return &chat.Message{
		ChatID:    100,
		MessageID: 1,
		From:      chat.User{ID: 7, Username: "alice"},
		Text:      text,
		Entities:  []chat.Entity{{Offset: 0, Length: 10, Type: chat.EntityTypeMention}},
	}
}

func TestProcess_MentionTrigger(t *testing.T) {
	f := newFixture(t)

	f.proc.Process(context.Background(), mentionMsg("@perch_bot hello"))

	if f.llm.calls != 1 {
		t.Fatalf("expected 1 completion call, got %d", f.llm.calls)
	}
	if f.llm.got[0].Role != prompt.RoleSystem || f.llm.got[0].Content != "test persona" {
		t.Errorf("prompt must start with the system instruction, got %+v", f.llm.got[0])
	}
	if f.llm.got[1].Content != "alice: @perch_bot hello" {
		t.Errorf("prompt history entry wrong: %+v", f.llm.got[1])
	}

	if len(f.sender.sent) != 1 || f.sender.sent[0].text != "model says hi" {
		t.Fatalf("expected one reply with the completion, got %+v", f.sender.sent)
	}
	if f.sender.sent[0].chatID != 100 || f.sender.sent[0].messageID != 1 {
		t.Errorf("reply not addressed to the triggering message: %+v", f.sender.sent[0])
	}

	entries := f.cache.Get(context.Background(), 100)
	last := entries[len(entries)-1]
	if last.Role != history.RoleAssistant || last.Content != "model says hi" {
		t.Errorf("reply must be appended as assistant entry, got %+v", last)
	}
}

func TestProcess_EmptyMention(t *testing.T) {
	f := newFixture(t)

	f.proc.Process(context.Background(), mentionMsg("@perch_bot"))

	if f.llm.calls != 0 {
		t.Error("completion service must not be invoked for an empty mention")
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].text != prompt.EmptyMentionReply {
		t.Fatalf("expected the fixed prompt reply, got %+v", f.sender.sent)
	}

	// The fixed prompt is never recorded; only the user message is.
	entries := f.cache.Get(context.Background(), 100)
	if len(entries) != 1 || entries[0].Role != history.RoleUser {
		t.Errorf("history must hold only the user message, got %+v", entries)
	}
	if len(f.log.appends) != 1 {
		t.Errorf("the fixed prompt must not be persisted, got %d appends", len(f.log.appends))
	}
}

func TestProcess_CompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("quota exceeded")
	f.llm.reply = ""

	f.proc.Process(context.Background(), mentionMsg("@perch_bot hello"))

	if len(f.sender.sent) != 1 || f.sender.sent[0].text != prompt.Apology {
		t.Fatalf("expected the apology reply, got %+v", f.sender.sent)
	}
	entries := f.cache.Get(context.Background(), 100)
	last := entries[len(entries)-1]
	if last.Role != history.RoleAssistant || last.Content != prompt.Apology {
		t.Errorf("apology must advance history as an assistant entry, got %+v", last)
	}
}

func TestProcess_ForwardTriggersWithoutMention(t *testing.T) {
	f := newFixture(t)

	m := &chat.Message{
		ChatID:      100,
		MessageID:   2,
		From:        chat.User{ID: 7, Username: "alice"},
		Text:        "worth a look",
		ForwardFrom: &chat.User{ID: 9, Username: "carol"},
	}
	f.proc.Process(context.Background(), m)

	if f.llm.calls != 1 {
		t.Fatal("forwarded message must trigger a response on its own")
	}
	// The composed block, not the raw text, is what gets persisted.
	if len(f.log.appends) != 1 {
		t.Fatalf("expected 1 append, got %d", len(f.log.appends))
	}
	stored := f.log.appends[0].text
	if stored == "worth a look" {
		t.Error("persisted text must be the composed forward block")
	}
}

func TestProcess_ReplyToBotTriggers(t *testing.T) {
	f := newFixture(t)

	m := &chat.Message{
		ChatID:    100,
		MessageID: 3,
		From:      chat.User{ID: 7, Username: "alice"},
		Text:      "and what about embeddings?",
		ReplyTo:   &chat.ReplyContext{From: chat.User{Username: botName}, Text: "earlier answer"},
	}
	f.proc.Process(context.Background(), m)

	if f.llm.calls != 1 {
		t.Fatal("reply to the bot must trigger regardless of mention")
	}
}

func TestProcess_PlainMessageRecordedButSilent(t *testing.T) {
	f := newFixture(t)

	f.proc.Process(context.Background(), &chat.Message{
		ChatID:    100,
		MessageID: 4,
		From:      chat.User{ID: 7, Username: "alice"},
		Text:      "just chatting with bob",
	})

	if f.llm.calls != 0 || len(f.sender.sent) != 0 {
		t.Error("untriggered message must not produce a reply")
	}
	if len(f.log.appends) != 1 {
		t.Errorf("every message is persisted, got %d appends", len(f.log.appends))
	}
	if f.cache.Len(100) != 1 {
		t.Errorf("every message is cached, got %d entries", f.cache.Len(100))
	}
}

func TestProcess_StoreFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.log.err = errors.New("disk full")

	f.proc.Process(context.Background(), mentionMsg("@perch_bot hello"))

	if f.llm.calls != 1 {
		t.Error("a failed durable write must not abort the triggering pipeline")
	}
	if len(f.sender.sent) != 1 {
		t.Error("reply must still be sent after a store failure")
	}
}

func TestProcess_NonTextContent(t *testing.T) {
	f := newFixture(t)

	f.proc.Process(context.Background(), &chat.Message{
		ChatID:    100,
		MessageID: 5,
		From:      chat.User{ID: 7, Username: "alice"},
	})

	if len(f.log.appends) != 1 || f.log.appends[0].text != "" {
		t.Errorf("non-text content persists with an empty text string, got %+v", f.log.appends)
	}
	entries := f.cache.Get(context.Background(), 100)
	if len(entries) != 1 || entries[0].Content != "alice: " {
		t.Errorf("non-text content caches with empty text, got %+v", entries)
	}
}

func TestHandleInboundMessage_MalformedPayload(t *testing.T) {
	f := newFixture(t)
	f.proc.HandleInboundMessage(gatewaySubject, []byte("not json"))

	if f.llm.calls != 0 || len(f.sender.sent) != 0 || len(f.log.appends) != 0 {
		t.Error("malformed payloads must be dropped without side effects")
	}
}

const gatewaySubject = "chat.telegram.message"

func TestProcess_ConcurrentChatsDoNotInterleaveHistory(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for chatID := int64(1); chatID <= 4; chatID++ {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				f.proc.Process(context.Background(), &chat.Message{
					ChatID:    id,
					MessageID: 1,
					From:      chat.User{ID: id, Username: "alice"},
					Text:      "hello",
				})
			}(chatID)
		}
	}
	wg.Wait()

	for chatID := int64(1); chatID <= 4; chatID++ {
		if got := f.cache.Len(chatID); got != 10 {
			t.Errorf("chat %d: expected trimmed window of 10, got %d", chatID, got)
		}
	}
}
