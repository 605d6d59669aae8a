package prompt

import (
	"strings"
	"testing"

	"github.com/perchbot/perch/internal/chat"
	"github.com/perchbot/perch/internal/history"
)

func TestBuild_SystemFirstThenHistoryVerbatim(t *testing.T) {
	entries := []history.Entry{
		{Role: history.RoleUser, Content: "alice: hello"},
		{Role: history.RoleAssistant, Content: "hi alice"},
		{Role: history.RoleUser, Content: "bob: what's up"},
	}

	msgs := Build("be helpful", entries)

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "be helpful" {
		t.Errorf("expected system instruction first, got %+v", msgs[0])
	}
	for i, e := range entries {
		if msgs[i+1].Role != e.Role || msgs[i+1].Content != e.Content {
			t.Errorf("history entry %d altered: %+v", i, msgs[i+1])
		}
	}
}

func TestBuild_EmptyHistory(t *testing.T) {
	msgs := Build("persona", nil)
	if len(msgs) != 1 || msgs[0].Role != RoleSystem {
		t.Errorf("expected only the system message, got %+v", msgs)
	}
}

func TestComposeText_Plain(t *testing.T) {
	m := &chat.Message{From: chat.User{Username: "alice"}, Text: "just chatting"}
	if got := ComposeText(m); got != "just chatting" {
		t.Errorf("plain text must pass through, got %q", got)
	}
}

func TestComposeText_EmptyNonText(t *testing.T) {
	m := &chat.Message{From: chat.User{Username: "alice"}}
	if got := ComposeText(m); got != "" {
		t.Errorf("non-text content composes to empty string, got %q", got)
	}
}

func TestComposeText_Reply(t *testing.T) {
	m := &chat.Message{
		From:    chat.User{Username: "alice"},
		Text:    "I disagree",
		ReplyTo: &chat.ReplyContext{From: chat.User{Username: "bob"}, Text: "the earth is flat"},
	}

	got := ComposeText(m)
	want := "[Reply to bob]\nText from replied message:\n===\nthe earth is flat\n===\n\nalice: I disagree"
	if got != want {
		t.Errorf("reply composition:\ngot  %q\nwant %q", got, want)
	}
}

func TestComposeText_ForwardFromUser(t *testing.T) {
	m := &chat.Message{
		From:        chat.User{Username: "alice"},
		Text:        "interesting take",
		ForwardFrom: &chat.User{Username: "carol"},
	}

	got := ComposeText(m)
	if !strings.HasPrefix(got, "[Forwarded from carol]\n") {
		t.Errorf("forward header missing, got %q", got)
	}
	if !strings.Contains(got, "===\ninteresting take\n===") {
		t.Errorf("forwarded text not framed, got %q", got)
	}
	if !strings.HasSuffix(got, "alice: interesting take") {
		t.Errorf("current message line missing, got %q", got)
	}
}

func TestComposeText_ForwardSenderNameOnly(t *testing.T) {
	m := &chat.Message{
		From:              chat.User{Username: "alice"},
		Text:              "from a hidden account",
		ForwardSenderName: "Hidden Sender",
	}

	got := ComposeText(m)
	if !strings.HasPrefix(got, "[Forwarded from Hidden Sender]\n") {
		t.Errorf("sender-name origin missing, got %q", got)
	}
}

func TestComposeText_ReplyWinsOverForward(t *testing.T) {
	m := &chat.Message{
		From:        chat.User{Username: "alice"},
		Text:        "both",
		ReplyTo:     &chat.ReplyContext{From: chat.User{Username: "bob"}, Text: "orig"},
		ForwardFrom: &chat.User{Username: "carol"},
	}
	if got := ComposeText(m); !strings.HasPrefix(got, "[Reply to bob]") {
		t.Errorf("reply metadata takes precedence, got %q", got)
	}
}

func TestStripMention(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"@perch_bot hello", "hello"},
		{"hello @perch_bot", "hello"},
		{"@perch_bot", ""},
		{"@perch_bot   ", ""},
		{"@perch_bot hello @perch_bot again", "hello  again"},
		{"no mention here", "no mention here"},
	}
	for _, tc := range cases {
		if got := StripMention(tc.in, "perch_bot"); got != tc.want {
			t.Errorf("StripMention(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
