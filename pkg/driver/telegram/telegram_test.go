package telegram

import (
	"testing"

	"github.com/mymmrac/telego"

	"voxhub/pkg/config"
	"voxhub/pkg/session"
)

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(config.TelegramConfig{}, nil, nil, nil, nil); err == nil {
		t.Fatal("expected an error for a missing token")
	}
}

func TestActivatorRegex(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "plain mention", text: "otto turn on the lights", want: true},
		{name: "case insensitive", text: "hey OTTO", want: true},
		{name: "substring does not count", text: "risotto recipe", want: false},
		{name: "absent", text: "turn on the lights", want: false},
	}

	re := activatorRegex("otto")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := re.MatchString(tt.text); got != tt.want {
				t.Fatalf("MatchString(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	if activatorRegex("  ") != nil {
		t.Fatal("blank name must yield no activator")
	}
}

func TestSenderAllowed(t *testing.T) {
	open := &Driver{}
	if !open.senderAllowed("anyone") {
		t.Fatal("empty allow list must allow everyone")
	}

	restricted := &Driver{allowFrom: allowFromSet([]string{" 42 ", "", "7"})}
	if !restricted.senderAllowed("42") {
		t.Fatal("expected listed sender to be allowed")
	}
	if restricted.senderAllowed("99") {
		t.Fatal("expected unlisted sender to be rejected")
	}
}

func TestReplyMarkup(t *testing.T) {
	if replyMarkup(nil) != nil {
		t.Fatal("no replies must yield no markup")
	}

	markup := replyMarkup([]string{"yes", "no"})
	if markup == nil || !markup.OneTimeKeyboard {
		t.Fatalf("markup = %+v", markup)
	}
	if len(markup.Keyboard) != 1 || len(markup.Keyboard[0]) != 2 {
		t.Fatalf("keyboard = %+v", markup.Keyboard)
	}
	if markup.Keyboard[0][1].Text != "no" {
		t.Fatalf("button = %+v", markup.Keyboard[0][1])
	}
}

func TestChatIDFromSession(t *testing.T) {
	sess := &session.Session{ID: "otto-telegram-42", ChannelSessionID: "42"}
	chatID, err := chatIDFromSession(sess)
	if err != nil {
		t.Fatalf("chatIDFromSession: %v", err)
	}
	if chatID != 42 {
		t.Fatalf("chatID = %d, want 42", chatID)
	}

	// io_data wins over the channel session id.
	sess.IOData = map[string]any{"chat_id": "99"}
	chatID, err = chatIDFromSession(sess)
	if err != nil {
		t.Fatalf("chatIDFromSession with io_data: %v", err)
	}
	if chatID != 99 {
		t.Fatalf("chatID = %d, want 99", chatID)
	}

	if _, err := chatIDFromSession(&session.Session{ID: "otto-telegram"}); err == nil {
		t.Fatal("expected an error for a session without a numeric chat id")
	}
}

func TestChatAlias(t *testing.T) {
	private := telego.Chat{Type: "private", FirstName: "Ada", LastName: "Lovelace"}
	if got := chatAlias(private); got != "Ada Lovelace" {
		t.Fatalf("alias = %q", got)
	}

	group := telego.Chat{Type: "group", Title: "Family"}
	if got := chatAlias(group); got != "Family" {
		t.Fatalf("alias = %q", got)
	}
}

func TestPreviewText(t *testing.T) {
	if got := previewText("  hello  "); got != "hello" {
		t.Fatalf("previewText = %q", got)
	}

	long := make([]byte, messagePreviewLimit+10)
	for i := range long {
		long[i] = 'a'
	}
	got := previewText(string(long))
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("len = %d, want %d", len(got), messagePreviewLimit+3)
	}
}
