package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	logx "dutybot/pkg/logx"
)

func TestSplitTelegramTextShort(t *testing.T) {
	got := splitTelegramText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("line one\n", 10)
	chunks := splitTelegramText(text, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 50 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has dangling newline: %q", i, c)
		}
	}
}

func TestSplitTelegramTextNoNewlines(t *testing.T) {
	text := strings.Repeat("x", 120)
	chunks := splitTelegramText(text, 50)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != text {
		t.Fatalf("content lost: %d vs %d runes", len(joined), len(text))
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSetLoggerReplacesBootLogger(t *testing.T) {
	a := &Adapter{log: logx.Nop()}
	a.SetLogger(logx.NewConsole("debug"))
	if a.log.IsZero() {
		t.Fatal("logger not installed")
	}
	a.SetLogger(logx.Logger{})
	if a.log.IsZero() {
		t.Fatal("zero logger must fall back to nop, not stay zero")
	}
}

func TestVoiceChangeFromMessage(t *testing.T) {
	chat := &tele.Chat{ID: -100}

	vc := voiceChangeFromMessage(&tele.Message{
		Chat:             chat,
		Sender:           &tele.User{ID: 7},
		VideoChatStarted: &tele.VideoChatStarted{},
	})
	if vc == nil || vc.Ended || len(vc.UserIDs) != 1 || vc.UserIDs[0] != 7 {
		t.Fatalf("started: got %+v", vc)
	}

	vc = voiceChangeFromMessage(&tele.Message{
		Chat: chat,
		VideoChatParticipants: &tele.VideoChatParticipants{
			Users: []tele.User{{ID: 1}, {ID: 2}},
		},
	})
	if vc == nil || vc.Ended || len(vc.UserIDs) != 2 {
		t.Fatalf("participants: got %+v", vc)
	}

	vc = voiceChangeFromMessage(&tele.Message{
		Chat:           chat,
		VideoChatEnded: &tele.VideoChatEnded{Duration: 60},
	})
	if vc == nil || !vc.Ended {
		t.Fatalf("ended: got %+v", vc)
	}

	if vc := voiceChangeFromMessage(&tele.Message{Chat: chat}); vc != nil {
		t.Fatalf("plain message: got %+v, want nil", vc)
	}
	if vc := voiceChangeFromMessage(nil); vc != nil {
		t.Fatalf("nil message: got %+v, want nil", vc)
	}
}
