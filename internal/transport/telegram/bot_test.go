package telegram

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spec-kit/support-bot/internal/domain"
)

func TestNormalizeTextMessage(t *testing.T) {
	sent := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msg := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 100, FirstName: "Ada", LastName: "L", LanguageCode: "en"},
		Chat:      &tgbotapi.Chat{ID: 100},
		Date:      int(sent.Unix()),
		Text:      "my printer is on fire",
	}

	in, ok := normalizeMessage(msg)
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if in.Kind != domain.KindText || in.Text != "my printer is on fire" {
		t.Fatalf("unexpected inbound: %+v", in)
	}
	if in.SenderName != "Ada L" {
		t.Errorf("sender name = %q", in.SenderName)
	}
	if !in.SentAt.Equal(sent) {
		t.Errorf("sent_at = %v, want %v", in.SentAt, sent)
	}
	if in.IsCommand {
		t.Error("plain text must not parse as command")
	}
}

func TestNormalizeCommand(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 100, UserName: "ada"},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "/resolve_ticket fixed the thing",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/resolve_ticket")},
		},
	}

	in, ok := normalizeMessage(msg)
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if !in.IsCommand || in.Command != "resolve_ticket" {
		t.Fatalf("unexpected inbound: %+v", in)
	}
	if in.CommandArgs != "fixed the thing" {
		t.Errorf("args = %q", in.CommandArgs)
	}
	if in.SenderName != "ada" {
		t.Errorf("sender name should fall back to username, got %q", in.SenderName)
	}
}

func TestNormalizeDocument(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 100, FirstName: "Ada"},
		Chat: &tgbotapi.Chat{ID: 100},
		Document: &tgbotapi.Document{
			FileID:   "doc-1",
			FileName: "invoice.pdf",
			MimeType: "application/pdf",
		},
		Caption: "see attached",
	}

	in, ok := normalizeMessage(msg)
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if in.Kind != domain.KindDocument || in.FileRef != "doc-1" || in.FileName != "invoice.pdf" {
		t.Fatalf("unexpected inbound: %+v", in)
	}
	if in.Caption != "see attached" {
		t.Errorf("caption = %q", in.Caption)
	}
}

func TestNormalizePhotoPicksLargest(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 100, FirstName: "Ada"},
		Chat: &tgbotapi.Chat{ID: 100},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "large", Width: 1280},
		},
	}

	in, ok := normalizeMessage(msg)
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if in.Kind != domain.KindPhoto || in.FileRef != "large" {
		t.Fatalf("unexpected inbound: %+v", in)
	}
}

func TestNormalizeSkipsUnsupported(t *testing.T) {
	msg := &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 100},
		Chat:  &tgbotapi.Chat{ID: 100},
		Voice: &tgbotapi.Voice{FileID: "v1"},
	}

	if _, ok := normalizeMessage(msg); ok {
		t.Fatal("voice messages should be skipped")
	}
}
