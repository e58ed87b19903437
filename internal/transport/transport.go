package transport

import (
	"context"
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// Button is one inline keyboard button carrying a callback token.
type Button struct {
	Label string
	Token string
}

// Keyboard is rows of inline buttons attached to an outbound message.
type Keyboard [][]Button

// Media describes an outbound media attachment by platform file reference.
type Media struct {
	Kind    domain.MessageKind
	FileRef string
	Caption string
}

// Sender is the outbound side of the chat transport.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (messageID int, err error)
	SendTextWithKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) (messageID int, err error)
	SendMedia(ctx context.Context, chatID int64, media Media) (messageID int, err error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	CreateInviteLink(ctx context.Context, chatID int64, expiresAt time.Time) (string, error)
}

// InboundMessage is a normalized inbound chat message.
type InboundMessage struct {
	SenderID     int64
	ChatID       int64
	MessageID    int
	SenderName   string
	LanguageCode string
	SentAt       time.Time
	Kind         domain.MessageKind
	Text         string
	FileRef      string
	FileName     string
	MIMEType     string
	Caption      string
	IsCommand    bool
	Command      string
	CommandArgs  string
}

// InboundCallback is a normalized inline button press.
type InboundCallback struct {
	CallbackID   string
	SenderID     int64
	SenderName   string
	ChatID       int64
	MessageID    int
	Token        string
	LanguageCode string
}
