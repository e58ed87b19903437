package telegram

import (
	"context"
	"encoding/json"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/transport"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// Sender adapts the Bot API client to the transport.Sender interface.
type Sender struct {
	api *tgbotapi.BotAPI
}

func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

func (s *Sender) SendText(_ context.Context, chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, errorutil.NewDeliveryError("chat", err)
	}
	return sent.MessageID, nil
}

func (s *Sender) SendTextWithKeyboard(_ context.Context, chatID int64, text string, kb transport.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = toMarkup(kb)
	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, errorutil.NewDeliveryError("chat", err)
	}
	return sent.MessageID, nil
}

func (s *Sender) SendMedia(_ context.Context, chatID int64, media transport.Media) (int, error) {
	var chattable tgbotapi.Chattable
	switch media.Kind {
	case domain.KindPhoto:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(media.FileRef))
		photo.Caption = media.Caption
		chattable = photo
	case domain.KindVideo:
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(media.FileRef))
		video.Caption = media.Caption
		chattable = video
	default:
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(media.FileRef))
		doc.Caption = media.Caption
		chattable = doc
	}

	sent, err := s.api.Send(chattable)
	if err != nil {
		return 0, errorutil.NewDeliveryError("chat", err)
	}
	return sent.MessageID, nil
}

func (s *Sender) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := s.api.Send(edit); err != nil {
		return errorutil.NewDeliveryError("chat", err)
	}
	return nil
}

func (s *Sender) EditReplyMarkup(_ context.Context, chatID int64, messageID int, kb transport.Keyboard) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, toMarkup(kb))
	if _, err := s.api.Send(edit); err != nil {
		return errorutil.NewDeliveryError("chat", err)
	}
	return nil
}

func (s *Sender) AnswerCallback(_ context.Context, callbackID, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := s.api.Request(callback); err != nil {
		return errorutil.NewDeliveryError("callback", err)
	}
	return nil
}

func (s *Sender) CreateInviteLink(_ context.Context, chatID int64, expiresAt time.Time) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		ExpireDate: int(expiresAt.Unix()),
	}
	resp, err := s.api.Request(cfg)
	if err != nil {
		return "", errorutil.NewDeliveryError("invite", err)
	}

	var link struct {
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", errorutil.NewInternalError(err)
	}
	return link.InviteLink, nil
}

func toMarkup(kb transport.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
