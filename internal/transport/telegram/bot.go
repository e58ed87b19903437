package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/transport"
)

// Bot long-polls for updates and fans them out to a worker pool.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *Handler
	cfg     config.BotConfig
	logger  *zap.Logger
}

func NewBot(api *tgbotapi.BotAPI, handler *Handler, cfg config.BotConfig, logger *zap.Logger) *Bot {
	return &Bot{api: api, handler: handler, cfg: cfg, logger: logger}
}

// Run blocks until the context is cancelled. Updates are processed
// concurrently; ordering is only guaranteed per worker, which is fine
// because every state change serializes on the ticket row.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("bot started", zap.String("username", b.api.Self.UserName))

	workers := b.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}

	queue := make(chan tgbotapi.Update)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for update := range queue {
				b.dispatch(ctx, update)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			close(queue)
			wg.Wait()
			b.logger.Info("bot stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				close(queue)
				wg.Wait()
				return nil
			}
			queue <- update
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panic", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handler.HandleCallback(ctx, normalizeCallback(update.CallbackQuery))
	case update.Message != nil:
		in, ok := normalizeMessage(update.Message)
		if !ok {
			return
		}
		b.handler.HandleMessage(ctx, in)
	}
}

func normalizeMessage(msg *tgbotapi.Message) (transport.InboundMessage, bool) {
	if msg.From == nil {
		return transport.InboundMessage{}, false
	}

	in := transport.InboundMessage{
		SenderID:     msg.From.ID,
		ChatID:       msg.Chat.ID,
		MessageID:    msg.MessageID,
		SenderName:   senderName(msg.From),
		LanguageCode: msg.From.LanguageCode,
		Kind:         domain.KindText,
		Text:         msg.Text,
		Caption:      msg.Caption,
	}
	if msg.Date != 0 {
		in.SentAt = msg.Time().UTC()
	}

	if msg.IsCommand() {
		in.IsCommand = true
		in.Command = msg.Command()
		in.CommandArgs = msg.CommandArguments()
		return in, true
	}

	switch {
	case len(msg.Photo) > 0:
		in.Kind = domain.KindPhoto
		in.FileRef = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		in.Kind = domain.KindDocument
		in.FileRef = msg.Document.FileID
		in.FileName = msg.Document.FileName
		in.MIMEType = msg.Document.MimeType
	case msg.Video != nil:
		in.Kind = domain.KindVideo
		in.FileRef = msg.Video.FileID
		in.MIMEType = msg.Video.MimeType
	case msg.Text == "":
		// Stickers, voice notes and the rest are not ticket traffic.
		return transport.InboundMessage{}, false
	}

	return in, true
}

func normalizeCallback(cq *tgbotapi.CallbackQuery) transport.InboundCallback {
	cb := transport.InboundCallback{
		CallbackID:   cq.ID,
		SenderID:     cq.From.ID,
		SenderName:   senderName(cq.From),
		Token:        cq.Data,
		LanguageCode: cq.From.LanguageCode,
	}
	if cq.Message != nil {
		cb.ChatID = cq.Message.Chat.ID
		cb.MessageID = cq.Message.MessageID
	}
	return cb
}

func senderName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.UserName
	}
	return name
}
