package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository/memstore"
	"github.com/spec-kit/support-bot/internal/session"
	"github.com/spec-kit/support-bot/internal/transport"
)

const (
	testAdminID    = int64(900)
	testAgentID    = int64(500)
	testCustomerID = int64(100)
)

type testEnv struct {
	store      *memstore.Store
	sessions   *session.MemoryStore
	dispatcher *events.Dispatcher
	intake     *IntakeService
	lifecycle  *LifecycleService
	registry   *RegistryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	store := memstore.New()
	dispatcher := events.NewDispatcher(logger)
	metrics := observability.NewMetrics()
	sessions := session.NewMemoryStore(time.Minute)

	bot := config.BotConfig{
		SupportChatID: -1001000,
		AdminIDs:      []int64{testAdminID},
	}
	intakeCfg := config.IntakeConfig{
		BadWordsEnabled:    true,
		BadWordsPattern:    `\b(badword)\b`,
		AllowedExtensions:  []string{".pdf", ".docx", ".jpg", ".jpeg", ".png"},
		AllowedMIMEPrefix:  []string{"application/pdf", "image/jpeg", "image/png"},
		QueueThreshold:     3,
		SpamThreshold:      3,
		SessionTTLMinutes:  30,
		CaptionPlaceholder: "[media message]",
	}
	registryCfg := config.RegistryConfig{
		ApplicationMaxAgeDays: 30,
		InviteTTLMinutes:      60,
	}

	intake, err := NewIntakeService(store, sessions, dispatcher, metrics, intakeCfg, bot, logger)
	if err != nil {
		t.Fatalf("NewIntakeService: %v", err)
	}

	return &testEnv{
		store:      store,
		sessions:   sessions,
		dispatcher: dispatcher,
		intake:     intake,
		lifecycle:  NewLifecycleService(store, dispatcher, metrics, bot, logger),
		registry:   NewRegistryService(store, sessions, dispatcher, bot, registryCfg, logger),
	}
}

func (e *testEnv) seedAgent(t *testing.T, id int64, name string) {
	t.Helper()
	agent := &domain.Agent{TelegramID: id, FullName: name, LanguageCode: "en"}
	if err := e.store.Agents().Create(context.Background(), agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
}

func (e *testEnv) openTicket(t *testing.T, customerID int64, text string) *domain.Ticket {
	t.Helper()
	result, err := e.intake.HandleCustomerMessage(context.Background(), textMessage(customerID, text))
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	if result.Outcome != OutcomeOpened {
		t.Fatalf("expected opened, got %q", result.Outcome)
	}
	return result.Ticket
}

func textMessage(senderID int64, text string) transport.InboundMessage {
	return transport.InboundMessage{
		SenderID:     senderID,
		ChatID:       senderID,
		MessageID:    1,
		SenderName:   "Test Sender",
		LanguageCode: "en",
		Kind:         domain.KindText,
		Text:         text,
	}
}

func mediaMessage(senderID int64, kind domain.MessageKind, fileName, mime, caption string) transport.InboundMessage {
	return transport.InboundMessage{
		SenderID:     senderID,
		ChatID:       senderID,
		MessageID:    2,
		SenderName:   "Test Sender",
		LanguageCode: "en",
		Kind:         kind,
		FileRef:      "file-ref",
		FileName:     fileName,
		MIMEType:     mime,
		Caption:      caption,
	}
}
