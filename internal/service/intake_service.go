package service

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/session"
	"github.com/spec-kit/support-bot/internal/transport"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// Intake outcomes reported back to the transport layer.
const (
	OutcomeOpened    = "opened"
	OutcomeQueued    = "queued"
	OutcomeForwarded = "forwarded"
	OutcomeHeld      = "caption_pending"
)

// IntakeResult describes what happened to an accepted customer message.
type IntakeResult struct {
	Outcome  string
	Ticket   *domain.Ticket
	Message  *domain.CustomerMessage
	Position int
}

// IntakeService screens inbound customer messages and routes them into
// tickets. New messages either open a ticket or queue onto the
// customer's active one, up to the queue threshold.
type IntakeService struct {
	store      repository.Store
	sessions   session.Store
	dispatcher *events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.IntakeConfig
	bot        config.BotConfig
	badWords   *regexp.Regexp
	logger     *zap.Logger
}

func NewIntakeService(
	store repository.Store,
	sessions session.Store,
	dispatcher *events.Dispatcher,
	metrics *observability.Metrics,
	cfg config.IntakeConfig,
	bot config.BotConfig,
	logger *zap.Logger,
) (*IntakeService, error) {
	var badWords *regexp.Regexp
	if cfg.BadWordsEnabled && cfg.BadWordsPattern != "" {
		// Profanity matching is case-insensitive no matter how the
		// operator wrote the pattern.
		pattern := cfg.BadWordsPattern
		if !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errorutil.NewInternalError(err)
		}
		badWords = compiled
	}

	return &IntakeService{
		store:      store,
		sessions:   sessions,
		dispatcher: dispatcher,
		metrics:    metrics,
		cfg:        cfg,
		bot:        bot,
		badWords:   badWords,
		logger:     logger,
	}, nil
}

// RegisterCustomer upserts the customer profile from inbound metadata.
func (s *IntakeService) RegisterCustomer(ctx context.Context, telegramID int64, fullName, languageCode string) (*domain.Customer, error) {
	customer := &domain.Customer{
		TelegramID:   telegramID,
		FullName:     fullName,
		LanguageCode: languageCode,
	}
	if err := s.store.Customers().Upsert(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// HandleCustomerMessage runs the full intake pipeline for one inbound
// message: screening, caption handling, then ticket routing.
func (s *IntakeService) HandleCustomerMessage(ctx context.Context, in transport.InboundMessage) (*IntakeResult, error) {
	s.metrics.InboundMessages.Add(1)

	// Staff identities never open tickets.
	if s.bot.IsAdmin(in.SenderID) {
		s.metrics.RejectedMessages.Add(1)
		return nil, errorutil.NewAuthorization(errorutil.CodeRoleViolation, "staff accounts cannot open support tickets")
	}
	isAgent, err := s.store.Agents().Exists(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}
	if isAgent {
		s.metrics.RejectedMessages.Add(1)
		return nil, errorutil.NewAuthorization(errorutil.CodeRoleViolation, "staff accounts cannot open support tickets")
	}

	customer, err := s.RegisterCustomer(ctx, in.SenderID, in.SenderName, in.LanguageCode)
	if err != nil {
		return nil, err
	}

	if customer.Banned {
		s.metrics.RejectedMessages.Add(1)
		return nil, errorutil.NewAuthorization(errorutil.CodeBanned, "you are banned from support")
	}

	// Only plain text goes through the profanity screen, media and
	// captions pass untouched.
	if in.Kind == domain.KindText {
		if err := s.screenProfanity(ctx, customer, in.Text); err != nil {
			s.metrics.RejectedMessages.Add(1)
			return nil, err
		}
	}

	if in.Kind == domain.KindVideo {
		s.metrics.RejectedMessages.Add(1)
		return nil, errorutil.NewValidationError("video attachments are not supported", nil)
	}
	if in.Kind != domain.KindText {
		if err := s.ValidateAttachment(in.FileName, in.MIMEType); err != nil {
			s.metrics.RejectedMessages.Add(1)
			return nil, err
		}
	}

	msg := &domain.CustomerMessage{
		CustomerID:    customer.TelegramID,
		Kind:          in.Kind,
		Body:          in.Text,
		MediaRef:      in.FileRef,
		ChatMessageID: int64(in.MessageID),
		SentAt:        messageTime(in.SentAt),
	}
	if in.Kind != domain.KindText {
		msg.Body = in.Caption
	}

	// Media without a caption is held back until the customer supplies
	// one. The stored row stays unattached until then.
	if in.Kind != domain.KindText && strings.TrimSpace(in.Caption) == "" {
		// A newer captionless attachment supersedes any held one.
		if prev, err := s.sessions.Get(ctx, customer.TelegramID); err == nil && prev.Stage == session.StageCaptionPending {
			if derr := s.store.Messages().DeleteCustomerMessage(ctx, prev.MessageID); derr != nil {
				s.logger.Warn("held message cleanup failed", zap.Int64("message", prev.MessageID), zap.Error(derr))
			}
		}
		msg.Body = s.cfg.CaptionPlaceholder
		if err := s.store.Messages().CreateCustomerMessage(ctx, msg); err != nil {
			return nil, err
		}
		st := &session.State{Stage: session.StageCaptionPending, MessageID: msg.ID}
		if err := s.sessions.Put(ctx, customer.TelegramID, st); err != nil {
			return nil, err
		}
		return &IntakeResult{Outcome: OutcomeHeld, Message: msg}, nil
	}

	return s.route(ctx, customer, msg)
}

// AttachCaption completes a pending media message with its caption and
// routes it. Returns session.ErrNotFound when no caption is pending.
func (s *IntakeService) AttachCaption(ctx context.Context, senderID int64, caption string) (*IntakeResult, error) {
	st, err := s.sessions.Get(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if st.Stage != session.StageCaptionPending {
		return nil, session.ErrNotFound
	}

	customer, err := s.store.Customers().GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.Messages().GetCustomerMessage(ctx, st.MessageID)
	if err != nil {
		return nil, err
	}
	msg.Body = caption

	result, err := s.route(ctx, customer, msg)
	if err != nil {
		// A rate-limited caption completion discards the held media,
		// mirroring the no-record guarantee of regular routing.
		if errorutil.HasCode(err, errorutil.CodeRateLimited) {
			if derr := s.store.Messages().DeleteCustomerMessage(ctx, msg.ID); derr != nil {
				s.logger.Warn("held message cleanup failed", zap.Int64("message", msg.ID), zap.Error(derr))
			}
			if derr := s.sessions.Delete(ctx, senderID); derr != nil {
				s.logger.Warn("session cleanup failed", zap.Int64("sender", senderID), zap.Error(derr))
			}
		}
		return nil, err
	}
	if err := s.sessions.Delete(ctx, senderID); err != nil {
		s.logger.Warn("session cleanup failed", zap.Int64("sender", senderID), zap.Error(err))
	}
	return result, nil
}

// CancelCaption discards a pending media message.
func (s *IntakeService) CancelCaption(ctx context.Context, senderID int64) error {
	st, err := s.sessions.Get(ctx, senderID)
	if err != nil {
		return err
	}
	if st.Stage != session.StageCaptionPending {
		return session.ErrNotFound
	}

	if err := s.store.Messages().DeleteCustomerMessage(ctx, st.MessageID); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, senderID)
}

// CaptionPending reports whether the sender has a media message waiting
// for its caption.
func (s *IntakeService) CaptionPending(ctx context.Context, senderID int64) bool {
	st, err := s.sessions.Get(ctx, senderID)
	return err == nil && st.Stage == session.StageCaptionPending
}

// AgentReply stores an agent message on the agent's active ticket and
// returns the ticket for delivery to the customer.
func (s *IntakeService) AgentReply(ctx context.Context, agentID int64, in transport.InboundMessage) (*domain.Ticket, *domain.AgentMessage, error) {
	isAgent, err := s.store.Agents().Exists(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	if !isAgent {
		return nil, nil, errorutil.NewAuthorization(errorutil.CodeNotAnAgent, "only registered agents can reply")
	}

	ticket, err := s.store.Tickets().ActiveByAgent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	if ticket == nil {
		return nil, nil, errorutil.NewNotFound("active ticket", map[string]any{"agent_id": agentID})
	}

	body := in.Text
	if in.Kind != domain.KindText {
		body = in.Caption
	}
	msg := &domain.AgentMessage{
		TicketID:   ticket.ID,
		AgentID:    agentID,
		CustomerID: ticket.CustomerID,
		Kind:       in.Kind,
		Body:       body,
		MediaRef:   in.FileRef,
		SentAt:     messageTime(in.SentAt),
	}
	if err := s.store.Messages().CreateAgentMessage(ctx, msg); err != nil {
		return nil, nil, err
	}
	return ticket, msg, nil
}

// ValidateAttachment checks a media message against the configured
// extension and MIME allowlists.
func (s *IntakeService) ValidateAttachment(fileName, mimeType string) error {
	if fileName != "" {
		ext := strings.ToLower(filepath.Ext(fileName))
		if !contains(s.cfg.AllowedExtensions, ext) {
			return errorutil.NewValidationError("file type not allowed", map[string]any{"extension": ext})
		}
	}
	if mimeType != "" {
		mimeType = strings.ToLower(mimeType)
		allowed := false
		for _, prefix := range s.cfg.AllowedMIMEPrefix {
			if strings.HasPrefix(mimeType, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return errorutil.NewValidationError("file type not allowed", map[string]any{"mime": mimeType})
		}
	}
	return nil
}

func (s *IntakeService) screenProfanity(ctx context.Context, customer *domain.Customer, text string) error {
	if s.badWords == nil || text == "" || !s.badWords.MatchString(text) {
		return nil
	}

	customer.SpamCount++
	if s.cfg.SpamThreshold > 0 && customer.SpamCount >= s.cfg.SpamThreshold {
		customer.Banned = true
	}
	if err := s.store.Customers().Update(ctx, customer); err != nil {
		return err
	}

	if customer.Banned {
		return errorutil.NewAuthorization(errorutil.CodeBanned, "you have been banned for repeated abuse")
	}
	return errorutil.NewValidationError("message contains prohibited language", map[string]any{
		"warnings": customer.SpamCount,
	})
}

func (s *IntakeService) route(ctx context.Context, customer *domain.Customer, msg *domain.CustomerMessage) (*IntakeResult, error) {
	var result IntakeResult
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		active, err := st.Tickets().ActiveByCustomer(ctx, customer.TelegramID)
		if err != nil {
			return err
		}

		if active == nil {
			ticket := &domain.Ticket{
				CustomerID: customer.TelegramID,
				State:      domain.StateUnclaimed,
			}
			if err := st.Tickets().Create(ctx, ticket); err != nil {
				return err
			}

			msg.TicketID = &ticket.ID
			msg.Forwarded = true
			if err := s.saveMessage(ctx, st, msg); err != nil {
				return err
			}

			customer.OpenTicket = true
			if err := st.Customers().Update(ctx, customer); err != nil {
				return err
			}

			result = IntakeResult{Outcome: OutcomeOpened, Ticket: ticket, Message: msg, Position: 1}
			return nil
		}

		// Claimed tickets bypass the queue, the agent gets the message
		// directly.
		if active.State == domain.StateClaimed && active.AgentID != nil {
			msg.TicketID = &active.ID
			msg.Forwarded = true
			if err := s.saveMessage(ctx, st, msg); err != nil {
				return err
			}
			result = IntakeResult{Outcome: OutcomeForwarded, Ticket: active, Message: msg}
			return nil
		}

		// The first message was already posted to the support queue,
		// so an unclaimed ticket holds QueueThreshold-1 more.
		pending, err := st.Messages().CountQueuedByTicket(ctx, active.ID)
		if err != nil {
			return err
		}
		if pending >= s.cfg.QueueThreshold-1 {
			return errorutil.NewRateLimited("message limit reached, please wait for an agent")
		}

		msg.TicketID = &active.ID
		msg.Forwarded = false
		if err := s.saveMessage(ctx, st, msg); err != nil {
			return err
		}

		result = IntakeResult{Outcome: OutcomeQueued, Ticket: active, Message: msg, Position: pending + 2}
		return nil
	})
	if err != nil {
		if errorutil.HasCode(err, errorutil.CodeRateLimited) {
			s.metrics.RejectedMessages.Add(1)
		}
		return nil, err
	}

	switch result.Outcome {
	case OutcomeOpened:
		s.metrics.TicketsOpened.Add(1)
		ev := events.New(events.TicketOpened, events.Actor{TelegramID: customer.TelegramID, Name: customer.FullName})
		ev.Ticket = result.Ticket
		ev.Message = result.Message
		s.dispatcher.Publish(ev)
	case OutcomeQueued:
		s.metrics.QueuedMessages.Add(1)
		ev := events.New(events.MessageQueued, events.Actor{TelegramID: customer.TelegramID, Name: customer.FullName})
		ev.Ticket = result.Ticket
		ev.Message = result.Message
		s.dispatcher.Publish(ev)
	}

	return &result, nil
}

func (s *IntakeService) saveMessage(ctx context.Context, st repository.Store, msg *domain.CustomerMessage) error {
	if msg.ID != 0 {
		return st.Messages().UpdateCustomerMessage(ctx, msg)
	}
	return st.Messages().CreateCustomerMessage(ctx, msg)
}

// messageTime keeps the transport timestamp when one arrived with the
// message, otherwise the receive time.
func messageTime(sentAt time.Time) time.Time {
	if sentAt.IsZero() {
		return time.Now().UTC()
	}
	return sentAt
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

// IsAgent reports whether the sender has an agent profile.
func (s *IntakeService) IsAgent(ctx context.Context, telegramID int64) (bool, error) {
	return s.store.Agents().Exists(ctx, telegramID)
}
