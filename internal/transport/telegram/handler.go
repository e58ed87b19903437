package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/service"
	"github.com/spec-kit/support-bot/internal/session"
	"github.com/spec-kit/support-bot/internal/transport"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

const faqText = `Frequently asked questions:

1. Send us a message and we will open a ticket for you.
2. You can send up to 3 messages before an agent picks the ticket up.
3. Attachments: pdf, docx, jpg, jpeg, png.
4. An agent will reply here as soon as your ticket is claimed.`

// Handler routes normalized inbound traffic to the services.
type Handler struct {
	intake    *service.IntakeService
	lifecycle *service.LifecycleService
	registry  *service.RegistryService
	sessions  session.Store
	sender    transport.Sender
	metrics   *observability.Metrics
	bot       config.BotConfig
	logger    *zap.Logger
}

func NewHandler(
	intake *service.IntakeService,
	lifecycle *service.LifecycleService,
	registry *service.RegistryService,
	sessions session.Store,
	sender transport.Sender,
	metrics *observability.Metrics,
	bot config.BotConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		intake:    intake,
		lifecycle: lifecycle,
		registry:  registry,
		sessions:  sessions,
		sender:    sender,
		metrics:   metrics,
		bot:       bot,
		logger:    logger,
	}
}

// HandleMessage processes one inbound chat message.
func (h *Handler) HandleMessage(ctx context.Context, in transport.InboundMessage) {
	if in.IsCommand {
		h.handleCommand(ctx, in)
		return
	}

	// Group chatter in the support chat is not ticket traffic.
	if in.ChatID == h.bot.SupportChatID {
		return
	}

	if h.registry.ApplicationPending(ctx, in.SenderID) {
		h.continueApplication(ctx, in)
		return
	}

	isAgent, err := h.intake.IsAgent(ctx, in.SenderID)
	if err != nil {
		h.logger.Error("agent lookup failed", zap.Int64("sender", in.SenderID), zap.Error(err))
		h.reply(ctx, in.ChatID, "Something went wrong, please try again.")
		return
	}
	if isAgent {
		h.handleAgentMessage(ctx, in)
		return
	}

	if h.bot.IsAdmin(in.SenderID) {
		h.reply(ctx, in.ChatID, "Admin accounts cannot open support tickets.")
		return
	}

	h.handleCustomerMessage(ctx, in)
}

func (h *Handler) handleCustomerMessage(ctx context.Context, in transport.InboundMessage) {
	if in.Kind == domain.KindText && h.intake.CaptionPending(ctx, in.SenderID) {
		result, err := h.intake.AttachCaption(ctx, in.SenderID, in.Text)
		if err != nil {
			h.reply(ctx, in.ChatID, userMessage(err))
			return
		}
		h.replyIntakeResult(ctx, in.ChatID, result)
		return
	}

	result, err := h.intake.HandleCustomerMessage(ctx, in)
	if err != nil {
		h.reply(ctx, in.ChatID, userMessage(err))
		return
	}
	h.replyIntakeResult(ctx, in.ChatID, result)
}

func (h *Handler) replyIntakeResult(ctx context.Context, chatID int64, result *service.IntakeResult) {
	switch result.Outcome {
	case service.OutcomeOpened:
		h.reply(ctx, chatID, fmt.Sprintf("Ticket #%d opened. An agent will get back to you shortly.", result.Ticket.ID))
	case service.OutcomeQueued:
		h.reply(ctx, chatID, fmt.Sprintf("Message added to your ticket (%d/3).", result.Position))
	case service.OutcomeForwarded:
		h.forwardToAgent(ctx, result)
	default:
		h.reply(ctx, chatID, "Please add a caption describing the attachment, or /cancel to discard it.")
	}
}

// forwardToAgent relays a customer message on a claimed ticket straight
// to the assigned agent.
func (h *Handler) forwardToAgent(ctx context.Context, result *service.IntakeResult) {
	agentID := *result.Ticket.AgentID
	msg := result.Message

	var err error
	if msg.Kind == domain.KindText {
		_, err = h.sender.SendText(ctx, agentID, msg.Body)
	} else {
		_, err = h.sender.SendMedia(ctx, agentID, transport.Media{
			Kind:    msg.Kind,
			FileRef: msg.MediaRef,
			Caption: msg.Body,
		})
	}
	if err != nil {
		h.metrics.DeliveryFailures.Add(1)
		h.logger.Warn("forward to agent failed", zap.Int64("agent", agentID), zap.Error(err))
	}
}

func (h *Handler) handleAgentMessage(ctx context.Context, in transport.InboundMessage) {
	if in.Kind == domain.KindText {
		if done := h.trySummaryInput(ctx, in); done {
			return
		}
	}

	ticket, msg, err := h.intake.AgentReply(ctx, in.SenderID, in)
	if err != nil {
		if errorutil.HasCode(err, errorutil.CodeNotFound) {
			h.reply(ctx, in.ChatID, "You have no active ticket. Claim one from the support chat first.")
			return
		}
		h.reply(ctx, in.ChatID, userMessage(err))
		return
	}

	h.deliverToCustomer(ctx, ticket.CustomerID, in, msg)
}

func (h *Handler) deliverToCustomer(ctx context.Context, customerID int64, in transport.InboundMessage, msg *domain.AgentMessage) {
	var err error
	if in.Kind == domain.KindText {
		_, err = h.sender.SendText(ctx, customerID, in.Text)
	} else {
		_, err = h.sender.SendMedia(ctx, customerID, transport.Media{
			Kind:    in.Kind,
			FileRef: in.FileRef,
			Caption: msg.Body,
		})
	}
	if err != nil {
		h.metrics.DeliveryFailures.Add(1)
		h.logger.Warn("agent reply delivery failed", zap.Int64("customer", customerID), zap.Error(err))
		h.reply(ctx, in.SenderID, "Could not deliver your reply to the customer.")
	}
}

// trySummaryInput consumes agent text when a resolve or close summary
// prompt is outstanding. Reports whether the text was consumed.
func (h *Handler) trySummaryInput(ctx context.Context, in transport.InboundMessage) bool {
	st, err := h.sessions.Get(ctx, in.SenderID)
	if err != nil || st.Stage != session.StageSummaryPending {
		return false
	}

	var ticket *domain.Ticket
	if st.Decision == domain.DecisionResolve {
		ticket, err = h.lifecycle.RequestResolve(ctx, in.SenderID, in.SenderName, in.Text)
	} else {
		ticket, err = h.lifecycle.RequestClose(ctx, in.SenderID, in.SenderName, in.Text)
	}
	if err != nil {
		h.reply(ctx, in.ChatID, userMessage(err))
		return true
	}

	if err := h.sessions.Delete(ctx, in.SenderID); err != nil {
		h.logger.Warn("session cleanup failed", zap.Int64("sender", in.SenderID), zap.Error(err))
	}
	h.reply(ctx, in.ChatID, fmt.Sprintf("Ticket #%d sent for admin approval.", ticket.ID))
	return true
}

func (h *Handler) continueApplication(ctx context.Context, in transport.InboundMessage) {
	step, _, err := h.registry.ContinueApplication(ctx, in.SenderID, in.Text)
	if err != nil {
		h.reply(ctx, in.ChatID, userMessage(err))
		return
	}

	switch step {
	case service.StepAskLanguage:
		h.reply(ctx, in.ChatID, "Which language will you support? (for example: en)")
	case service.StepSubmitted:
		h.reply(ctx, in.ChatID, "Application submitted. An admin will review it soon.")
	default:
		h.reply(ctx, in.ChatID, "Please tell us your full name.")
	}
}

func (h *Handler) handleCommand(ctx context.Context, in transport.InboundMessage) {
	switch in.Command {
	case "start":
		if _, err := h.intake.RegisterCustomer(ctx, in.SenderID, in.SenderName, in.LanguageCode); err != nil {
			h.logger.Error("register customer failed", zap.Int64("sender", in.SenderID), zap.Error(err))
		}
		h.reply(ctx, in.ChatID, "Welcome to support. Describe your problem and we will open a ticket. Send /faq for common questions.")

	case "faq":
		h.reply(ctx, in.ChatID, faqText)

	case "become_agent":
		step, err := h.registry.BeginApplication(ctx, in.SenderID)
		if err != nil {
			h.reply(ctx, in.ChatID, userMessage(err))
			return
		}
		if step == service.StepAskName {
			h.reply(ctx, in.ChatID, "Please tell us your full name.")
		}

	case "cancel":
		h.handleCancel(ctx, in)

	case "resolve_ticket":
		h.handleSummaryCommand(ctx, in, domain.DecisionResolve)

	case "close_ticket":
		h.handleSummaryCommand(ctx, in, domain.DecisionClose)

	case "approve_agent":
		h.handleApplicationVerdict(ctx, in, true)

	case "decline_agent":
		h.handleApplicationVerdict(ctx, in, false)

	case "applications":
		h.handleListApplications(ctx, in)

	default:
		h.reply(ctx, in.ChatID, "Unknown command. Send /faq for help.")
	}
}

func (h *Handler) handleCancel(ctx context.Context, in transport.InboundMessage) {
	if h.intake.CaptionPending(ctx, in.SenderID) {
		if err := h.intake.CancelCaption(ctx, in.SenderID); err != nil {
			h.reply(ctx, in.ChatID, userMessage(err))
			return
		}
		h.reply(ctx, in.ChatID, "Attachment discarded.")
		return
	}

	if err := h.sessions.Delete(ctx, in.SenderID); err != nil {
		h.logger.Warn("session cleanup failed", zap.Int64("sender", in.SenderID), zap.Error(err))
	}
	h.reply(ctx, in.ChatID, "Cancelled.")
}

func (h *Handler) handleSummaryCommand(ctx context.Context, in transport.InboundMessage, kind domain.DecisionKind) {
	summary := strings.TrimSpace(in.CommandArgs)
	if summary == "" {
		st := &session.State{Stage: session.StageSummaryPending, Decision: kind}
		if err := h.sessions.Put(ctx, in.SenderID, st); err != nil {
			h.reply(ctx, in.ChatID, "Something went wrong, please try again.")
			return
		}
		h.reply(ctx, in.ChatID, "Please send a short summary for the admin.")
		return
	}

	var (
		ticket *domain.Ticket
		err    error
	)
	if kind == domain.DecisionResolve {
		ticket, err = h.lifecycle.RequestResolve(ctx, in.SenderID, in.SenderName, summary)
	} else {
		ticket, err = h.lifecycle.RequestClose(ctx, in.SenderID, in.SenderName, summary)
	}
	if err != nil {
		h.reply(ctx, in.ChatID, userMessage(err))
		return
	}
	h.reply(ctx, in.ChatID, fmt.Sprintf("Ticket #%d sent for admin approval.", ticket.ID))
}

func (h *Handler) handleApplicationVerdict(ctx context.Context, in transport.InboundMessage, approve bool) {
	applicantID, err := strconv.ParseInt(strings.TrimSpace(in.CommandArgs), 10, 64)
	if err != nil {
		h.reply(ctx, in.ChatID, "Usage: /approve_agent <telegram id>")
		return
	}

	if approve {
		if _, err := h.registry.ApproveApplicant(ctx, in.SenderID, applicantID); err != nil {
			h.reply(ctx, in.ChatID, userMessage(err))
			return
		}
		h.reply(ctx, in.ChatID, fmt.Sprintf("Applicant %d approved.", applicantID))
		return
	}

	if err := h.registry.DeclineApplicant(ctx, in.SenderID, applicantID); err != nil {
		h.reply(ctx, in.ChatID, userMessage(err))
		return
	}
	h.reply(ctx, in.ChatID, fmt.Sprintf("Applicant %d declined.", applicantID))
}

func (h *Handler) handleListApplications(ctx context.Context, in transport.InboundMessage) {
	if !h.bot.IsAdmin(in.SenderID) {
		h.reply(ctx, in.ChatID, "Only admins can list applications.")
		return
	}

	apps, err := h.registry.ListApplicants(ctx)
	if err != nil {
		h.reply(ctx, in.ChatID, userMessage(err))
		return
	}
	if len(apps) == 0 {
		h.reply(ctx, in.ChatID, "No pending applications.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Pending applications:\n")
	for _, app := range apps {
		fmt.Fprintf(&sb, "- %s (id %d), applied %s\n", app.FullName, app.TelegramID, app.AppliedAt.Format("2006-01-02"))
	}
	h.reply(ctx, in.ChatID, sb.String())
}

// HandleCallback processes one inline button press.
func (h *Handler) HandleCallback(ctx context.Context, cb transport.InboundCallback) {
	h.metrics.CallbacksHandled.Add(1)

	token, err := transport.ParseToken(cb.Token)
	if err != nil {
		h.answer(ctx, cb.CallbackID, "This button has expired.")
		return
	}

	switch token.Action {
	case transport.ActionShowFAQ:
		h.answer(ctx, cb.CallbackID, "")
		h.reply(ctx, cb.SenderID, faqText)

	case transport.ActionClaim:
		h.handleClaim(ctx, cb, token.TicketID)

	case transport.ActionPreview:
		h.handlePreview(ctx, cb, token.TicketID)

	case transport.ActionApproveResolved:
		h.handleDecision(ctx, cb, token.TicketID, domain.DecisionResolve, true)
	case transport.ActionDeclineResolved:
		h.handleDecision(ctx, cb, token.TicketID, domain.DecisionResolve, false)
	case transport.ActionApproveClosed:
		h.handleDecision(ctx, cb, token.TicketID, domain.DecisionClose, true)
	case transport.ActionDeclineClosed:
		h.handleDecision(ctx, cb, token.TicketID, domain.DecisionClose, false)

	case transport.ActionRaiseTicket:
		if _, err := h.lifecycle.Raise(ctx, token.TicketID, cb.SenderID, cb.SenderName); err != nil {
			h.answer(ctx, cb.CallbackID, userMessage(err))
			return
		}
		h.answer(ctx, cb.CallbackID, "Ticket returned to the queue.")

	case transport.ActionHandleTicket:
		ticket, err := h.lifecycle.Handle(ctx, token.TicketID, cb.SenderID, cb.SenderName)
		if err != nil {
			h.answer(ctx, cb.CallbackID, userMessage(err))
			return
		}
		h.answer(ctx, cb.CallbackID, "Ticket reopened under you.")
		if _, history, err := h.lifecycle.TicketHistory(ctx, ticket.ID); err == nil {
			h.forwardHistory(ctx, cb.SenderID, ticket, history)
		}

	case transport.ActionCloseFinally:
		if _, err := h.lifecycle.CloseFinally(ctx, token.TicketID, cb.SenderID, cb.SenderName); err != nil {
			h.answer(ctx, cb.CallbackID, userMessage(err))
			return
		}
		h.answer(ctx, cb.CallbackID, "Ticket closed for good.")
	}
}

func (h *Handler) handleClaim(ctx context.Context, cb transport.InboundCallback, ticketID int64) {
	result, err := h.lifecycle.Claim(ctx, ticketID, cb.SenderID, cb.SenderName)
	if err != nil {
		h.answer(ctx, cb.CallbackID, userMessage(err))
		return
	}
	h.answer(ctx, cb.CallbackID, fmt.Sprintf("Ticket #%d is yours.", ticketID))

	// Drop the claim buttons from the queue post.
	text := fmt.Sprintf("Ticket #%d claimed by %s.", ticketID, cb.SenderName)
	if err := h.sender.EditText(ctx, cb.ChatID, cb.MessageID, text); err != nil {
		h.logger.Warn("queue post edit failed", zap.Int64("ticket", ticketID), zap.Error(err))
	}

	h.forwardHistory(ctx, cb.SenderID, result.Ticket, result.History)

	if _, err := h.sender.SendText(ctx, result.Ticket.CustomerID, "An agent picked up your ticket and will reply here."); err != nil {
		h.metrics.DeliveryFailures.Add(1)
		h.logger.Warn("customer notify failed", zap.Int64("customer", result.Ticket.CustomerID), zap.Error(err))
	}
}

func (h *Handler) handlePreview(ctx context.Context, cb transport.InboundCallback, ticketID int64) {
	ticket, queued, err := h.lifecycle.QueuedMessages(ctx, ticketID)
	if err != nil {
		h.answer(ctx, cb.CallbackID, userMessage(err))
		return
	}
	h.answer(ctx, cb.CallbackID, "")
	if len(queued) == 0 {
		h.reply(ctx, cb.SenderID, fmt.Sprintf("No queued messages on ticket #%d.", ticketID))
		return
	}
	h.forwardHistory(ctx, cb.SenderID, ticket, queued)
}

func (h *Handler) handleDecision(ctx context.Context, cb transport.InboundCallback, ticketID int64, kind domain.DecisionKind, approve bool) {
	if _, err := h.lifecycle.Decide(ctx, ticketID, cb.SenderID, cb.SenderName, kind, approve); err != nil {
		h.answer(ctx, cb.CallbackID, userMessage(err))
		return
	}
	verdict := "declined"
	if approve {
		verdict = "approved"
	}
	h.answer(ctx, cb.CallbackID, fmt.Sprintf("Request %s.", verdict))
	if err := h.sender.EditReplyMarkup(ctx, cb.ChatID, cb.MessageID, transport.Keyboard{}); err != nil {
		h.logger.Warn("markup edit failed", zap.Int64("ticket", ticketID), zap.Error(err))
	}
}

func (h *Handler) forwardHistory(ctx context.Context, recipientID int64, ticket *domain.Ticket, history []service.TranscriptEntry) {
	if len(history) == 0 {
		return
	}
	h.reply(ctx, recipientID, fmt.Sprintf("History for ticket #%d:", ticket.ID))

	for _, entry := range history {
		body := entry.Body
		if entry.FromAgent {
			body = "Agent: " + body
		}
		var err error
		if entry.Kind == domain.KindText {
			_, err = h.sender.SendText(ctx, recipientID, body)
		} else {
			_, err = h.sender.SendMedia(ctx, recipientID, transport.Media{
				Kind:    entry.Kind,
				FileRef: entry.MediaRef,
				Caption: body,
			})
		}
		if err != nil {
			h.metrics.DeliveryFailures.Add(1)
			h.logger.Warn("history forward failed", zap.Int64("ticket", ticket.ID), zap.Error(err))
		}
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.sender.SendText(ctx, chatID, text); err != nil {
		h.metrics.DeliveryFailures.Add(1)
		h.logger.Warn("reply failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.sender.AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.Warn("callback answer failed", zap.Error(err))
	}
}

// userMessage maps service errors to text safe to show the sender.
func userMessage(err error) string {
	var domainErr *errorutil.DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	// Repository misses surface as bare row errors.
	if errorutil.HasCode(err, errorutil.CodeNotFound) {
		return "Ticket not found."
	}
	return "Something went wrong, please try again."
}
