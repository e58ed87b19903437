package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/transport"
)

// NotificationService turns lifecycle events into chat messages. Each
// recipient is handled independently, so one failed delivery never
// blocks the rest.
type NotificationService struct {
	sender   transport.Sender
	bot      config.BotConfig
	registry config.RegistryConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewNotificationService(
	sender transport.Sender,
	bot config.BotConfig,
	registry config.RegistryConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		sender:   sender,
		bot:      bot,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register wires the notifier into the dispatcher.
func (s *NotificationService) Register(d *events.Dispatcher) {
	d.Subscribe(events.TicketOpened, s.onTicketOpened)
	d.Subscribe(events.ResolveRequested, s.onDecisionRequested)
	d.Subscribe(events.CloseRequested, s.onDecisionRequested)
	d.Subscribe(events.ResolutionDecided, s.onDecided)
	d.Subscribe(events.ClosureDecided, s.onDecided)
	d.Subscribe(events.TicketRaised, s.onTicketRaised)
	d.Subscribe(events.TicketHandled, s.onTicketHandled)
	d.Subscribe(events.TicketFinalized, s.onTicketFinalized)
	d.Subscribe(events.AgentApplied, s.onAgentApplied)
	d.Subscribe(events.AgentApproved, s.onAgentApproved)
}

func (s *NotificationService) onTicketOpened(ev events.Event) {
	ctx := context.Background()
	body := ""
	if ev.Message != nil {
		body = ev.Message.Body
	}
	text := fmt.Sprintf("Ticket #%d from %s:\n%s", ev.Ticket.ID, ev.Actor.Name, body)
	kb := claimKeyboard(ev.Ticket.ID)

	if _, err := s.sender.SendTextWithKeyboard(ctx, s.bot.SupportChatID, text, kb); err != nil {
		s.deliveryFailed("support chat", err)
	}
}

func (s *NotificationService) onDecisionRequested(ev events.Event) {
	ctx := context.Background()
	verb := "resolve"
	approve := transport.ActionApproveResolved
	decline := transport.ActionDeclineResolved
	if ev.Name == events.CloseRequested {
		verb = "close"
		approve = transport.ActionApproveClosed
		decline = transport.ActionDeclineClosed
	}

	text := fmt.Sprintf("%s requests to %s ticket #%d:\n%s", ev.Actor.Name, verb, ev.Ticket.ID, ev.Ticket.Summary())
	kb := transport.Keyboard{{
		{Label: "Approve", Token: transport.BuildToken(approve, ev.Ticket.ID)},
		{Label: "Decline", Token: transport.BuildToken(decline, ev.Ticket.ID)},
	}}

	for _, adminID := range s.bot.AdminIDs {
		if _, err := s.sender.SendTextWithKeyboard(ctx, adminID, text, kb); err != nil {
			s.deliveryFailed(fmt.Sprintf("admin %d", adminID), err)
		}
	}
}

func (s *NotificationService) onDecided(ev events.Event) {
	ctx := context.Background()
	verb := "resolution"
	if ev.Name == events.ClosureDecided {
		verb = "closure"
	}

	if ev.PreviousAgent != nil {
		agentText := fmt.Sprintf("Your %s of ticket #%d was declined, the ticket is back with you.", verb, ev.Ticket.ID)
		if ev.Approved {
			agentText = fmt.Sprintf("Your %s of ticket #%d was approved.", verb, ev.Ticket.ID)
		}
		if _, err := s.sender.SendText(ctx, *ev.PreviousAgent, agentText); err != nil {
			s.deliveryFailed(fmt.Sprintf("agent %d", *ev.PreviousAgent), err)
		}
	}

	if !ev.Approved {
		return
	}

	customerText := fmt.Sprintf("Your ticket was resolved:\n%s", ev.Ticket.Summary())
	if ev.Name == events.ClosureDecided {
		customerText = fmt.Sprintf("Your ticket was closed:\n%s", ev.Ticket.Summary())
	}
	if _, err := s.sender.SendText(ctx, ev.Ticket.CustomerID, customerText); err != nil {
		s.deliveryFailed(fmt.Sprintf("customer %d", ev.Ticket.CustomerID), err)
	}

	adminText := fmt.Sprintf("Ticket #%d %s approved. Next step?", ev.Ticket.ID, verb)
	row := []transport.Button{
		{Label: "Close finally", Token: transport.BuildToken(transport.ActionCloseFinally, ev.Ticket.ID)},
	}
	if ev.Name == events.ClosureDecided {
		row = []transport.Button{
			{Label: "Raise again", Token: transport.BuildToken(transport.ActionRaiseTicket, ev.Ticket.ID)},
			{Label: "Handle myself", Token: transport.BuildToken(transport.ActionHandleTicket, ev.Ticket.ID)},
			{Label: "Close finally", Token: transport.BuildToken(transport.ActionCloseFinally, ev.Ticket.ID)},
		}
	}
	kb := transport.Keyboard{row}
	for _, adminID := range s.bot.AdminIDs {
		if _, err := s.sender.SendTextWithKeyboard(ctx, adminID, adminText, kb); err != nil {
			s.deliveryFailed(fmt.Sprintf("admin %d", adminID), err)
		}
	}
}

func (s *NotificationService) onTicketRaised(ev events.Event) {
	ctx := context.Background()
	text := fmt.Sprintf("Ticket #%d returned to the queue.", ev.Ticket.ID)
	kb := claimKeyboard(ev.Ticket.ID)

	if _, err := s.sender.SendTextWithKeyboard(ctx, s.bot.SupportChatID, text, kb); err != nil {
		s.deliveryFailed("support chat", err)
	}
	if _, err := s.sender.SendText(ctx, ev.Ticket.CustomerID, "Your ticket was reopened and returned to the queue."); err != nil {
		s.deliveryFailed(fmt.Sprintf("customer %d", ev.Ticket.CustomerID), err)
	}
}

func (s *NotificationService) onTicketHandled(ev events.Event) {
	ctx := context.Background()
	if _, err := s.sender.SendText(ctx, ev.Ticket.CustomerID, "Your ticket was reopened and is being handled."); err != nil {
		s.deliveryFailed(fmt.Sprintf("customer %d", ev.Ticket.CustomerID), err)
	}
	if ev.Ticket.AgentID != nil && *ev.Ticket.AgentID != ev.Actor.TelegramID {
		text := fmt.Sprintf("Ticket #%d was reopened and assigned to you.", ev.Ticket.ID)
		if _, err := s.sender.SendText(ctx, *ev.Ticket.AgentID, text); err != nil {
			s.deliveryFailed(fmt.Sprintf("agent %d", *ev.Ticket.AgentID), err)
		}
	}
}

func (s *NotificationService) onTicketFinalized(ev events.Event) {
	ctx := context.Background()
	if _, err := s.sender.SendText(ctx, ev.Ticket.CustomerID, "Your ticket is now closed. Thank you for contacting support."); err != nil {
		s.deliveryFailed(fmt.Sprintf("customer %d", ev.Ticket.CustomerID), err)
	}
}

func (s *NotificationService) onAgentApplied(ev events.Event) {
	ctx := context.Background()
	text := fmt.Sprintf("New agent application from %s (id %d). Approve with /approve_agent %d or decline with /decline_agent %d.",
		ev.Applicant.FullName, ev.Applicant.TelegramID, ev.Applicant.TelegramID, ev.Applicant.TelegramID)
	for _, adminID := range s.bot.AdminIDs {
		if _, err := s.sender.SendText(ctx, adminID, text); err != nil {
			s.deliveryFailed(fmt.Sprintf("admin %d", adminID), err)
		}
	}
}

func (s *NotificationService) onAgentApproved(ev events.Event) {
	ctx := context.Background()
	link, err := s.sender.CreateInviteLink(ctx, s.bot.SupportChatID, time.Now().Add(s.registry.InviteTTL()))
	text := "Your agent application was approved. Welcome aboard!"
	if err != nil {
		s.deliveryFailed("invite link", err)
	} else {
		text = fmt.Sprintf("Your agent application was approved. Join the support chat: %s", link)
	}
	if _, err := s.sender.SendText(ctx, ev.Applicant.TelegramID, text); err != nil {
		s.deliveryFailed(fmt.Sprintf("agent %d", ev.Applicant.TelegramID), err)
	}
}

func (s *NotificationService) deliveryFailed(recipient string, err error) {
	s.metrics.DeliveryFailures.Add(1)
	s.logger.Warn("notification delivery failed", zap.String("recipient", recipient), zap.Error(err))
}

func claimKeyboard(ticketID int64) transport.Keyboard {
	return transport.Keyboard{{
		{Label: "Claim", Token: transport.BuildToken(transport.ActionClaim, ticketID)},
		{Label: "Preview", Token: transport.BuildToken(transport.ActionPreview, ticketID)},
	}}
}
