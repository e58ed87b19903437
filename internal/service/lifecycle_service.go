package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// LifecycleService owns every ticket state transition. Each transition
// runs in a transaction with the ticket row locked, so concurrent
// button presses on the same ticket serialize and the loser gets a
// domain error instead of a double transition.
type LifecycleService struct {
	store      repository.Store
	dispatcher *events.Dispatcher
	metrics    *observability.Metrics
	bot        config.BotConfig
	logger     *zap.Logger
}

func NewLifecycleService(
	store repository.Store,
	dispatcher *events.Dispatcher,
	metrics *observability.Metrics,
	bot config.BotConfig,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		bot:        bot,
		logger:     logger,
	}
}

// TranscriptEntry is one line of a ticket conversation, customer and
// agent messages merged in time order.
type TranscriptEntry struct {
	At        time.Time
	FromAgent bool
	Kind      domain.MessageKind
	Body      string
	MediaRef  string
}

func buildTranscript(customerMsgs []domain.CustomerMessage, agentMsgs []domain.AgentMessage) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(customerMsgs)+len(agentMsgs))
	for _, m := range customerMsgs {
		entries = append(entries, TranscriptEntry{At: m.SentAt, Kind: m.Kind, Body: m.Body, MediaRef: m.MediaRef})
	}
	for _, m := range agentMsgs {
		entries = append(entries, TranscriptEntry{At: m.SentAt, FromAgent: true, Kind: m.Kind, Body: m.Body, MediaRef: m.MediaRef})
	}
	// Stable sort keeps customer lines ahead of agent lines when the
	// timestamps tie.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries
}

// ClaimResult carries everything the transport needs after a claim.
type ClaimResult struct {
	Ticket   *domain.Ticket
	Customer *domain.Customer
	History  []TranscriptEntry
}

// Claim assigns an unclaimed ticket to an agent. The agent must be
// registered and must not already hold an active ticket. Queued
// messages are returned as history and marked forwarded.
func (s *LifecycleService) Claim(ctx context.Context, ticketID, agentID int64, agentName string) (*ClaimResult, error) {
	isAgent, err := s.store.Agents().Exists(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !isAgent {
		return nil, errorutil.NewAuthorization(errorutil.CodeNotAnAgent, "only registered agents can claim tickets")
	}

	var result ClaimResult
	err = s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		ticket, err := st.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}

		active, err := st.Tickets().ActiveByAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if active != nil && active.ID != ticket.ID {
			return errorutil.NewInvalidState(errorutil.CodeAgentHasActiveTicket, "agent already has an active ticket")
		}

		if err := ticket.Claim(agentID); err != nil {
			return err
		}
		if err := st.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		customerMsgs, err := st.Messages().ListByCustomer(ctx, ticket.CustomerID)
		if err != nil {
			return err
		}
		agentMsgs, err := st.Messages().ListAgentMessagesByCustomer(ctx, ticket.CustomerID)
		if err != nil {
			return err
		}
		if err := st.Messages().MarkTicketForwarded(ctx, ticket.ID); err != nil {
			return err
		}

		customer, err := st.Customers().GetByID(ctx, ticket.CustomerID)
		if err != nil {
			return err
		}
		customer.OpenTicket = true
		customer.SpamCount = 0
		if err := st.Customers().Update(ctx, customer); err != nil {
			return err
		}

		result = ClaimResult{Ticket: ticket, Customer: customer, History: buildTranscript(customerMsgs, agentMsgs)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("claim")
	ev := events.New(events.TicketClaimed, events.Actor{TelegramID: agentID, Name: agentName})
	ev.Ticket = result.Ticket
	s.dispatcher.Publish(ev)

	return &result, nil
}

// RequestResolve moves the agent's active ticket to pending resolution
// with the given summary. Approval rests with an admin.
func (s *LifecycleService) RequestResolve(ctx context.Context, agentID int64, agentName, summary string) (*domain.Ticket, error) {
	return s.requestDecision(ctx, agentID, agentName, summary, domain.DecisionResolve)
}

// RequestClose moves the agent's active ticket to pending closure.
func (s *LifecycleService) RequestClose(ctx context.Context, agentID int64, agentName, summary string) (*domain.Ticket, error) {
	return s.requestDecision(ctx, agentID, agentName, summary, domain.DecisionClose)
}

func (s *LifecycleService) requestDecision(ctx context.Context, agentID int64, agentName, summary string, kind domain.DecisionKind) (*domain.Ticket, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, errorutil.NewValidationError("summary must not be empty", nil)
	}

	isAgent, err := s.store.Agents().Exists(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !isAgent {
		return nil, errorutil.NewAuthorization(errorutil.CodeNotAnAgent, "only registered agents can request this")
	}

	var ticket *domain.Ticket
	err = s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		active, err := st.Tickets().ActiveByAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if active == nil {
			return errorutil.NewNotFound("active ticket", map[string]any{"agent_id": agentID})
		}

		ticket, err = st.Tickets().GetByIDForUpdate(ctx, active.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if kind == domain.DecisionResolve {
			err = ticket.Resolve(summary, now)
		} else {
			err = ticket.Close(summary, now)
		}
		if err != nil {
			return err
		}
		return st.Tickets().Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	name := events.ResolveRequested
	transition := "resolve_requested"
	if kind == domain.DecisionClose {
		name = events.CloseRequested
		transition = "close_requested"
	}
	s.metrics.RecordTransition(transition)
	ev := events.New(name, events.Actor{TelegramID: agentID, Name: agentName})
	ev.Ticket = ticket
	s.dispatcher.Publish(ev)

	return ticket, nil
}

// Decide records an admin verdict on a pending resolution or closure.
// Approval completes the flow and releases the agent; decline returns
// the ticket to the agent with the summary cleared.
func (s *LifecycleService) Decide(ctx context.Context, ticketID, adminID int64, adminName string, kind domain.DecisionKind, approve bool) (*domain.Ticket, error) {
	if !s.bot.IsAdmin(adminID) {
		return nil, errorutil.NewAuthorization(errorutil.CodeNotAdmin, "only admins can approve or decline")
	}

	var (
		ticket    *domain.Ticket
		decision  *domain.AdminDecision
		prevAgent *int64
	)
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		ticket, err = st.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		notes := ticket.Summary()
		prevAgent = ticket.AgentID

		switch {
		case kind == domain.DecisionResolve && approve:
			err = ticket.ApproveResolution()
		case kind == domain.DecisionResolve:
			ticket.DeclineResolution()
		case approve:
			err = ticket.ApproveClosure()
		default:
			ticket.DeclineClosure()
		}
		if err != nil {
			return err
		}

		if approve {
			if err := s.reopenCustomer(ctx, st, ticket.CustomerID); err != nil {
				return err
			}
			if err := st.Messages().MarkTicketForwarded(ctx, ticket.ID); err != nil {
				return err
			}
		}
		if err := st.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		outcome := domain.OutcomeDeclined
		if approve {
			outcome = domain.OutcomeApproved
		}
		adminRef, err := s.adminAgentRef(ctx, st, adminID)
		if err != nil {
			return err
		}
		decision = &domain.AdminDecision{
			TicketID: ticket.ID,
			AdminID:  adminRef,
			Kind:     kind,
			Outcome:  outcome,
			Notes:    notes,
		}
		return st.Decisions().Create(ctx, decision)
	})
	if err != nil {
		return nil, err
	}

	name := events.ResolutionDecided
	if kind == domain.DecisionClose {
		name = events.ClosureDecided
	}
	s.metrics.RecordTransition(string(kind) + "_decided")
	ev := events.New(name, events.Actor{TelegramID: adminID, Name: adminName})
	ev.Ticket = ticket
	ev.Decision = decision
	ev.Approved = approve
	ev.PreviousAgent = prevAgent
	s.dispatcher.Publish(ev)

	return ticket, nil
}

// Raise returns an approved ticket to the unclaimed queue. Any actor
// holding the button token may raise, the state check is the only gate.
func (s *LifecycleService) Raise(ctx context.Context, ticketID, adminID int64, adminName string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		ticket, err = st.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := ticket.Raise(); err != nil {
			return err
		}
		if err := s.reopenCustomer(ctx, st, ticket.CustomerID); err != nil {
			return err
		}
		if err := st.Messages().MarkTicketForwarded(ctx, ticket.ID); err != nil {
			return err
		}
		return st.Tickets().Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("raise")
	ev := events.New(events.TicketRaised, events.Actor{TelegramID: adminID, Name: adminName})
	ev.Ticket = ticket
	s.dispatcher.Publish(ev)

	return ticket, nil
}

// Handle reopens an approved ticket directly under the acting admin.
// When the admin also has an agent profile the ticket is assigned to
// them, otherwise it reopens claimed but unassigned.
func (s *LifecycleService) Handle(ctx context.Context, ticketID, adminID int64, adminName string) (*domain.Ticket, error) {
	if !s.bot.IsAdmin(adminID) {
		return nil, errorutil.NewAuthorization(errorutil.CodeNotAdmin, "only admins can handle tickets")
	}

	isAgent, err := s.store.Agents().Exists(ctx, adminID)
	if err != nil {
		return nil, err
	}
	var assignee *int64
	if isAgent {
		assignee = &adminID
	}

	var ticket *domain.Ticket
	err = s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		ticket, err = st.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := ticket.Handle(assignee); err != nil {
			return err
		}
		if err := s.reopenCustomer(ctx, st, ticket.CustomerID); err != nil {
			return err
		}
		if err := st.Messages().MarkTicketForwarded(ctx, ticket.ID); err != nil {
			return err
		}
		return st.Tickets().Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("handle")
	ev := events.New(events.TicketHandled, events.Actor{TelegramID: adminID, Name: adminName})
	ev.Ticket = ticket
	s.dispatcher.Publish(ev)

	return ticket, nil
}

// CloseFinally puts an approved ticket into its terminal state. No
// transition leaves it afterwards.
func (s *LifecycleService) CloseFinally(ctx context.Context, ticketID, adminID int64, adminName string) (*domain.Ticket, error) {
	if !s.bot.IsAdmin(adminID) {
		return nil, errorutil.NewAuthorization(errorutil.CodeNotAdmin, "only admins can finally close tickets")
	}

	var (
		ticket    *domain.Ticket
		decision  *domain.AdminDecision
		prevAgent *int64
	)
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		ticket, err = st.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		prevAgent = ticket.AgentID
		if err := ticket.CloseFinally(time.Now().UTC()); err != nil {
			return err
		}
		if err := s.setCustomerOpen(ctx, st, ticket.CustomerID, false); err != nil {
			return err
		}
		if err := st.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		adminRef, err := s.adminAgentRef(ctx, st, adminID)
		if err != nil {
			return err
		}
		decision = &domain.AdminDecision{
			TicketID: ticket.ID,
			AdminID:  adminRef,
			Kind:     domain.DecisionClose,
			Outcome:  domain.OutcomeFinal,
			Notes:    ticket.Summary(),
		}
		return st.Decisions().Create(ctx, decision)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("close_finally")
	ev := events.New(events.TicketFinalized, events.Actor{TelegramID: adminID, Name: adminName})
	ev.Ticket = ticket
	ev.Decision = decision
	ev.PreviousAgent = prevAgent
	s.dispatcher.Publish(ev)

	return ticket, nil
}

// ActiveTicketForAgent looks up the ticket the agent currently holds.
func (s *LifecycleService) ActiveTicketForAgent(ctx context.Context, agentID int64) (*domain.Ticket, error) {
	return s.store.Tickets().ActiveByAgent(ctx, agentID)
}

// GetTicket loads a ticket by id.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.store.Tickets().GetByID(ctx, ticketID)
}

// TicketHistory returns the full conversation transcript for the
// ticket's customer, agent replies included, oldest first.
func (s *LifecycleService) TicketHistory(ctx context.Context, ticketID int64) (*domain.Ticket, []TranscriptEntry, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	customerMsgs, err := s.store.Messages().ListByCustomer(ctx, ticket.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	agentMsgs, err := s.store.Messages().ListAgentMessagesByCustomer(ctx, ticket.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, buildTranscript(customerMsgs, agentMsgs), nil
}

// QueuedMessages returns the ticket's not-yet-forwarded customer
// messages, used for the queue preview.
func (s *LifecycleService) QueuedMessages(ctx context.Context, ticketID int64) (*domain.Ticket, []TranscriptEntry, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	queued, err := s.store.Messages().ListQueuedByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, buildTranscript(queued, nil), nil
}

func (s *LifecycleService) setCustomerOpen(ctx context.Context, st repository.Store, customerID int64, open bool) error {
	customer, err := st.Customers().GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if customer.OpenTicket == open {
		return nil
	}
	customer.OpenTicket = open
	return st.Customers().Update(ctx, customer)
}

// adminAgentRef resolves the deciding admin to their agent profile,
// nil when the admin never registered as one. The decision log keeps
// working without a matching agent row.
func (s *LifecycleService) adminAgentRef(ctx context.Context, st repository.Store, adminID int64) (*int64, error) {
	isAgent, err := st.Agents().Exists(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !isAgent {
		return nil, nil
	}
	return &adminID, nil
}

// reopenCustomer restores the customer's open-ticket flag and clears
// accumulated profanity warnings, keeping the reopen cycle forgiving.
func (s *LifecycleService) reopenCustomer(ctx context.Context, st repository.Store, customerID int64) error {
	customer, err := st.Customers().GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	customer.OpenTicket = true
	customer.SpamCount = 0
	return st.Customers().Update(ctx, customer)
}
