package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-bot/internal/domain"
)

// Event names published on ticket lifecycle changes.
const (
	TicketOpened      = "ticket.opened"
	MessageQueued     = "ticket.message_queued"
	TicketClaimed     = "ticket.claimed"
	ResolveRequested  = "ticket.resolve_requested"
	CloseRequested    = "ticket.close_requested"
	ResolutionDecided = "ticket.resolution_decided"
	ClosureDecided    = "ticket.closure_decided"
	TicketRaised      = "ticket.raised"
	TicketHandled     = "ticket.handled"
	TicketFinalized   = "ticket.finalized"
	AgentApplied      = "agent.applied"
	AgentApproved     = "agent.approved"
)

// Actor identifies who triggered an event.
type Actor struct {
	TelegramID int64
	Name       string
}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID         string
	Name       string
	OccurredAt time.Time
	Actor      Actor
	Ticket     *domain.Ticket
	Decision   *domain.AdminDecision
	Message    *domain.CustomerMessage
	Applicant  *domain.PendingApplication
	Approved   bool

	// PreviousAgent is the agent assigned before a transition that
	// clears the assignment, so they can still be notified.
	PreviousAgent *int64
}

// New builds an event envelope with a fresh ID.
func New(name string, actor Actor) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
	}
}
