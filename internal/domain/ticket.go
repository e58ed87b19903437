package domain

import (
	"time"

	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// TicketState enumerates lifecycle states for tickets. The state is an
// explicit variant so that illegal flag combinations cannot be constructed.
type TicketState string

const (
	StateUnclaimed         TicketState = "UNCLAIMED"
	StateClaimed           TicketState = "CLAIMED"
	StatePendingResolution TicketState = "PENDING_RESOLUTION"
	StatePendingClosure    TicketState = "PENDING_CLOSURE"
	StateResolvedApproved  TicketState = "RESOLVED_APPROVED"
	StateClosedApproved    TicketState = "CLOSED_APPROVED"
	StateFinallyClosed     TicketState = "FINALLY_CLOSED"
)

// Ticket is the aggregate for support conversations. CustomerID is immutable
// after creation; AgentID is non-nil only while the ticket is claimed.
type Ticket struct {
	ID                int64
	CustomerID        int64
	AgentID           *int64
	State             TicketState
	ResolutionSummary string
	ClosureSummary    string
	ResolvedAt        *time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Claimed reports whether an agent (possibly an admin without an agent
// profile) currently holds the ticket.
func (t *Ticket) Claimed() bool {
	switch t.State {
	case StateClaimed, StatePendingResolution, StatePendingClosure:
		return true
	}
	return false
}

// Active reports whether the ticket may still receive customer messages.
// Semi-terminal and terminal states are inactive; a new message then opens a
// fresh ticket.
func (t *Ticket) Active() bool {
	switch t.State {
	case StateResolvedApproved, StateClosedApproved, StateFinallyClosed:
		return false
	}
	return true
}

// AwaitingApproval reports whether an admin decision is pending.
func (t *Ticket) AwaitingApproval() bool {
	return t.State == StatePendingResolution || t.State == StatePendingClosure
}

// Approved reports whether the ticket sits in a semi-terminal approved state,
// re-enterable via raise or handle.
func (t *Ticket) Approved() bool {
	return t.State == StateResolvedApproved || t.State == StateClosedApproved
}

// Summary returns the most relevant free-text summary for notifications.
func (t *Ticket) Summary() string {
	if t.ResolutionSummary != "" {
		return t.ResolutionSummary
	}
	return t.ClosureSummary
}

func (t *Ticket) finalized() error {
	return apperrors.NewInvalidState(apperrors.CodeTicketFinalized, "ticket is finally closed")
}

// Claim assigns the ticket to an agent. The caller is responsible for the
// one-active-ticket-per-agent check, which requires storage visibility.
func (t *Ticket) Claim(agentID int64) error {
	switch t.State {
	case StateFinallyClosed:
		return t.finalized()
	case StateClaimed, StatePendingResolution, StatePendingClosure:
		return apperrors.NewInvalidState(apperrors.CodeAlreadyClaimed, "ticket already claimed")
	}
	t.AgentID = &agentID
	t.State = StateClaimed
	return nil
}

// Resolve marks the ticket resolved pending admin approval.
func (t *Ticket) Resolve(summary string, now time.Time) error {
	switch t.State {
	case StateFinallyClosed:
		return t.finalized()
	case StatePendingResolution, StateResolvedApproved:
		return apperrors.NewInvalidState(apperrors.CodeAlreadyResolved, "ticket already resolved")
	case StatePendingClosure, StateClosedApproved:
		return apperrors.NewInvalidState(apperrors.CodeTicketClosed, "ticket is closed and cannot be resolved")
	}
	t.State = StatePendingResolution
	t.ResolutionSummary = summary
	t.ResolvedAt = &now
	return nil
}

// Close marks the ticket closed pending admin approval.
func (t *Ticket) Close(summary string, now time.Time) error {
	switch t.State {
	case StateFinallyClosed:
		return t.finalized()
	case StatePendingClosure, StateClosedApproved:
		return apperrors.NewInvalidState(apperrors.CodeAlreadyClosed, "ticket already closed")
	case StatePendingResolution, StateResolvedApproved:
		return apperrors.NewInvalidState(apperrors.CodeTicketResolved, "ticket is resolved and cannot be closed")
	}
	t.State = StatePendingClosure
	t.ClosureSummary = summary
	t.ClosedAt = &now
	return nil
}

// ApproveResolution confirms a pending resolution and releases the agent.
func (t *Ticket) ApproveResolution() error {
	if t.State == StateFinallyClosed {
		return t.finalized()
	}
	if t.State != StatePendingResolution {
		return apperrors.NewInvalidState(apperrors.CodeNotResolved, "ticket has not been resolved")
	}
	t.State = StateResolvedApproved
	t.AgentID = nil
	return nil
}

// DeclineResolution rejects a pending resolution; the agent stays assigned.
// Declining a ticket that is not pending resolution leaves its state alone.
func (t *Ticket) DeclineResolution() {
	if t.State == StatePendingResolution {
		t.State = StateClaimed
	}
	t.ResolutionSummary = ""
	t.ResolvedAt = nil
}

// ApproveClosure confirms a pending closure and releases the agent.
func (t *Ticket) ApproveClosure() error {
	if t.State == StateFinallyClosed {
		return t.finalized()
	}
	if t.State != StatePendingClosure {
		return apperrors.NewInvalidState(apperrors.CodeNotClosed, "ticket has not been closed")
	}
	t.State = StateClosedApproved
	t.AgentID = nil
	return nil
}

// DeclineClosure rejects a pending closure; the agent stays assigned.
func (t *Ticket) DeclineClosure() {
	if t.State == StatePendingClosure {
		t.State = StateClaimed
	}
	t.ClosureSummary = ""
	t.ClosedAt = nil
}

// Raise returns an approved ticket to the unclaimed support queue.
func (t *Ticket) Raise() error {
	if t.State == StateFinallyClosed {
		return t.finalized()
	}
	if !t.Approved() {
		return apperrors.NewInvalidState(apperrors.CodeNotApproved, "ticket closure or resolution has not been approved")
	}
	t.State = StateUnclaimed
	t.AgentID = nil
	return nil
}

// Handle assigns an approved ticket directly to an admin. The agent reference
// stays nil when the admin has no agent profile.
func (t *Ticket) Handle(agentID *int64) error {
	if t.State == StateFinallyClosed {
		return t.finalized()
	}
	if !t.Approved() {
		return apperrors.NewInvalidState(apperrors.CodeNotApproved, "ticket closure or resolution has not been approved")
	}
	t.State = StateClaimed
	t.AgentID = agentID
	return nil
}

// CloseFinally moves an approved ticket to the terminal state.
func (t *Ticket) CloseFinally(now time.Time) error {
	if t.State == StateFinallyClosed {
		return t.finalized()
	}
	if !t.Approved() {
		return apperrors.NewInvalidState(apperrors.CodeNotApproved, "ticket closure or resolution has not been approved")
	}
	t.State = StateFinallyClosed
	t.AgentID = nil
	t.ClosedAt = &now
	return nil
}
