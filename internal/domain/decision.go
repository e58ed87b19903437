package domain

import "time"

// DecisionKind captures which ticket flow the admin acted on.
type DecisionKind string

const (
	DecisionResolve DecisionKind = "resolve"
	DecisionClose   DecisionKind = "close"
)

// DecisionOutcome captures the admin verdict.
type DecisionOutcome string

const (
	OutcomeApproved DecisionOutcome = "approved"
	OutcomeDeclined DecisionOutcome = "declined"
	OutcomeFinal    DecisionOutcome = "final"
)

// AdminDecision is an append-only audit entry. AdminID is nil when the
// deciding admin has no agent profile.
type AdminDecision struct {
	ID        int64
	TicketID  int64
	AdminID   *int64
	Kind      DecisionKind
	Outcome   DecisionOutcome
	Notes     string
	DecidedAt time.Time
}
