package dto

import "time"

// LoginRequest is the ops login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse carries an issued token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TicketResponse is the wire shape of one ticket.
type TicketResponse struct {
	ID                int64      `json:"id"`
	CustomerID        int64      `json:"customer_id"`
	AgentID           *int64     `json:"agent_id,omitempty"`
	State             string     `json:"state"`
	ResolutionSummary string     `json:"resolution_summary,omitempty"`
	ClosureSummary    string     `json:"closure_summary,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DecisionResponse is the wire shape of one admin decision.
type DecisionResponse struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	AdminID   *int64    `json:"admin_id,omitempty"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// ApplicationResponse is the wire shape of one pending agent application.
type ApplicationResponse struct {
	TelegramID   int64     `json:"telegram_id"`
	FullName     string    `json:"full_name"`
	LanguageCode string    `json:"language_code,omitempty"`
	AppliedAt    time.Time `json:"applied_at"`
}
