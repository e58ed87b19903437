package session

import (
	"context"
	"errors"

	"github.com/spec-kit/support-bot/internal/domain"
)

// ErrNotFound is returned when no pending state exists for a sender.
var ErrNotFound = errors.New("session: not found")

// Stage names for multi-step conversations keyed by sender.
const (
	StageCaptionPending      = "caption_pending"
	StageSummaryPending      = "summary_pending"
	StageApplicationName     = "application_name"
	StageApplicationLanguage = "application_language"
)

// State is the transient per-sender conversation state.
type State struct {
	Stage string `json:"stage"`

	// Caption flow: the stored media message awaiting its caption.
	MessageID int64 `json:"message_id,omitempty"`

	// Summary flow: which ticket and which kind of resolution is pending.
	TicketID int64               `json:"ticket_id,omitempty"`
	Decision domain.DecisionKind `json:"decision,omitempty"`

	// Application flow: the name collected so far.
	ApplicantName string `json:"applicant_name,omitempty"`
}

// Store keeps transient conversation state with a TTL.
type Store interface {
	Get(ctx context.Context, senderID int64) (*State, error)
	Put(ctx context.Context, senderID int64, st *State) error
	Delete(ctx context.Context, senderID int64) error
}
