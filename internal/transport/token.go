package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// Callback actions carried in inline button tokens.
const (
	ActionClaim           = "claim"
	ActionPreview         = "preview"
	ActionApproveResolved = "approve_resolved"
	ActionDeclineResolved = "decline_resolved"
	ActionApproveClosed   = "approve_closed"
	ActionDeclineClosed   = "decline_closed"
	ActionRaiseTicket     = "raise_ticket"
	ActionHandleTicket    = "handle_ticket"
	ActionCloseFinally    = "close_finally"
	ActionShowFAQ         = "show_faq"
)

// Token is a parsed callback payload.
type Token struct {
	Action   string
	TicketID int64
}

// BuildToken encodes an action and ticket id for an inline button.
func BuildToken(action string, ticketID int64) string {
	if action == ActionShowFAQ {
		return action
	}
	return fmt.Sprintf("%s_%d", action, ticketID)
}

// ParseToken decodes a callback payload. The numeric suffix is the
// ticket id; everything before the final underscore is the action.
func ParseToken(raw string) (Token, error) {
	if raw == ActionShowFAQ {
		return Token{Action: ActionShowFAQ}, nil
	}

	idx := strings.LastIndex(raw, "_")
	if idx <= 0 || idx == len(raw)-1 {
		return Token{}, errorutil.NewValidationError("malformed callback token", map[string]any{"token": raw})
	}

	action := raw[:idx]
	id, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil {
		return Token{}, errorutil.NewValidationError("malformed callback token", map[string]any{"token": raw})
	}

	switch action {
	case ActionClaim, ActionPreview,
		ActionApproveResolved, ActionDeclineResolved,
		ActionApproveClosed, ActionDeclineClosed,
		ActionRaiseTicket, ActionHandleTicket, ActionCloseFinally:
		return Token{Action: action, TicketID: id}, nil
	default:
		return Token{}, errorutil.NewValidationError("unknown callback action", map[string]any{"token": raw})
	}
}
