package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Machine-readable error codes surfaced by services. The transport layer maps
// these to user-facing text; codes never leak internal identifiers.
const (
	CodeNotAnAgent           = "NOT_AN_AGENT"
	CodeNotAdmin             = "NOT_ADMIN"
	CodeNotFound             = "NOT_FOUND"
	CodeAlreadyClaimed       = "ALREADY_CLAIMED"
	CodeAgentHasActiveTicket = "AGENT_HAS_ACTIVE_TICKET"
	CodeAlreadyResolved      = "ALREADY_RESOLVED"
	CodeAlreadyClosed        = "ALREADY_CLOSED"
	CodeTicketResolved       = "TICKET_RESOLVED"
	CodeTicketClosed         = "TICKET_CLOSED"
	CodeNotResolved          = "NOT_RESOLVED"
	CodeNotClosed            = "NOT_CLOSED"
	CodeNotApproved          = "NOT_APPROVED"
	CodeTicketFinalized      = "TICKET_FINALIZED"
	CodeAlreadyRegistered    = "ALREADY_REGISTERED"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeRoleViolation        = "ROLE_VIOLATION"
	CodeBanned               = "BANNED"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewAuthorization marks a non-agent/non-admin attempting a privileged action.
func NewAuthorization(code, message string) error {
	return NewDomainError(code, message, http.StatusForbidden, nil)
}

// NewInvalidState marks a transition precondition violation.
func NewInvalidState(code, message string) error {
	return NewDomainError(code, message, http.StatusConflict, nil)
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewRateLimited(message string) error {
	return NewDomainError(CodeRateLimited, message, http.StatusTooManyRequests, nil)
}

// NewDeliveryError wraps a transport-level send failure. Logged, never fatal
// to a committed state transition.
func NewDeliveryError(recipient string, err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    fmt.Sprintf("delivery to %s failed", recipient),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return code == CodeNotFound && errors.Is(err, pgx.ErrNoRows)
}
