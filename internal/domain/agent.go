package domain

import "time"

// Agent models an approved support agent. Agents are created only by
// approving a pending application, never by self-registration.
type Agent struct {
	TelegramID   int64
	FullName     string
	LanguageCode string
	JoinedAt     time.Time
}

// PendingApplication is a not-yet-reviewed agent application. Approval
// converts it into an Agent and deletes the record; rejection just deletes.
type PendingApplication struct {
	TelegramID   int64
	FullName     string
	LanguageCode string
	AppliedAt    time.Time
}
