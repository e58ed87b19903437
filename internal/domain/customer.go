package domain

import "time"

// Customer is the domain model for end-users who message the bot. The
// identity is the opaque numeric chat identity; customers are created on
// first contact and never deleted.
type Customer struct {
	TelegramID   int64
	FullName     string
	LanguageCode string
	Banned       bool
	OpenTicket   bool
	SpamCount    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
