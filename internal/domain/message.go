package domain

import "time"

// MessageKind mirrors the transport content types the router accepts.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindPhoto    MessageKind = "photo"
	KindDocument MessageKind = "document"
	KindVideo    MessageKind = "video"
)

// CustomerMessage is a persisted inbound message. TicketID is nil until the
// router attaches or creates a ticket; Forwarded flips when the message
// reaches an agent or the support queue.
type CustomerMessage struct {
	ID            int64
	CustomerID    int64
	TicketID      *int64
	Kind          MessageKind
	Body          string
	MediaRef      string
	ChatMessageID int64
	Forwarded     bool
	SentAt        time.Time
}

// AgentMessage is a persisted outbound agent reply. CustomerID is
// denormalized for conversation-history queries.
type AgentMessage struct {
	ID         int64
	TicketID   int64
	AgentID    int64
	CustomerID int64
	Kind       MessageKind
	Body       string
	MediaRef   string
	SentAt     time.Time
}
