package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-bot/internal/domain"
)

// MessageRepository manages the durable log of customer and agent messages.
type MessageRepository interface {
	CreateCustomerMessage(ctx context.Context, msg *domain.CustomerMessage) error
	UpdateCustomerMessage(ctx context.Context, msg *domain.CustomerMessage) error
	// DeleteCustomerMessage exists only for the caption-completion rollback.
	DeleteCustomerMessage(ctx context.Context, id int64) error
	GetCustomerMessage(ctx context.Context, id int64) (*domain.CustomerMessage, error)
	// CountQueuedByTicket counts the ticket's not-yet-forwarded messages.
	CountQueuedByTicket(ctx context.Context, ticketID int64) (int, error)
	ListQueuedByTicket(ctx context.Context, ticketID int64) ([]domain.CustomerMessage, error)
	// MarkTicketForwarded flips every message attached to the ticket to
	// forwarded, resetting the queue count.
	MarkTicketForwarded(ctx context.Context, ticketID int64) error
	ListByCustomer(ctx context.Context, customerID int64) ([]domain.CustomerMessage, error)

	CreateAgentMessage(ctx context.Context, msg *domain.AgentMessage) error
	ListAgentMessagesByCustomer(ctx context.Context, customerID int64) ([]domain.AgentMessage, error)
}

type messageRepository struct {
	db DBTX
}

// NewMessageRepository builds repository.
func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateCustomerMessage(ctx context.Context, msg *domain.CustomerMessage) error {
	const query = `
        INSERT INTO customer_messages (customer_id, ticket_id, kind, body, media_ref, chat_message_id, forwarded, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		msg.CustomerID,
		msg.TicketID,
		msg.Kind,
		msg.Body,
		msg.MediaRef,
		msg.ChatMessageID,
		msg.Forwarded,
		msg.SentAt,
	).Scan(&msg.ID)
}

func (r *messageRepository) UpdateCustomerMessage(ctx context.Context, msg *domain.CustomerMessage) error {
	const query = `
        UPDATE customer_messages SET ticket_id=$1, body=$2, forwarded=$3
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query, msg.TicketID, msg.Body, msg.Forwarded, msg.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *messageRepository) DeleteCustomerMessage(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM customer_messages WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *messageRepository) GetCustomerMessage(ctx context.Context, id int64) (*domain.CustomerMessage, error) {
	const query = `
        SELECT id, customer_id, ticket_id, kind, body, media_ref, chat_message_id, forwarded, sent_at
        FROM customer_messages WHERE id=$1`
	var msg domain.CustomerMessage
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.CustomerID,
		&msg.TicketID,
		&msg.Kind,
		&msg.Body,
		&msg.MediaRef,
		&msg.ChatMessageID,
		&msg.Forwarded,
		&msg.SentAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) CountQueuedByTicket(ctx context.Context, ticketID int64) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM customer_messages WHERE ticket_id=$1 AND forwarded=FALSE`, ticketID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) ListQueuedByTicket(ctx context.Context, ticketID int64) ([]domain.CustomerMessage, error) {
	const query = `
        SELECT id, customer_id, ticket_id, kind, body, media_ref, chat_message_id, forwarded, sent_at
        FROM customer_messages WHERE ticket_id=$1 AND forwarded=FALSE ORDER BY sent_at ASC`
	return r.listCustomerMessages(ctx, query, ticketID)
}

func (r *messageRepository) MarkTicketForwarded(ctx context.Context, ticketID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE customer_messages SET forwarded=TRUE WHERE ticket_id=$1 AND forwarded=FALSE`, ticketID)
	return err
}

func (r *messageRepository) ListByCustomer(ctx context.Context, customerID int64) ([]domain.CustomerMessage, error) {
	const query = `
        SELECT id, customer_id, ticket_id, kind, body, media_ref, chat_message_id, forwarded, sent_at
        FROM customer_messages WHERE customer_id=$1 ORDER BY sent_at ASC`
	return r.listCustomerMessages(ctx, query, customerID)
}

func (r *messageRepository) listCustomerMessages(ctx context.Context, query string, arg any) ([]domain.CustomerMessage, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CustomerMessage
	for rows.Next() {
		var msg domain.CustomerMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.CustomerID,
			&msg.TicketID,
			&msg.Kind,
			&msg.Body,
			&msg.MediaRef,
			&msg.ChatMessageID,
			&msg.Forwarded,
			&msg.SentAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) CreateAgentMessage(ctx context.Context, msg *domain.AgentMessage) error {
	const query = `
        INSERT INTO agent_messages (ticket_id, agent_id, customer_id, kind, body, media_ref, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		msg.TicketID,
		msg.AgentID,
		msg.CustomerID,
		msg.Kind,
		msg.Body,
		msg.MediaRef,
		msg.SentAt,
	).Scan(&msg.ID)
}

func (r *messageRepository) ListAgentMessagesByCustomer(ctx context.Context, customerID int64) ([]domain.AgentMessage, error) {
	const query = `
        SELECT id, ticket_id, agent_id, customer_id, kind, body, media_ref, sent_at
        FROM agent_messages WHERE customer_id=$1 ORDER BY sent_at ASC`
	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentMessage
	for rows.Next() {
		var msg domain.AgentMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AgentID,
			&msg.CustomerID,
			&msg.Kind,
			&msg.Body,
			&msg.MediaRef,
			&msg.SentAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
