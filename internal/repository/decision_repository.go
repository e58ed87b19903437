package repository

import (
	"context"

	"github.com/spec-kit/support-bot/internal/domain"
)

// DecisionRepository is the append-only admin decision audit log.
type DecisionRepository interface {
	Create(ctx context.Context, decision *domain.AdminDecision) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.AdminDecision, error)
	List(ctx context.Context, limit, offset int) ([]domain.AdminDecision, error)
}

type decisionRepository struct {
	db DBTX
}

// NewDecisionRepository builds repository.
func NewDecisionRepository(db DBTX) DecisionRepository {
	return &decisionRepository{db: db}
}

func (r *decisionRepository) Create(ctx context.Context, decision *domain.AdminDecision) error {
	const query = `
        INSERT INTO admin_decisions (ticket_id, admin_id, kind, outcome, notes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, decided_at`
	return r.db.QueryRow(ctx, query,
		decision.TicketID,
		decision.AdminID,
		decision.Kind,
		decision.Outcome,
		decision.Notes,
	).Scan(&decision.ID, &decision.DecidedAt)
}

func (r *decisionRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.AdminDecision, error) {
	const query = `
        SELECT id, ticket_id, admin_id, kind, outcome, notes, decided_at
        FROM admin_decisions WHERE ticket_id=$1 ORDER BY decided_at ASC`
	return r.list(ctx, query, ticketID)
}

func (r *decisionRepository) List(ctx context.Context, limit, offset int) ([]domain.AdminDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, admin_id, kind, outcome, notes, decided_at
        FROM admin_decisions ORDER BY decided_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *decisionRepository) list(ctx context.Context, query string, args ...any) ([]domain.AdminDecision, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AdminDecision
	for rows.Next() {
		var decision domain.AdminDecision
		if err := rows.Scan(
			&decision.ID,
			&decision.TicketID,
			&decision.AdminID,
			&decision.Kind,
			&decision.Outcome,
			&decision.Notes,
			&decision.DecidedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, decision)
	}
	return result, rows.Err()
}
