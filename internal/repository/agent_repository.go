package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-bot/internal/domain"
)

// AgentRepository encapsulates the agent roster and pending applications.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, telegramID int64) (*domain.Agent, error)
	Exists(ctx context.Context, telegramID int64) (bool, error)

	CreatePending(ctx context.Context, app *domain.PendingApplication) error
	GetPending(ctx context.Context, telegramID int64) (*domain.PendingApplication, error)
	DeletePending(ctx context.Context, telegramID int64) error
	ListPending(ctx context.Context) ([]domain.PendingApplication, error)
	DeletePendingOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type agentRepository struct {
	db DBTX
}

// NewAgentRepository instantiates repository.
func NewAgentRepository(db DBTX) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (telegram_id, full_name, language_code)
        VALUES ($1,$2,$3)
        RETURNING joined_at`
	return r.db.QueryRow(ctx, query,
		agent.TelegramID,
		agent.FullName,
		agent.LanguageCode,
	).Scan(&agent.JoinedAt)
}

func (r *agentRepository) GetByID(ctx context.Context, telegramID int64) (*domain.Agent, error) {
	const query = `
        SELECT telegram_id, full_name, language_code, joined_at
        FROM agents WHERE telegram_id=$1`
	var agent domain.Agent
	if err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&agent.TelegramID,
		&agent.FullName,
		&agent.LanguageCode,
		&agent.JoinedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) Exists(ctx context.Context, telegramID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM agents WHERE telegram_id=$1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, telegramID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *agentRepository) CreatePending(ctx context.Context, app *domain.PendingApplication) error {
	const query = `
        INSERT INTO pending_applications (telegram_id, full_name, language_code)
        VALUES ($1,$2,$3)
        ON CONFLICT (telegram_id) DO UPDATE
            SET full_name=EXCLUDED.full_name, language_code=EXCLUDED.language_code, applied_at=NOW()
        RETURNING applied_at`
	return r.db.QueryRow(ctx, query,
		app.TelegramID,
		app.FullName,
		app.LanguageCode,
	).Scan(&app.AppliedAt)
}

func (r *agentRepository) GetPending(ctx context.Context, telegramID int64) (*domain.PendingApplication, error) {
	const query = `
        SELECT telegram_id, full_name, language_code, applied_at
        FROM pending_applications WHERE telegram_id=$1`
	var app domain.PendingApplication
	if err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&app.TelegramID,
		&app.FullName,
		&app.LanguageCode,
		&app.AppliedAt,
	); err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *agentRepository) DeletePending(ctx context.Context, telegramID int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM pending_applications WHERE telegram_id=$1`, telegramID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *agentRepository) ListPending(ctx context.Context) ([]domain.PendingApplication, error) {
	const query = `
        SELECT telegram_id, full_name, language_code, applied_at
        FROM pending_applications ORDER BY applied_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PendingApplication
	for rows.Next() {
		var app domain.PendingApplication
		if err := rows.Scan(&app.TelegramID, &app.FullName, &app.LanguageCode, &app.AppliedAt); err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

func (r *agentRepository) DeletePendingOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM pending_applications WHERE applied_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
