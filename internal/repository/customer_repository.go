package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-bot/internal/domain"
)

// CustomerRepository encapsulates customer persistence.
type CustomerRepository interface {
	// Upsert creates the customer on first contact and refreshes the
	// profile fields on every later message.
	Upsert(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, telegramID int64) (*domain.Customer, error)
	Update(ctx context.Context, customer *domain.Customer) error
}

type customerRepository struct {
	db DBTX
}

// NewCustomerRepository instantiates repository.
func NewCustomerRepository(db DBTX) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Upsert(ctx context.Context, customer *domain.Customer) error {
	const query = `
        INSERT INTO customers (telegram_id, full_name, language_code)
        VALUES ($1,$2,$3)
        ON CONFLICT (telegram_id) DO UPDATE
            SET full_name=EXCLUDED.full_name, language_code=EXCLUDED.language_code, updated_at=NOW()
        RETURNING banned, open_ticket, spam_count, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		customer.TelegramID,
		customer.FullName,
		customer.LanguageCode,
	).Scan(&customer.Banned, &customer.OpenTicket, &customer.SpamCount, &customer.CreatedAt, &customer.UpdatedAt)
}

func (r *customerRepository) GetByID(ctx context.Context, telegramID int64) (*domain.Customer, error) {
	const query = `
        SELECT telegram_id, full_name, language_code, banned, open_ticket, spam_count, created_at, updated_at
        FROM customers WHERE telegram_id=$1`
	var customer domain.Customer
	if err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&customer.TelegramID,
		&customer.FullName,
		&customer.LanguageCode,
		&customer.Banned,
		&customer.OpenTicket,
		&customer.SpamCount,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	const query = `
        UPDATE customers SET full_name=$1, language_code=$2, banned=$3, open_ticket=$4, spam_count=$5, updated_at=NOW()
        WHERE telegram_id=$6`
	cmd, err := r.db.Exec(ctx, query,
		customer.FullName,
		customer.LanguageCode,
		customer.Banned,
		customer.OpenTicket,
		customer.SpamCount,
		customer.TelegramID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
