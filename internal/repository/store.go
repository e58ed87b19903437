package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx, letting the
// same repository code run inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles entity repositories behind one transactional boundary. Every
// state transition runs its ticket, customer and message updates in a single
// Transact call; partial application is never observable.
type Store interface {
	Customers() CustomerRepository
	Agents() AgentRepository
	Tickets() TicketRepository
	Messages() MessageRepository
	Decisions() DecisionRepository

	// Transact runs fn against a store bound to one transaction, committing
	// on nil and rolling back on error. Nested calls reuse the outer
	// transaction.
	Transact(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewStore builds a Store on top of a pgx pool.
func NewStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool, db: pool}
}

func (s *SQLStore) Customers() CustomerRepository { return &customerRepository{db: s.db} }
func (s *SQLStore) Agents() AgentRepository       { return &agentRepository{db: s.db} }
func (s *SQLStore) Tickets() TicketRepository     { return &ticketRepository{db: s.db} }
func (s *SQLStore) Messages() MessageRepository   { return &messageRepository{db: s.db} }
func (s *SQLStore) Decisions() DecisionRepository { return &decisionRepository{db: s.db} }

// Transact implements Store.
func (s *SQLStore) Transact(ctx context.Context, fn func(ctx context.Context, st Store) error) error {
	if _, alreadyTx := s.db.(pgx.Tx); alreadyTx {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	scoped := &SQLStore{pool: s.pool, db: tx}
	if err := fn(ctx, scoped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
