// Package memstore provides an in-memory repository.Store. It backs the
// service tests and lets the bot run without Postgres in development; the
// production store is pgx-backed.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
)

type data struct {
	customers map[int64]domain.Customer
	agents    map[int64]domain.Agent
	pending   map[int64]domain.PendingApplication
	tickets   map[int64]domain.Ticket
	custMsgs  map[int64]domain.CustomerMessage
	agentMsgs map[int64]domain.AgentMessage
	decisions []domain.AdminDecision

	nextTicketID   int64
	nextMsgID      int64
	nextAgentMsgID int64
	nextDecisionID int64
}

func newData() *data {
	return &data{
		customers: make(map[int64]domain.Customer),
		agents:    make(map[int64]domain.Agent),
		pending:   make(map[int64]domain.PendingApplication),
		tickets:   make(map[int64]domain.Ticket),
		custMsgs:  make(map[int64]domain.CustomerMessage),
		agentMsgs: make(map[int64]domain.AgentMessage),
	}
}

func (d *data) clone() *data {
	cp := newData()
	for k, v := range d.customers {
		cp.customers[k] = v
	}
	for k, v := range d.agents {
		cp.agents[k] = v
	}
	for k, v := range d.pending {
		cp.pending[k] = v
	}
	for k, v := range d.tickets {
		cp.tickets[k] = v
	}
	for k, v := range d.custMsgs {
		cp.custMsgs[k] = v
	}
	for k, v := range d.agentMsgs {
		cp.agentMsgs[k] = v
	}
	cp.decisions = append(cp.decisions, d.decisions...)
	cp.nextTicketID = d.nextTicketID
	cp.nextMsgID = d.nextMsgID
	cp.nextAgentMsgID = d.nextAgentMsgID
	cp.nextDecisionID = d.nextDecisionID
	return cp
}

// Store is the in-memory repository.Store.
type Store struct {
	mu   *sync.Mutex
	data *data
	inTx bool
}

// New creates an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, data: newData()}
}

func (s *Store) Customers() repository.CustomerRepository { return customerRepo{s} }
func (s *Store) Agents() repository.AgentRepository       { return agentRepo{s} }
func (s *Store) Tickets() repository.TicketRepository     { return ticketRepo{s} }
func (s *Store) Messages() repository.MessageRepository   { return messageRepo{s} }
func (s *Store) Decisions() repository.DecisionRepository { return decisionRepo{s} }

// Transact serializes all writers behind one mutex and restores a snapshot
// when fn fails, mirroring the pgx rollback semantics.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	scoped := &Store{mu: s.mu, data: s.data, inTx: true}
	if err := fn(ctx, scoped); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) locked(fn func(d *data) error) error {
	if s.inTx {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

type customerRepo struct{ s *Store }

func (r customerRepo) Upsert(_ context.Context, customer *domain.Customer) error {
	return r.s.locked(func(d *data) error {
		now := time.Now()
		if existing, ok := d.customers[customer.TelegramID]; ok {
			existing.FullName = customer.FullName
			existing.LanguageCode = customer.LanguageCode
			existing.UpdatedAt = now
			d.customers[customer.TelegramID] = existing
			*customer = existing
			return nil
		}
		customer.CreatedAt = now
		customer.UpdatedAt = now
		d.customers[customer.TelegramID] = *customer
		return nil
	})
}

func (r customerRepo) GetByID(_ context.Context, telegramID int64) (*domain.Customer, error) {
	var out *domain.Customer
	err := r.s.locked(func(d *data) error {
		customer, ok := d.customers[telegramID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &customer
		return nil
	})
	return out, err
}

func (r customerRepo) Update(_ context.Context, customer *domain.Customer) error {
	return r.s.locked(func(d *data) error {
		if _, ok := d.customers[customer.TelegramID]; !ok {
			return pgx.ErrNoRows
		}
		customer.UpdatedAt = time.Now()
		d.customers[customer.TelegramID] = *customer
		return nil
	})
}

type agentRepo struct{ s *Store }

func (r agentRepo) Create(_ context.Context, agent *domain.Agent) error {
	return r.s.locked(func(d *data) error {
		agent.JoinedAt = time.Now()
		d.agents[agent.TelegramID] = *agent
		return nil
	})
}

func (r agentRepo) GetByID(_ context.Context, telegramID int64) (*domain.Agent, error) {
	var out *domain.Agent
	err := r.s.locked(func(d *data) error {
		agent, ok := d.agents[telegramID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &agent
		return nil
	})
	return out, err
}

func (r agentRepo) Exists(_ context.Context, telegramID int64) (bool, error) {
	var exists bool
	err := r.s.locked(func(d *data) error {
		_, exists = d.agents[telegramID]
		return nil
	})
	return exists, err
}

func (r agentRepo) CreatePending(_ context.Context, app *domain.PendingApplication) error {
	return r.s.locked(func(d *data) error {
		app.AppliedAt = time.Now()
		d.pending[app.TelegramID] = *app
		return nil
	})
}

func (r agentRepo) GetPending(_ context.Context, telegramID int64) (*domain.PendingApplication, error) {
	var out *domain.PendingApplication
	err := r.s.locked(func(d *data) error {
		app, ok := d.pending[telegramID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &app
		return nil
	})
	return out, err
}

func (r agentRepo) DeletePending(_ context.Context, telegramID int64) error {
	return r.s.locked(func(d *data) error {
		if _, ok := d.pending[telegramID]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.pending, telegramID)
		return nil
	})
}

func (r agentRepo) ListPending(_ context.Context) ([]domain.PendingApplication, error) {
	var out []domain.PendingApplication
	err := r.s.locked(func(d *data) error {
		for _, app := range d.pending {
			out = append(out, app)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
		return nil
	})
	return out, err
}

func (r agentRepo) DeletePendingOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.s.locked(func(d *data) error {
		for id, app := range d.pending {
			if app.AppliedAt.Before(cutoff) {
				delete(d.pending, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.s.locked(func(d *data) error {
		d.nextTicketID++
		ticket.ID = d.nextTicketID
		now := time.Now()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		d.tickets[ticket.ID] = *ticket
		return nil
	})
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.s.locked(func(d *data) error {
		if _, ok := d.tickets[ticket.ID]; !ok {
			return pgx.ErrNoRows
		}
		ticket.UpdatedAt = time.Now()
		d.tickets[ticket.ID] = *ticket
		return nil
	})
}

func (r ticketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.s.locked(func(d *data) error {
		ticket, ok := d.tickets[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &ticket
		return nil
	})
	return out, err
}

func (r ticketRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r ticketRepo) ActiveByCustomer(_ context.Context, customerID int64) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.s.locked(func(d *data) error {
		var best *domain.Ticket
		for id := range d.tickets {
			ticket := d.tickets[id]
			if ticket.CustomerID != customerID || !ticket.Active() {
				continue
			}
			if best == nil || ticket.ID > best.ID {
				t := ticket
				best = &t
			}
		}
		out = best
		return nil
	})
	return out, err
}

func (r ticketRepo) ActiveByAgent(_ context.Context, agentID int64) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.s.locked(func(d *data) error {
		var best *domain.Ticket
		for id := range d.tickets {
			ticket := d.tickets[id]
			if ticket.State != domain.StateClaimed || ticket.AgentID == nil || *ticket.AgentID != agentID {
				continue
			}
			if best == nil || ticket.ID > best.ID {
				t := ticket
				best = &t
			}
		}
		out = best
		return nil
	})
	return out, err
}

func (r ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.s.locked(func(d *data) error {
		for _, ticket := range d.tickets {
			if filter.CustomerID != nil && ticket.CustomerID != *filter.CustomerID {
				continue
			}
			if filter.AgentID != nil && (ticket.AgentID == nil || *ticket.AgentID != *filter.AgentID) {
				continue
			}
			if len(filter.States) > 0 {
				match := false
				for _, state := range filter.States {
					if ticket.State == state {
						match = true
						break
					}
				}
				if !match {
					continue
				}
			}
			out = append(out, ticket)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	offset := filter.Offset
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) CreateCustomerMessage(_ context.Context, msg *domain.CustomerMessage) error {
	return r.s.locked(func(d *data) error {
		d.nextMsgID++
		msg.ID = d.nextMsgID
		d.custMsgs[msg.ID] = *msg
		return nil
	})
}

func (r messageRepo) UpdateCustomerMessage(_ context.Context, msg *domain.CustomerMessage) error {
	return r.s.locked(func(d *data) error {
		if _, ok := d.custMsgs[msg.ID]; !ok {
			return pgx.ErrNoRows
		}
		d.custMsgs[msg.ID] = *msg
		return nil
	})
}

func (r messageRepo) DeleteCustomerMessage(_ context.Context, id int64) error {
	return r.s.locked(func(d *data) error {
		if _, ok := d.custMsgs[id]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.custMsgs, id)
		return nil
	})
}

func (r messageRepo) GetCustomerMessage(_ context.Context, id int64) (*domain.CustomerMessage, error) {
	var out *domain.CustomerMessage
	err := r.s.locked(func(d *data) error {
		msg, ok := d.custMsgs[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &msg
		return nil
	})
	return out, err
}

func (r messageRepo) CountQueuedByTicket(_ context.Context, ticketID int64) (int, error) {
	var count int
	err := r.s.locked(func(d *data) error {
		for _, msg := range d.custMsgs {
			if msg.TicketID != nil && *msg.TicketID == ticketID && !msg.Forwarded {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r messageRepo) ListQueuedByTicket(_ context.Context, ticketID int64) ([]domain.CustomerMessage, error) {
	var out []domain.CustomerMessage
	err := r.s.locked(func(d *data) error {
		for _, msg := range d.custMsgs {
			if msg.TicketID != nil && *msg.TicketID == ticketID && !msg.Forwarded {
				out = append(out, msg)
			}
		}
		sortMessages(out)
		return nil
	})
	return out, err
}

func (r messageRepo) MarkTicketForwarded(_ context.Context, ticketID int64) error {
	return r.s.locked(func(d *data) error {
		for id, msg := range d.custMsgs {
			if msg.TicketID != nil && *msg.TicketID == ticketID && !msg.Forwarded {
				msg.Forwarded = true
				d.custMsgs[id] = msg
			}
		}
		return nil
	})
}

func (r messageRepo) ListByCustomer(_ context.Context, customerID int64) ([]domain.CustomerMessage, error) {
	var out []domain.CustomerMessage
	err := r.s.locked(func(d *data) error {
		for _, msg := range d.custMsgs {
			if msg.CustomerID == customerID {
				out = append(out, msg)
			}
		}
		sortMessages(out)
		return nil
	})
	return out, err
}

func (r messageRepo) CreateAgentMessage(_ context.Context, msg *domain.AgentMessage) error {
	return r.s.locked(func(d *data) error {
		d.nextAgentMsgID++
		msg.ID = d.nextAgentMsgID
		d.agentMsgs[msg.ID] = *msg
		return nil
	})
}

func (r messageRepo) ListAgentMessagesByCustomer(_ context.Context, customerID int64) ([]domain.AgentMessage, error) {
	var out []domain.AgentMessage
	err := r.s.locked(func(d *data) error {
		for _, msg := range d.agentMsgs {
			if msg.CustomerID == customerID {
				out = append(out, msg)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].SentAt.Equal(out[j].SentAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].SentAt.Before(out[j].SentAt)
		})
		return nil
	})
	return out, err
}

func sortMessages(msgs []domain.CustomerMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}

type decisionRepo struct{ s *Store }

func (r decisionRepo) Create(_ context.Context, decision *domain.AdminDecision) error {
	return r.s.locked(func(d *data) error {
		d.nextDecisionID++
		decision.ID = d.nextDecisionID
		decision.DecidedAt = time.Now()
		d.decisions = append(d.decisions, *decision)
		return nil
	})
}

func (r decisionRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.AdminDecision, error) {
	var out []domain.AdminDecision
	err := r.s.locked(func(d *data) error {
		for _, decision := range d.decisions {
			if decision.TicketID == ticketID {
				out = append(out, decision)
			}
		}
		return nil
	})
	return out, err
}

func (r decisionRepo) List(_ context.Context, limit, offset int) ([]domain.AdminDecision, error) {
	var out []domain.AdminDecision
	err := r.s.locked(func(d *data) error {
		out = append(out, d.decisions...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
