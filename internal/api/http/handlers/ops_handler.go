package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/api/dto"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// OpsHandler exposes the read-only operations API.
type OpsHandler struct {
	store   repository.Store
	tokens  *auth.TokenManager
	metrics *observability.Metrics
	ops     config.OpsConfig
}

func NewOpsHandler(store repository.Store, tokens *auth.TokenManager, metrics *observability.Metrics, ops config.OpsConfig) *OpsHandler {
	return &OpsHandler{store: store, tokens: tokens, metrics: metrics, ops: ops}
}

// Login handles POST /auth/login.
func (h *OpsHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "username and password required")
	}

	if req.Username != h.ops.Username || h.ops.PasswordHash == "" {
		return errorutil.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(h.ops.PasswordHash, req.Password); err != nil {
		return errorutil.NewUnauthorized("invalid credentials")
	}

	token, exp, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		return errorutil.NewInternalError(err)
	}

	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}

// ListTickets handles GET /ops/tickets.
func (h *OpsHandler) ListTickets(c *fiber.Ctx) error {
	filter := repository.TicketFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if state := c.Query("state"); state != "" {
		filter.States = []domain.TicketState{domain.TicketState(state)}
	}
	if raw := c.Query("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid customer_id")
		}
		filter.CustomerID = &id
	}
	if raw := c.Query("agent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid agent_id")
		}
		filter.AgentID = &id
	}

	tickets, err := h.store.Tickets().ListWithFilter(c.UserContext(), filter)
	if err != nil {
		return err
	}

	out := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetTicket handles GET /ops/tickets/:id.
func (h *OpsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid ticket id")
	}

	ticket, err := h.store.Tickets().GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	decisions, err := h.store.Decisions().ListByTicket(c.UserContext(), id)
	if err != nil {
		return err
	}

	out := make([]dto.DecisionResponse, 0, len(decisions))
	for i := range decisions {
		out = append(out, decisionResponse(&decisions[i]))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":    ticketResponse(ticket),
		"decisions": out,
	}})
}

// ListDecisions handles GET /ops/decisions.
func (h *OpsHandler) ListDecisions(c *fiber.Ctx) error {
	decisions, err := h.store.Decisions().List(c.UserContext(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}

	out := make([]dto.DecisionResponse, 0, len(decisions))
	for i := range decisions {
		out = append(out, decisionResponse(&decisions[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// ListApplications handles GET /ops/applications.
func (h *OpsHandler) ListApplications(c *fiber.Ctx) error {
	apps, err := h.store.Agents().ListPending(c.UserContext())
	if err != nil {
		return err
	}

	out := make([]dto.ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, dto.ApplicationResponse{
			TelegramID:   app.TelegramID,
			FullName:     app.FullName,
			LanguageCode: app.LanguageCode,
			AppliedAt:    app.AppliedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// Metrics handles GET /ops/metrics.
func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                t.ID,
		CustomerID:        t.CustomerID,
		AgentID:           t.AgentID,
		State:             string(t.State),
		ResolutionSummary: t.ResolutionSummary,
		ClosureSummary:    t.ClosureSummary,
		ResolvedAt:        t.ResolvedAt,
		ClosedAt:          t.ClosedAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func decisionResponse(d *domain.AdminDecision) dto.DecisionResponse {
	return dto.DecisionResponse{
		ID:        d.ID,
		TicketID:  d.TicketID,
		AdminID:   d.AdminID,
		Kind:      string(d.Kind),
		Outcome:   string(d.Outcome),
		Notes:     d.Notes,
		DecidedAt: d.DecidedAt,
	}
}
