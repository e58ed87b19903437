package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

func TestClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "my printer is on fire")

	result, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if result.Ticket.State != domain.StateClaimed {
		t.Errorf("state = %s, want CLAIMED", result.Ticket.State)
	}
	if result.Ticket.AgentID == nil || *result.Ticket.AgentID != testAgentID {
		t.Errorf("agent = %v, want %d", result.Ticket.AgentID, testAgentID)
	}
	if len(result.History) != 1 {
		t.Errorf("history len = %d, want 1", len(result.History))
	}
	if result.Customer == nil || result.Customer.TelegramID != testCustomerID {
		t.Errorf("unexpected customer: %+v", result.Customer)
	}
}

func TestClaimRequiresAgent(t *testing.T) {
	env := newTestEnv(t)
	ticket := env.openTicket(t, testCustomerID, "help")

	_, err := env.lifecycle.Claim(context.Background(), ticket.ID, 777, "Random")
	if !errorutil.HasCode(err, errorutil.CodeNotAnAgent) {
		t.Fatalf("expected NOT_AN_AGENT, got %v", err)
	}
}

func TestClaimRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	env.seedAgent(t, testAgentID+1, "Agent Two")
	ticket := env.openTicket(t, testCustomerID, "help")

	if _, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID+1, "Agent Two")
	if !errorutil.HasCode(err, errorutil.CodeAlreadyClaimed) {
		t.Fatalf("expected ALREADY_CLAIMED, got %v", err)
	}
}

func TestClaimSecondTicketRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	first := env.openTicket(t, testCustomerID, "first issue")
	second := env.openTicket(t, testCustomerID+1, "second issue")

	if _, err := env.lifecycle.Claim(ctx, first.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := env.lifecycle.Claim(ctx, second.ID, testAgentID, "Agent One")
	if !errorutil.HasCode(err, errorutil.CodeAgentHasActiveTicket) {
		t.Fatalf("expected AGENT_HAS_ACTIVE_TICKET, got %v", err)
	}
}

func TestResolveApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	if _, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	pending, err := env.lifecycle.RequestResolve(ctx, testAgentID, "Agent One", "rebooted the router")
	if err != nil {
		t.Fatalf("RequestResolve: %v", err)
	}
	if pending.State != domain.StatePendingResolution {
		t.Fatalf("state = %s, want PENDING_RESOLUTION", pending.State)
	}

	approved, err := env.lifecycle.Decide(ctx, ticket.ID, testAdminID, "Admin", domain.DecisionResolve, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if approved.State != domain.StateResolvedApproved {
		t.Errorf("state = %s, want RESOLVED_APPROVED", approved.State)
	}
	if approved.AgentID != nil {
		t.Errorf("agent should be released, got %v", *approved.AgentID)
	}

	customer, err := env.store.Customers().GetByID(ctx, testCustomerID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !customer.OpenTicket {
		t.Error("approval should keep the customer's open-ticket flag set")
	}
	if customer.SpamCount != 0 {
		t.Errorf("spam count = %d, want 0", customer.SpamCount)
	}

	decisions, err := env.store.Decisions().ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Outcome != domain.OutcomeApproved {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}
	if decisions[0].Notes != "rebooted the router" {
		t.Errorf("notes = %q", decisions[0].Notes)
	}
}

func TestResolveDecline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	if _, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := env.lifecycle.RequestResolve(ctx, testAgentID, "Agent One", "done?"); err != nil {
		t.Fatalf("RequestResolve: %v", err)
	}

	declined, err := env.lifecycle.Decide(ctx, ticket.ID, testAdminID, "Admin", domain.DecisionResolve, false)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if declined.State != domain.StateClaimed {
		t.Errorf("state = %s, want CLAIMED", declined.State)
	}
	if declined.AgentID == nil || *declined.AgentID != testAgentID {
		t.Error("agent assignment must survive a decline")
	}
	if declined.ResolutionSummary != "" {
		t.Errorf("summary should be cleared, got %q", declined.ResolutionSummary)
	}

	decisions, err := env.store.Decisions().ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Outcome != domain.OutcomeDeclined {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}
}

func TestDecideRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ticket := env.openTicket(t, testCustomerID, "help")

	_, err := env.lifecycle.Decide(context.Background(), ticket.ID, testAgentID, "Agent", domain.DecisionResolve, true)
	if !errorutil.HasCode(err, errorutil.CodeNotAdmin) {
		t.Fatalf("expected NOT_ADMIN, got %v", err)
	}
}

func TestRequestResolveWithoutTicket(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, testAgentID, "Agent One")

	_, err := env.lifecycle.RequestResolve(context.Background(), testAgentID, "Agent One", "nothing to resolve")
	if !errorutil.HasCode(err, errorutil.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func approveResolved(t *testing.T, env *testEnv, ticketID int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.lifecycle.Claim(ctx, ticketID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := env.lifecycle.RequestResolve(ctx, testAgentID, "Agent One", "fixed"); err != nil {
		t.Fatalf("RequestResolve: %v", err)
	}
	if _, err := env.lifecycle.Decide(ctx, ticketID, testAdminID, "Admin", domain.DecisionResolve, true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
}

func TestRaiseReturnsToQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	approveResolved(t, env, ticket.ID)

	raised, err := env.lifecycle.Raise(ctx, ticket.ID, testAdminID, "Admin")
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if raised.State != domain.StateUnclaimed || raised.AgentID != nil {
		t.Fatalf("unexpected ticket after raise: %+v", raised)
	}

	customer, err := env.store.Customers().GetByID(ctx, testCustomerID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !customer.OpenTicket {
		t.Error("customer should have an open ticket again")
	}
}

func TestHandleByAdminWithoutProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	approveResolved(t, env, ticket.ID)

	handled, err := env.lifecycle.Handle(ctx, ticket.ID, testAdminID, "Admin")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if handled.State != domain.StateClaimed {
		t.Errorf("state = %s, want CLAIMED", handled.State)
	}
	if handled.AgentID != nil {
		t.Errorf("admin has no agent profile, assignment should be empty, got %v", *handled.AgentID)
	}
}

func TestCloseFinallyIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	approveResolved(t, env, ticket.ID)

	closed, err := env.lifecycle.CloseFinally(ctx, ticket.ID, testAdminID, "Admin")
	if err != nil {
		t.Fatalf("CloseFinally: %v", err)
	}
	if closed.State != domain.StateFinallyClosed || closed.ClosedAt == nil {
		t.Fatalf("unexpected ticket: %+v", closed)
	}

	if _, err := env.lifecycle.Raise(ctx, ticket.ID, testAdminID, "Admin"); !errorutil.HasCode(err, errorutil.CodeTicketFinalized) {
		t.Errorf("Raise after final close: expected TICKET_FINALIZED, got %v", err)
	}
	if _, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One"); !errorutil.HasCode(err, errorutil.CodeTicketFinalized) {
		t.Errorf("Claim after final close: expected TICKET_FINALIZED, got %v", err)
	}

	decisions, err := env.store.Decisions().ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	final := decisions[len(decisions)-1]
	if final.Outcome != domain.OutcomeFinal {
		t.Errorf("last decision outcome = %s, want final", final.Outcome)
	}
}

func TestDecisionRecordsAdminAgentProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")

	ticket := env.openTicket(t, testCustomerID, "help")
	approveResolved(t, env, ticket.ID)

	decisions, err := env.store.Decisions().ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("decisions len = %d, want 1", len(decisions))
	}
	if decisions[0].AdminID != nil {
		t.Errorf("admin without an agent profile must record no agent, got %v", *decisions[0].AdminID)
	}

	if _, err := env.lifecycle.CloseFinally(ctx, ticket.ID, testAdminID, "Admin"); err != nil {
		t.Fatalf("CloseFinally: %v", err)
	}
	decisions, err = env.store.Decisions().ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if final := decisions[len(decisions)-1]; final.AdminID != nil {
		t.Errorf("final close by a profile-less admin must record no agent, got %v", *final.AdminID)
	}

	// An admin who also registered as an agent is linked to that profile.
	env.seedAgent(t, testAdminID, "Admin Agent")
	second := env.openTicket(t, testCustomerID+1, "another issue")
	approveResolved(t, env, second.ID)

	decisions, err = env.store.Decisions().ListByTicket(ctx, second.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if len(decisions) != 1 || decisions[0].AdminID == nil || *decisions[0].AdminID != testAdminID {
		t.Fatalf("expected the admin's agent profile on the decision, got %+v", decisions)
	}
}

func TestRaiseDoesNotRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	approveResolved(t, env, ticket.ID)

	raised, err := env.lifecycle.Raise(ctx, ticket.ID, testAgentID, "Agent One")
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if raised.State != domain.StateUnclaimed {
		t.Errorf("state = %s, want UNCLAIMED", raised.State)
	}
}

func TestTicketHistoryOrderedByTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	first := textMessage(testCustomerID, "it broke")
	first.SentAt = base
	opened, err := env.intake.HandleCustomerMessage(ctx, first)
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if _, err := env.lifecycle.Claim(ctx, opened.Ticket.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	reply := textMessage(testAgentID, "try rebooting")
	reply.SentAt = base.Add(time.Minute)
	if _, _, err := env.intake.AgentReply(ctx, testAgentID, reply); err != nil {
		t.Fatalf("AgentReply: %v", err)
	}

	followUp := textMessage(testCustomerID, "still broken")
	followUp.SentAt = base.Add(2 * time.Minute)
	if _, err := env.intake.HandleCustomerMessage(ctx, followUp); err != nil {
		t.Fatalf("follow-up: %v", err)
	}

	_, history, err := env.lifecycle.TicketHistory(ctx, opened.Ticket.ID)
	if err != nil {
		t.Fatalf("TicketHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history len = %d, want 3", len(history))
	}
	want := []struct {
		body      string
		fromAgent bool
	}{
		{"it broke", false},
		{"try rebooting", true},
		{"still broken", false},
	}
	for i, w := range want {
		if history[i].Body != w.body || history[i].FromAgent != w.fromAgent {
			t.Errorf("entry %d = %+v, want %+v", i, history[i], w)
		}
		if history[i].At.IsZero() {
			t.Errorf("entry %d carries no timestamp", i)
		}
	}
}

func TestRaiseRequiresApprovedState(t *testing.T) {
	env := newTestEnv(t)
	ticket := env.openTicket(t, testCustomerID, "help")

	_, err := env.lifecycle.Raise(context.Background(), ticket.ID, testAdminID, "Admin")
	if !errorutil.HasCode(err, errorutil.CodeNotApproved) {
		t.Fatalf("expected NOT_APPROVED, got %v", err)
	}
}
