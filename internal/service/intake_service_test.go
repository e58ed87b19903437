package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

func TestIntakeOpensThenQueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "it broke"))
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if first.Outcome != OutcomeOpened || !first.Message.Forwarded {
		t.Fatalf("first message: %+v", first)
	}

	for i := 2; i <= 3; i++ {
		result, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, fmt.Sprintf("update %d", i)))
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if result.Outcome != OutcomeQueued || result.Position != i {
			t.Fatalf("message %d: %+v", i, result)
		}
		if result.Message.Forwarded {
			t.Errorf("queued message %d must not be forwarded", i)
		}
		if result.Ticket.ID != first.Ticket.ID {
			t.Errorf("message %d landed on ticket %d, want %d", i, result.Ticket.ID, first.Ticket.ID)
		}
	}

	_, err = env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "anyone there?"))
	if !errorutil.HasCode(err, errorutil.CodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}

	pending, err := env.store.Messages().CountQueuedByTicket(ctx, first.Ticket.ID)
	if err != nil {
		t.Fatalf("CountQueuedByTicket: %v", err)
	}
	if pending != 2 {
		t.Errorf("queued messages = %d, want 2 (rejected message must leave no record)", pending)
	}
}

func TestIntakeNewTicketAfterApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	approveResolved(t, env, ticket.ID)

	result, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "it broke again"))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if result.Outcome != OutcomeOpened {
		t.Fatalf("expected a fresh ticket, got %+v", result)
	}
	if result.Ticket.ID == ticket.ID {
		t.Error("approved ticket must not collect new messages")
	}
}

func TestIntakeProfanityEscalatesToBan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Mixed case hits the screen too.
	for i, text := range []string{"BadWord", "BADWORD"} {
		_, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, text))
		if !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
			t.Fatalf("warning %d: expected VALIDATION_FAILED, got %v", i+1, err)
		}
	}

	_, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "badword"))
	if !errorutil.HasCode(err, errorutil.CodeBanned) {
		t.Fatalf("third strike: expected BANNED, got %v", err)
	}

	_, err = env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "a perfectly polite message"))
	if !errorutil.HasCode(err, errorutil.CodeBanned) {
		t.Fatalf("banned customer: expected BANNED, got %v", err)
	}
}

func TestValidateAttachment(t *testing.T) {
	env := newTestEnv(t)

	if err := env.intake.ValidateAttachment("report.pdf", "application/pdf"); err != nil {
		t.Errorf("pdf should pass: %v", err)
	}
	if err := env.intake.ValidateAttachment("photo.JPG", "image/jpeg"); err != nil {
		t.Errorf("jpg should pass regardless of case: %v", err)
	}
	if err := env.intake.ValidateAttachment("malware.exe", "application/octet-stream"); !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
		t.Errorf("exe should be rejected, got %v", err)
	}
	if err := env.intake.ValidateAttachment("", "text/plain"); !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
		t.Errorf("disallowed mime should be rejected, got %v", err)
	}
	if err := env.intake.ValidateAttachment("", ""); err != nil {
		t.Errorf("nothing to check should pass: %v", err)
	}
}

func TestIntakeRejectsDisallowedMedia(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.intake.HandleCustomerMessage(context.Background(),
		mediaMessage(testCustomerID, domain.KindDocument, "springs.exe", "application/octet-stream", "here"))
	if !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestIntakeRejectsVideo(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.intake.HandleCustomerMessage(context.Background(),
		mediaMessage(testCustomerID, domain.KindVideo, "", "", "clip of the bug"))
	if !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestCaptionRateLimitDiscardsHeldMedia(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "msg")); err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
	}

	held, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(testCustomerID, domain.KindPhoto, "screen.png", "image/png", ""))
	if err != nil {
		t.Fatalf("media without caption: %v", err)
	}

	_, err = env.intake.AttachCaption(ctx, testCustomerID, "one too many")
	if !errorutil.HasCode(err, errorutil.CodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if env.intake.CaptionPending(ctx, testCustomerID) {
		t.Error("caption session should be discarded")
	}
	if _, err := env.store.Messages().GetCustomerMessage(ctx, held.Message.ID); !errorutil.HasCode(err, errorutil.CodeNotFound) {
		t.Fatalf("held message should be deleted, got %v", err)
	}
}

func TestIntakeStampsMessageTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before := time.Now().UTC()
	result, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "it broke"))
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	stored, err := env.store.Messages().GetCustomerMessage(ctx, result.Message.ID)
	if err != nil {
		t.Fatalf("GetCustomerMessage: %v", err)
	}
	if stored.SentAt.IsZero() || stored.SentAt.Before(before) {
		t.Fatalf("sent_at = %v, want a receive-time stamp", stored.SentAt)
	}

	// The transport timestamp wins when the platform supplied one.
	in := textMessage(testCustomerID, "more detail")
	in.SentAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	queued, err := env.intake.HandleCustomerMessage(ctx, in)
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	stored, err = env.store.Messages().GetCustomerMessage(ctx, queued.Message.ID)
	if err != nil {
		t.Fatalf("GetCustomerMessage: %v", err)
	}
	if !stored.SentAt.Equal(in.SentAt) {
		t.Errorf("sent_at = %v, want %v", stored.SentAt, in.SentAt)
	}
}

func TestMediaCaptionSkipsProfanityScreen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(testCustomerID, domain.KindDocument, "invoice.pdf", "application/pdf", "badword in the caption"))
	if err != nil {
		t.Fatalf("captioned media: %v", err)
	}
	if result.Outcome != OutcomeOpened {
		t.Fatalf("expected opened, got %+v", result)
	}

	customer, err := env.store.Customers().GetByID(ctx, testCustomerID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if customer.SpamCount != 0 {
		t.Errorf("spam count = %d, want 0", customer.SpamCount)
	}

	// Captions supplied after the fact pass untouched as well.
	other := testCustomerID + 1
	if _, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(other, domain.KindPhoto, "screen.png", "image/png", "")); err != nil {
		t.Fatalf("media without caption: %v", err)
	}
	routed, err := env.intake.AttachCaption(ctx, other, "badword again")
	if err != nil {
		t.Fatalf("AttachCaption: %v", err)
	}
	if routed.Outcome != OutcomeOpened || routed.Message.Body != "badword again" {
		t.Fatalf("unexpected result: %+v", routed)
	}
}

func TestNewHeldMediaSupersedesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(testCustomerID, domain.KindPhoto, "one.png", "image/png", ""))
	if err != nil {
		t.Fatalf("first media: %v", err)
	}
	second, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(testCustomerID, domain.KindPhoto, "two.png", "image/png", ""))
	if err != nil {
		t.Fatalf("second media: %v", err)
	}

	if _, err := env.store.Messages().GetCustomerMessage(ctx, first.Message.ID); !errorutil.HasCode(err, errorutil.CodeNotFound) {
		t.Fatalf("superseded media should be deleted, got %v", err)
	}

	routed, err := env.intake.AttachCaption(ctx, testCustomerID, "the second screenshot")
	if err != nil {
		t.Fatalf("AttachCaption: %v", err)
	}
	if routed.Message.ID != second.Message.ID {
		t.Errorf("caption attached to message %d, want %d", routed.Message.ID, second.Message.ID)
	}
}

func TestCaptionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	held, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(testCustomerID, domain.KindPhoto, "screen.png", "image/png", ""))
	if err != nil {
		t.Fatalf("media without caption: %v", err)
	}
	if held.Outcome != OutcomeHeld || held.Ticket != nil {
		t.Fatalf("media must be held back, got %+v", held)
	}
	if !env.intake.CaptionPending(ctx, testCustomerID) {
		t.Fatal("caption should be pending")
	}

	routed, err := env.intake.AttachCaption(ctx, testCustomerID, "screenshot of the error")
	if err != nil {
		t.Fatalf("AttachCaption: %v", err)
	}
	if routed.Outcome != OutcomeOpened {
		t.Fatalf("expected opened, got %+v", routed)
	}
	if routed.Message.Body != "screenshot of the error" {
		t.Errorf("body = %q", routed.Message.Body)
	}
	if env.intake.CaptionPending(ctx, testCustomerID) {
		t.Error("caption session should be cleared")
	}
}

func TestCaptionCancelLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	held, err := env.intake.HandleCustomerMessage(ctx,
		mediaMessage(testCustomerID, domain.KindPhoto, "screen.png", "image/png", ""))
	if err != nil {
		t.Fatalf("media without caption: %v", err)
	}

	if err := env.intake.CancelCaption(ctx, testCustomerID); err != nil {
		t.Fatalf("CancelCaption: %v", err)
	}
	if _, err := env.store.Messages().GetCustomerMessage(ctx, held.Message.ID); !errorutil.HasCode(err, errorutil.CodeNotFound) {
		t.Fatalf("cancelled media must be deleted, got %v", err)
	}
	if env.intake.CaptionPending(ctx, testCustomerID) {
		t.Error("caption session should be cleared")
	}
}

func TestMediaWithCaptionRoutesDirectly(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.intake.HandleCustomerMessage(context.Background(),
		mediaMessage(testCustomerID, domain.KindDocument, "invoice.pdf", "application/pdf", "see attached"))
	if err != nil {
		t.Fatalf("media with caption: %v", err)
	}
	if result.Outcome != OutcomeOpened || result.Message.Body != "see attached" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAgentReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")
	if _, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	gotTicket, msg, err := env.intake.AgentReply(ctx, testAgentID, textMessage(testAgentID, "looking into it"))
	if err != nil {
		t.Fatalf("AgentReply: %v", err)
	}
	if gotTicket.ID != ticket.ID || msg.CustomerID != testCustomerID {
		t.Fatalf("reply routed wrong: ticket=%d msg=%+v", gotTicket.ID, msg)
	}

	replies, err := env.store.Messages().ListAgentMessagesByCustomer(ctx, testCustomerID)
	if err != nil {
		t.Fatalf("ListAgentMessagesByCustomer: %v", err)
	}
	if len(replies) != 1 || replies[0].Body != "looking into it" {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestAgentReplyWithoutTicket(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, testAgentID, "Agent One")

	_, _, err := env.intake.AgentReply(context.Background(), testAgentID, textMessage(testAgentID, "hello?"))
	if !errorutil.HasCode(err, errorutil.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestAgentReplyRequiresProfile(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.intake.AgentReply(context.Background(), 777, textMessage(777, "hi"))
	if !errorutil.HasCode(err, errorutil.CodeNotAnAgent) {
		t.Fatalf("expected NOT_AN_AGENT, got %v", err)
	}
}

func TestIntakeForwardsOnClaimedTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")

	if _, err := env.lifecycle.Claim(ctx, ticket.ID, testAgentID, "Agent One"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// Well past the queue threshold; claimed tickets do not queue.
	for i := 0; i < 5; i++ {
		result, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "update"))
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		if result.Outcome != OutcomeForwarded {
			t.Fatalf("outcome = %s, want forwarded", result.Outcome)
		}
		if !result.Message.Forwarded {
			t.Error("message should be marked forwarded")
		}
		if result.Ticket.AgentID == nil || *result.Ticket.AgentID != testAgentID {
			t.Fatalf("unexpected ticket agent: %+v", result.Ticket.AgentID)
		}
	}
}

func TestIntakeRejectsStaffSenders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")

	if _, err := env.intake.HandleCustomerMessage(ctx, textMessage(testAgentID, "hi")); !errorutil.HasCode(err, errorutil.CodeRoleViolation) {
		t.Fatalf("agent sender: expected ROLE_VIOLATION, got %v", err)
	}
	if _, err := env.intake.HandleCustomerMessage(ctx, textMessage(testAdminID, "hi")); !errorutil.HasCode(err, errorutil.CodeRoleViolation) {
		t.Fatalf("admin sender: expected ROLE_VIOLATION, got %v", err)
	}
}

func TestRaisedTicketAcceptsNewMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAgent(t, testAgentID, "Agent One")
	ticket := env.openTicket(t, testCustomerID, "help")

	for i := 2; i <= 3; i++ {
		if _, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "more")); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	approveResolved(t, env, ticket.ID)
	if _, err := env.lifecycle.Raise(ctx, ticket.ID, testAdminID, "Admin"); err != nil {
		t.Fatalf("Raise: %v", err)
	}

	// Raising marks the backlog forwarded, so the queue has room again.
	result, err := env.intake.HandleCustomerMessage(ctx, textMessage(testCustomerID, "still broken"))
	if err != nil {
		t.Fatalf("message after raise: %v", err)
	}
	if result.Outcome != OutcomeQueued || result.Ticket.ID != ticket.ID {
		t.Fatalf("expected queue onto the raised ticket, got %+v", result)
	}
	if result.Position != 2 {
		t.Errorf("position = %d, want 2", result.Position)
	}
}
