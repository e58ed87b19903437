package service

import (
	"context"
	"testing"

	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

func TestApplicationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := int64(600)

	step, err := env.registry.BeginApplication(ctx, applicant)
	if err != nil {
		t.Fatalf("BeginApplication: %v", err)
	}
	if step != StepAskName {
		t.Fatalf("step = %s, want ask_name", step)
	}

	step, _, err = env.registry.ContinueApplication(ctx, applicant, "Dana Smith")
	if err != nil {
		t.Fatalf("ContinueApplication: %v", err)
	}
	if step != StepAskLanguage {
		t.Fatalf("step = %s, want ask_language", step)
	}

	step, app, err := env.registry.ContinueApplication(ctx, applicant, "en")
	if err != nil {
		t.Fatalf("ContinueApplication: %v", err)
	}
	if step != StepSubmitted || app == nil || app.FullName != "Dana Smith" {
		t.Fatalf("unexpected submission: step=%s app=%+v", step, app)
	}
	if app.LanguageCode != "en" {
		t.Fatalf("language = %q, want en", app.LanguageCode)
	}

	applicants, err := env.registry.ListApplicants(ctx)
	if err != nil {
		t.Fatalf("ListApplicants: %v", err)
	}
	if len(applicants) != 1 {
		t.Fatalf("applicants = %d, want 1", len(applicants))
	}

	agent, err := env.registry.ApproveApplicant(ctx, testAdminID, applicant)
	if err != nil {
		t.Fatalf("ApproveApplicant: %v", err)
	}
	if agent.TelegramID != applicant || agent.FullName != "Dana Smith" {
		t.Fatalf("unexpected agent: %+v", agent)
	}

	if applicants, _ = env.registry.ListApplicants(ctx); len(applicants) != 0 {
		t.Error("application should be removed after approval")
	}

	if _, err := env.registry.BeginApplication(ctx, applicant); !errorutil.HasCode(err, errorutil.CodeAlreadyRegistered) {
		t.Fatalf("expected ALREADY_REGISTERED, got %v", err)
	}
}

func TestApplicationEmptyInputsReprompt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := int64(601)

	if _, err := env.registry.BeginApplication(ctx, applicant); err != nil {
		t.Fatalf("BeginApplication: %v", err)
	}

	step, _, err := env.registry.ContinueApplication(ctx, applicant, "   ")
	if !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if step != StepAskName {
		t.Fatalf("step = %s, want ask_name", step)
	}

	if _, _, err := env.registry.ContinueApplication(ctx, applicant, "Dana"); err != nil {
		t.Fatalf("name step: %v", err)
	}
	step, _, err = env.registry.ContinueApplication(ctx, applicant, "")
	if !errorutil.HasCode(err, errorutil.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if step != StepAskLanguage {
		t.Fatalf("step = %s, want ask_language", step)
	}
	if !env.registry.ApplicationPending(ctx, applicant) {
		t.Error("application conversation should still be pending")
	}
}

func TestDuplicateApplicationRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := int64(602)

	if _, err := env.registry.BeginApplication(ctx, applicant); err != nil {
		t.Fatalf("BeginApplication: %v", err)
	}
	if _, _, err := env.registry.ContinueApplication(ctx, applicant, "Dana"); err != nil {
		t.Fatalf("name step: %v", err)
	}
	if _, _, err := env.registry.ContinueApplication(ctx, applicant, "en"); err != nil {
		t.Fatalf("language step: %v", err)
	}

	if _, err := env.registry.BeginApplication(ctx, applicant); !errorutil.HasCode(err, errorutil.CodeAlreadyRegistered) {
		t.Fatalf("expected ALREADY_REGISTERED, got %v", err)
	}
}

func TestApproveRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.registry.ApproveApplicant(context.Background(), testAgentID, 600); !errorutil.HasCode(err, errorutil.CodeNotAdmin) {
		t.Fatalf("expected NOT_ADMIN, got %v", err)
	}
	if err := env.registry.DeclineApplicant(context.Background(), testAgentID, 600); !errorutil.HasCode(err, errorutil.CodeNotAdmin) {
		t.Fatalf("expected NOT_ADMIN, got %v", err)
	}
}

func TestApproveUnknownApplicant(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.registry.ApproveApplicant(context.Background(), testAdminID, 999); !errorutil.HasCode(err, errorutil.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
