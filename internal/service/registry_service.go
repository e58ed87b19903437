package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/session"
	"github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// ApplicationStep tells the transport what to ask next in the agent
// application conversation.
type ApplicationStep string

const (
	StepAskName     ApplicationStep = "ask_name"
	StepAskLanguage ApplicationStep = "ask_language"
	StepSubmitted   ApplicationStep = "submitted"
)

// RegistryService manages agent applications and the agent roster.
type RegistryService struct {
	store      repository.Store
	sessions   session.Store
	dispatcher *events.Dispatcher
	bot        config.BotConfig
	registry   config.RegistryConfig
	logger     *zap.Logger
}

func NewRegistryService(
	store repository.Store,
	sessions session.Store,
	dispatcher *events.Dispatcher,
	bot config.BotConfig,
	registry config.RegistryConfig,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{
		store:      store,
		sessions:   sessions,
		dispatcher: dispatcher,
		bot:        bot,
		registry:   registry,
		logger:     logger,
	}
}

// BeginApplication starts the become-agent conversation for a sender.
func (s *RegistryService) BeginApplication(ctx context.Context, senderID int64) (ApplicationStep, error) {
	isAgent, err := s.store.Agents().Exists(ctx, senderID)
	if err != nil {
		return "", err
	}
	if isAgent {
		return "", errorutil.NewInvalidState(errorutil.CodeAlreadyRegistered, "you are already an agent")
	}

	pending, err := s.store.Agents().GetPending(ctx, senderID)
	if err != nil && !errorutil.HasCode(err, errorutil.CodeNotFound) {
		return "", err
	}
	if pending != nil {
		return "", errorutil.NewInvalidState(errorutil.CodeAlreadyRegistered, "your application is already pending")
	}

	st := &session.State{Stage: session.StageApplicationName}
	if err := s.sessions.Put(ctx, senderID, st); err != nil {
		return "", err
	}
	return StepAskName, nil
}

// ContinueApplication advances the conversation with the sender's next
// text input. It returns the step reached and, once submitted, the
// stored application.
func (s *RegistryService) ContinueApplication(ctx context.Context, senderID int64, text string) (ApplicationStep, *domain.PendingApplication, error) {
	st, err := s.sessions.Get(ctx, senderID)
	if err != nil {
		return "", nil, err
	}

	switch st.Stage {
	case session.StageApplicationName:
		name := strings.TrimSpace(text)
		if name == "" {
			return StepAskName, nil, errorutil.NewValidationError("name must not be empty", nil)
		}
		st.Stage = session.StageApplicationLanguage
		st.ApplicantName = name
		if err := s.sessions.Put(ctx, senderID, st); err != nil {
			return "", nil, err
		}
		return StepAskLanguage, nil, nil

	case session.StageApplicationLanguage:
		language := strings.ToLower(strings.TrimSpace(text))
		if language == "" {
			return StepAskLanguage, nil, errorutil.NewValidationError("language must not be empty", nil)
		}

		app := &domain.PendingApplication{
			TelegramID:   senderID,
			FullName:     st.ApplicantName,
			LanguageCode: language,
		}
		if err := s.store.Agents().CreatePending(ctx, app); err != nil {
			return "", nil, err
		}
		if err := s.sessions.Delete(ctx, senderID); err != nil {
			s.logger.Warn("session cleanup failed", zap.Int64("sender", senderID), zap.Error(err))
		}

		ev := events.New(events.AgentApplied, events.Actor{TelegramID: senderID, Name: app.FullName})
		ev.Applicant = app
		s.dispatcher.Publish(ev)
		return StepSubmitted, app, nil

	default:
		return "", nil, session.ErrNotFound
	}
}

// ApplicationPending reports whether the sender is mid-application.
func (s *RegistryService) ApplicationPending(ctx context.Context, senderID int64) bool {
	st, err := s.sessions.Get(ctx, senderID)
	if err != nil {
		return false
	}
	return st.Stage == session.StageApplicationName || st.Stage == session.StageApplicationLanguage
}

// ApproveApplicant promotes a pending applicant to the agent roster.
func (s *RegistryService) ApproveApplicant(ctx context.Context, adminID, applicantID int64) (*domain.Agent, error) {
	if !s.bot.IsAdmin(adminID) {
		return nil, errorutil.NewAuthorization(errorutil.CodeNotAdmin, "only admins can approve applications")
	}

	var agent *domain.Agent
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Store) error {
		app, err := st.Agents().GetPending(ctx, applicantID)
		if err != nil {
			return err
		}

		agent = &domain.Agent{
			TelegramID:   app.TelegramID,
			FullName:     app.FullName,
			LanguageCode: app.LanguageCode,
		}
		if err := st.Agents().Create(ctx, agent); err != nil {
			return err
		}
		return st.Agents().DeletePending(ctx, applicantID)
	})
	if err != nil {
		return nil, err
	}

	ev := events.New(events.AgentApproved, events.Actor{TelegramID: adminID})
	ev.Applicant = &domain.PendingApplication{
		TelegramID:   agent.TelegramID,
		FullName:     agent.FullName,
		LanguageCode: agent.LanguageCode,
	}
	ev.Approved = true
	s.dispatcher.Publish(ev)

	return agent, nil
}

// DeclineApplicant discards a pending application.
func (s *RegistryService) DeclineApplicant(ctx context.Context, adminID, applicantID int64) error {
	if !s.bot.IsAdmin(adminID) {
		return errorutil.NewAuthorization(errorutil.CodeNotAdmin, "only admins can decline applications")
	}
	return s.store.Agents().DeletePending(ctx, applicantID)
}

// ListApplicants returns all pending applications, oldest first.
func (s *RegistryService) ListApplicants(ctx context.Context) ([]domain.PendingApplication, error) {
	return s.store.Agents().ListPending(ctx)
}

// ExpireStaleApplications drops applications older than the configured
// maximum age. Called by the maintenance worker.
func (s *RegistryService) ExpireStaleApplications(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.registry.ApplicationMaxAgeDays)
	return s.store.Agents().DeletePendingOlderThan(ctx, cutoff)
}
