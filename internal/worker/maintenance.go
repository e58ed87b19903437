package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/service"
)

// Sweeper drops expired entries from a session store that does not
// expire them on its own.
type Sweeper interface {
	Sweep() int
}

// Maintenance runs periodic cleanup jobs.
type Maintenance struct {
	cron     *cron.Cron
	registry *service.RegistryService
	sessions Sweeper
	logger   *zap.Logger
}

// NewMaintenance builds the scheduler. sessions may be nil when the
// session store expires entries itself.
func NewMaintenance(registry *service.RegistryService, sessions Sweeper, logger *zap.Logger) *Maintenance {
	return &Maintenance{
		cron:     cron.New(),
		registry: registry,
		sessions: sessions,
		logger:   logger,
	}
}

// Start registers the jobs and launches the scheduler.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc("@daily", m.expireApplications); err != nil {
		return err
	}
	if m.sessions != nil {
		if _, err := m.cron.AddFunc("@every 10m", m.sweepSessions); err != nil {
			return err
		}
	}
	m.cron.Start()
	m.logger.Info("maintenance scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		m.logger.Warn("maintenance jobs did not finish in time")
	}
}

func (m *Maintenance) expireApplications() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := m.registry.ExpireStaleApplications(ctx)
	if err != nil {
		m.logger.Error("application expiry failed", zap.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Info("expired stale applications", zap.Int64("removed", removed))
	}
}

func (m *Maintenance) sweepSessions() {
	if removed := m.sessions.Sweep(); removed > 0 {
		m.logger.Info("swept expired sessions", zap.Int("removed", removed))
	}
}
