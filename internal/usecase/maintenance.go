package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MaintenanceOptions configure the background sweep.
type MaintenanceOptions struct {
	// Schedule is a cron expression or an "@every 5m" descriptor.
	Schedule string
	// StaleJobAge is how long a job may sit without progress before the
	// sweep fails it.
	StaleJobAge time.Duration
	// SweepTimeout bounds one sweep run.
	SweepTimeout time.Duration
}

func (o *MaintenanceOptions) defaults() {
	if o.Schedule == "" {
		o.Schedule = "@every 5m"
	}
	if o.StaleJobAge <= 0 {
		o.StaleJobAge = time.Hour
	}
	if o.SweepTimeout <= 0 {
		o.SweepTimeout = time.Minute
	}
}

// Maintenance periodically expires stale jobs and drops idle rate-limit
// entries so neither accumulates unbounded.
type Maintenance struct {
	cron    *cron.Cron
	jobs    *JobManager
	limiter *RateLimitService
	opts    MaintenanceOptions
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewMaintenance creates the sweep; Start schedules it.
func NewMaintenance(jobs *JobManager, limiter *RateLimitService, opts MaintenanceOptions, logger *slog.Logger) *Maintenance {
	opts.defaults()
	return &Maintenance{
		cron:    cron.New(),
		jobs:    jobs,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

// Start schedules the sweep and begins running it.
func (m *Maintenance) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if _, err := m.cron.AddFunc(m.opts.Schedule, m.Sweep); err != nil {
		return err
	}
	m.cron.Start()
	m.started = true
	m.logger.Info("maintenance started", "schedule", m.opts.Schedule, "stale_job_age", m.opts.StaleJobAge)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	<-m.cron.Stop().Done()
	m.started = false
	m.logger.Info("maintenance stopped")
}

// Sweep runs one maintenance pass. It is safe to call directly, outside the
// schedule.
func (m *Maintenance) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.SweepTimeout)
	defer cancel()

	start := time.Now()
	var dropped, expired int
	if m.limiter != nil {
		dropped = m.limiter.Sweep()
	}
	if m.jobs != nil {
		expired = m.jobs.ExpireStale(ctx, m.opts.StaleJobAge)
	}
	m.logger.Info("maintenance sweep completed",
		"expired_jobs", expired,
		"dropped_limit_entries", dropped,
		"duration", time.Since(start),
	)
}
