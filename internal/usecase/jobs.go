package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"boardpilot/internal/domain"
)

// ProgressNotifier receives live job updates for streaming surfaces (the
// gateway's websocket hub). Implementations must not block.
type ProgressNotifier interface {
	NotifyProgress(canvasID, jobID string, status domain.JobStatus, entry domain.ProgressEntry)
}

// JobManager tracks command jobs for idempotent resumption. Every store
// failure here is best-effort: bookkeeping is logged and never blocks the
// command itself.
type JobManager struct {
	store    domain.JobStore
	logger   *slog.Logger
	notifier ProgressNotifier
	now      func() time.Time // injectable for tests
}

// NewJobManager creates a job manager over the given store.
func NewJobManager(store domain.JobStore, logger *slog.Logger) *JobManager {
	return &JobManager{store: store, logger: logger, now: time.Now}
}

// SetNotifier enables live progress notification.
func (m *JobManager) SetNotifier(n ProgressNotifier) { m.notifier = n }

// NewJobID generates a job id for requests that did not supply one.
func NewJobID() string { return ulid.Make().String() }

// Begin loads or creates the job for req. When the job already completed,
// the cached result is returned (tier "cached") and the caller must not
// re-execute; cached is nil otherwise. A pre-existing non-terminal job is
// resumed in place: terminal states are immutable, pending ones are not.
func (m *JobManager) Begin(ctx context.Context, req domain.CommandRequest) (job *domain.Job, cached *domain.ExecutionResult, err error) {
	existing, loadErr := m.store.LoadJob(ctx, req.CanvasID, req.JobID)
	if loadErr != nil && !errors.Is(loadErr, domain.ErrNotFound) {
		m.logger.Warn("job lookup failed, treating as new", "job_id", req.JobID, "error", loadErr)
	}

	if existing != nil && existing.Status.Terminal() {
		result := existing.Result
		if result == nil {
			result = &domain.ExecutionResult{
				Success: existing.Status == domain.JobCompleted,
				Message: "job already finished",
			}
		}
		copied := *result
		copied.ModelTier = domain.TierCached
		return existing, &copied, nil
	}

	now := m.now()
	if existing != nil {
		existing.Status = domain.JobPending
		existing.UpdatedAt = now
		m.save(ctx, existing)
		return existing, nil, nil
	}

	startVersion, verErr := m.store.GetVersion(ctx, req.CanvasID)
	if verErr != nil {
		m.logger.Warn("version read failed", "canvas_id", req.CanvasID, "error", verErr)
	}
	job = &domain.Job{
		CanvasID:     req.CanvasID,
		JobID:        req.JobID,
		Command:      req.Command,
		UserID:       req.UserID,
		Status:       domain.JobPending,
		StartVersion: startVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.save(ctx, job)
	return job, nil, nil
}

// Transition moves the job to a new non-terminal status with a progress note.
func (m *JobManager) Transition(ctx context.Context, job *domain.Job, status domain.JobStatus, note string) {
	if job == nil || job.Status.Terminal() {
		return
	}
	job.Status = status
	m.appendProgress(ctx, job, note)
}

// Progress appends a human-readable step to the job's trail.
func (m *JobManager) Progress(ctx context.Context, job *domain.Job, note string) {
	if job == nil || job.Status.Terminal() {
		return
	}
	m.appendProgress(ctx, job, note)
}

// Complete finalizes the job successfully, stamping the canvas end version.
// The bumped version is returned for callers that report it; 0 when the
// version bump failed.
func (m *JobManager) Complete(ctx context.Context, job *domain.Job, result *domain.ExecutionResult) int64 {
	if job == nil {
		return 0
	}
	endVersion, err := m.store.IncrementVersion(ctx, job.CanvasID)
	if err != nil {
		m.logger.Warn("version bump failed", "canvas_id", job.CanvasID, "error", err)
	}
	job.Status = domain.JobCompleted
	job.EndVersion = endVersion
	job.Result = result
	m.appendProgress(ctx, job, "completed")
	return endVersion
}

// Fail finalizes the job as failed, caching the failure result for duplicate
// submissions.
func (m *JobManager) Fail(ctx context.Context, job *domain.Job, result *domain.ExecutionResult) {
	if job == nil {
		return
	}
	job.Status = domain.JobFailed
	job.Result = result
	m.appendProgress(ctx, job, "failed")
}

// ExpireStale fails every non-terminal job older than maxAge. Returns the
// number of jobs expired; used by the maintenance sweep.
func (m *JobManager) ExpireStale(ctx context.Context, maxAge time.Duration) int {
	stale, err := m.store.ListStaleJobs(ctx, int64(maxAge.Seconds()))
	if err != nil {
		m.logger.Warn("stale job scan failed", "error", err)
		return 0
	}
	expired := 0
	for i := range stale {
		job := &stale[i]
		job.Status = domain.JobFailed
		job.Result = &domain.ExecutionResult{
			Success: false,
			Message: "job expired: no progress within " + maxAge.String(),
		}
		m.appendProgress(ctx, job, "expired by maintenance sweep")
		expired++
	}
	return expired
}

func (m *JobManager) appendProgress(ctx context.Context, job *domain.Job, note string) {
	entry := domain.ProgressEntry{Note: note, At: m.now()}
	job.Progress = append(job.Progress, entry)
	job.UpdatedAt = entry.At
	m.save(ctx, job)
	if m.notifier != nil {
		m.notifier.NotifyProgress(job.CanvasID, job.JobID, job.Status, entry)
	}
}

func (m *JobManager) save(ctx context.Context, job *domain.Job) {
	if err := m.store.SaveJob(ctx, job); err != nil {
		m.logger.Warn("job save failed", "job_id", job.JobID, "status", job.Status, "error", err)
	}
}
