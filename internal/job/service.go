// Package job implements the job execution engine: creation, listing,
// retry, diff, cancellation, and the streaming controller that drives a
// provider call and persists the state machine.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Deharath/prompt-lab-sub000/internal/cache"
	"github.com/Deharath/prompt-lab-sub000/internal/metrics"
	"github.com/Deharath/prompt-lab-sub000/internal/provider"
	"github.com/Deharath/prompt-lab-sub000/internal/scoring"
	"github.com/Deharath/prompt-lab-sub000/internal/store"
	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// ErrValidation marks malformed or missing request fields.
var ErrValidation = errors.New("validation error")

// Diff failure sentinels. The texts are part of the API contract and are
// returned to clients verbatim.
var (
	ErrBaseNotFound    = errors.New("Base job not found")
	ErrCompareNotFound = errors.New("Compare job not found")
	ErrNoPreviousJob   = errors.New("No previous job found to compare with")
)

// ErrAlreadyStreaming is returned when a second stream is opened for a job
// that is already running. A concurrent second consumer would double-bill
// the provider call.
var ErrAlreadyStreaming = errors.New("job is already streaming")

// PolicyError reports an operation forbidden by the job's current state.
type PolicyError struct {
	Op     string
	Status string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("Cannot %s job with status %s", e.Op, e.Status)
}

// Service orchestrates job lifecycles. It is the only writer of a job row
// while that job's stream is open.
type Service struct {
	store    store.Store
	registry *provider.Registry
	scorer   scoring.Collaborator
	cache    cache.Cache
	runs     *runRegistry
}

// NewService creates a new Service.
func NewService(st store.Store, registry *provider.Registry, scorer scoring.Collaborator, ca cache.Cache) *Service {
	return &Service{
		store:    st,
		registry: registry,
		scorer:   scorer,
		cache:    ca,
		runs:     newRunRegistry(),
	}
}

// CreateParams is the payload for creating a job. Prompt is the final text
// sent to the provider; Template and InputData are kept for bookkeeping and
// retries.
type CreateParams struct {
	Prompt      string
	Provider    string
	Model       string
	Template    *string
	InputData   map[string]any
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Create validates the payload and writes a new pending job. It never dials
// the provider; streaming is a separate, explicit step.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Job, error) {
	if p.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if p.Provider == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrValidation)
	}
	if p.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrValidation)
	}

	if _, err := s.registry.Validate(p.Provider, p.Model); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Prompt:      p.Prompt,
		Template:    p.Template,
		InputData:   p.InputData,
		Provider:    p.Provider,
		Model:       p.Model,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		MaxTokens:   p.MaxTokens,
		Status:      models.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, job.Status, statusCacheTTL)

	return job, nil
}

// Get returns one job by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Delete removes a job. Missing ids surface as store.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	_ = s.cache.DeleteJobStatus(ctx, id)
	return nil
}

// ListParams pages and filters the summary projection.
type ListParams struct {
	Limit    int
	Offset   int
	Provider string
	Status   string
}

// List returns job summaries, newest first. Pagination is validated before
// the store is queried.
func (s *Service) List(ctx context.Context, p ListParams) ([]*models.JobSummary, error) {
	if p.Limit < 1 || p.Limit > 100 {
		return nil, fmt.Errorf("%w: limit must be between 1 and 100", ErrValidation)
	}
	if p.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrValidation)
	}

	return s.store.ListJobs(ctx, store.JobFilter{
		Provider: p.Provider,
		Status:   p.Status,
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
}

// Retry clones an existing job's request parameters into a brand-new pending
// job. The original is never mutated; retrying a non-terminal job is allowed
// and mirrors a user-initiated "start over".
func (s *Service) Retry(ctx context.Context, originalID uuid.UUID) (*models.Job, error) {
	original, err := s.store.GetJob(ctx, originalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	clone := &models.Job{
		ID:        uuid.New(),
		Prompt:    original.Prompt,
		Template:  original.Template,
		InputData: original.InputData,
		Provider:  original.Provider,
		Model:     original.Model,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, clone); err != nil {
		return nil, fmt.Errorf("creating retry job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, clone.ID, clone.Status, statusCacheTTL)

	return clone, nil
}

// Diff resolves a base/compare job pair. When otherID is nil the compare job
// is the one created immediately before the base job. No diffing happens
// here; both full records go back to the caller.
func (s *Service) Diff(ctx context.Context, baseID uuid.UUID, otherID *uuid.UUID) (*models.Comparison, error) {
	base, err := s.store.GetJob(ctx, baseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBaseNotFound
	}
	if err != nil {
		return nil, err
	}

	var compare *models.Job
	if otherID != nil {
		compare, err = s.store.GetJob(ctx, *otherID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCompareNotFound
		}
	} else {
		compare, err = s.store.GetPreviousJob(ctx, baseID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoPreviousJob
		}
	}
	if err != nil {
		return nil, err
	}

	return &models.Comparison{BaseJob: base, CompareJob: compare}, nil
}

// Cancel moves a pending or running job to cancelled and signals the
// in-flight provider call, if any, to stop. Cancellation of the provider is
// cooperative: marking the job cancelled in the store is authoritative even
// if the provider takes additional time to actually stop.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	status := models.JobStatusCancelled
	msg := "Job cancelled by user"
	updated, err := s.store.UpdateJob(ctx, id, store.JobPatch{
		Status:       &status,
		ErrorMessage: &msg,
	}, models.JobStatusPending, models.JobStatusRunning)

	if errors.Is(err, store.ErrStatusConflict) {
		current, getErr := s.store.GetJob(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &PolicyError{Op: "cancel", Status: current.Status}
	}
	if err != nil {
		return nil, err
	}

	s.runs.cancel(id)

	_ = s.cache.SetJobStatus(ctx, id, models.JobStatusCancelled, statusCacheTTL)
	metrics.JobFinished(models.JobStatusCancelled)
	slog.Info("job cancelled", "job_id", id)

	return updated, nil
}
