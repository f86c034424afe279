package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Deharath/prompt-lab-sub000/internal/api/response"
	"github.com/Deharath/prompt-lab-sub000/internal/job"
	"github.com/Deharath/prompt-lab-sub000/internal/provider"
	"github.com/Deharath/prompt-lab-sub000/internal/store"
	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

// JobService defines the interface the handlers depend on.
type JobService interface {
	Create(ctx context.Context, p job.CreateParams) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, p job.ListParams) ([]*models.JobSummary, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Retry(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Diff(ctx context.Context, baseID uuid.UUID, otherID *uuid.UUID) (*models.Comparison, error)
	OpenStream(ctx context.Context, id uuid.UUID) (*models.Job, <-chan job.Event, error)
}

// jobID parses the {id} route parameter. Ids are opaque: a malformed id is
// indistinguishable from a missing job and answers 404.
func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, "Job not found")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service errors onto the HTTP error taxonomy.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var policyErr *job.PolicyError
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, job.ErrBaseNotFound),
		errors.Is(err, job.ErrCompareNotFound),
		errors.Is(err, job.ErrNoPreviousJob):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, job.ErrValidation),
		errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, provider.ErrUnsupportedModel),
		errors.Is(err, job.ErrAlreadyStreaming):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &policyErr):
		response.Error(w, http.StatusBadRequest, policyErr.Error())
	case errors.Is(err, provider.ErrMissingCredential):
		response.Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("unexpected error", "error", err, "method", r.Method, "path", r.URL.Path)
		response.Error(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

type createJobRequest struct {
	Prompt      string         `json:"prompt"`
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	Template    *string        `json:"template"`
	InputData   map[string]any `json:"inputData"`
	Temperature *float64       `json:"temperature"`
	TopP        *float64       `json:"topP"`
	MaxTokens   *int           `json:"maxTokens"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		created, err := svc.Create(r.Context(), job.CreateParams{
			Prompt:      req.Prompt,
			Provider:    req.Provider,
			Model:       req.Model,
			Template:    req.Template,
			InputData:   req.InputData,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.Accepted(w, created)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 20
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			limit = n
		}

		offset := 0
		if v := q.Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "offset must be an integer")
				return
			}
			offset = n
		}

		summaries, err := svc.List(r.Context(), job.ListParams{
			Limit:    limit,
			Offset:   offset,
			Provider: q.Get("provider"),
			Status:   q.Get("status"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.JSON(w, summaries)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /jobs/{id}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		j, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.JSON(w, j)
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /jobs/{id}.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.NoContent(w)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for PUT /jobs/{id}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		cancelled, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.JSON(w, map[string]any{
			"message": "Job cancelled",
			"job":     cancelled,
		})
	}
}

// NewRetryJobHandler returns an http.HandlerFunc for POST /jobs/{id}/retry.
func NewRetryJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		clone, err := svc.Retry(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.Created(w, map[string]any{
			"message":       "Job queued for retry",
			"originalJobId": id,
			"newJob":        clone,
		})
	}
}

// NewDiffJobHandler returns an http.HandlerFunc for GET /jobs/{id}/diff.
func NewDiffJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		var otherID *uuid.UUID
		if v := r.URL.Query().Get("otherId"); v != "" {
			parsed, err := uuid.Parse(v)
			if err != nil {
				response.Error(w, http.StatusNotFound, job.ErrCompareNotFound.Error())
				return
			}
			otherID = &parsed
		}

		cmp, err := svc.Diff(r.Context(), id, otherID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.JSON(w, cmp)
	}
}
