package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrStatusConflict is returned by UpdateJob when the row's current status is
// not one of the expected source states. The store is the single source of
// truth for the job state machine: when a cancel races natural completion,
// whichever write lands first wins and the loser sees this error.
var ErrStatusConflict = errors.New("job status conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJob applies patch to the job and returns the updated row. When
	// expectStatus is non-empty the update only applies while the current
	// status is one of the listed values; otherwise ErrStatusConflict.
	UpdateJob(ctx context.Context, id uuid.UUID, patch JobPatch, expectStatus ...string) (*models.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.JobSummary, error)
	// GetPreviousJob returns the job with the greatest created_at strictly
	// before the given job's, ties broken by insertion order, or ErrNotFound.
	GetPreviousJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobFilter narrows and pages a job listing. Limit and Offset are assumed
// validated by the caller.
type JobFilter struct {
	Provider string
	Status   string
	Since    time.Time
	Limit    int
	Offset   int
}

// JobPatch is a partial job update. Nil fields are left untouched;
// updated_at always advances.
type JobPatch struct {
	Status       *string
	Result       *string
	Metrics      models.ScoreBag
	ErrorMessage *string
	TokensUsed   *int
	CostUSD      *float64
}
