package job

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deharath/prompt-lab-sub000/internal/config"
	"github.com/Deharath/prompt-lab-sub000/internal/provider"
	"github.com/Deharath/prompt-lab-sub000/internal/provider/mock"
	"github.com/Deharath/prompt-lab-sub000/internal/store"
	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

// --- mocks ---

type storedJob struct {
	job *models.Job
	seq int
}

// mockStore is an in-memory Store with the same expected-previous-status
// guard semantics as the postgres implementation.
type mockStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*storedJob
	nextSeq   int
	createErr error
	updateErr error
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[uuid.UUID]*storedJob)}
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	return &c
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	s.jobs[job.ID] = &storedJob{job: copyJob(job), seq: s.nextSeq}
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(st.job), nil
}

func (s *mockStore) UpdateJob(_ context.Context, id uuid.UUID, patch store.JobPatch, expectStatus ...string) (*models.Job, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if len(expectStatus) > 0 {
		allowed := false
		for _, e := range expectStatus {
			if st.job.Status == e {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, store.ErrStatusConflict
		}
	}
	if patch.Status != nil {
		st.job.Status = *patch.Status
	}
	if patch.Result != nil {
		st.job.Result = patch.Result
	}
	if patch.Metrics != nil {
		st.job.Metrics = patch.Metrics
	}
	if patch.ErrorMessage != nil {
		st.job.ErrorMessage = patch.ErrorMessage
	}
	if patch.TokensUsed != nil {
		st.job.TokensUsed = patch.TokensUsed
	}
	if patch.CostUSD != nil {
		st.job.CostUSD = patch.CostUSD
	}
	st.job.UpdatedAt = time.Now().UTC()
	return copyJob(st.job), nil
}

func (s *mockStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *mockStore) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.JobSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*storedJob
	for _, st := range s.jobs {
		if filter.Provider != "" && st.job.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && st.job.Status != filter.Status {
			continue
		}
		all = append(all, st)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].job.CreatedAt.Equal(all[j].job.CreatedAt) {
			return all[i].job.CreatedAt.After(all[j].job.CreatedAt)
		}
		return all[i].seq > all[j].seq
	})

	summaries := []*models.JobSummary{}
	for i := filter.Offset; i < len(all) && len(summaries) < filter.Limit; i++ {
		j := all[i].job
		sm := &models.JobSummary{
			ID:        j.ID,
			CreatedAt: j.CreatedAt,
			Provider:  j.Provider,
			Model:     j.Model,
			CostUSD:   j.CostUSD,
		}
		if j.Metrics != nil {
			if v, ok := j.Metrics[models.AvgScoreKey].(float64); ok {
				sm.AvgScore = &v
			}
		}
		summaries = append(summaries, sm)
	}
	return summaries, nil
}

func (s *mockStore) GetPreviousJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	var prev *storedJob
	for _, st := range s.jobs {
		if st.seq >= base.seq {
			continue
		}
		if prev == nil || st.seq > prev.seq {
			prev = st
		}
	}
	if prev == nil {
		return nil, store.ErrNotFound
	}
	return copyJob(prev.job), nil
}

type mockCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func newMockCache() *mockCache {
	return &mockCache{statuses: make(map[uuid.UUID]string)}
}

func (c *mockCache) Ping(_ context.Context) error { return nil }
func (c *mockCache) Close() error                 { return nil }

func (c *mockCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *mockCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *mockCache) DeleteJobStatus(_ context.Context, jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, jobID)
	return nil
}

func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

type mockScorer struct {
	bag models.ScoreBag
	err error
}

func (m *mockScorer) Score(_ context.Context, _ string) (models.ScoreBag, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.bag != nil {
		return m.bag, nil
	}
	return models.ScoreBag{"wordCount": 3.0, "charCount": 12.0}, nil
}

// --- helpers ---

func testRegistry(capabilities ...models.Capability) *provider.Registry {
	r := provider.NewRegistry(config.ProvidersConfig{})
	for _, c := range capabilities {
		r.Register(c)
	}
	return r
}

func newTestService(st store.Store, capabilities ...models.Capability) *Service {
	return NewService(st, testRegistry(capabilities...), &mockScorer{}, newMockCache())
}

func createTestJob(t *testing.T, svc *Service, prompt string) *models.Job {
	t.Helper()
	j, err := svc.Create(context.Background(), CreateParams{
		Prompt:   prompt,
		Provider: "mock",
		Model:    "mock-v1",
	})
	require.NoError(t, err)
	return j
}

// --- Create ---

func TestCreateReturnsPendingJobWithUniqueID(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))

	a := createTestJob(t, svc, "first prompt")
	b := createTestJob(t, svc, "second prompt")

	assert.Equal(t, models.JobStatusPending, a.Status)
	assert.Equal(t, models.JobStatusPending, b.Status)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.Result)
	assert.Nil(t, a.Metrics)
	assert.Nil(t, a.TokensUsed)
	assert.Nil(t, a.CostUSD)
	assert.False(t, a.UpdatedAt.Before(a.CreatedAt))
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))

	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{"empty prompt", CreateParams{Provider: "mock", Model: "mock-v1"}, ErrValidation},
		{"empty provider", CreateParams{Prompt: "p", Model: "mock-v1"}, ErrValidation},
		{"empty model", CreateParams{Prompt: "p", Provider: "mock"}, ErrValidation},
		{"unknown provider", CreateParams{Prompt: "p", Provider: "nope", Model: "mock-v1"}, provider.ErrUnknownProvider},
		{"unsupported model", CreateParams{Prompt: "p", Provider: "mock", Model: "bogus"}, provider.ErrUnsupportedModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateMissingCredentialIsDistinct(t *testing.T) {
	uncredentialed := &mock.MockProvider{
		Name_:   "mock",
		Models_: []string{"mock-v1"},
	}
	svc := newTestService(newMockStore(), uncredentialed)

	_, err := svc.Create(context.Background(), CreateParams{
		Prompt: "p", Provider: "mock", Model: "mock-v1",
	})
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
	assert.NotErrorIs(t, err, provider.ErrUnknownProvider)
}

// --- Cancel ---

func TestCancelPendingJob(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, mock.NewScriptedProvider("hi"))
	j := createTestJob(t, svc, "prompt")

	cancelled, err := svc.Cancel(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ErrorMessage)
	assert.Equal(t, "Job cancelled by user", *cancelled.ErrorMessage)
}

func TestCancelTerminalJobIsPolicyError(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, mock.NewScriptedProvider("hi"))
	j := createTestJob(t, svc, "prompt")

	// Force the job terminal behind the service's back.
	completed := models.JobStatusCompleted
	_, err := st.UpdateJob(context.Background(), j.ID, store.JobPatch{Status: &completed})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), j.ID)
	var policyErr *PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "Cannot cancel job with status completed", policyErr.Error())
}

func TestCancelMissingJob(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))

	_, err := svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Retry ---

func TestRetryClonesRequestParameters(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, mock.NewScriptedProvider("hi"))

	tmpl := "Summarize: {{text}}"
	original, err := svc.Create(context.Background(), CreateParams{
		Prompt:    "Summarize: the quick brown fox",
		Provider:  "mock",
		Model:     "mock-v1",
		Template:  &tmpl,
		InputData: map[string]any{"text": "the quick brown fox"},
	})
	require.NoError(t, err)

	clone, err := svc.Retry(context.Background(), original.ID)
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, clone.ID)
	assert.Equal(t, original.Prompt, clone.Prompt)
	assert.Equal(t, original.Provider, clone.Provider)
	assert.Equal(t, original.Model, clone.Model)
	assert.Equal(t, original.Template, clone.Template)
	assert.Equal(t, models.JobStatusPending, clone.Status)

	// Original must be untouched.
	after, err := svc.Get(context.Background(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Status, after.Status)
	assert.Equal(t, original.UpdatedAt, after.UpdatedAt)
}

func TestRetryMissingJob(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))

	_, err := svc.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRetryNonTerminalJobIsAllowed(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, mock.NewScriptedProvider("hi"))
	j := createTestJob(t, svc, "prompt")
	require.Equal(t, models.JobStatusPending, j.Status)

	clone, err := svc.Retry(context.Background(), j.ID)
	require.NoError(t, err)
	assert.NotEqual(t, j.ID, clone.ID)
}

// --- Diff ---

func TestDiffWithExplicitOther(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))
	a := createTestJob(t, svc, "prompt a")
	b := createTestJob(t, svc, "prompt b")

	cmp, err := svc.Diff(context.Background(), a.ID, &b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, cmp.BaseJob.ID)
	assert.Equal(t, b.ID, cmp.CompareJob.ID)
}

func TestDiffDefaultsToPreviousJob(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))
	a := createTestJob(t, svc, "prompt a")
	b := createTestJob(t, svc, "prompt b")

	cmp, err := svc.Diff(context.Background(), b.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, cmp.BaseJob.ID)
	assert.Equal(t, a.ID, cmp.CompareJob.ID)
}

func TestDiffErrors(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))
	a := createTestJob(t, svc, "only job")
	missing := uuid.New()

	_, err := svc.Diff(context.Background(), missing, nil)
	assert.ErrorIs(t, err, ErrBaseNotFound)
	assert.Equal(t, "Base job not found", err.Error())

	_, err = svc.Diff(context.Background(), a.ID, &missing)
	assert.ErrorIs(t, err, ErrCompareNotFound)
	assert.Equal(t, "Compare job not found", err.Error())

	_, err = svc.Diff(context.Background(), a.ID, nil)
	assert.ErrorIs(t, err, ErrNoPreviousJob)
	assert.Equal(t, "No previous job found to compare with", err.Error())
}

// --- List ---

func TestListValidation(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))

	for _, p := range []ListParams{
		{Limit: 0, Offset: 0},
		{Limit: 101, Offset: 0},
		{Limit: 20, Offset: -1},
	} {
		_, err := svc.List(context.Background(), p)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestListLimitReturnsNewestFirst(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))
	createTestJob(t, svc, "older")
	newer := createTestJob(t, svc, "newer")

	summaries, err := svc.List(context.Background(), ListParams{Limit: 1})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, newer.ID, summaries[0].ID)
}

// --- Delete ---

func TestDeleteIsIdempotent404(t *testing.T) {
	svc := newTestService(newMockStore(), mock.NewScriptedProvider("hi"))
	j := createTestJob(t, svc, "prompt")

	require.NoError(t, svc.Delete(context.Background(), j.ID))
	err := svc.Delete(context.Background(), j.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Get(context.Background(), j.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
