package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, prompt, template, input_data, provider, model, temperature, top_p, max_tokens,
	status, result, metrics, error_message, tokens_used, cost_usd, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var inputData, metrics []byte
	err := row.Scan(&j.ID, &j.Prompt, &j.Template, &inputData, &j.Provider, &j.Model,
		&j.Temperature, &j.TopP, &j.MaxTokens, &j.Status, &j.Result, &metrics,
		&j.ErrorMessage, &j.TokensUsed, &j.CostUSD, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(inputData) > 0 {
		if err := json.Unmarshal(inputData, &j.InputData); err != nil {
			return nil, fmt.Errorf("decode input_data: %w", err)
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &j.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &j, nil
}

func marshalJSONB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	var inputData any
	if job.InputData != nil {
		var err error
		if inputData, err = marshalJSONB(job.InputData); err != nil {
			return err
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, prompt, template, input_data, provider, model, temperature, top_p, max_tokens, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Prompt, job.Template, inputData, job.Provider, job.Model,
		job.Temperature, job.TopP, job.MaxTokens, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// UpdateJob applies patch atomically, guarded by the expected source
// statuses. The guard is part of the UPDATE's WHERE clause, so two racing
// writers cannot both move the job out of the same state.
func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, patch JobPatch, expectStatus ...string) (*models.Job, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	argIdx := 2

	addSet := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
	}

	if patch.Status != nil {
		addSet("status", *patch.Status)
	}
	if patch.Result != nil {
		addSet("result", *patch.Result)
	}
	if patch.Metrics != nil {
		b, err := marshalJSONB(patch.Metrics)
		if err != nil {
			return nil, err
		}
		addSet("metrics", b)
	}
	if patch.ErrorMessage != nil {
		addSet("error_message", *patch.ErrorMessage)
	}
	if patch.TokensUsed != nil {
		addSet("tokens_used", *patch.TokensUsed)
	}
	if patch.CostUSD != nil {
		addSet("cost_usd", *patch.CostUSD)
	}

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $1", strings.Join(sets, ", "))
	if len(expectStatus) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, expectStatus)
		argIdx++
	}
	query += " RETURNING " + jobColumns

	row := s.pool.QueryRow(ctx, query, args...)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the job is gone or the guard rejected the transition.
		var exists bool
		if checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return nil, fmt.Errorf("update job: %w", checkErr)
		}
		if exists {
			return nil, ErrStatusConflict
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.JobSummary, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Provider != "" {
		conditions = append(conditions, fmt.Sprintf("provider = $%d", argIdx))
		args = append(args, filter.Provider)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT id, created_at, provider, model, cost_usd, (metrics->>'avgScore')::float8
		 FROM jobs WHERE %s ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	summaries := []*models.JobSummary{}
	for rows.Next() {
		var sm models.JobSummary
		if err := rows.Scan(&sm.ID, &sm.CreatedAt, &sm.Provider, &sm.Model, &sm.CostUSD, &sm.AvgScore); err != nil {
			return nil, fmt.Errorf("scan job summary: %w", err)
		}
		summaries = append(summaries, &sm)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) GetPreviousJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE (created_at, seq) < (SELECT created_at, seq FROM jobs WHERE id = $1)
		 ORDER BY created_at DESC, seq DESC LIMIT 1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get previous job: %w", err)
	}
	return j, nil
}
