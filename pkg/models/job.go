// Package models contains shared data models used across the prompt-lab codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// TerminalStatus reports whether a job status is absorbing: once a job is
// completed, failed, or cancelled it never transitions again.
func TerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is one prompt evaluation request plus its lifecycle state and eventual
// output and accounting. Status moves pending -> running -> one of the
// terminal states; the streaming controller is the only writer while a
// stream is open.
type Job struct {
	ID           uuid.UUID      `db:"id"            json:"id"`
	Prompt       string         `db:"prompt"        json:"prompt"`
	Template     *string        `db:"template"      json:"template,omitempty"`
	InputData    map[string]any `db:"input_data"    json:"inputData,omitempty"`
	Provider     string         `db:"provider"      json:"provider"`
	Model        string         `db:"model"         json:"model"`
	Temperature  *float64       `db:"temperature"   json:"temperature,omitempty"`
	TopP         *float64       `db:"top_p"         json:"topP,omitempty"`
	MaxTokens    *int           `db:"max_tokens"    json:"maxTokens,omitempty"`
	Status       string         `db:"status"        json:"status"`
	Result       *string        `db:"result"        json:"result,omitempty"`
	Metrics      ScoreBag       `db:"metrics"       json:"metrics,omitempty"`
	ErrorMessage *string        `db:"error_message" json:"errorMessage,omitempty"`
	TokensUsed   *int           `db:"tokens_used"   json:"tokensUsed,omitempty"`
	CostUSD      *float64       `db:"cost_usd"      json:"costUsd,omitempty"`
	CreatedAt    time.Time      `db:"created_at"    json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at"    json:"updatedAt"`
}

// JobSummary is the list-view projection of a Job. It carries no prompt or
// result payload; avg_score is read back from the persisted metrics bag, not
// recomputed at list time.
type JobSummary struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Provider  string    `db:"provider"   json:"provider"`
	Model     string    `db:"model"      json:"model"`
	CostUSD   *float64  `db:"cost_usd"   json:"costUsd,omitempty"`
	AvgScore  *float64  `db:"avg_score"  json:"avgScore,omitempty"`
}

// Comparison pairs two full job records for a read-only diff. It is never
// persisted; rendering the actual diff is the caller's problem.
type Comparison struct {
	BaseJob    *Job `json:"baseJob"`
	CompareJob *Job `json:"compareJob"`
}

// ScoreBag is the opaque result bag returned by the scoring collaborator.
// Only numeric values count toward the derived average.
type ScoreBag map[string]any

// AvgScoreKey is the bag entry holding the derived mean, written once when a
// job completes.
const AvgScoreKey = "avgScore"

// AvgScore returns the arithmetic mean of all numeric values in the bag, or
// 0 if the bag holds none. The avgScore entry itself is skipped so
// re-deriving over a persisted bag is stable.
func AvgScore(bag ScoreBag) float64 {
	var sum float64
	var n int
	for key, v := range bag {
		if key == AvgScoreKey {
			continue
		}
		switch x := v.(type) {
		case float64:
			sum += x
			n++
		case float32:
			sum += float64(x)
			n++
		case int:
			sum += float64(x)
			n++
		case int64:
			sum += float64(x)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
