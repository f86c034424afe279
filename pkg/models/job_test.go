package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStatus(t *testing.T) {
	assert.False(t, TerminalStatus(JobStatusPending))
	assert.False(t, TerminalStatus(JobStatusRunning))
	assert.True(t, TerminalStatus(JobStatusCompleted))
	assert.True(t, TerminalStatus(JobStatusFailed))
	assert.True(t, TerminalStatus(JobStatusCancelled))
}

func TestAvgScore(t *testing.T) {
	tests := []struct {
		name string
		bag  ScoreBag
		want float64
	}{
		{"empty bag", ScoreBag{}, 0},
		{"nil bag", nil, 0},
		{"single value", ScoreBag{"a": 4.0}, 4.0},
		{"mean of numerics", ScoreBag{"a": 2.0, "b": 4.0, "c": 6.0}, 4.0},
		{"mixed numeric types", ScoreBag{"a": 1, "b": int64(2), "c": float32(3)}, 2.0},
		{"non-numeric values skipped", ScoreBag{"a": 3.0, "label": "good", "flag": true}, 3.0},
		{"only non-numeric", ScoreBag{"label": "good"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AvgScore(tt.bag), 1e-9)
		})
	}
}

// Re-deriving over a bag that already carries avgScore must not drift.
func TestAvgScoreIgnoresOwnEntry(t *testing.T) {
	bag := ScoreBag{"a": 2.0, "b": 4.0}
	bag[AvgScoreKey] = AvgScore(bag)
	assert.InDelta(t, 3.0, AvgScore(bag), 1e-9)

	bag[AvgScoreKey] = AvgScore(bag)
	assert.InDelta(t, 3.0, bag[AvgScoreKey].(float64), 1e-9)
}
