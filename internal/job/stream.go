package job

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Deharath/prompt-lab-sub000/internal/metrics"
	"github.com/Deharath/prompt-lab-sub000/internal/pricing"
	"github.com/Deharath/prompt-lab-sub000/internal/store"
	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

// EventType discriminates stream events.
type EventType string

const (
	// EventToken carries one text chunk, forwarded in provider order.
	EventToken EventType = "token"
	// EventMetrics is the terminal event of a successful stream and carries
	// the completed job with result, metrics, and accounting attached.
	EventMetrics EventType = "metrics"
	// EventError is the terminal event of a failed or cancelled stream.
	EventError EventType = "error"
)

// Event is one server-to-client stream event. Exactly one terminal event
// (metrics or error) is emitted per stream open, always last.
type Event struct {
	Type    EventType
	Token   string
	Job     *models.Job
	Message string
}

const cancelledMessage = "Job cancelled by user"

// OpenStream starts streaming a job's output. For a job already in a
// terminal state it short-circuits: the stored record comes back with a nil
// events channel and no provider call is made, so a reconnecting client
// retrieves its result without re-billing. Otherwise the job moves to
// running and events arrive on the returned channel until the terminal
// event, after which the channel is closed.
//
// The provider call runs on a context detached from ctx: if the client
// disconnects, the job keeps running and is persisted normally; events that
// cannot be delivered are dropped.
func (s *Service) OpenStream(ctx context.Context, id uuid.UUID) (*models.Job, <-chan Event, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if models.TerminalStatus(job.Status) {
		return job, nil, nil
	}

	capability, err := s.registry.Validate(job.Provider, job.Model)
	if err != nil {
		return nil, nil, err
	}

	running := models.JobStatusRunning
	job, err = s.store.UpdateJob(ctx, id, store.JobPatch{Status: &running}, models.JobStatusPending)
	if errors.Is(err, store.ErrStatusConflict) {
		// Someone else moved the job first. Terminal: serve the stored
		// record. Running: a second concurrent stream would double-bill.
		current, getErr := s.store.GetJob(ctx, id)
		if getErr != nil {
			return nil, nil, getErr
		}
		if models.TerminalStatus(current.Status) {
			return current, nil, nil
		}
		return nil, nil, ErrAlreadyStreaming
	}
	if err != nil {
		return nil, nil, err
	}

	metrics.JobStarted()
	_ = s.cache.SetJobStatus(ctx, id, models.JobStatusRunning, statusCacheTTL)

	runCtx, cancel := context.WithCancel(context.Background())
	s.runs.add(id, cancel)

	events := make(chan Event, 64)
	go s.run(runCtx, cancel, ctx, job, capability, events)

	return job, events, nil
}

// run drives one provider call to its end and persists the terminal
// transition. The store's expected-previous-status guard arbitrates the race
// against Cancel: whichever write lands first wins, and the loser abandons
// its transition.
func (s *Service) run(runCtx context.Context, cancel context.CancelFunc, clientCtx context.Context, job *models.Job, capability models.Capability, events chan<- Event) {
	defer close(events)
	defer s.runs.remove(job.ID)
	defer cancel()

	// Store writes use a fresh context so a cooperative cancellation of the
	// provider call cannot abort the authoritative persistence write.
	persistCtx := context.Background()
	start := time.Now()

	chunks, err := capability.Stream(runCtx, models.GenerationRequest{
		Model:       job.Model,
		Prompt:      job.Prompt,
		Temperature: job.Temperature,
		TopP:        job.TopP,
		MaxTokens:   job.MaxTokens,
	})
	if err != nil {
		s.finishFailed(persistCtx, clientCtx, job, "", err.Error(), events)
		return
	}

	var acc strings.Builder
	var usage *models.Usage
	done := false

	for chunk := range chunks {
		if chunk.Err != nil {
			s.finishFailed(persistCtx, clientCtx, job, acc.String(), chunk.Err.Error(), events)
			return
		}
		if chunk.Delta != "" {
			acc.WriteString(chunk.Delta)
			s.emit(clientCtx, events, Event{Type: EventToken, Token: chunk.Delta})
		}
		if chunk.Done {
			usage = chunk.Usage
			done = true
			break
		}
	}

	if !done && runCtx.Err() != nil {
		// Cancelled before natural end. The cancel write already holds the
		// terminal state; keep whatever partial output we accumulated.
		s.retainPartial(persistCtx, job, acc.String())
		s.emit(clientCtx, events, Event{Type: EventError, Message: cancelledMessage})
		return
	}

	s.finishCompleted(persistCtx, clientCtx, job, acc.String(), usage, start, events)
}

// finishCompleted computes accounting and metrics and persists the
// running -> completed transition.
func (s *Service) finishCompleted(persistCtx, clientCtx context.Context, job *models.Job, result string, usage *models.Usage, start time.Time, events chan<- Event) {
	tokens := 0
	if usage != nil && usage.TotalTokens > 0 {
		tokens = usage.TotalTokens
	} else {
		tokens = pricing.CountTokens(job.Model, job.Prompt) + pricing.CountTokens(job.Model, result)
	}
	cost := pricing.Cost(job.Model, tokens)

	bag, err := s.scorer.Score(persistCtx, result)
	if err != nil {
		slog.Warn("scoring collaborator failed", "error", err, "job_id", job.ID)
		bag = models.ScoreBag{}
	}
	if bag == nil {
		bag = models.ScoreBag{}
	}
	// avgScore covers the scorer's values only; durationMs is attached after.
	bag[models.AvgScoreKey] = models.AvgScore(bag)
	durationMs := time.Since(start).Milliseconds()
	bag["durationMs"] = float64(durationMs)

	completed := models.JobStatusCompleted
	updated, err := s.store.UpdateJob(persistCtx, job.ID, store.JobPatch{
		Status:     &completed,
		Result:     &result,
		Metrics:    bag,
		TokensUsed: &tokens,
		CostUSD:    &cost,
	}, models.JobStatusRunning)

	if errors.Is(err, store.ErrStatusConflict) {
		// A cancel landed first; the store is the source of truth.
		s.retainPartial(persistCtx, job, result)
		s.emit(clientCtx, events, Event{Type: EventError, Message: cancelledMessage})
		return
	}
	if err != nil {
		slog.Error("persist completed job", "error", err,
			"job_id", job.ID, "provider", job.Provider, "model", job.Model)
		s.emit(clientCtx, events, Event{Type: EventError, Message: "An unexpected error occurred"})
		return
	}

	_ = s.cache.SetJobStatus(persistCtx, job.ID, models.JobStatusCompleted, statusCacheTTL)
	metrics.JobFinished(models.JobStatusCompleted)
	metrics.TokensBilled(job.Provider, job.Model, tokens, cost)
	slog.Info("job completed",
		"job_id", job.ID,
		"provider", job.Provider,
		"model", job.Model,
		"tokens_used", tokens,
		"duration_ms", durationMs,
	)

	s.emit(clientCtx, events, Event{Type: EventMetrics, Job: updated})
}

// finishFailed persists running -> failed with whatever partial output the
// stream produced and relays the error as the terminal event.
func (s *Service) finishFailed(persistCtx, clientCtx context.Context, job *models.Job, partial, errText string, events chan<- Event) {
	failed := models.JobStatusFailed
	patch := store.JobPatch{Status: &failed, ErrorMessage: &errText}
	if partial != "" {
		patch.Result = &partial
	}

	_, err := s.store.UpdateJob(persistCtx, job.ID, patch, models.JobStatusRunning)
	if errors.Is(err, store.ErrStatusConflict) {
		s.retainPartial(persistCtx, job, partial)
		s.emit(clientCtx, events, Event{Type: EventError, Message: cancelledMessage})
		return
	}
	if err != nil {
		slog.Error("persist failed job", "error", err,
			"job_id", job.ID, "provider", job.Provider, "model", job.Model)
	} else {
		_ = s.cache.SetJobStatus(persistCtx, job.ID, models.JobStatusFailed, statusCacheTTL)
		metrics.JobFinished(models.JobStatusFailed)
	}
	slog.Info("job failed", "job_id", job.ID, "provider", job.Provider, "error", errText)

	s.emit(clientCtx, events, Event{Type: EventError, Message: errText})
}

// retainPartial attaches partial output to an already-cancelled job without
// touching its status.
func (s *Service) retainPartial(persistCtx context.Context, job *models.Job, partial string) {
	if partial == "" {
		return
	}
	if _, err := s.store.UpdateJob(persistCtx, job.ID, store.JobPatch{Result: &partial},
		models.JobStatusCancelled); err != nil {
		slog.Warn("retain partial result", "error", err, "job_id", job.ID)
	}
}

// emit forwards an event unless the client connection is gone, in which
// case the event is dropped and the job continues server-side.
func (s *Service) emit(clientCtx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-clientCtx.Done():
	}
}
