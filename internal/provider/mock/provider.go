package mock

import (
	"context"

	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

// MockProvider satisfies models.Capability for testing.
type MockProvider struct {
	Name_         string
	Models_       []string
	Credentialed_ bool
	StreamFunc    func(ctx context.Context, req models.GenerationRequest) (<-chan models.StreamChunk, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Models() []string { return m.Models_ }

func (m *MockProvider) Credentialed() bool { return m.Credentialed_ }

func (m *MockProvider) Stream(ctx context.Context, req models.GenerationRequest) (<-chan models.StreamChunk, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	ch := make(chan models.StreamChunk)
	close(ch)
	return ch, nil
}

// NewScriptedProvider returns a provider that streams the given deltas in
// order, then a final Done chunk with usage proportional to the output.
func NewScriptedProvider(deltas ...string) *MockProvider {
	return &MockProvider{
		Name_:         "mock",
		Models_:       []string{"mock-v1"},
		Credentialed_: true,
		StreamFunc: func(ctx context.Context, _ models.GenerationRequest) (<-chan models.StreamChunk, error) {
			ch := make(chan models.StreamChunk)
			go func() {
				defer close(ch)
				var n int
				for _, d := range deltas {
					n += len(d)
					select {
					case ch <- models.StreamChunk{Delta: d}:
					case <-ctx.Done():
						return
					}
				}
				select {
				case ch <- models.StreamChunk{Done: true, Usage: &models.Usage{
					PromptTokens:     7,
					CompletionTokens: n,
					TotalTokens:      7 + n,
				}}:
				case <-ctx.Done():
				}
			}()
			return ch, nil
		},
	}
}

// NewFailingProvider returns a provider whose Stream call fails outright.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:         "mock",
		Models_:       []string{"mock-v1"},
		Credentialed_: true,
		StreamFunc: func(_ context.Context, _ models.GenerationRequest) (<-chan models.StreamChunk, error) {
			return nil, err
		},
	}
}

// NewMidstreamFailingProvider streams the given deltas, then an error chunk.
func NewMidstreamFailingProvider(err error, deltas ...string) *MockProvider {
	return &MockProvider{
		Name_:         "mock",
		Models_:       []string{"mock-v1"},
		Credentialed_: true,
		StreamFunc: func(ctx context.Context, _ models.GenerationRequest) (<-chan models.StreamChunk, error) {
			ch := make(chan models.StreamChunk)
			go func() {
				defer close(ch)
				for _, d := range deltas {
					select {
					case ch <- models.StreamChunk{Delta: d}:
					case <-ctx.Done():
						return
					}
				}
				select {
				case ch <- models.StreamChunk{Err: err}:
				case <-ctx.Done():
				}
			}()
			return ch, nil
		},
	}
}

// NewBlockingProvider streams the given deltas and then blocks until the
// context is cancelled, for exercising cooperative cancellation.
func NewBlockingProvider(deltas ...string) *MockProvider {
	return &MockProvider{
		Name_:         "mock",
		Models_:       []string{"mock-v1"},
		Credentialed_: true,
		StreamFunc: func(ctx context.Context, _ models.GenerationRequest) (<-chan models.StreamChunk, error) {
			ch := make(chan models.StreamChunk)
			go func() {
				defer close(ch)
				for _, d := range deltas {
					select {
					case ch <- models.StreamChunk{Delta: d}:
					case <-ctx.Done():
						return
					}
				}
				<-ctx.Done()
			}()
			return ch, nil
		},
	}
}

// Compile-time check that MockProvider implements Capability.
var _ models.Capability = (*MockProvider)(nil)
