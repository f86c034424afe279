package models

import "context"

// Capability is the core interface every LLM vendor integration must
// implement. Never call a specific vendor package directly — always inject
// this interface.
type Capability interface {
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string
	// Models returns the fixed set of model identifiers this provider supports.
	Models() []string
	// Credentialed reports whether the credential the provider needs is
	// present. Providers that need none always report true.
	Credentialed() bool
	// Stream starts producing text chunks for the request. Chunks arrive on
	// the returned channel in generation order; the channel is closed after
	// the final chunk. Cancellation is cooperative: the adapter observes ctx
	// between chunks, so an adapter that ignores ctx keeps consuming
	// upstream resources after the caller has moved on.
	Stream(ctx context.Context, req GenerationRequest) (<-chan StreamChunk, error)
}

// GenerationRequest is the vendor-neutral completion request. Adapters
// translate it into their backend's wire format.
type GenerationRequest struct {
	Model       string
	Prompt      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// StreamChunk is one piece of a streaming response. Exactly one chunk in a
// healthy stream has Done set; Usage rides on that final chunk when the
// vendor reports token counts. A chunk with Err set terminates the stream.
type StreamChunk struct {
	Delta string
	Done  bool
	Usage *Usage
	Err   error
}

// Usage holds normalized token counts from a provider response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
