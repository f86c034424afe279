package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Deharath/prompt-lab-sub000/internal/config"
	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

var supportedModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini"}

// Provider implements models.Capability against the OpenAI chat completions
// API with stream=true.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	// No overall timeout on the client: a stream stays open as long as the
	// model keeps producing. Cancellation comes from the request context.
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Models() []string { return supportedModels }

func (p *Provider) Credentialed() bool { return p.cfg.APIKey != "" }

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) Stream(ctx context.Context, req models.GenerationRequest) (<-chan models.StreamChunk, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:      true,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	body.StreamOptions.IncludeUsage = true

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai dial: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("openai http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := make(chan models.StreamChunk)
	go p.pump(ctx, resp.Body, out)
	return out, nil
}

// pump reads SSE lines off the response body and forwards one StreamChunk per
// delta. It observes ctx between chunks; closing the body unblocks the reader.
func (p *Provider) pump(ctx context.Context, body io.ReadCloser, out chan<- models.StreamChunk) {
	defer close(out)
	defer body.Close()

	var usage *models.Usage
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			send(ctx, out, models.StreamChunk{Done: true, Usage: usage})
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			send(ctx, out, models.StreamChunk{Err: fmt.Errorf("decode stream chunk: %w", err)})
			return
		}
		if chunk.Usage != nil {
			usage = &models.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if !send(ctx, out, models.StreamChunk{Delta: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, models.StreamChunk{Err: fmt.Errorf("read stream: %w", err)})
		return
	}
	// Body ended without a [DONE] marker; treat as natural end.
	send(ctx, out, models.StreamChunk{Done: true, Usage: usage})
}

func send(ctx context.Context, out chan<- models.StreamChunk, c models.StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ models.Capability = (*Provider)(nil)
