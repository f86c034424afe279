package anthropic

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

const apiVersion = "2023-06-01"

var supportedModels = []string{
	"claude-sonnet-4-5-20250929",
	"claude-3-5-haiku-20241022",
	"claude-3-5-sonnet-20241022",
}

// Provider implements models.Capability against the Anthropic messages API
// with stream=true.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Models() []string { return supportedModels }

func (p *Provider) Credentialed() bool { return p.cfg.APIKey != "" }

type messagesRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Messages    []msgPayload `json:"messages"`
	Stream      bool         `json:"stream"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
}

type msgPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamEvent covers the subset of Anthropic SSE payloads we care about:
// text deltas, usage counters, and the error event.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

const defaultMaxTokens = 1024

func (p *Provider) Stream(ctx context.Context, req models.GenerationRequest) (<-chan models.StreamChunk, error) {
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Messages:    []msgPayload{{Role: "user", Content: req.Prompt}},
		Stream:      true,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic dial: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := make(chan models.StreamChunk)
	go p.pump(ctx, resp.Body, out)
	return out, nil
}

func (p *Provider) pump(ctx context.Context, body io.ReadCloser, out chan<- models.StreamChunk) {
	defer close(out)
	defer body.Close()

	usage := models.Usage{}
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

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			send(ctx, out, models.StreamChunk{Err: fmt.Errorf("decode stream event: %w", err)})
			return
		}

		switch ev.Type {
		case "message_start":
			usage.PromptTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				if !send(ctx, out, models.StreamChunk{Delta: ev.Delta.Text}) {
					return
				}
			}
		case "message_delta":
			usage.CompletionTokens = ev.Usage.OutputTokens
		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			send(ctx, out, models.StreamChunk{Done: true, Usage: &usage})
			return
		case "error":
			send(ctx, out, models.StreamChunk{Err: fmt.Errorf("anthropic stream: %s", ev.Error.Message)})
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, models.StreamChunk{Err: fmt.Errorf("read stream: %w", err)})
		return
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	send(ctx, out, models.StreamChunk{Done: true, Usage: &usage})
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
