package ollama

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

var supportedModels = []string{"llama3", "llama3.1", "mistral", "gemma2"}

// Provider implements models.Capability against the Ollama generate API,
// which streams newline-delimited JSON objects. Ollama is local and needs no
// credential.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Models() []string { return supportedModels }

func (p *Provider) Credentialed() bool { return true }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateChunk struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (p *Provider) Stream(ctx context.Context, req models.GenerationRequest) (<-chan models.StreamChunk, error) {
	opts := map[string]any{}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}

	body := generateRequest{Model: req.Model, Prompt: req.Prompt, Stream: true}
	if len(opts) > 0 {
		body.Options = opts
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama dial: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := make(chan models.StreamChunk)
	go p.pump(ctx, resp.Body, out)
	return out, nil
}

func (p *Provider) pump(ctx context.Context, body io.ReadCloser, out chan<- models.StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			send(ctx, out, models.StreamChunk{Err: fmt.Errorf("decode stream chunk: %w", err)})
			return
		}
		if chunk.Error != "" {
			send(ctx, out, models.StreamChunk{Err: fmt.Errorf("ollama stream: %s", chunk.Error)})
			return
		}
		if chunk.Response != "" {
			if !send(ctx, out, models.StreamChunk{Delta: chunk.Response}) {
				return
			}
		}
		if chunk.Done {
			send(ctx, out, models.StreamChunk{Done: true, Usage: &models.Usage{
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
				TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
			}})
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, models.StreamChunk{Err: fmt.Errorf("read stream: %w", err)})
		return
	}
	send(ctx, out, models.StreamChunk{Done: true})
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
