// Package provider resolves provider names to LLM vendor capabilities.
package provider

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Deharath/prompt-lab-sub000/internal/config"
	"github.com/Deharath/prompt-lab-sub000/internal/provider/anthropic"
	"github.com/Deharath/prompt-lab-sub000/internal/provider/ollama"
	"github.com/Deharath/prompt-lab-sub000/internal/provider/openai"
	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrMissingCredential = errors.New("provider credential missing")
)

// Registry maps provider names to capabilities. Read-only after startup.
type Registry struct {
	providers map[string]models.Capability
}

// NewRegistry constructs the registry with every built-in provider.
// Called once at server startup.
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	r := &Registry{providers: make(map[string]models.Capability)}
	r.Register(openai.NewProvider(cfg.OpenAI))
	r.Register(anthropic.NewProvider(cfg.Anthropic))
	r.Register(ollama.NewProvider(cfg.Ollama))
	return r
}

// Register adds a capability under its own name. Later registrations replace
// earlier ones, which is how tests swap in mocks.
func (r *Registry) Register(c models.Capability) {
	r.providers[c.Name()] = c
}

// Resolve returns the capability for name or ErrUnknownProvider.
func (r *Registry) Resolve(name string) (models.Capability, error) {
	c, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return c, nil
}

// Validate resolves name and checks that the capability supports model and
// holds its credential. A missing credential is distinct from an unknown
// provider so callers can answer "configuration error" instead of "user
// error".
func (r *Registry) Validate(name, model string) (models.Capability, error) {
	c, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !supportsModel(c, model) {
		return nil, fmt.Errorf("%w: provider %q does not support %q", ErrUnsupportedModel, name, model)
	}
	if !c.Credentialed() {
		return nil, fmt.Errorf("%w: %q", ErrMissingCredential, name)
	}
	return c, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func supportsModel(c models.Capability, model string) bool {
	for _, m := range c.Models() {
		if m == model {
			return true
		}
	}
	return false
}
