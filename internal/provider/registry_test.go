package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deharath/prompt-lab-sub000/internal/config"
	"github.com/Deharath/prompt-lab-sub000/internal/provider/mock"
)

func TestNewRegistryRegistersBuiltins(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})
	assert.Equal(t, []string{"anthropic", "ollama", "openai"}, r.Names())
}

func TestResolveUnknownProvider(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})
	_, err := r.Resolve("bedrock")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestValidateUnsupportedModel(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})
	_, err := r.Validate("openai", "llama3")
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestValidateMissingCredential(t *testing.T) {
	// No API key configured: the model is known but the provider is not
	// usable, and the error must say so distinctly.
	r := NewRegistry(config.ProvidersConfig{})
	_, err := r.Validate("openai", "gpt-4o-mini")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.NotErrorIs(t, err, ErrUnknownProvider)
}

func TestValidateCredentialedProvider(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{
		OpenAI: config.OpenAIConfig{APIKey: "sk-test"},
	})
	c, err := r.Validate("openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestValidateOllamaNeedsNoCredential(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})
	c, err := r.Validate("ollama", "llama3")
	require.NoError(t, err)
	assert.True(t, c.Credentialed())
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})
	stub := &mock.MockProvider{Name_: "openai", Models_: []string{"stub-model"}, Credentialed_: true}
	r.Register(stub)

	c, err := r.Validate("openai", "stub-model")
	require.NoError(t, err)
	assert.Equal(t, []string{"stub-model"}, c.Models())
}
