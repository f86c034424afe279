// Package pricing holds the static per-model price table and token counting
// used for job accounting. Read-only after startup.
package pricing

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// usdPer1KTokens maps model identifiers to a blended USD price per 1K
// tokens. Unknown models fall back to defaultUSDPer1K.
var usdPer1KTokens = map[string]float64{
	"gpt-4o":                     0.0075,
	"gpt-4o-mini":                0.00045,
	"gpt-4.1":                    0.006,
	"gpt-4.1-mini":               0.0012,
	"claude-sonnet-4-5-20250929": 0.009,
	"claude-3-5-haiku-20241022":  0.0024,
	"claude-3-5-sonnet-20241022": 0.009,
	// Local models bill nothing.
	"llama3":   0,
	"llama3.1": 0,
	"mistral":  0,
	"gemma2":   0,
}

const defaultUSDPer1K = 0.002

// Cost returns the USD cost of tokens under model's price.
func Cost(model string, tokens int) float64 {
	price, ok := usdPer1KTokens[model]
	if !ok {
		price = defaultUSDPer1K
	}
	return float64(tokens) / 1000 * price
}

// CountTokens estimates the token count of text for model. Used as a
// fallback when the provider's final chunk carries no usage stats. Falls
// back to cl100k_base for models tiktoken does not know, and to a
// whitespace split if the encoding cannot be loaded at all.
func CountTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(enc.Encode(text, nil, nil))
}
