// Package scoring defines the collaborator that scores finished output text.
// The engine treats the result as an opaque bag; the exact formulas are not
// part of this core.
package scoring

import (
	"context"
	"strings"
	"unicode"

	"github.com/Deharath/prompt-lab-sub000/pkg/models"
)

// Collaborator scores a finished output text and returns a named bag of
// results. Invoked by the streaming controller after a job's output ends.
type Collaborator interface {
	Score(ctx context.Context, text string) (models.ScoreBag, error)
}

// Basic is the built-in collaborator. It reports simple shape statistics of
// the text; anything smarter plugs in behind the same interface.
type Basic struct{}

func NewBasic() *Basic { return &Basic{} }

func (b *Basic) Score(_ context.Context, text string) (models.ScoreBag, error) {
	words := strings.Fields(text)
	sentences := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}

	var letters int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}

	avgWordLen := 0.0
	if len(words) > 0 {
		avgWordLen = float64(letters) / float64(len(words))
	}

	return models.ScoreBag{
		"wordCount":     float64(len(words)),
		"sentenceCount": float64(sentences),
		"charCount":     float64(len(text)),
		"avgWordLength": avgWordLen,
	}, nil
}

var _ Collaborator = (*Basic)(nil)
