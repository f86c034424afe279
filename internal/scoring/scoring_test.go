package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicScore(t *testing.T) {
	bag, err := NewBasic().Score(context.Background(), "Hello world. How are you?")
	require.NoError(t, err)

	assert.Equal(t, 5.0, bag["wordCount"])
	assert.Equal(t, 2.0, bag["sentenceCount"])
	assert.Equal(t, 25.0, bag["charCount"])
	assert.InDelta(t, 19.0/5.0, bag["avgWordLength"], 1e-9)
}

func TestBasicScoreEmptyText(t *testing.T) {
	bag, err := NewBasic().Score(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 0.0, bag["wordCount"])
	assert.Equal(t, 0.0, bag["sentenceCount"])
	assert.Equal(t, 0.0, bag["charCount"])
	assert.Equal(t, 0.0, bag["avgWordLength"])
}

func TestBasicScoreValuesAreNumeric(t *testing.T) {
	bag, err := NewBasic().Score(context.Background(), "word")
	require.NoError(t, err)
	for key, v := range bag {
		_, ok := v.(float64)
		assert.True(t, ok, "score %q must be numeric", key)
	}
}
