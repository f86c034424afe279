package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestJobStatusKey(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "job:11111111-2222-3333-4444-555555555555", JobStatusKey(id))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:10.0.0.1", RateLimitKey("10.0.0.1"))
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not-a-redis-url")
	assert.Error(t, err)
}

func TestNewRedisCacheParsesURL(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/0")
	assert.NoError(t, err)
	assert.NotNil(t, c)
}
