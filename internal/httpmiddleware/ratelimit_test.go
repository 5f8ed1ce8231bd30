package httpmiddleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustion(t *testing.T) {
	l := NewTokenBucket(3, 60)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1", now), "request %d within capacity", i)
	}
	assert.False(t, l.allow("10.0.0.1", now))

	// A different client has its own bucket.
	assert.True(t, l.allow("10.0.0.2", now))
}

func TestTokenBucketRefill(t *testing.T) {
	l := NewTokenBucket(2, 60)
	now := time.Now()

	assert.True(t, l.allow("kiosk", now))
	assert.True(t, l.allow("kiosk", now))
	assert.False(t, l.allow("kiosk", now))

	// 60/min refills one token per second.
	assert.True(t, l.allow("kiosk", now.Add(time.Second)))
}

func TestTokenBucketCapacityFallback(t *testing.T) {
	l := NewTokenBucket(0, 5)
	assert.Equal(t, 5, l.capacity)
}
