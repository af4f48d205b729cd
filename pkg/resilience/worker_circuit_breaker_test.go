package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Timeout:          time.Hour,
		ConsecutiveFails: 2,
	})
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerFailureRatio(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:         "ratio",
		Timeout:      time.Hour,
		FailureRatio: 0.5,
		MinRequests:  4,
	})
	boom := errors.New("boom")

	assert.NoError(t, b.Execute(func() error { return nil }))
	assert.Error(t, b.Execute(func() error { return boom }))
	assert.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())

	assert.Error(t, b.Execute(func() error { return boom }))
	assert.Equal(t, "open", b.State())
}

func TestDefaultBreakerConfig(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig("llm"))
	assert.Equal(t, "llm", b.Name())
	assert.Equal(t, "closed", b.State())
}
