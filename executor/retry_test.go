package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/reportmesh/core"
)

func TestDefaultRetryPolicy_Values(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 8*time.Second, p.MaxDelay)
	assert.True(t, p.Retryable(core.Transientf("rate limited")))
	assert.False(t, p.Retryable(core.Fatalf("bad request")))
}

func TestRetryPolicy_DelayDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}.normalized()

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 500*time.Millisecond, p.Delay(4))
	assert.Equal(t, 500*time.Millisecond, p.Delay(10))
}

func TestRetryPolicy_DelayClampsAttemptBelowOne(t *testing.T) {
	p := RetryPolicy{InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second}.normalized()

	assert.Equal(t, 50*time.Millisecond, p.Delay(0))
	assert.Equal(t, 50*time.Millisecond, p.Delay(-3))
}

func TestRetryPolicy_NormalizedFillsZeroFields(t *testing.T) {
	p := RetryPolicy{}.normalized()
	def := DefaultRetryPolicy()

	assert.Equal(t, def.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, def.InitialDelay, p.InitialDelay)
	assert.Equal(t, def.MaxDelay, p.MaxDelay)
	assert.NotNil(t, p.Retryable)
}
