package resilience

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("bad api key")))

	assert.True(t, IsTransient(NewTransientError(eris.New("overloaded"), 529)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("inner"), 503), "embed batch")))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
	assert.True(t, IsTransient(eris.New("dial tcp: connection reset by peer")))
}

func TestIsTransient_NetTimeout(t *testing.T) {
	var err error = &net.DNSError{Err: "lookup timed out", IsTimeout: true}
	assert.True(t, IsTransient(err))
}

func TestIsTransient_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, IsTransient(ctx.Err()), "cancellation is not retryable")
}

func TestRetryAfterHint(t *testing.T) {
	_, ok := RetryAfterHint(eris.New("plain"))
	assert.False(t, ok)

	_, ok = RetryAfterHint(NewTransientError(eris.New("no hint"), 503))
	assert.False(t, ok)

	hint, ok := RetryAfterHint(eris.Wrap(NewRateLimitError(eris.New("throttled"), 2*time.Second), "extractor"))
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, hint)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
