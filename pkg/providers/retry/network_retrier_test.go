package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/stretchr/testify/assert"
)

func TestExecute_SucceedsAfterRetries(t *testing.T) {
	r := NewNetworkRetrier(RetryConfig{MaxRetries: 3})
	calls := 0
	out := r.Execute(context.Background(), func(attempt int) error {
		calls++
		if attempt < 2 {
			return providers.NewError(providers.CodeNetwork, "flaky")
		}
		return nil
	})

	assert.NoError(t, out.Err)
	assert.False(t, out.Exhausted)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
}

func TestExecute_ExhaustsAtCap(t *testing.T) {
	r := NewNetworkRetrier(RetryConfig{MaxRetries: 2})
	out := r.Execute(context.Background(), func(int) error {
		return providers.NewError(providers.CodeParseError, "garbage")
	})

	assert.True(t, out.Exhausted)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, ErrorTypeParse, out.LastType)
}

func TestExecute_ZeroRetriesMeansOneAttempt(t *testing.T) {
	r := NewNetworkRetrier(RetryConfig{MaxRetries: 0})
	out := r.Execute(context.Background(), func(int) error {
		return providers.NewError(providers.CodeServerError, "boom")
	})
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.Exhausted)
}

func TestExecute_StopsOnPermanentError(t *testing.T) {
	r := NewNetworkRetrier(RetryConfig{MaxRetries: 5})
	out := r.Execute(context.Background(), func(int) error {
		return providers.NewError(providers.CodeClientError, "bad request")
	})
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.Exhausted)
	assert.Equal(t, ErrorTypeClientError, out.LastType)
}

func TestExecute_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewNetworkRetrier(RetryConfig{MaxRetries: 3})
	out := r.Execute(ctx, func(int) error { return nil })
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 0, out.Attempts)
	assert.False(t, out.Exhausted)
}

func TestCalculateDelay(t *testing.T) {
	r := NewNetworkRetrier(RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2})
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(2))

	assert.Equal(t, time.Duration(0), NewNetworkRetrier(RetryConfig{}).calculateDelay(3))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTypeNone, Classify(nil))
	assert.Equal(t, ErrorTypeNetwork, Classify(errors.New("read tcp: connection reset by peer")))
	assert.Equal(t, ErrorTypePermanent, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorTypeRetryableHTTP, Classify(providers.NewError(providers.CodeRateLimit, "slow down")))
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, "", ClassifyStatus(http.StatusOK))
	assert.Equal(t, providers.CodeRateLimit, ClassifyStatus(http.StatusTooManyRequests))
	assert.Equal(t, providers.CodeServerError, ClassifyStatus(http.StatusBadGateway))
	assert.Equal(t, providers.CodeClientError, ClassifyStatus(http.StatusForbidden))
}
