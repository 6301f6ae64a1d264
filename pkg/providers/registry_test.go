package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct{ name string }

func (e *echoProvider) Translate(_ context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	return &ProviderResponse{Text: req.Text}, nil
}

func (e *echoProvider) GetName() string { return e.name }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Echo", func(cfg BaseConfig, model string) (TranslationProvider, error) {
		return &echoProvider{name: "echo:" + model}, nil
	}))
	assert.Error(t, r.Register("echo", nil))
	assert.True(t, r.Has("ECHO"))
	assert.Equal(t, []string{"echo"}, r.List())

	p, err := r.Create("echo", DefaultConfig(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "echo:m1", p.GetName())

	_, err = r.Create("missing", DefaultConfig(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: echo")
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, NewError(CodeTimeout, "slow").IsRetryable())
	assert.False(t, NewError(CodeClientError, "bad").IsRetryable())

	wrapped := WrapError(CodeParseError, "decode", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.True(t, IsParseError(wrapped))
	assert.Equal(t, "decode: "+assert.AnError.Error(), wrapped.Error())
}
