package deeplx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var req TranslateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auto", req.SourceLang)
		assert.Equal(t, "ZH", req.TargetLang)

		_, _ = w.Write([]byte(`{"code":200,"data":"你好","source_lang":"EN"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIEndpoint = server.URL
	cfg.APIKey = "token"
	resp, err := New(cfg).Translate(context.Background(), &providers.ProviderRequest{Text: "Hello", TargetLanguage: "zh-CN"})
	require.NoError(t, err)
	assert.Equal(t, "你好", resp.Text)
	assert.Equal(t, "en", resp.SourceLang)
}

func TestTranslate_BusinessError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":429,"message":"too many requests"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIEndpoint = server.URL
	_, err := New(cfg).Translate(context.Background(), &providers.ProviderRequest{Text: "Hello", TargetLanguage: "de"})
	require.Error(t, err)

	var pe *providers.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.CodeRateLimit, pe.Code)
}

func TestNormalizeLanguageCode(t *testing.T) {
	assert.Equal(t, "ZH", normalizeLanguageCode("zh-CN"))
	assert.Equal(t, "JA", normalizeLanguageCode("ja"))
	assert.Equal(t, "auto", normalizeLanguageCode("auto"))
}
