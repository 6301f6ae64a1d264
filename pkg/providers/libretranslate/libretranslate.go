package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/nerdneilsfield/transfeed/pkg/providers/retry"
)

// DefaultEndpoint 官方演示服务器
const DefaultEndpoint = "https://libretranslate.com"

// Config LibreTranslate配置
type Config struct {
	providers.BaseConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
	}
	config.APIEndpoint = DefaultEndpoint
	return config
}

// Provider LibreTranslate提供商
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ providers.TranslationProvider = (*Provider)(nil)

// New 创建新的LibreTranslate提供商
func New(config Config) *Provider {
	if config.APIEndpoint == "" {
		config.APIEndpoint = DefaultEndpoint
	}
	config.APIEndpoint = strings.TrimRight(config.APIEndpoint, "/")

	return &Provider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "libretranslate"
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	translateReq := TranslateRequest{
		Q:      req.Text,
		Source: normalizeLanguageCode(req.SourceLanguage),
		Target: normalizeLanguageCode(req.TargetLanguage),
		Format: "text",
		APIKey: p.config.APIKey,
	}
	if translateReq.Source == "" {
		translateReq.Source = "auto"
	}

	body, err := json.Marshal(translateReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.APIEndpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, retry.TransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.TransportError(err)
	}

	if code := retry.ClassifyStatus(resp.StatusCode); code != "" {
		msg := fmt.Sprintf("API error: %s", resp.Status)
		var errorResp ErrorResponse
		if json.Unmarshal(respBody, &errorResp) == nil && errorResp.Error != "" {
			msg = fmt.Sprintf("API error: %s", errorResp.Error)
		}
		return nil, &providers.Error{Code: code, Message: msg, Status: resp.StatusCode}
	}

	var translateResp TranslateResponse
	if err := json.Unmarshal(respBody, &translateResp); err != nil {
		return nil, providers.WrapError(providers.CodeParseError, "failed to decode response", err)
	}

	out := &providers.ProviderResponse{
		Text:     translateResp.TranslatedText,
		Metadata: map[string]string{},
	}
	if translateResp.DetectedLanguage != nil {
		out.SourceLang = translateResp.DetectedLanguage.Language
		out.Metadata["confidence"] = fmt.Sprintf("%.2f", translateResp.DetectedLanguage.Confidence)
	}
	return out, nil
}

// normalizeLanguageCode LibreTranslate 只认基础语言代码，zh-CN 之类去掉地区
func normalizeLanguageCode(lang string) string {
	lower := strings.ToLower(strings.TrimSpace(lang))
	if lower == "" || lower == "auto" {
		return lower
	}

	replacements := map[string]string{
		"chinese":  "zh",
		"english":  "en",
		"japanese": "ja",
		"russian":  "ru",
		"french":   "fr",
		"german":   "de",
		"zh-tw":    "zt",
		"zh-hant":  "zt",
	}
	if normalized, ok := replacements[lower]; ok {
		return normalized
	}

	if i := strings.IndexAny(lower, "-_"); i > 0 {
		return lower[:i]
	}
	return lower
}

// TranslateRequest 翻译请求
type TranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// TranslateResponse 翻译响应
type TranslateResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Confidence float64 `json:"confidence"`
		Language   string  `json:"language"`
	} `json:"detectedLanguage,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}
