package deeplx

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

// DefaultEndpoint 本地 DeepLX 服务
const DefaultEndpoint = "http://localhost:1188/translate"

// Config DeepLX配置
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

// Provider DeepLX提供商
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ providers.TranslationProvider = (*Provider)(nil)

// New 创建新的DeepLX提供商
func New(config Config) *Provider {
	if config.APIEndpoint == "" {
		config.APIEndpoint = DefaultEndpoint
	}

	return &Provider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "deeplx"
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	deeplxReq := TranslateRequest{
		Text:       req.Text,
		SourceLang: normalizeLanguageCode(req.SourceLanguage),
		TargetLang: normalizeLanguageCode(req.TargetLanguage),
	}
	if deeplxReq.SourceLang == "" {
		deeplxReq.SourceLang = "auto"
	}

	body, err := json.Marshal(deeplxReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.APIEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
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
		return nil, &providers.Error{Code: code, Message: fmt.Sprintf("API error: %s", resp.Status), Status: resp.StatusCode}
	}

	var translateResp TranslateResponse
	if err := json.Unmarshal(respBody, &translateResp); err != nil {
		return nil, providers.WrapError(providers.CodeParseError, "failed to decode response", err)
	}

	// DeepLX 把业务状态放在响应体里
	if code := retry.ClassifyStatus(translateResp.Code); code != "" {
		return nil, &providers.Error{
			Code:    code,
			Message: fmt.Sprintf("API error: %s", translateResp.Message),
			Status:  translateResp.Code,
		}
	}

	return &providers.ProviderResponse{
		Text:       translateResp.Data,
		SourceLang: strings.ToLower(translateResp.SourceLang),
	}, nil
}

// normalizeLanguageCode DeepLX使用大写的语言代码，与DeepL兼容
func normalizeLanguageCode(lang string) string {
	upper := strings.ToUpper(strings.TrimSpace(lang))

	replacements := map[string]string{
		"CHINESE":  "ZH",
		"ZH-CN":    "ZH",
		"ZH-HANS":  "ZH",
		"ENGLISH":  "EN",
		"FRENCH":   "FR",
		"GERMAN":   "DE",
		"JAPANESE": "JA",
		"RUSSIAN":  "RU",
	}
	if normalized, ok := replacements[upper]; ok {
		return normalized
	}
	if upper == "AUTO" {
		return "auto"
	}
	return upper
}

// TranslateRequest 翻译请求
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// TranslateResponse 翻译响应
type TranslateResponse struct {
	Code       int    `json:"code"`
	Message    string `json:"message,omitempty"`
	Data       string `json:"data"`
	SourceLang string `json:"source_lang,omitempty"`
}
