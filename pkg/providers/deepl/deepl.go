package deepl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/nerdneilsfield/transfeed/pkg/providers/retry"
)

const (
	// ProEndpoint DeepL Pro API
	ProEndpoint = "https://api.deepl.com/v2"
	// FreeEndpoint DeepL Free API，免费密钥以 ":fx" 结尾
	FreeEndpoint = "https://api-free.deepl.com/v2"

	// StatusQuotaExceeded DeepL 的配额耗尽状态码
	StatusQuotaExceeded = 456
)

// Config DeepL配置
type Config struct {
	providers.BaseConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{BaseConfig: providers.DefaultConfig()}
}

// Provider DeepL提供商
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ providers.TranslationProvider = (*Provider)(nil)

// New 创建新的DeepL提供商；未指定端点时按密钥类型选择 Free 或 Pro
func New(config Config) *Provider {
	if config.APIEndpoint == "" {
		if strings.HasSuffix(config.APIKey, ":fx") {
			config.APIEndpoint = FreeEndpoint
		} else {
			config.APIEndpoint = ProEndpoint
		}
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
	return "deepl"
}

// Translate 执行翻译，源语言留空由 DeepL 检测
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	params := url.Values{}
	params.Set("text", req.Text)
	params.Set("target_lang", normalizeLanguageCode(req.TargetLanguage))
	if src := normalizeLanguageCode(req.SourceLanguage); src != "" && src != "AUTO" {
		// source_lang 不接受区域变体
		params.Set("source_lang", strings.SplitN(src, "-", 2)[0])
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.APIEndpoint+"/translate", strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+p.config.APIKey)
	for k, v := range p.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, retry.TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.TransportError(err)
	}

	if resp.StatusCode == StatusQuotaExceeded {
		return nil, &providers.Error{Code: providers.CodeClientError, Message: "quota exceeded", Status: resp.StatusCode}
	}
	if code := retry.ClassifyStatus(resp.StatusCode); code != "" {
		return nil, &providers.Error{
			Code:    code,
			Message: fmt.Sprintf("API error: %s: %s", resp.Status, strings.TrimSpace(string(body))),
			Status:  resp.StatusCode,
		}
	}

	var translateResp TranslateResponse
	if err := json.Unmarshal(body, &translateResp); err != nil {
		return nil, providers.WrapError(providers.CodeParseError, "failed to decode response", err)
	}
	if len(translateResp.Translations) == 0 {
		return nil, providers.NewError(providers.CodeParseError, "no translation returned")
	}

	t := translateResp.Translations[0]
	return &providers.ProviderResponse{
		Text:       t.Text,
		SourceLang: strings.ToLower(t.DetectedSourceLanguage),
	}, nil
}

// normalizeLanguageCode DeepL 目标语言使用大写代码，中文和英文需要区分变体
func normalizeLanguageCode(lang string) string {
	upper := strings.ToUpper(strings.TrimSpace(lang))
	switch upper {
	case "ZH-CN", "ZH-HANS", "ZH-SG":
		return "ZH-HANS"
	case "ZH-TW", "ZH-HK", "ZH-HANT":
		return "ZH-HANT"
	case "EN":
		return "EN-US"
	case "PT":
		return "PT-PT"
	case "NO":
		return "NB"
	}
	return upper
}

// TranslateResponse 翻译响应
type TranslateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}
