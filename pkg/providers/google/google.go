package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/nerdneilsfield/transfeed/pkg/providers/retry"
)

const (
	// FreeEndpoint 网页版使用的免密钥接口
	FreeEndpoint = "https://translate.googleapis.com/translate_a/single"
	// CloudEndpoint Cloud Translation v2 接口，需要 API key
	CloudEndpoint = "https://translation.googleapis.com/language/translate/v2"
)

// Config Google Translate配置
type Config struct {
	providers.BaseConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
	}
	config.APIEndpoint = FreeEndpoint
	return config
}

// Provider Google Translate提供商。
// 未设置 APIKey 时使用 gtx 免费接口，否则使用 Cloud Translation v2。
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ providers.TranslationProvider = (*Provider)(nil)

// New 创建新的Google Translate提供商
func New(config Config) *Provider {
	if config.APIEndpoint == "" {
		if config.APIKey != "" {
			config.APIEndpoint = CloudEndpoint
		} else {
			config.APIEndpoint = FreeEndpoint
		}
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
	return "google"
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	source := normalizeLanguageCode(req.SourceLanguage)
	if source == "" {
		source = "auto"
	}
	target := normalizeLanguageCode(req.TargetLanguage)

	if p.config.APIKey != "" {
		return p.translateCloud(ctx, req.Text, source, target)
	}
	return p.translateFree(ctx, req.Text, source, target)
}

// translateFree 调用 gtx 接口。响应是嵌套数组：
// [[["译文","原文",...],...], null, "en", ...]
// 第 0 项的每个句子取首元素拼接为译文，第 2 项是检测到的源语言。
func (p *Provider) translateFree(ctx context.Context, text, source, target string) (*providers.ProviderResponse, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", source)
	params.Set("tl", target)
	params.Set("dt", "t")
	params.Set("q", text)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.APIEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)

	body, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, providers.NewError(providers.CodeParseError, "invalid JSON from translate endpoint")
	}
	sentences := gjson.GetBytes(body, "0")
	if !sentences.IsArray() {
		return nil, providers.NewError(providers.CodeParseError, "missing sentence array in response")
	}

	var b strings.Builder
	sentences.ForEach(func(_, sentence gjson.Result) bool {
		b.WriteString(sentence.Get("0").String())
		return true
	})

	return &providers.ProviderResponse{
		Text:       strings.TrimSpace(b.String()),
		SourceLang: gjson.GetBytes(body, "2").String(),
		Metadata:   map[string]string{"endpoint": "gtx"},
	}, nil
}

// translateCloud 调用 Cloud Translation v2
func (p *Provider) translateCloud(ctx context.Context, text, source, target string) (*providers.ProviderResponse, error) {
	params := url.Values{}
	params.Set("key", p.config.APIKey)
	params.Set("q", text)
	if source != "auto" {
		params.Set("source", source)
	}
	params.Set("target", target)
	params.Set("format", "text")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.APIEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p.setHeaders(httpReq)

	body, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var translateResp TranslateResponse
	if err := json.Unmarshal(body, &translateResp); err != nil {
		return nil, providers.WrapError(providers.CodeParseError, "failed to decode response", err)
	}
	if len(translateResp.Data.Translations) == 0 {
		return nil, providers.NewError(providers.CodeParseError, "no translation returned")
	}

	tr := translateResp.Data.Translations[0]
	return &providers.ProviderResponse{
		Text:       tr.TranslatedText,
		SourceLang: tr.DetectedSourceLanguage,
		Metadata:   map[string]string{"endpoint": "cloud"},
	}, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}
}

// do 执行请求并按状态码分类错误
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, retry.TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.TransportError(err)
	}

	if code := retry.ClassifyStatus(resp.StatusCode); code != "" {
		msg := fmt.Sprintf("API error: %s", resp.Status)
		var apiErr APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = fmt.Sprintf("Google API error: %s", apiErr.Error.Message)
		}
		return nil, &providers.Error{Code: code, Message: msg, Status: resp.StatusCode}
	}

	return body, nil
}

// normalizeLanguageCode 标准化语言代码
func normalizeLanguageCode(lang string) string {
	replacements := map[string]string{
		"chinese":             "zh-CN",
		"chinese_simplified":  "zh-CN",
		"chinese_traditional": "zh-TW",
		"english":             "en",
		"japanese":            "ja",
		"russian":             "ru",
		"french":              "fr",
		"german":              "de",
	}

	lower := strings.ToLower(strings.TrimSpace(lang))
	if normalized, ok := replacements[lower]; ok {
		return normalized
	}

	// 处理 xx_YY 格式到 xx-YY
	if strings.Contains(lang, "_") {
		return strings.Replace(lang, "_", "-", 1)
	}

	return strings.TrimSpace(lang)
}

// TranslateResponse 翻译响应
type TranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage,omitempty"`
		} `json:"translations"`
	} `json:"data"`
}

// APIError API错误
type APIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
