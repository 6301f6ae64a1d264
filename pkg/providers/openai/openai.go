package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/nerdneilsfield/transfeed/pkg/providers/retry"
)

const systemPrompt = `You are a translation engine for short social media posts.
Translate the user's text into the requested target language, preserving line breaks, mentions, hashtags and URLs.
Reply with a single JSON object and nothing else: {"translation": "<translated text>", "source_lang": "<BCP-47 code of the input language>"}`

// getModel 根据字符串获取模型常量
func getModel(model string) openai.ChatModel {
	switch model {
	case "gpt-4o":
		return openai.ChatModelGPT4o
	case "gpt-4o-mini", "":
		return openai.ChatModelGPT4oMini
	case "gpt-3.5-turbo":
		return openai.ChatModelGPT3_5Turbo
	default:
		// 对于新模型或兼容接口的自定义模型，直接使用字符串
		return openai.ChatModel(model)
	}
}

// Config OpenAI配置（使用官方SDK）
type Config struct {
	providers.BaseConfig
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultConfig(),
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		MaxTokens:   2048,
	}
}

// Provider 兼容 OpenAI Chat Completions 的大模型翻译
type Provider struct {
	config Config
	client openai.Client
}

var _ providers.TranslationProvider = (*Provider)(nil)

// New 创建新的OpenAI提供商
func New(config Config) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// 重试由 translation.Client 统一控制
		option.WithMaxRetries(0),
	}
	if config.APIEndpoint != "" {
		opts = append(opts, option.WithBaseURL(config.APIEndpoint))
	}
	for k, v := range config.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(opts...),
	}
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "openai"
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Target language: %s\n\n%s", req.TargetLanguage, req.Text)),
		},
		Model: getModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(p.config.Temperature))
	}
	if p.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.config.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &providers.Error{
				Code:    retry.ClassifyStatus(apiErr.StatusCode),
				Message: "openai chat completion failed",
				Status:  apiErr.StatusCode,
				Cause:   err,
			}
		}
		return nil, retry.TransportError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, providers.NewError(providers.CodeParseError, "no choices returned from OpenAI")
	}

	text, lang, err := parseAnswer(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &providers.ProviderResponse{
		Text:       text,
		SourceLang: lang,
		Metadata: map[string]string{
			"model":         completion.Model,
			"finish_reason": string(completion.Choices[0].FinishReason),
		},
	}, nil
}

// parseAnswer 从模型回答中取出 JSON 对象，容忍代码块包裹
func parseAnswer(content string) (string, string, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", "", providers.NewError(providers.CodeParseError, "model reply is not a JSON object")
	}
	raw := content[start : end+1]
	if !gjson.Valid(raw) {
		return "", "", providers.NewError(providers.CodeParseError, "model reply is not valid JSON")
	}

	translation := gjson.Get(raw, "translation")
	if !translation.Exists() {
		return "", "", providers.NewError(providers.CodeParseError, "model reply has no translation field")
	}
	return translation.String(), strings.ToLower(gjson.Get(raw, "source_lang").String()), nil
}
