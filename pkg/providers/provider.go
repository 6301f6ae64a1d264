package providers

import (
	"context"
	"errors"
	"time"
)

// BaseConfig 基础配置
type BaseConfig struct {
	// API配置
	APIKey      string `json:"api_key,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty"`

	// 超时
	Timeout time.Duration `json:"timeout"`

	// 自定义头部
	Headers map[string]string `json:"headers,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() BaseConfig {
	return BaseConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// TranslationProvider 远程翻译服务。
// 实现只做单次请求，重试由调用方决定。
type TranslationProvider interface {
	// Translate 执行翻译，源语言为空表示自动检测
	Translate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// GetName 获取提供商名称
	GetName() string
}

// ProviderRequest 提供商请求
type ProviderRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}

// ProviderResponse 提供商响应
type ProviderResponse struct {
	Text       string            `json:"text"`
	SourceLang string            `json:"source_lang,omitempty"` // 检测到的源语言，可能为空
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// 错误代码
const (
	CodeNetwork     = "network"
	CodeTimeout     = "timeout"
	CodeRateLimit   = "rate_limit"
	CodeServerError = "server_error"
	CodeClientError = "client_error"
	CodeParseError  = "parse_error"
)

// Error 提供商错误
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap 返回原因错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断错误是否可重试
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case CodeNetwork, CodeRateLimit, CodeTimeout, CodeServerError, CodeParseError:
		return true
	default:
		return false
	}
}

// NewError 创建提供商错误
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError 用错误代码包装底层错误
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsParseError 判断是否为响应解析错误
func IsParseError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeParseError
}
