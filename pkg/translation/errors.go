package translation

import (
	"errors"
	"fmt"
)

// 错误代码常量。RETRY_EXHAUSTED 和 CANCELED 是 Code，其余描述最后一次失败的类别（Kind）
const (
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeClient         = "CLIENT_ERROR"
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_ERROR"
	ErrCodeRetryExhausted = "RETRY_EXHAUSTED"
	ErrCodeCanceled       = "CANCELED"
	ErrCodeUnknown        = "UNKNOWN_ERROR"
)

// TranslationError 翻译错误
type TranslationError struct {
	Code     string // 错误代码
	Kind     string // 最后一次失败的类别，如 ErrCodeNetwork
	Message  string // 错误消息
	Cause    error  // 原因
	Attempts int    // 放弃前的尝试次数
}

// Error 实现error接口
func (e *TranslationError) Error() string {
	code := e.Code
	if e.Kind != "" {
		code += "/" + e.Kind
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", code, e.Message)
}

// Unwrap 返回原因错误
func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// NewTranslationError 创建翻译错误
func NewTranslationError(code, message string, cause error) *TranslationError {
	return &TranslationError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRetryExhausted 判断是否为重试耗尽
func IsRetryExhausted(err error) bool {
	var te *TranslationError
	return errors.As(err, &te) && te.Code == ErrCodeRetryExhausted
}

// ErrorKind 返回翻译错误的失败类别，不是翻译错误时为空
func ErrorKind(err error) string {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
