package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
)

// RetryConfig 重试配置
type RetryConfig struct {
	// 最大重试次数（不含首次尝试）
	MaxRetries int `json:"max_retries"`

	// 初始延迟时间，0 表示立即重试，节奏交给调用方控制
	InitialDelay time.Duration `json:"initial_delay"`

	// 最大延迟时间
	MaxDelay time.Duration `json:"max_delay"`

	// 退避因子（指数退避）
	BackoffFactor float64 `json:"backoff_factor"`
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  0,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ErrorType 错误类型枚举
type ErrorType int

const (
	ErrorTypeNone          ErrorType = iota
	ErrorTypeNetwork                 // 网络瞬时错误
	ErrorTypeRetryableHTTP           // 可重试的HTTP错误（429）
	ErrorTypeClientError             // 客户端错误（4xx）
	ErrorTypeServerError             // 服务端错误（5xx）
	ErrorTypeParse                   // 响应无法解析
	ErrorTypePermanent               // 永久性错误
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNone:
		return "none"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryableHTTP:
		return "rate_limited"
	case ErrorTypeClientError:
		return "client_error"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeParse:
		return "parse_error"
	default:
		return "permanent"
	}
}

// Outcome 一次带重试执行的结果
type Outcome struct {
	Attempts  int       // 实际尝试次数
	Err       error     // 最后一次错误，成功时为 nil
	LastType  ErrorType // 最后一次错误的分类
	Exhausted bool      // 因次数耗尽或不可重试而放弃
}

// NetworkRetrier 网络重试器
type NetworkRetrier struct {
	config RetryConfig
}

// NewNetworkRetrier 创建网络重试器
func NewNetworkRetrier(config RetryConfig) *NetworkRetrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &NetworkRetrier{
		config: config,
	}
}

// Execute 执行 fn，失败时按分类决定是否重试；总尝试次数不超过 MaxRetries+1。
// 上下文取消时立即返回，且不标记为 Exhausted。
func (nr *NetworkRetrier) Execute(ctx context.Context, fn func(attempt int) error) Outcome {
	var out Outcome

	for attempt := 0; attempt <= nr.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return out
		}

		out.Attempts++
		err := fn(attempt)
		if err == nil {
			out.Err = nil
			out.LastType = ErrorTypeNone
			return out
		}
		if ctx.Err() != nil {
			out.Err = err
			return out
		}

		out.Err = err
		out.LastType = Classify(err)
		if !shouldRetry(out.LastType) || attempt == nr.config.MaxRetries {
			break
		}

		if delay := nr.calculateDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
	}

	out.Exhausted = true
	return out
}

// Classify 分类错误
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}

	var pe *providers.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case providers.CodeNetwork, providers.CodeTimeout:
			return ErrorTypeNetwork
		case providers.CodeRateLimit:
			return ErrorTypeRetryableHTTP
		case providers.CodeServerError:
			return ErrorTypeServerError
		case providers.CodeParseError:
			return ErrorTypeParse
		case providers.CodeClientError:
			return ErrorTypeClientError
		}
	}

	if IsNetworkError(err) {
		return ErrorTypeNetwork
	}
	return ErrorTypePermanent
}

// ClassifyStatus 按 HTTP 状态码返回提供商错误代码，2xx 返回空串
func ClassifyStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusTooManyRequests:
		return providers.CodeRateLimit
	case status >= 500:
		return providers.CodeServerError
	default:
		return providers.CodeClientError
	}
}

// TransportError 把 http.Client.Do 的错误包装为提供商错误
func TransportError(err error) *providers.Error {
	code := providers.CodeNetwork
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		code = providers.CodeTimeout
	}
	return providers.WrapError(code, "request failed", err)
}

// IsNetworkError 判断是否为网络错误
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"no such host",
		"broken pipe",
		"i/o timeout",
		"eof",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// shouldRetry 判断是否应该重试
func shouldRetry(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError, ErrorTypeRetryableHTTP, ErrorTypeParse:
		return true
	default:
		return false
	}
}

// calculateDelay 计算延迟时间
func (nr *NetworkRetrier) calculateDelay(retryCount int) time.Duration {
	delay := nr.config.InitialDelay
	if delay <= 0 {
		return 0
	}

	if retryCount > 0 {
		backoffFactor := nr.config.BackoffFactor
		if backoffFactor <= 1.0 {
			backoffFactor = 2.0
		}
		delay = time.Duration(float64(delay) * math.Pow(backoffFactor, float64(retryCount)))
	}

	if nr.config.MaxDelay > 0 && delay > nr.config.MaxDelay {
		delay = nr.config.MaxDelay
	}
	return delay
}
