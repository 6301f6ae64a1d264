package stats

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
)

// StatisticsMiddleware 统计中间件，包装任意提供商并记录每次请求
type StatisticsMiddleware struct {
	next         providers.TranslationProvider
	statsManager *StatsManager
}

var _ providers.TranslationProvider = (*StatisticsMiddleware)(nil)

// NewStatisticsMiddleware 创建统计中间件
func NewStatisticsMiddleware(next providers.TranslationProvider, statsManager *StatsManager) *StatisticsMiddleware {
	return &StatisticsMiddleware{
		next:         next,
		statsManager: statsManager,
	}
}

// Translate 带统计的翻译方法
func (sm *StatisticsMiddleware) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	start := time.Now()
	resp, err := sm.next.Translate(ctx, req)

	result := RequestResult{
		Success: err == nil,
		Latency: time.Since(start),
		CharsIn: utf8.RuneCountInString(req.Text),
	}
	if err != nil {
		result.ErrorType = classifyError(err)
	} else if resp != nil {
		result.CharsOut = utf8.RuneCountInString(resp.Text)
	}
	sm.statsManager.RecordRequest(sm.next.GetName(), result)

	return resp, err
}

// GetName 返回被包装提供商的名称
func (sm *StatisticsMiddleware) GetName() string {
	return sm.next.GetName()
}

// classifyError 错误分类
func classifyError(err error) string {
	var pe *providers.Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.CodeTimeout
	}
	return "unknown"
}
