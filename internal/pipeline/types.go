// Package pipeline 实现帖子翻译流水线：准入、按视口距离排序的请求队列、
// 有并发上限的调度、emoji 感知翻译、跳过规则和内容变更后的重新入队。
package pipeline

import (
	"context"
	"time"

	"github.com/nerdneilsfield/transfeed/pkg/translation"
)

// ItemID 宿主页面中帖子的稳定标识，核心不解释其含义
type ItemID string

// FailureMarker 重试耗尽后显示在条目上的标记
const FailureMarker = "翻译失败"

// RenderKind 渲染状态
type RenderKind int

const (
	RenderNone       RenderKind = iota // 移除译文，只显示原文
	RenderPending                      // 等待翻译
	RenderTranslated                   // 显示译文
	RenderFailed                       // 显示失败标记
)

func (k RenderKind) String() string {
	switch k {
	case RenderPending:
		return "pending"
	case RenderTranslated:
		return "translated"
	case RenderFailed:
		return "failed"
	default:
		return "none"
	}
}

// Rendering 写回条目的结果
type Rendering struct {
	Kind RenderKind
	Text string // 仅 RenderTranslated 使用
}

// Request 一次翻译请求
type Request struct {
	ID         string // uuid，用于日志关联
	Item       ItemID
	Text       string
	RetryCount int
	EnqueuedAt time.Time

	generation uint64 // 目标语言变更时递增，旧代结果作废
	priority   Priority
}

// Extractor 提取条目的规范文本，去掉交互控件等非正文内容
type Extractor interface {
	ExtractText(id ItemID) (string, error)
}

// Renderer 把结果写回条目，需幂等
type Renderer interface {
	Render(id ItemID, r Rendering) error
}

// Host 页面宿主
type Host interface {
	Extractor
	Renderer
}

// Translator 翻译单段文本，从不返回错误
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) translation.Result
}

// Locator 返回条目中心到视口中心的距离，未知时返回 +Inf
type Locator interface {
	Distance(id ItemID) float64
}

// LocatorFunc 函数适配器
type LocatorFunc func(id ItemID) float64

// Distance 实现 Locator
func (f LocatorFunc) Distance(id ItemID) float64 {
	return f(id)
}
