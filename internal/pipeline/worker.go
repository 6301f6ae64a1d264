package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/internal/emoji"
	"github.com/nerdneilsfield/transfeed/pkg/translation"
)

type resultKind int

const (
	resultTranslated resultKind = iota
	resultSkipped
	resultFailed
)

func (k resultKind) String() string {
	switch k {
	case resultTranslated:
		return "translated"
	case resultSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// workResult 一次请求的处理结果，交回调度协程落地
type workResult struct {
	req        *Request
	kind       resultKind
	text       string
	sourceLang string
	calls      int
	exhausted  int
	err        error
}

// translateRequest 分段 → 逐段翻译（段间按间隔节流）→ 重组 → 跳过判断。
// 只有全部文本段都重试耗尽才算失败；部分耗尽时对应段保留原文。
func translateRequest(ctx context.Context, tr Translator, req *Request, cfg *config.Config, logger *zap.Logger) workResult {
	res := workResult{req: req}

	plan := emoji.New(cfg.MinSegmentLength, cfg.MaxSegmentLength).Segment(req.Text)
	parts := make([]string, 0, len(plan))
	weights := make(map[string]int)

	for _, seg := range plan {
		if seg.IsEmoji() {
			parts = append(parts, seg.Content)
			continue
		}

		if res.calls > 0 {
			if err := sleep(ctx, cfg.RequestInterval()); err != nil {
				res.kind = resultFailed
				res.err = err
				return res
			}
		}
		res.calls++

		out := tr.Translate(ctx, seg.Content, cfg.TargetLang)
		if out.Exhausted {
			res.exhausted++
			if out.Err != nil {
				res.err = out.Err
			}
			logger.Debug("segment left untranslated",
				zap.String("request", req.ID),
				zap.Int("attempts", out.Attempts))
		} else if out.SourceLang != "" {
			weights[out.SourceLang] += emoji.Length(seg.Content)
		}
		parts = append(parts, out.Text)
	}

	if res.calls == 0 {
		// 只有 emoji，没有可翻译的内容
		res.kind = resultSkipped
		return res
	}
	if res.exhausted == res.calls {
		res.kind = resultFailed
		if res.err == nil {
			res.err = translation.NewTranslationError(translation.ErrCodeRetryExhausted, "all segments failed", nil)
		}
		return res
	}

	res.sourceLang = dominantLanguage(weights)
	if ShouldDiscard(res.sourceLang, cfg.TargetLang, cfg.SkipSet()) {
		res.kind = resultSkipped
		return res
	}

	res.kind = resultTranslated
	res.text = emoji.Reassemble(parts)
	return res
}

// dominantLanguage 按文本长度加权取多数；平局取字典序较小者
func dominantLanguage(weights map[string]int) string {
	if len(weights) == 0 {
		return ""
	}
	langs := make([]string, 0, len(weights))
	for l := range weights {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if weights[langs[i]] != weights[langs[j]] {
			return weights[langs[i]] > weights[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs[0]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// safeTranslate 包装 translateRequest，单个条目的 panic 不影响其他工作协程
func safeTranslate(ctx context.Context, tr Translator, req *Request, cfg *config.Config, logger *zap.Logger) (res workResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panic", zap.String("request", req.ID), zap.Any("panic", r))
			res = workResult{req: req, kind: resultFailed, err: fmt.Errorf("worker panic: %v", r)}
		}
	}()
	return translateRequest(ctx, tr, req, cfg, logger)
}

// Outcome 单次文本翻译的结果
type Outcome struct {
	Kind       RenderKind // RenderTranslated、RenderNone（跳过）或 RenderFailed
	Text       string
	SourceLang string
	Segments   int // 实际发出的翻译调用数
	Err        error
}

// TranslateText 不经过队列，直接按流水线规则翻译一段文本
func TranslateText(ctx context.Context, tr Translator, text string, cfg *config.Config, logger *zap.Logger) Outcome {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := safeTranslate(ctx, tr, &Request{ID: "inline", Text: text}, cfg, logger)
	out := Outcome{Text: res.text, SourceLang: res.sourceLang, Segments: res.calls, Err: res.err}
	switch res.kind {
	case resultTranslated:
		out.Kind = RenderTranslated
	case resultSkipped:
		out.Kind = RenderNone
	default:
		out.Kind = RenderFailed
	}
	return out
}
