package translation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/nerdneilsfield/transfeed/pkg/providers/retry"
)

// Result 一次翻译调用的结果。
// Exhausted 为 true 时 Text 是原文，SourceLang 为空。
type Result struct {
	Text       string
	SourceLang string
	Attempts   int
	Exhausted  bool
	Cached     bool
	Err        *TranslationError // 仅在 Exhausted 时非空
}

// Options 客户端选项
type Options struct {
	MaxRetry          int
	RequestsPerSecond float64 // 0 表示不限速
	CacheSize         int
	Glossary          *config.PredefinedTranslation
	Logger            *zap.Logger
}

// OptionsFromConfig 从配置快照生成选项
func OptionsFromConfig(cfg *config.Config, glossary *config.PredefinedTranslation, logger *zap.Logger) Options {
	return Options{
		MaxRetry:          cfg.MaxRetry,
		RequestsPerSecond: cfg.RequestsPerSecond,
		CacheSize:         cfg.CacheSize,
		Glossary:          glossary,
		Logger:            logger,
	}
}

// Client 封装提供商调用：固定译文、缓存、限速和有上限的重试。
// Translate 从不返回错误，失败以 Result.Exhausted 表示。
type Client struct {
	provider providers.TranslationProvider
	limiter  *rate.Limiter
	cache    *MemoryCache
	glossary *config.PredefinedTranslation
	logger   *zap.Logger
	maxRetry atomic.Int32
}

// NewClient 创建翻译客户端
func NewClient(provider providers.TranslationProvider, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		provider: provider,
		limiter:  rate.NewLimiter(limitFor(opts.RequestsPerSecond), 1),
		cache:    NewMemoryCache(opts.CacheSize),
		glossary: opts.Glossary,
		logger:   logger.With(zap.String("provider", provider.GetName())),
	}
	c.maxRetry.Store(int32(max(opts.MaxRetry, 0)))
	return c
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Apply 应用新的配置快照中可热更新的部分
func (c *Client) Apply(cfg *config.Config) {
	c.maxRetry.Store(int32(max(cfg.MaxRetry, 0)))
	c.limiter.SetLimit(limitFor(cfg.RequestsPerSecond))
}

// CacheStats 返回缓存统计
func (c *Client) CacheStats() CacheStats {
	return c.cache.Stats()
}

// Translate 把 text 翻译为 targetLang，并返回检测到的源语言
func (c *Client) Translate(ctx context.Context, text, targetLang string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}

	if out, lang, ok := c.glossary.Lookup(text, targetLang); ok {
		return Result{Text: out, SourceLang: lang, Cached: true}
	}

	key := GenerateCacheKey(c.provider.GetName(), targetLang, text)
	if hit, ok := c.cache.Get(key); ok {
		return Result{Text: hit.Text, SourceLang: hit.SourceLang, Cached: true}
	}

	var resp *providers.ProviderResponse
	retrier := retry.NewNetworkRetrier(retry.RetryConfig{MaxRetries: int(c.maxRetry.Load())})
	outcome := retrier.Execute(ctx, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := c.provider.Translate(ctx, &providers.ProviderRequest{
			Text:           text,
			TargetLanguage: targetLang,
		})
		if err != nil {
			c.logger.Debug("translate attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			return err
		}
		resp = r
		return nil
	})

	if outcome.Err != nil {
		code := ErrCodeRetryExhausted
		if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
			code = ErrCodeCanceled
		}
		terr := NewTranslationError(code, "translation gave up", outcome.Err)
		terr.Attempts = outcome.Attempts
		if code == ErrCodeRetryExhausted {
			terr.Kind = errorKind(outcome.LastType)
			c.logger.Warn("translation retries exhausted",
				zap.Int("attempts", outcome.Attempts),
				zap.String("kind", terr.Kind),
				zap.Error(outcome.Err))
		}
		return Result{Text: text, Attempts: outcome.Attempts, Exhausted: true, Err: terr}
	}

	res := Result{
		Text:       resp.Text,
		SourceLang: strings.ToLower(resp.SourceLang),
		Attempts:   outcome.Attempts,
	}
	c.cache.Set(key, CachedTranslation{Text: res.Text, SourceLang: res.SourceLang})
	return res
}

// errorKind 把重试器的错误分类映射为错误代码
func errorKind(t retry.ErrorType) string {
	switch t {
	case retry.ErrorTypeNetwork, retry.ErrorTypeServerError:
		return ErrCodeNetwork
	case retry.ErrorTypeRetryableHTTP:
		return ErrCodeRateLimit
	case retry.ErrorTypeParse:
		return ErrCodeParse
	case retry.ErrorTypeClientError:
		return ErrCodeClient
	default:
		return ErrCodeUnknown
	}
}
