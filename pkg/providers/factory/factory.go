package factory

import (
	"fmt"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/pkg/providers"
	"github.com/nerdneilsfield/transfeed/pkg/providers/deepl"
	"github.com/nerdneilsfield/transfeed/pkg/providers/deeplx"
	"github.com/nerdneilsfield/transfeed/pkg/providers/google"
	"github.com/nerdneilsfield/transfeed/pkg/providers/libretranslate"
	"github.com/nerdneilsfield/transfeed/pkg/providers/openai"
	"github.com/nerdneilsfield/transfeed/pkg/providers/raw"
	"github.com/nerdneilsfield/transfeed/pkg/providers/stats"
)

// ProviderFactory 提供商工厂
type ProviderFactory struct {
	registry *providers.Registry
}

// New 创建新的提供商工厂，内置提供商全部注册
func New() *ProviderFactory {
	f := &ProviderFactory{
		registry: providers.NewRegistry(),
	}
	// 内置名称互不冲突，注册不会失败
	_ = f.registry.Register("google", createGoogleProvider)
	_ = f.registry.Register("libretranslate", createLibreTranslateProvider)
	_ = f.registry.Register("deepl", createDeepLProvider)
	_ = f.registry.Register("deeplx", createDeepLXProvider)
	_ = f.registry.Register("openai", createOpenAIProvider)
	_ = f.registry.Register("raw", createRawProvider)
	return f
}

// Register 注册自定义提供商
func (f *ProviderFactory) Register(name string, ctor providers.Constructor) error {
	return f.registry.Register(name, ctor)
}

// CreateProvider 根据配置创建提供商；statsManager 非空时包装统计中间件
func (f *ProviderFactory) CreateProvider(cfg *config.Config, statsManager *stats.StatsManager) (providers.TranslationProvider, error) {
	base := providers.DefaultConfig()
	base.APIKey = cfg.APIKey
	base.APIEndpoint = cfg.APIEndpoint
	base.Timeout = cfg.Timeout()

	provider, err := f.registry.Create(cfg.Provider, base, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	if statsManager != nil {
		provider = stats.NewStatisticsMiddleware(provider, statsManager)
	}
	return provider, nil
}

// GetSupportedProviders 获取支持的提供商列表
func (f *ProviderFactory) GetSupportedProviders() []string {
	return f.registry.List()
}

func createGoogleProvider(base providers.BaseConfig, _ string) (providers.TranslationProvider, error) {
	return google.New(google.Config{BaseConfig: base}), nil
}

func createLibreTranslateProvider(base providers.BaseConfig, _ string) (providers.TranslationProvider, error) {
	return libretranslate.New(libretranslate.Config{BaseConfig: base}), nil
}

func createDeepLProvider(base providers.BaseConfig, _ string) (providers.TranslationProvider, error) {
	if base.APIKey == "" {
		return nil, fmt.Errorf("deepl provider requires api_key")
	}
	return deepl.New(deepl.Config{BaseConfig: base}), nil
}

func createDeepLXProvider(base providers.BaseConfig, _ string) (providers.TranslationProvider, error) {
	return deeplx.New(deeplx.Config{BaseConfig: base}), nil
}

// createOpenAIProvider 创建 OpenAI 提供商，兼容接口同样适用
func createOpenAIProvider(base providers.BaseConfig, model string) (providers.TranslationProvider, error) {
	if base.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires api_key")
	}
	cfg := openai.DefaultConfig()
	cfg.BaseConfig = base
	if model != "" {
		cfg.Model = model
	}
	return openai.New(cfg), nil
}

func createRawProvider(providers.BaseConfig, string) (providers.TranslationProvider, error) {
	return raw.New(), nil
}

// DefaultFactory 全局工厂实例
var DefaultFactory = New()

// CreateProvider 使用默认工厂创建提供商
func CreateProvider(cfg *config.Config, statsManager *stats.StatsManager) (providers.TranslationProvider, error) {
	return DefaultFactory.CreateProvider(cfg, statsManager)
}
