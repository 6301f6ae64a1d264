package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/internal/logger"
	"github.com/nerdneilsfield/transfeed/pkg/providers/factory"
	"github.com/nerdneilsfield/transfeed/pkg/providers/stats"
	"github.com/nerdneilsfield/transfeed/pkg/translation"
)

// runtime 一次命令运行所需的组件
type runtime struct {
	cfg    *config.Config
	store  *config.Store
	log    *zap.Logger
	stats  *stats.StatsManager
	client *translation.Client
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if targetLang != "" {
		cfg.TargetLang = targetLang
	}
	if providerName != "" {
		cfg.Provider = providerName
	}
	if debugMode {
		cfg.Debug = true
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var log *zap.Logger
	if cfg.Debug {
		log = logger.NewLogger(true)
	} else {
		log = logger.NewLoggerWithLevel(cfg.LogLevel)
	}

	var glossary *config.PredefinedTranslation
	if cfg.PredefinedTranslations != "" {
		glossary, err = config.LoadPredefinedTranslations(cfg.PredefinedTranslations)
		if err != nil {
			return nil, err
		}
		log.Info("predefined translations loaded",
			zap.String("file", cfg.PredefinedTranslations),
			zap.Int("entries", len(glossary.Translations)))
	}

	statsManager := stats.NewStatsManager()
	provider, err := factory.CreateProvider(cfg, statsManager)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	log.Debug("runtime ready",
		zap.String("provider", provider.GetName()),
		zap.String("targetLang", cfg.TargetLang),
		zap.Int("concurrency", cfg.Concurrency))

	return &runtime{
		cfg:    cfg,
		store:  config.NewStore(cfg),
		log:    log,
		stats:  statsManager,
		client: translation.NewClient(provider, translation.OptionsFromConfig(cfg, glossary, log)),
	}, nil
}
