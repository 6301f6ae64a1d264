package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// DefaultConfigName 默认配置文件名（不含扩展名）
const DefaultConfigName = ".transfeed"

// DefaultLanguages 控制面板中列出的目标语言
var DefaultLanguages = []string{"zh-CN", "en", "ja", "ru", "fr", "de"}

// BrowserConfig 浏览器宿主配置
type BrowserConfig struct {
	RemoteURL string `mapstructure:"remote_url"` // 已运行 Chrome 的 DevTools WebSocket 地址，空则本地启动
	URL       string `mapstructure:"url"`        // 信息流页面地址
	Headless  bool   `mapstructure:"headless"`
}

// Config 保存翻译流水线的所有配置
type Config struct {
	TargetLang string   `mapstructure:"target_lang"`
	SkipLangs  []string `mapstructure:"skip_langs"`

	Concurrency            int `mapstructure:"concurrency"`               // 同时进行的翻译请求数
	RequestIntervalMs      int `mapstructure:"request_interval_ms"`       // 同一请求内分段调用之间的间隔
	MaxRetry               int `mapstructure:"max_retry"`                 // 最大重试次数
	ViewportCenterRadiusPx int `mapstructure:"viewport_center_radius_px"` // 发现时距视口中心小于该半径的条目优先

	MinSegmentLength int `mapstructure:"min_segment_length"` // 短于该长度的相邻文本段合并（UTF-16 码元）
	MaxSegmentLength int `mapstructure:"max_segment_length"` // 超过该长度的文本段按句拆分

	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // 全局限速，0 表示不限
	CacheSize         int     `mapstructure:"cache_size"`          // 翻译结果缓存条目数，0 表示关闭
	ChangeDebounceMs  int     `mapstructure:"change_debounce_ms"`
	ViewportRefreshMs int     `mapstructure:"viewport_refresh_ms"`

	Provider               string `mapstructure:"provider"`
	APIKey                 string `mapstructure:"api_key"`
	APIEndpoint            string `mapstructure:"api_endpoint"`
	Model                  string `mapstructure:"model"`
	RequestTimeout         int    `mapstructure:"request_timeout"` // 秒
	PredefinedTranslations string `mapstructure:"predefined_translations"`

	ItemSelector     string `mapstructure:"item_selector"`
	RowHeightPx      int    `mapstructure:"row_height_px"`      // 静态文档宿主的合成行高
	ViewportHeightPx int    `mapstructure:"viewport_height_px"` // 静态文档宿主的合成视口高度

	Browser BrowserConfig `mapstructure:"browser"`

	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// NewDefaultConfig 创建一个新的默认配置
func NewDefaultConfig() *Config {
	return &Config{
		TargetLang:             "zh-CN",
		SkipLangs:              []string{},
		Concurrency:            2,
		RequestIntervalMs:      200,
		MaxRetry:               3,
		ViewportCenterRadiusPx: 200,
		MinSegmentLength:       50,
		MaxSegmentLength:       4500,
		RequestsPerSecond:      0,
		CacheSize:              512,
		ChangeDebounceMs:       250,
		ViewportRefreshMs:      500,
		Provider:               "google",
		RequestTimeout:         30,
		ItemSelector:           `[data-testid="tweetText"]`,
		RowHeightPx:            240,
		ViewportHeightPx:       900,
		Browser: BrowserConfig{
			URL:      "https://x.com/home",
			Headless: false,
		},
		LogLevel: "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	for k, val := range structToMap(d) {
		v.SetDefault(k, val)
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，则使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	// 读取环境变量
	v.SetEnvPrefix("TRANSFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig 将配置保存到文件
func SaveConfig(cfg *Config, configPath string) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(home, DefaultConfigName+".yaml")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	// Set 会按点号拆分嵌套键（browser.url）
	for k, val := range structToMap(cfg) {
		v.Set(k, val)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	return v.WriteConfigAs(configPath)
}

// ResolvePath 返回实际使用的配置文件路径；未指定时依次查找当前目录和家目录
func ResolvePath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	candidates := []string{DefaultConfigName + ".yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigName+".yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// Normalize 规范化语言代码
func (c *Config) Normalize() {
	c.TargetLang = NormalizeLang(c.TargetLang)
	skip := make([]string, 0, len(c.SkipLangs))
	for _, l := range c.SkipLangs {
		l = NormalizeLang(l)
		if l != "" && !slices.Contains(skip, l) {
			skip = append(skip, l)
		}
	}
	c.SkipLangs = skip
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
}

// Validate 检查配置不变量
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max_retry must be >= 0, got %d", c.MaxRetry)
	}
	if c.RequestIntervalMs < 0 {
		return fmt.Errorf("request_interval_ms must be >= 0, got %d", c.RequestIntervalMs)
	}
	if c.MinSegmentLength < 0 || c.MaxSegmentLength <= 0 {
		return fmt.Errorf("invalid segment lengths: min=%d max=%d", c.MinSegmentLength, c.MaxSegmentLength)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0")
	}
	if _, err := language.Parse(c.TargetLang); err != nil {
		return fmt.Errorf("invalid target_lang %q: %w", c.TargetLang, err)
	}
	for _, l := range c.SkipLangs {
		if _, err := language.Parse(l); err != nil {
			return fmt.Errorf("invalid skip language %q: %w", l, err)
		}
	}
	return nil
}

// Clone 返回深拷贝
func (c *Config) Clone() *Config {
	cp := *c
	cp.SkipLangs = slices.Clone(c.SkipLangs)
	return &cp
}

// SkipSet 返回小写的跳过语言集合
func (c *Config) SkipSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.SkipLangs))
	for _, l := range c.SkipLangs {
		set[strings.ToLower(l)] = struct{}{}
	}
	return set
}

// RequestInterval 分段调用间隔
func (c *Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMs) * time.Millisecond
}

// ChangeDebounce 变更通知的防抖窗口
func (c *Config) ChangeDebounce() time.Duration {
	return time.Duration(c.ChangeDebounceMs) * time.Millisecond
}

// ViewportRefresh 视口几何刷新节流间隔
func (c *Config) ViewportRefresh() time.Duration {
	return time.Duration(c.ViewportRefreshMs) * time.Millisecond
}

// Timeout 单次远程请求超时
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// NormalizeLang 规范化语言代码（zh_cn → zh-CN），无法解析时原样返回
func NormalizeLang(code string) string {
	code = strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}

func structToMap(c *Config) map[string]interface{} {
	return map[string]interface{}{
		"target_lang":               c.TargetLang,
		"skip_langs":                c.SkipLangs,
		"concurrency":               c.Concurrency,
		"request_interval_ms":       c.RequestIntervalMs,
		"max_retry":                 c.MaxRetry,
		"viewport_center_radius_px": c.ViewportCenterRadiusPx,
		"min_segment_length":        c.MinSegmentLength,
		"max_segment_length":        c.MaxSegmentLength,
		"requests_per_second":       c.RequestsPerSecond,
		"cache_size":                c.CacheSize,
		"change_debounce_ms":        c.ChangeDebounceMs,
		"viewport_refresh_ms":       c.ViewportRefreshMs,
		"provider":                  c.Provider,
		"api_key":                   c.APIKey,
		"api_endpoint":              c.APIEndpoint,
		"model":                     c.Model,
		"request_timeout":           c.RequestTimeout,
		"predefined_translations":   c.PredefinedTranslations,
		"item_selector":             c.ItemSelector,
		"row_height_px":             c.RowHeightPx,
		"viewport_height_px":        c.ViewportHeightPx,
		"browser.remote_url":        c.Browser.RemoteURL,
		"browser.url":               c.Browser.URL,
		"browser.headless":          c.Browser.Headless,
		"debug":                     c.Debug,
		"log_level":                 c.LogLevel,
	}
}

// Settings 返回扁平化的配置项（嵌套键以点号连接）
func (c *Config) Settings() map[string]interface{} {
	return structToMap(c)
}
