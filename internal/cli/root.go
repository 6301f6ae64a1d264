package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// 命令行标志变量
	cfgFile      string
	debugMode    bool
	targetLang   string
	providerName string
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "transfeed",
		Short: "信息流帖子翻译工具",
		Long: `transfeed 在帖子下方插入译文：按距视口中心的远近排队翻译，
保留 emoji，跳过已是目标语言的帖子，并在帖子内容变化后重新翻译。

支持的翻译提供商:
  - google: Google Translate（免费接口或 Cloud API）
  - libretranslate: LibreTranslate (开源)
  - deepl: DeepL API（Free 或 Pro 密钥）
  - deeplx: DeepLX (免费 DeepL 替代)
  - openai: OpenAI 兼容的大语言模型
  - raw: 原样返回，用于调试`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认 ./.transfeed.yaml 或 ~/.transfeed.yaml）")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().StringVarP(&targetLang, "target", "t", "", "目标语言，覆盖配置文件")
	rootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "", "翻译提供商，覆盖配置文件")

	rootCmd.AddCommand(
		newTranslateCommand(),
		newTextCommand(),
		newWatchCommand(),
		newLangCommand(),
		newLangsCommand(),
		newConfigCommand(),
	)
	return rootCmd
}
