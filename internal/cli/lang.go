package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nerdneilsfield/transfeed/internal/config"
)

func newLangCommand() *cobra.Command {
	var toggleSkip bool

	cmd := &cobra.Command{
		Use:   "lang [language]",
		Short: "设置目标语言（支持模糊匹配，无参数时交互选择）",
		Long: `lang 修改配置文件中的目标语言。正在运行的 watch 会检测到配置变化，
清空已有译文并按新语言重新翻译。

示例:
  transfeed lang ja
  transfeed lang japanese
  transfeed lang --skip en     # 切换 en 是否在跳过列表中`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(cfgFile)
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			langs := allLanguages()
			var chosen langInfo
			if len(args) == 0 {
				if toggleSkip {
					return fmt.Errorf("--skip requires a language")
				}
				chosen, err = selectLanguage(langs, cfg.TargetLang)
				if err != nil {
					return err
				}
			} else {
				matches := matchLanguages(args[0], langs)
				if len(matches) == 0 {
					// 不在列表中但能解析的代码也接受
					code := config.NormalizeLang(args[0])
					candidate := describeLang(code)
					if candidate.English == "" {
						return fmt.Errorf("unknown language %q", args[0])
					}
					matches = []langInfo{candidate}
				}
				chosen = matches[0]
			}

			if toggleSkip {
				if i := slices.Index(cfg.SkipLangs, chosen.Code); i >= 0 {
					cfg.SkipLangs = slices.Delete(cfg.SkipLangs, i, i+1)
				} else {
					cfg.SkipLangs = append(cfg.SkipLangs, chosen.Code)
				}
			} else {
				cfg.TargetLang = chosen.Code
			}

			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			if toggleSkip {
				pterm.Success.Printfln("skip languages: [%s] (%s)", strings.Join(cfg.SkipLangs, ", "), path)
			} else {
				pterm.Success.Printfln("target language set to %s (%s)", chosen.label(), path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&toggleSkip, "skip", false, "切换该语言是否在跳过列表中，而不是设置目标语言")
	return cmd
}

func newLangsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "langs",
		Short: "列出可选的目标语言",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			renderLanguages(cmd.OutOrStdout(), allLanguages(), cfg)
			return nil
		},
	}
}

// selectLanguage 交互式选择语言，当前目标语言排在最前
func selectLanguage(langs []langInfo, current string) (langInfo, error) {
	options := make([]string, 0, len(langs))
	byLabel := make(map[string]langInfo, len(langs))
	for _, l := range langs {
		label := l.label()
		byLabel[label] = l
		if l.Code == current {
			options = append([]string{label}, options...)
		} else {
			options = append(options, label)
		}
	}

	picked, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Target language").
		Show()
	if err != nil {
		return langInfo{}, err
	}
	return byLabel[picked], nil
}

func renderLanguages(w io.Writer, langs []langInfo, cfg *config.Config) {
	skip := cfg.SkipSet()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Code", "Language", "Native", ""})
	for _, l := range langs {
		mark := ""
		if l.Code == cfg.TargetLang {
			mark = color.GreenString("target")
		} else if _, ok := skip[strings.ToLower(l.Code)]; ok {
			mark = color.New(color.FgHiBlack).Sprint("skip")
		}
		tw.AppendRow(table.Row{l.Code, l.English, l.Native, mark})
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}
