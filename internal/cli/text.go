package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nerdneilsfield/transfeed/internal/pipeline"
)

func newTextCommand() *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "text [text...]",
		Short: "翻译一段文本（无参数时从标准输入读取）",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				if cmd.InOrStdin() == os.Stdin && stdinIsTerminal() {
					return fmt.Errorf("no text given")
				}
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.log.Sync()
			}()

			out := pipeline.TranslateText(cmd.Context(), rt.client, text, rt.cfg, rt.log)
			w := cmd.OutOrStdout()
			switch out.Kind {
			case pipeline.RenderTranslated:
				fmt.Fprintln(w, out.Text)
			case pipeline.RenderNone:
				color.New(color.FgHiBlack).Fprintf(cmd.ErrOrStderr(), "skipped (source: %s)\n", sourceLabel(out.SourceLang))
			default:
				color.New(color.FgRed).Fprintln(cmd.ErrOrStderr(), pipeline.FailureMarker)
				if out.Err != nil {
					return out.Err
				}
				return fmt.Errorf("translation failed")
			}

			if showStats {
				fmt.Fprintf(cmd.ErrOrStderr(), "source: %s, calls: %d\n", sourceLabel(out.SourceLang), out.Segments)
				rt.stats.RenderTable(cmd.ErrOrStderr())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showStats, "stats", false, "显示检测语言和提供商统计")
	return cmd
}

func sourceLabel(lang string) string {
	if lang == "" {
		return "unknown"
	}
	return lang
}

// stdinIsTerminal 标准输入是否为终端
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
