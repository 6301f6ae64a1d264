package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nerdneilsfield/transfeed/internal/document"
	"github.com/nerdneilsfield/transfeed/internal/pipeline"
	"github.com/nerdneilsfield/transfeed/internal/progress"
)

func newTranslateCommand() *cobra.Command {
	var (
		scrollY   int
		watch     bool
		showStats bool
		showBar   bool
	)

	cmd := &cobra.Command{
		Use:   "translate <input.html> [output.html]",
		Short: "翻译静态 HTML 信息流快照，输出插入了译文容器的文档",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			output := ""
			if len(args) == 2 {
				output = args[1]
			}
			if watch {
				if output == "" {
					return fmt.Errorf("--watch requires an output file")
				}
				if sameFile(input, output) {
					return fmt.Errorf("--watch cannot write back to the input file")
				}
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.log.Sync()
			}()

			host, err := document.LoadFile(input, document.Options{
				Selector:       rt.cfg.ItemSelector,
				RowHeight:      rt.cfg.RowHeightPx,
				ViewportHeight: rt.cfg.ViewportHeightPx,
				Logger:         rt.log,
			})
			if err != nil {
				return err
			}
			host.Scroll(scrollY)
			rt.log.Info("document loaded",
				zap.String("file", input),
				zap.Int("items", len(host.Items())),
				zap.Int("visible", len(host.Visible())))

			p := pipeline.New(rt.store, rt.client, host,
				pipeline.WithLogger(rt.log),
				pipeline.WithLocator(host))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return p.Run(gctx)
			})
			g.Go(func() error {
				defer cancel()

				var bar *progress.Reporter
				if showBar {
					r, err := progress.Start(cmd.ErrOrStderr(), "translating", 0, p.Stats)
					if err != nil {
						return err
					}
					bar = r
				}
				for _, id := range host.Items() {
					p.OnDiscovered(id)
				}
				err := p.WaitIdle(gctx)
				if bar != nil {
					bar.Stop()
				}
				if err != nil {
					return err
				}
				if err := writeDocument(host, output, cmd.OutOrStdout()); err != nil {
					return err
				}
				if !watch {
					return nil
				}

				rt.log.Info("watching for changes", zap.String("file", input))
				return host.Watch(gctx, input, func(added, changed []pipeline.ItemID) {
					for _, id := range added {
						p.OnDiscovered(id)
					}
					for _, id := range changed {
						p.OnMutated(id)
					}
					go func() {
						if err := p.WaitIdle(gctx); err != nil {
							return
						}
						if err := writeDocument(host, output, nil); err != nil {
							rt.log.Warn("write output failed", zap.Error(err))
						}
					}()
				})
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			report := cmd.OutOrStdout()
			if output == "" {
				report = cmd.ErrOrStderr()
			}
			renderItems(report, collectRows(host))
			renderSummary(report, p.Stats())
			if showStats {
				renderPipelineStats(report, p.Stats())
				rt.stats.RenderTable(report)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&scrollY, "scroll", 0, "合成视口的滚动位置（像素），决定翻译顺序")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "输入文件变化后重新翻译并更新输出")
	cmd.Flags().BoolVar(&showStats, "stats", false, "显示流水线和提供商统计")
	cmd.Flags().BoolVar(&showBar, "progress", false, "显示翻译进度条")
	return cmd
}

func collectRows(host *document.Host) []itemRow {
	ids := host.Items()
	rows := make([]itemRow, 0, len(ids))
	for _, id := range ids {
		src, _ := host.ExtractText(id)
		r, ok := host.Rendering(id)
		rows = append(rows, itemRow{ID: id, Source: src, Rendering: r, HasRendered: ok})
	}
	return rows
}

// writeDocument 输出到文件；未指定文件时写到 fallback
func writeDocument(host *document.Host, path string, fallback io.Writer) error {
	if path == "" {
		if fallback == nil {
			return nil
		}
		_, err := host.WriteTo(fallback)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := host.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
