package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nerdneilsfield/transfeed/internal/browser"
	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/internal/pipeline"
)

func newWatchCommand() *cobra.Command {
	var (
		url       string
		remote    string
		headless  bool
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "在浏览器中打开信息流并持续翻译新出现的帖子",
		Long: `watch 通过 Chrome DevTools 协议打开信息流页面（或连接已运行的 Chrome），
监听新帖和内容变化，按距视口中心由近到远翻译，并把译文插入到帖子下方。
配置文件修改后立即生效，Ctrl+C 退出。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.log.Sync()
			}()

			opts := browser.Options{
				Browser:         rt.cfg.Browser,
				Selector:        rt.cfg.ItemSelector,
				GeometryRefresh: rt.cfg.ViewportRefresh(),
				Logger:          rt.log,
			}
			if len(args) == 1 {
				opts.Browser.URL = args[0]
			}
			if url != "" {
				opts.Browser.URL = url
			}
			if remote != "" {
				opts.Browser.RemoteURL = remote
			}
			if cmd.Flags().Changed("headless") {
				opts.Browser.Headless = headless
			}
			if opts.Browser.URL == "" {
				return fmt.Errorf("no feed url: pass one as argument or set browser.url")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			spinner, _ := pterm.DefaultSpinner.Start("opening " + opts.Browser.URL)
			host, err := browser.Open(ctx, opts)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			defer host.Close()
			spinner.Success("feed opened")

			if err := config.WatchFile(config.ResolvePath(cfgFile), rt.store, rt.log); err != nil {
				rt.log.Warn("config hot reload disabled", zap.Error(err))
			}

			p := pipeline.New(rt.store, rt.client, host,
				pipeline.WithLogger(rt.log),
				pipeline.WithLocator(host))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return p.Run(gctx)
			})
			g.Go(func() error {
				return host.Observe(gctx, p)
			})

			rt.log.Info("watching feed", zap.String("url", opts.Browser.URL))
			err = g.Wait()

			w := cmd.OutOrStdout()
			renderSummary(w, p.Stats())
			if showStats {
				renderPipelineStats(w, p.Stats())
				rt.stats.RenderTable(w)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "信息流页面地址，覆盖 browser.url")
	cmd.Flags().StringVar(&remote, "remote", "", "已运行 Chrome 的 DevTools 地址，覆盖 browser.remote_url")
	cmd.Flags().BoolVar(&headless, "headless", false, "无头模式启动本地 Chrome")
	cmd.Flags().BoolVar(&showStats, "stats", false, "退出时显示流水线和提供商统计")
	return cmd
}
