// Package browser 通过 Chrome DevTools 协议把真实的信息流页面作为宿主：
// 注入 MutationObserver 上报新帖、内容变动和几何位置，并在页面中渲染译文。
package browser

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/config"
	"github.com/nerdneilsfield/transfeed/internal/extract"
	"github.com/nerdneilsfield/transfeed/internal/pipeline"
	"github.com/nerdneilsfield/transfeed/internal/viewport"
)

// BindingName 页面向 Go 回传事件的绑定名
const BindingName = "__transfeed_binding"

//go:embed observer.js
var observerJS string

//go:embed render.js
var renderJS string

// Handler 接收页面事件，*pipeline.Pipeline 实现了该接口
type Handler interface {
	OnDiscovered(id pipeline.ItemID)
	OnMutated(id pipeline.ItemID)
}

// Options 宿主选项
type Options struct {
	Browser         config.BrowserConfig
	Selector        string
	GeometryRefresh time.Duration // 几何上报的最小间隔
	Logger          *zap.Logger
}

// Host 浏览器宿主，实现 pipeline.Host 和 pipeline.Locator
type Host struct {
	opts    Options
	logger  *zap.Logger
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher
	tracker *viewport.Tracker

	mu     sync.Mutex
	closed bool
}

// Open 连接远程 Chrome 或在本地启动一个，然后打开信息流页面
func Open(ctx context.Context, opts Options) (*Host, error) {
	if opts.Selector == "" {
		return nil, fmt.Errorf("browser: item selector is empty")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Host{
		opts:    opts,
		logger:  opts.Logger,
		tracker: viewport.NewTracker(opts.GeometryRefresh),
	}

	wsURL := opts.Browser.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(opts.Browser.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		h.lnch = l
		h.logger.Info("launched local chrome", zap.String("url", wsURL))
	} else {
		h.logger.Info("connecting to remote chrome", zap.String("url", wsURL))
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		h.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	h.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	h.page = page

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(opts.Browser.URL); err != nil {
		h.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", opts.Browser.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		h.logger.Warn("wait load timeout", zap.String("url", opts.Browser.URL), zap.Error(err))
	}
	return h, nil
}

// Observe 注入观察脚本并把页面事件转给 handler，直到 ctx 取消
func (h *Host) Observe(ctx context.Context, handler Handler) error {
	page := h.page.Context(ctx)

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		h.logger.Warn("add binding failed", zap.Error(err))
	}

	wait := page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		ev, err := parseEvent(e.Payload)
		if err != nil {
			h.logger.Debug("bad binding payload", zap.Error(err))
			return
		}
		h.dispatch(ev, handler)
	})

	refresh := h.tracker.Interval()
	if _, err := page.Eval(observerJS, h.opts.Selector, BindingName, refresh.Milliseconds()); err != nil {
		return fmt.Errorf("browser: inject observer: %w", err)
	}
	h.logger.Info("observer injected", zap.String("selector", h.opts.Selector))

	wait()
	return nil
}

func (h *Host) dispatch(ev event, handler Handler) {
	switch ev.Type {
	case eventDiscovered:
		for _, id := range ev.IDs {
			handler.OnDiscovered(id)
		}
	case eventChanged:
		for _, id := range ev.IDs {
			handler.OnMutated(id)
		}
	case eventGeometry:
		if h.tracker.ShouldRefresh() {
			h.tracker.SetViewport(ev.Viewport)
			for id, r := range ev.Rects {
				h.tracker.Update(string(id), r)
			}
			return
		}
		// 节流只限制已知条目和视口的刷新，新条目的位置总是记录
		for id, r := range ev.Rects {
			if _, ok := h.tracker.Center(string(id)); !ok {
				h.tracker.Update(string(id), r)
			}
		}
	}
}

// ExtractText 实现 pipeline.Extractor：取元素 outerHTML 后按统一规则提取
func (h *Host) ExtractText(id pipeline.ItemID) (string, error) {
	res, err := h.page.Eval(`(id) => {
		const el = document.querySelector('[data-transfeed-id="' + id + '"]');
		return el ? el.outerHTML : null;
	}`, string(id))
	if err != nil {
		return "", fmt.Errorf("browser: read item %s: %w", id, err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("browser: item %s detached", id)
	}
	return extract.FromHTML(res.Value.Str())
}

// Render 实现 pipeline.Renderer
func (h *Host) Render(id pipeline.ItemID, r pipeline.Rendering) error {
	res, err := h.page.Eval(renderJS, string(id), r.Kind.String(), r.Text, pipeline.FailureMarker)
	if err != nil {
		return fmt.Errorf("browser: render %s: %w", id, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: item %s detached", id)
	}
	return nil
}

// Distance 实现 pipeline.Locator
func (h *Host) Distance(id pipeline.ItemID) float64 {
	return h.tracker.Distance(string(id))
}

// Close 关闭页面和浏览器；远程浏览器只断开连接
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.cleanup()
}

func (h *Host) cleanup() error {
	var err error
	if h.page != nil {
		err = h.page.Close()
	}
	if h.browser != nil {
		if h.lnch != nil {
			if cerr := h.browser.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	if h.lnch != nil {
		h.lnch.Kill()
	}
	return err
}
