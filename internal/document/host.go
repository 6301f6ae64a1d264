// Package document 把静态 HTML 信息流快照作为页面宿主：发现帖子、提取文本、
// 在每条帖子后插入译文容器，并可在文件变化时重新加载。
package document

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/extract"
	"github.com/nerdneilsfield/transfeed/internal/pipeline"
	"github.com/nerdneilsfield/transfeed/internal/viewport"
)

// ContainerClass 译文容器的 class
const ContainerClass = "translation-container"

// Options 宿主选项
type Options struct {
	Selector       string // 帖子正文选择器
	RowHeight      int    // 合成布局中每条帖子的高度
	ViewportHeight int    // 合成视口高度
	Width          int
	Logger         *zap.Logger
}

// Host 静态文档宿主，实现 pipeline.Host 和 pipeline.Locator
type Host struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	doc     *goquery.Document
	items   map[pipeline.ItemID]*goquery.Selection
	order   []pipeline.ItemID
	sources map[pipeline.ItemID]string // 帖子 HTML，用于判断重新加载后是否变化
	renders map[pipeline.ItemID]pipeline.Rendering

	tracker *viewport.Tracker
}

// Load 从 reader 解析文档
func Load(r io.Reader, opts Options) (*Host, error) {
	if opts.Selector == "" {
		return nil, fmt.Errorf("item selector is empty")
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = 240
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 900
	}
	if opts.Width <= 0 {
		opts.Width = 600
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	h := &Host{
		opts:    opts,
		logger:  opts.Logger,
		renders: make(map[pipeline.ItemID]pipeline.Rendering),
		tracker: viewport.NewTracker(0),
	}
	if _, _, err := h.reload(r); err != nil {
		return nil, err
	}
	h.Scroll(0)
	return h, nil
}

// LoadFile 从文件解析文档
func LoadFile(path string, opts Options) (*Host, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, opts)
}

// Items 按文档顺序返回所有帖子
func (h *Host) Items() []pipeline.ItemID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]pipeline.ItemID, len(h.order))
	copy(out, h.order)
	return out
}

// ExtractText 实现 pipeline.Extractor
func (h *Host) ExtractText(id pipeline.ItemID) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sel, ok := h.items[id]
	if !ok {
		return "", fmt.Errorf("unknown item %q", id)
	}
	return extract.Text(sel)
}

// Render 实现 pipeline.Renderer：替换帖子后面的译文容器，重复调用结果相同
func (h *Host) Render(id pipeline.ItemID, r pipeline.Rendering) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sel, ok := h.items[id]
	if !ok {
		return fmt.Errorf("unknown item %q", id)
	}
	if r.Kind == pipeline.RenderNone {
		delete(h.renders, id)
	} else {
		h.renders[id] = r
	}
	applyRendering(sel, r)
	return nil
}

// Rendering 条目当前的渲染结果
func (h *Host) Rendering(id pipeline.ItemID) (pipeline.Rendering, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.renders[id]
	return r, ok
}

// Distance 实现 pipeline.Locator
func (h *Host) Distance(id pipeline.ItemID) float64 {
	return h.tracker.Distance(string(id))
}

// Tracker 视口几何
func (h *Host) Tracker() *viewport.Tracker {
	return h.tracker
}

// Scroll 把合成视口的上边缘移到 y
func (h *Host) Scroll(y int) {
	h.tracker.SetViewport(viewport.Rect{
		Y:      float64(y),
		Width:  float64(h.opts.Width),
		Height: float64(h.opts.ViewportHeight),
	})
}

// Visible 与视口相交的帖子
func (h *Host) Visible() []pipeline.ItemID {
	vp := h.tracker.Viewport()
	var out []pipeline.ItemID
	for i, id := range h.Items() {
		if h.rowRect(i).Intersects(vp) {
			out = append(out, id)
		}
	}
	return out
}

// WriteTo 输出带译文容器的文档
func (h *Host) WriteTo(w io.Writer) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf bytes.Buffer
	for _, n := range h.doc.Nodes {
		if err := nethtml.Render(&buf, n); err != nil {
			return 0, err
		}
	}
	return buf.WriteTo(w)
}

// Reload 重新解析文档：返回新出现的帖子和 HTML 发生变化的帖子，已有的渲染结果保留
func (h *Host) Reload(r io.Reader) (added, changed []pipeline.ItemID, err error) {
	return h.reload(r)
}

func (h *Host) reload(r io.Reader) (added, changed []pipeline.ItemID, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// 输入可能是之前的输出，旧容器先去掉
	doc.Find("." + ContainerClass).Remove()

	items := make(map[pipeline.ItemID]*goquery.Selection)
	sources := make(map[pipeline.ItemID]string)
	var order []pipeline.ItemID

	doc.Find(h.opts.Selector).Each(func(i int, s *goquery.Selection) {
		id := uniqueID(itemID(s, i), items)
		src, _ := goquery.OuterHtml(s)

		items[id] = s
		sources[id] = src
		order = append(order, id)

		prev, known := h.sources[id]
		switch {
		case !known:
			added = append(added, id)
		case prev != src:
			changed = append(changed, id)
		}
	})

	for id := range h.items {
		if _, ok := items[id]; !ok {
			delete(h.renders, id)
			h.tracker.Forget(string(id))
		}
	}

	h.doc, h.items, h.sources, h.order = doc, items, sources, order
	for i, id := range order {
		h.tracker.Update(string(id), h.rowRect(i))
		if rendering, ok := h.renders[id]; ok {
			applyRendering(items[id], rendering)
		}
	}

	h.logger.Debug("document loaded",
		zap.Int("items", len(order)),
		zap.Int("added", len(added)),
		zap.Int("changed", len(changed)))
	return added, changed, nil
}

func (h *Host) rowRect(i int) viewport.Rect {
	return viewport.Rect{
		Y:      float64(i * h.opts.RowHeight),
		Width:  float64(h.opts.Width),
		Height: float64(h.opts.RowHeight),
	}
}

// itemID 优先使用元素 id，其次是所在 article 中的状态链接，最后退回文档位置
func itemID(s *goquery.Selection, index int) pipeline.ItemID {
	if id, ok := s.Attr("id"); ok && id != "" {
		return pipeline.ItemID(id)
	}
	if href, ok := s.Closest("article").Find(`a[href*="/status/"]`).First().Attr("href"); ok {
		return pipeline.ItemID(href)
	}
	return pipeline.ItemID(fmt.Sprintf("item-%d", index))
}

func uniqueID(id pipeline.ItemID, seen map[pipeline.ItemID]*goquery.Selection) pipeline.ItemID {
	if _, dup := seen[id]; !dup {
		return id
	}
	for n := 2; ; n++ {
		candidate := pipeline.ItemID(fmt.Sprintf("%s#%d", id, n))
		if _, dup := seen[candidate]; !dup {
			return candidate
		}
	}
}

// applyRendering 移除帖子后已有的容器，按需插入新容器
func applyRendering(sel *goquery.Selection, r pipeline.Rendering) {
	next := sel.Next()
	if next.HasClass(ContainerClass) {
		next.Remove()
	}
	if markup := containerHTML(r); markup != "" {
		sel.AfterHtml(markup)
	}
}

// containerHTML 渲染结果对应的容器 HTML，RenderNone 返回空串
func containerHTML(r pipeline.Rendering) string {
	var inner string
	switch r.Kind {
	case pipeline.RenderPending:
		inner = `<div class="loading-spinner"></div>`
	case pipeline.RenderTranslated:
		lines := strings.Split(r.Text, "\n")
		for i, l := range lines {
			lines[i] = html.EscapeString(l)
		}
		inner = strings.Join(lines, "<br>")
	case pipeline.RenderFailed:
		inner = `<span style="color:red">` + pipeline.FailureMarker + `</span>`
	default:
		return ""
	}
	return `<div class="` + ContainerClass + `">` + inner + `</div>`
}
