// Package viewport 记录条目和视口在页面坐标系中的几何位置，用于按距视口中心的远近排序。
package viewport

import (
	"math"
	"sync"
	"time"
)

// Point 页面坐标系中的点（像素）
type Point struct {
	X, Y float64
}

// Rect 页面坐标系中的矩形（像素）
type Rect struct {
	X, Y, Width, Height float64
}

// Center 矩形中心
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Intersects 两矩形是否相交
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Distance 两点之间的欧氏距离
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Tracker 保存每个条目最后一次已知的中心点。
// 离开视口的条目保留旧位置，距离可能已过时。
type Tracker struct {
	mu          sync.RWMutex
	viewport    Rect
	centers     map[string]Point
	minInterval time.Duration
	lastRefresh time.Time
	now         func() time.Time
}

// NewTracker 创建跟踪器；minInterval 为几何刷新的最小间隔
func NewTracker(minInterval time.Duration) *Tracker {
	return &Tracker{
		centers:     make(map[string]Point),
		minInterval: minInterval,
		now:         time.Now,
	}
}

// SetInterval 修改刷新节流间隔
func (t *Tracker) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minInterval = d
}

// Interval 当前刷新节流间隔
func (t *Tracker) Interval() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.minInterval
}

// ShouldRefresh 节流：距上次刷新不足 minInterval 时返回 false，否则记录本次刷新并返回 true
func (t *Tracker) ShouldRefresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.lastRefresh.IsZero() && now.Sub(t.lastRefresh) < t.minInterval {
		return false
	}
	t.lastRefresh = now
	return true
}

// SetViewport 更新视口矩形
func (t *Tracker) SetViewport(r Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewport = r
}

// Viewport 当前视口矩形
func (t *Tracker) Viewport() Rect {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewport
}

// ViewportCenter 视口中心
func (t *Tracker) ViewportCenter() Point {
	return t.Viewport().Center()
}

// Update 记录条目的最新几何位置
func (t *Tracker) Update(id string, r Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.centers[id] = r.Center()
}

// Forget 删除条目
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.centers, id)
}

// Center 条目最后已知的中心
func (t *Tracker) Center(id string) (Point, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.centers[id]
	return p, ok
}

// Distance 条目中心到视口中心的距离；位置未知时返回 +Inf，排在最后
func (t *Tracker) Distance(id string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.centers[id]
	if !ok {
		return math.Inf(1)
	}
	return Distance(p, t.viewport.Center())
}
