package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nerdneilsfield/transfeed/internal/config"
)

// ErrAlreadyRunning Run 只能调用一次
var ErrAlreadyRunning = errors.New("pipeline already running")

// 调度协程的入站事件
type (
	discoveredEvent struct {
		id   ItemID
		text string
	}
	changedEvent struct {
		id        ItemID
		text      string
		debounced bool // 来自 Watcher，处理后需要 Settle
	}
	configEvent struct {
		cfg *config.Config
	}
	refreshEvent struct{}
	idleEvent    struct {
		ch chan struct{}
	}
)

// Stats 流水线计数
type Stats struct {
	Discovered int64
	Admitted   int64
	Duplicates int64
	Superseded int64
	Dispatched int64
	Translated int64
	Skipped    int64
	Retried    int64
	Failed     int64
	Stale      int64
	Released   int64
}

type counters struct {
	discovered, admitted, duplicates, superseded, dispatched atomic.Int64
	translated, skipped, retried, failed, stale, released    atomic.Int64
}

// Option 构造选项
type Option func(*Pipeline)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocator 设置视口距离来源；未设置时所有条目距离相同
func WithLocator(locator Locator) Option {
	return func(p *Pipeline) {
		p.locator = locator
	}
}

// Pipeline 翻译流水线。所有发现、变更、配置和完成事件经同一个通道
// 交给单个调度协程处理，账本、队列和并发计数只在该协程中读写。
type Pipeline struct {
	store      *config.Store
	translator Translator
	host       Host
	locator    Locator
	logger     *zap.Logger
	watcher    *Watcher

	events  chan any
	done    chan struct{}
	started atomic.Bool
	workers sync.WaitGroup
	stats   counters

	// 以下字段只由调度协程访问
	ledger      *Ledger
	cfg         *config.Config
	inFlight    int
	dispatching bool
	waiters     []chan struct{}
}

// New 创建流水线
func New(store *config.Store, translator Translator, host Host, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		translator: translator,
		host:       host,
		logger:     zap.NewNop(),
		events:     make(chan any, 256),
		done:       make(chan struct{}),
		ledger:     NewLedger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.watcher = NewWatcher(host, func(id ItemID, text string) {
		p.send(context.Background(), changedEvent{id: id, text: text, debounced: true})
	}, func() *config.Config { return store.Snapshot() }, p.logger)
	return p
}

// Run 运行调度协程直到 ctx 取消，返回前等待所有工作协程退出
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(p.done)
	defer p.watcher.Stop()

	cfgCh, cancel := p.store.Subscribe()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg := <-cfgCh:
				if !p.send(gctx, configEvent{cfg: cfg}) {
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		p.dispatch(gctx)
		return nil
	})
	return g.Wait()
}

// OnDiscovered 新条目进入页面（启动时已有或之后插入）
func (p *Pipeline) OnDiscovered(id ItemID) {
	text, err := p.host.ExtractText(id)
	if err != nil {
		p.logger.Warn("extract text failed", zap.String("item", string(id)), zap.Error(err))
		text = ""
	}
	p.send(context.Background(), discoveredEvent{id: id, text: text})
}

// OnMutated 已处理条目的内容发生变动，经防抖后重新提取文本
func (p *Pipeline) OnMutated(id ItemID) {
	p.watcher.Notify(id)
}

// OnChanged 提交条目的新文本，按取代规则优先入队
func (p *Pipeline) OnChanged(id ItemID, text string) {
	p.send(context.Background(), changedEvent{id: id, text: text})
}

// Refresh 清除所有译文并重新翻译全部已知条目
func (p *Pipeline) Refresh() {
	p.send(context.Background(), refreshEvent{})
}

// WaitIdle 阻塞直到队列为空、没有翻译中的请求且没有等待防抖的变动
func (p *Pipeline) WaitIdle(ctx context.Context) error {
	ch := make(chan struct{})
	if !p.send(ctx, idleEvent{ch: ch}) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New("pipeline stopped")
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return errors.New("pipeline stopped")
	}
}

// Stats 返回计数快照
func (p *Pipeline) Stats() Stats {
	s := &p.stats
	return Stats{
		Discovered: s.discovered.Load(),
		Admitted:   s.admitted.Load(),
		Duplicates: s.duplicates.Load(),
		Superseded: s.superseded.Load(),
		Dispatched: s.dispatched.Load(),
		Translated: s.translated.Load(),
		Skipped:    s.skipped.Load(),
		Retried:    s.retried.Load(),
		Failed:     s.failed.Load(),
		Stale:      s.stale.Load(),
		Released:   s.released.Load(),
	}
}

func (p *Pipeline) send(ctx context.Context, ev any) bool {
	select {
	case p.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	}
}

func (p *Pipeline) dispatch(ctx context.Context) {
	p.cfg = p.store.Snapshot()
	defer p.workers.Wait()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("dispatcher stopping", zap.Int("inFlight", p.inFlight))
			return
		case ev := <-p.events:
			p.handle(ev)
			p.runOnce(ctx)
			p.notifyIdle()
		}
	}
}

func (p *Pipeline) handle(ev any) {
	switch e := ev.(type) {
	case discoveredEvent:
		p.handleDiscovered(e.id, e.text)
	case changedEvent:
		p.handleChanged(e.id, e.text)
		if e.debounced {
			p.watcher.Settle()
		}
	case configEvent:
		p.handleConfig(e.cfg)
	case refreshEvent:
		p.refreshAll("refresh requested")
	case workResult:
		p.complete(e)
	case idleEvent:
		p.waiters = append(p.waiters, e.ch)
	}
}

func (p *Pipeline) handleDiscovered(id ItemID, text string) {
	p.stats.discovered.Add(1)

	if !p.ledger.Track(id) {
		// 重复发现：文本有变化时按变更处理
		if text != "" && text != p.ledger.LastKnownText(id) {
			p.handleChanged(id, text)
			return
		}
		p.stats.duplicates.Add(1)
		return
	}

	if text == "" {
		p.logger.Debug("empty extraction, item not admitted", zap.String("item", string(id)))
		return
	}
	p.ledger.SetLastKnownText(id, text)

	prio := PriorityNormal
	if p.distance(id) <= float64(p.cfg.ViewportCenterRadiusPx) {
		prio = PriorityNear
	}
	if !p.ledger.TryAdmit(id, text, prio) {
		p.stats.duplicates.Add(1)
		return
	}
	p.stats.admitted.Add(1)
	p.render(id, Rendering{Kind: RenderPending})
}

func (p *Pipeline) handleChanged(id ItemID, text string) {
	if strings.TrimSpace(text) == "" || text == p.ledger.LastKnownText(id) {
		return
	}

	p.ledger.SetLastKnownText(id, text)
	p.render(id, Rendering{Kind: RenderPending})

	if p.ledger.State(id).Admitted() {
		p.stats.superseded.Add(1)
	} else {
		p.stats.admitted.Add(1)
	}
	p.ledger.Supersede(id, text)

	p.logger.Debug("content changed",
		zap.String("item", string(id)),
		zap.String("state", p.ledger.State(id).String()))
}

func (p *Pipeline) handleConfig(cfg *config.Config) {
	prev := p.cfg
	p.cfg = cfg

	if a, ok := p.translator.(interface{ Apply(*config.Config) }); ok {
		a.Apply(cfg)
	}

	if !strings.EqualFold(prev.TargetLang, cfg.TargetLang) {
		p.refreshAll("target language changed")
	}
}

// refreshAll 移除所有译文，作废翻译中的结果，并重新准入每个已知条目
func (p *Pipeline) refreshAll(reason string) {
	ids := p.ledger.IDs()
	for _, id := range ids {
		p.render(id, Rendering{Kind: RenderNone})
	}

	for _, id := range p.ledger.ResetForRefresh() {
		if p.ledger.TryAdmit(id, p.ledger.LastKnownText(id), PriorityNormal) {
			p.stats.admitted.Add(1)
		}
	}
	for _, id := range ids {
		if p.ledger.State(id).Admitted() {
			p.render(id, Rendering{Kind: RenderPending})
		}
	}

	p.logger.Info("translations reset",
		zap.String("reason", reason),
		zap.String("targetLang", p.cfg.TargetLang),
		zap.Int("items", len(ids)))
}

// runOnce 在并发上限内派发请求；调度协程内重入时直接返回
func (p *Pipeline) runOnce(ctx context.Context) {
	if p.dispatching || ctx.Err() != nil {
		return
	}
	p.dispatching = true
	defer func() { p.dispatching = false }()

	cfg := p.cfg
	batch := p.ledger.Dispatch(cfg.Concurrency-p.inFlight, p.distance)
	for _, req := range batch {
		p.inFlight++
		p.stats.dispatched.Add(1)
		p.workers.Add(1)

		go func(req *Request) {
			defer p.workers.Done()
			res := safeTranslate(ctx, p.translator, req, cfg, p.logger)
			p.send(ctx, res)
		}(req)
	}
}

func (p *Pipeline) complete(res workResult) {
	p.inFlight--
	req := res.req

	if p.ledger.Superseded(req) {
		p.stats.stale.Add(1)
		p.release(req.Item, StateIdle)
		p.logger.Debug("stale result dropped", zap.String("request", req.ID))
		return
	}

	switch res.kind {
	case resultTranslated:
		if err := p.render(req.Item, Rendering{Kind: RenderTranslated, Text: res.text}); err != nil {
			p.fail(req, err)
			return
		}
		p.stats.translated.Add(1)
		p.release(req.Item, StateDone)
		p.logger.Debug("item translated",
			zap.String("request", req.ID),
			zap.String("sourceLang", res.sourceLang),
			zap.Int("segments", res.calls))

	case resultSkipped:
		p.render(req.Item, Rendering{Kind: RenderNone})
		p.stats.skipped.Add(1)
		p.release(req.Item, StateDone)
		p.logger.Debug("item skipped",
			zap.String("request", req.ID),
			zap.String("sourceLang", res.sourceLang))

	default:
		p.fail(req, res.err)
	}
}

// fail 未达上限时回到队尾重试，否则终态失败并释放一次
func (p *Pipeline) fail(req *Request, err error) {
	if req.RetryCount < p.cfg.MaxRetry {
		p.ledger.Requeue(req)
		p.stats.retried.Add(1)
		p.logger.Debug("request requeued",
			zap.String("request", req.ID),
			zap.Int("retry", req.RetryCount),
			zap.Error(err))
		return
	}

	p.render(req.Item, Rendering{Kind: RenderFailed})
	p.stats.failed.Add(1)
	p.release(req.Item, StateFailed)
	p.logger.Warn("translation failed",
		zap.String("request", req.ID),
		zap.String("item", string(req.Item)),
		zap.Int("retries", req.RetryCount),
		zap.Error(err))
}

func (p *Pipeline) release(id ItemID, final State) {
	p.stats.released.Add(1)
	if parked := p.ledger.Release(id, final); parked != nil {
		p.ledger.Readmit(parked)
	}
}

func (p *Pipeline) notifyIdle() {
	if len(p.waiters) == 0 || p.ledger.QueueLen() > 0 || p.inFlight > 0 || p.watcher.Pending() > 0 {
		return
	}
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
}

func (p *Pipeline) distance(id ItemID) float64 {
	if p.locator == nil {
		return 0
	}
	return p.locator.Distance(id)
}

func (p *Pipeline) render(id ItemID, r Rendering) error {
	if err := p.host.Render(id, r); err != nil {
		p.logger.Warn("render failed",
			zap.String("item", string(id)),
			zap.String("kind", r.Kind.String()),
			zap.Error(err))
		return err
	}
	return nil
}
