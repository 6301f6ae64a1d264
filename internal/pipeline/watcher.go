package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/config"
)

// Watcher 对条目内容变动做防抖：同一条目在防抖窗口内的多次变动只触发一次提取。
// 提取结果总会提交给调度协程（提取失败时为空文本），空文本和未变化的文本由调度协程忽略。
// 从定时器创建到调度协程调用 Settle 之间，这次变动都计入 Pending。
type Watcher struct {
	extractor Extractor
	submit    func(id ItemID, text string)
	config    func() *config.Config
	logger    *zap.Logger

	mu        sync.Mutex
	timers    map[ItemID]*time.Timer
	unsettled int
	stopped   bool
}

// NewWatcher 创建变更监听器
func NewWatcher(extractor Extractor, submit func(ItemID, string), cfg func() *config.Config, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		extractor: extractor,
		submit:    submit,
		config:    cfg,
		logger:    logger,
		timers:    make(map[ItemID]*time.Timer),
	}
}

// Notify 记录一次变动（子节点增删或文本修改）
func (w *Watcher) Notify(id ItemID) {
	d := w.config().ChangeDebounce()

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if d <= 0 {
		w.unsettled++
		w.mu.Unlock()
		w.fire(id)
		return
	}
	if t, ok := w.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		// Stop 失败时旧定时器仍会触发，此时不能删掉新定时器
		if w.timers[id] == t {
			delete(w.timers, id)
		}
		w.unsettled++
		w.mu.Unlock()
		w.fire(id)
	})
	w.timers[id] = t
	w.mu.Unlock()
}

// Settle 调度协程处理完一次提交后调用
func (w *Watcher) Settle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsettled > 0 {
		w.unsettled--
	}
}

// Pending 等待触发或等待调度协程处理的变动数
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers) + w.unsettled
}

// Stop 取消所有等待中的提取
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
	w.unsettled = 0
}

func (w *Watcher) fire(id ItemID) {
	text, err := w.extractor.ExtractText(id)
	if err != nil {
		w.logger.Debug("re-extract failed", zap.String("item", string(id)), zap.Error(err))
		text = ""
	}
	w.submit(id, text)
}
