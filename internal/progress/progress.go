// Package progress 在终端显示流水线的完成进度
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/nerdneilsfield/transfeed/internal/pipeline"
)

// Counts 已完成数和已入队总数
func Counts(s pipeline.Stats) (done, total int) {
	done = int(s.Translated + s.Skipped + s.Failed)
	total = int(s.Admitted)
	if done > total {
		total = done
	}
	return done, total
}

// Reporter 定期读取流水线统计并刷新进度条
type Reporter struct {
	snapshot func() pipeline.Stats
	bar      *pterm.ProgressbarPrinter
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Start 启动进度条，interval 为刷新间隔
func Start(w io.Writer, title string, interval time.Duration, snapshot func() pipeline.Stats) (*Reporter, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	bar, err := pterm.DefaultProgressbar.
		WithWriter(w).
		WithTotal(1).
		WithTitle(title).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		return nil, err
	}

	r := &Reporter{
		snapshot: snapshot,
		bar:      bar,
		interval: interval,
		stop:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Reporter) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			r.refresh(true)
			return
		case <-ticker.C:
			r.refresh(false)
		}
	}
}

// refresh 进度条到达总数时会自行结束，final 之前最多推进到 total-1
func (r *Reporter) refresh(final bool) {
	done, total := Counts(r.snapshot())
	if total < 1 {
		return
	}
	r.bar.Total = total
	if !final && done >= total {
		done = total - 1
	}
	if delta := done - r.bar.Current; delta > 0 {
		r.bar.Add(delta)
	}
}

// Stop 最后刷新一次并结束进度条，可重复调用
func (r *Reporter) Stop() {
	r.once.Do(func() {
		close(r.stop)
		r.wg.Wait()
		_, _ = r.bar.Stop()
	})
}
