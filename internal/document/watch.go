package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/transfeed/internal/pipeline"
)

// ReloadFunc 文件重新加载后的回调
type ReloadFunc func(added, changed []pipeline.ItemID)

// Watch 监听文档文件，写入或替换后重新加载并回调，直到 ctx 取消。
// 监听所在目录，编辑器以重命名方式保存时也能收到事件。
func (h *Host) Watch(ctx context.Context, path string, onReload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			added, changed, err := h.reloadFile(abs)
			if err != nil {
				h.logger.Warn("document reload failed", zap.String("file", abs), zap.Error(err))
				continue
			}
			if len(added)+len(changed) > 0 {
				h.logger.Info("document reloaded",
					zap.String("file", abs),
					zap.Int("added", len(added)),
					zap.Int("changed", len(changed)))
				onReload(added, changed)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (h *Host) reloadFile(path string) (added, changed []pipeline.ItemID, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return h.reload(f)
}
