package config

import (
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store 持有当前生效的配置快照。
// 快照一经发布即不可修改，读者拿到的指针在整个处理周期内保持一致。
type Store struct {
	mu      sync.RWMutex
	current *Config
	subs    map[int]chan *Config
	nextID  int
}

// NewStore 以初始配置创建 Store
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	return &Store{
		current: cfg.Clone(),
		subs:    make(map[int]chan *Config),
	}
}

// Snapshot 返回当前配置快照，调用方不得修改
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update 在副本上应用修改，校验通过后发布
func (s *Store) Update(fn func(c *Config)) error {
	s.mu.RLock()
	next := s.current.Clone()
	s.mu.RUnlock()

	fn(next)
	return s.Replace(next)
}

// Replace 校验并发布一份新配置
func (s *Store) Replace(cfg *Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	next := cfg.Clone()
	next.Normalize()
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	subs := make([]chan *Config, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		publish(ch, next)
	}
	return nil
}

// Subscribe 订阅配置变更；只保证收到最新一份快照
func (s *Store) Subscribe() (<-chan *Config, func()) {
	ch := make(chan *Config, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish 非阻塞投递，丢弃尚未被读取的旧快照
func publish(ch chan *Config, cfg *Config) {
	for {
		select {
		case ch <- cfg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// WatchFile 监听配置文件，变更后重新加载并发布到 store
func WatchFile(configPath string, store *Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := store.Replace(cfg); err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded",
			zap.String("file", e.Name),
			zap.String("targetLang", cfg.TargetLang))
	})
	v.WatchConfig()
	return nil
}
