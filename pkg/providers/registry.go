package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor 根据基础配置构造提供商。
// model 只对大模型类提供商有意义。
type Constructor func(cfg BaseConfig, model string) (TranslationProvider, error)

// Registry 提供商注册表，按名称登记构造函数
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry 创建新的注册表
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register 注册提供商
func (r *Registry) Register(name string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.constructors[name] = ctor
	return nil
}

// Create 按名称构造提供商
func (r *Registry) Create(name string, cfg BaseConfig, model string) (TranslationProvider, error) {
	r.mu.RLock()
	ctor, exists := r.constructors[strings.ToLower(name)]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %s not found (available: %s)", name, strings.Join(r.List(), ", "))
	}
	return ctor(cfg, model)
}

// Has 判断是否已注册
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.constructors[strings.ToLower(name)]
	return ok
}

// List 按字母序列出所有提供商
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
