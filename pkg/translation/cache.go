package translation

import (
	"crypto/md5"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats 缓存统计
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int64 `json:"size"`
}

// CachedTranslation 缓存的翻译结果
type CachedTranslation struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
}

// MemoryCache 容量受限的内存缓存，超出容量时淘汰最久未使用的条目
type MemoryCache struct {
	entries *lru.Cache[string, CachedTranslation]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemoryCache 创建内存缓存；capacity <= 0 时返回 nil，调用方视为关闭缓存
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		return nil
	}
	entries, err := lru.New[string, CachedTranslation](capacity)
	if err != nil {
		return nil
	}
	return &MemoryCache{entries: entries}
}

// Get 获取缓存
func (c *MemoryCache) Get(key string) (CachedTranslation, bool) {
	if c == nil {
		return CachedTranslation{}, false
	}
	v, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return CachedTranslation{}, false
	}
	c.hits.Add(1)
	return v, true
}

// Set 设置缓存
func (c *MemoryCache) Set(key string, value CachedTranslation) {
	if c == nil {
		return
	}
	c.entries.Add(key, value)
}

// Clear 清除所有缓存
func (c *MemoryCache) Clear() {
	if c == nil {
		return
	}
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats 获取缓存统计信息
func (c *MemoryCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   int64(c.entries.Len()),
	}
}

// GenerateCacheKey 由提供商、目标语言和原文生成缓存 key
func GenerateCacheKey(provider, targetLang, text string) string {
	hash := md5.Sum([]byte(fmt.Sprintf("provider:%s|tgt:%s|text:%s", provider, targetLang, text)))
	return fmt.Sprintf("%x", hash)
}
