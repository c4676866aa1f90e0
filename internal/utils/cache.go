package utils

import (
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry 包装缓存数据和过期时间
type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// TTLCache 进程内缓存，承载读路径缓存和限流窗口计数。
// 容量有上限，淘汰只意味着缓存未命中或限流窗口重置，不影响正确性
type TTLCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, cacheEntry]
}

var (
	cacheInstance *TTLCache
	cacheOnce     sync.Once
)

// GetCache 获取单例缓存实例
func GetCache() *TTLCache {
	cacheOnce.Do(func() {
		l, err := lru.New[string, cacheEntry](2048)
		if err != nil {
			log.Fatalf("Failed to create LRU cache: %v", err)
		}
		cacheInstance = &TTLCache{lru: l}
	})
	return cacheInstance
}

// Set 设置缓存，TTL 为过期时间
func (c *TTLCache) Set(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{data: data, expiresAt: time.Now().Add(ttl)})
}

// Get 获取缓存，不存在或已过期返回 nil
func (c *TTLCache) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil
	}
	return entry.data
}

// IncrWindow 递增固定窗口计数器，返回当前窗口内的计数。
// 窗口过期后从 1 重新计数
func (c *TTLCache) IncrWindow(key string, window time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.lru.Get(key); ok && now.Before(entry.expiresAt) {
		count := entry.data.(int) + 1
		c.lru.Add(key, cacheEntry{data: count, expiresAt: entry.expiresAt})
		return count
	}
	c.lru.Add(key, cacheEntry{data: 1, expiresAt: now.Add(window)})
	return 1
}
