package cache

import (
	"context"
	"sync"
	"time"

	"ollama-openai-gateway/internal/backend"
)

// DefaultCleanupInterval is how often the memory cache sweeps expired replies.
const DefaultCleanupInterval = time.Minute

type memoryEntry struct {
	reply     backend.GenerationReply
	expiresAt time.Time
}

// MemoryExactCache keeps replies in process. Suitable for a single instance.
type MemoryExactCache struct {
	mu      sync.RWMutex
	replies map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryExactCache starts a janitor that drops expired replies every
// cleanupInterval (DefaultCleanupInterval when <= 0). Entry lifetimes come
// from Set.
func NewMemoryExactCache(cleanupInterval time.Duration) *MemoryExactCache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	c := &MemoryExactCache{
		replies: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go c.janitor(cleanupInterval)
	return c
}

func (c *MemoryExactCache) Get(_ context.Context, key ExactCacheKey) (*backend.GenerationReply, bool, error) {
	k := key.String()

	c.mu.RLock()
	entry, ok := c.replies[k]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.evict(k, time.Now())
		return nil, false, nil
	}

	reply := entry.reply
	return &reply, true, nil
}

// Set stores reply until ttl elapses. ttl <= 0 drops the key.
func (c *MemoryExactCache) Set(_ context.Context, key ExactCacheKey, reply backend.GenerationReply, ttl time.Duration) error {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.replies, k)
		return nil
	}
	c.replies[k] = memoryEntry{reply: reply, expiresAt: time.Now().Add(ttl)}
	return nil
}

// evict removes k if it is still expired at now.
func (c *MemoryExactCache) evict(k string, now time.Time) {
	c.mu.Lock()
	if e, ok := c.replies[k]; ok && now.After(e.expiresAt) {
		delete(c.replies, k)
	}
	c.mu.Unlock()
}

func (c *MemoryExactCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.replies {
				if now.After(e.expiresAt) {
					delete(c.replies, k)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the janitor.
func (c *MemoryExactCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Len returns the number of stored replies, expired or not.
func (c *MemoryExactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.replies)
}
