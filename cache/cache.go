package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/pageready/models"
)

type entry struct {
	response  *models.RenderResponse
	createdAt time.Time
}

// Cache keeps recent render responses in memory. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates a Cache holding at most maxEntries responses. Entries older
// than ttl are swept every ttl/12 (at least once a minute) until Stop.
func New(maxEntries int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key derives a cache key from everything that changes a render's output.
func Key(req *models.RenderRequest) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(req.URL)
	write(req.OutputFormat)
	write(req.CSSSelector)
	if req.IncludeMedia == nil || *req.IncludeMedia {
		write("media")
	} else {
		write("no-media")
	}
	if pa := req.PostAction; pa != nil {
		write(pa.Kind)
		write(pa.Script)
		write(time.Duration(pa.Seconds * float64(time.Second)).String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the response stored under key when it is younger
// than maxAgeMs milliseconds. maxAgeMs <= 0 always misses.
func (c *Cache) Get(key string, maxAgeMs int) (*models.RenderResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	age := time.Since(e.createdAt)
	if age > time.Duration(maxAgeMs)*time.Millisecond || age > c.ttl {
		return nil, false
	}

	resp := *e.response
	return &resp, true
}

// Set stores a copy of resp. At capacity an arbitrary entry is evicted.
func (c *Cache) Set(key string, resp *models.RenderResponse) {
	if c.maxEntries <= 0 {
		return
	}
	stored := *resp

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry{response: &stored, createdAt: time.Now()}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the background sweeper.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop() {
	interval := c.ttl / 12
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep(time.Now().Add(-c.ttl))
		}
	}
}

func (c *Cache) sweep(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
