package ocr

import (
	"fmt"
	"image"
	"strings"
	"sync"
)

// DefaultCacheCapacity bounds the number of cached recognition results.
const DefaultCacheCapacity = 100

// evictFraction of the oldest entries (by insertion order) is dropped when
// the cache is full.
const evictFraction = 5 // one fifth

// Fingerprint computes a cheap perceptual digest of a region: its dimensions
// plus a small deterministic sample of pixel values. It is a cache key, not
// a content hash; near-identical crops of the same plate collide on purpose.
func Fingerprint(img image.Image) string {
	if img == nil {
		return ""
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d_", h, w)

	samples := w * h / 100
	if samples > 20 {
		samples = 20
	}
	for i := 0; i < samples; i++ {
		x := b.Min.X + (i*17)%w
		y := b.Min.Y + (i*23)%h
		r, g, bl, _ := img.At(x, y).RGBA()
		// Approximate luminance from the 16-bit channels.
		lum := (299*(r>>8) + 587*(g>>8) + 114*(bl>>8)) / 1000
		fmt.Fprintf(&sb, "%x_", lum)
	}
	return sb.String()
}

// resultCache is a bounded insertion-ordered map of fingerprint → Result.
// On overflow the oldest fifth of the entries is evicted before inserting.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]Result
	order    []string
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &resultCache{
		capacity: capacity,
		entries:  make(map[string]Result, capacity),
	}
}

func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *resultCache) put(key string, r Result) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = r
		return
	}

	if len(c.entries) >= c.capacity {
		evict := c.capacity / evictFraction
		if evict < 1 {
			evict = 1
		}
		for _, old := range c.order[:evict] {
			delete(c.entries, old)
		}
		c.order = c.order[evict:]
	}

	c.entries[key] = r
	c.order = append(c.order, key)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Result, c.capacity)
	c.order = nil
}
