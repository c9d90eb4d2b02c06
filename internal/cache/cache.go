// Package cache holds decoded frames by index and answers "best frame near N"
// queries so the renderer never paints a blank surface once any frame exists.
package cache

import (
	"image"
	"sync"
)

// Cache is a sparse, fixed-size store of decoded frames. Entries are only
// ever added; the first Put for an index wins.
type Cache struct {
	mu     sync.RWMutex
	frames []image.Image
	count  int
}

func New(total int) *Cache {
	if total < 0 {
		total = 0
	}
	return &Cache{frames: make([]image.Image, total)}
}

// Put stores img at index. It reports false for out-of-range indices, nil
// images and indices that already hold a frame.
func (c *Cache) Put(index int, img image.Image) bool {
	if img == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.frames) || c.frames[index] != nil {
		return false
	}
	c.frames[index] = img
	c.count++
	return true
}

func (c *Cache) Get(index int) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.frames) {
		return nil, false
	}
	img := c.frames[index]
	return img, img != nil
}

// Nearest returns the frame at index or, failing that, the closest stored
// frame searching outward at d = 1, 2, ... with index-d checked before
// index+d. The returned int is the index the frame was found at.
func (c *Cache) Nearest(index int) (image.Image, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.frames)
	if c.count == 0 {
		return nil, -1, false
	}
	if index >= 0 && index < n && c.frames[index] != nil {
		return c.frames[index], index, true
	}

	// Out-of-range queries still resolve; the search just has further to go.
	maxDist := n + abs(index)
	for d := 1; d <= maxDist; d++ {
		if lo := index - d; lo >= 0 && lo < n && c.frames[lo] != nil {
			return c.frames[lo], lo, true
		}
		if hi := index + d; hi >= 0 && hi < n && c.frames[hi] != nil {
			return c.frames[hi], hi, true
		}
	}
	return nil, -1, false
}

// Len is the number of stored frames.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Cap is the sequence length the cache was sized for.
func (c *Cache) Cap() int {
	return len(c.frames)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
