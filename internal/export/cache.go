package export

import (
	"image"
	"sync"

	"github.com/lewtec/pagetagger/internal/domain"
)

// rasterCache holds the rasters of one page, keyed by the frame they were
// rendered at.
type rasterCache struct {
	mu      sync.RWMutex
	page    int
	rasters map[domain.Frame]image.Image
}

func newRasterCache() *rasterCache {
	return &rasterCache{rasters: make(map[domain.Frame]image.Image)}
}

// Get returns the cached raster of page at f if available.
func (c *rasterCache) Get(page int, f domain.Frame) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.page != page {
		return nil, false
	}
	img, ok := c.rasters[f]
	return img, ok
}

// Set caches a raster. Moving to another page drops the rasters of the
// previous one.
func (c *rasterCache) Set(page int, f domain.Frame, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page != page {
		c.page = page
		c.rasters = make(map[domain.Frame]image.Image)
	}
	c.rasters[f] = img
}

// Len returns the number of rasters held for the current page.
func (c *rasterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rasters)
}
