package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool recycles frame-sized *image.RGBA buffers between renders so an
// export does not allocate a fresh canvas copy per frame.
type ImagePool struct {
	mu          sync.RWMutex
	pools       map[image.Point]*sync.Pool
	outstanding atomic.Int64
}

var globalPool = NewImagePool()

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Point]*sync.Pool)}
}

// GetImage returns an *image.RGBA with bounds (0,0)-size of rect from the
// shared pool. Contents are undefined.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

// PutImage returns a buffer obtained from GetImage.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

// Outstanding reports buffers handed out by the shared pool and not yet returned.
func Outstanding() int64 {
	return globalPool.outstanding.Load()
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	size := rect.Size()

	p.mu.RLock()
	pool, exists := p.pools[size]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[size]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					return image.NewRGBA(image.Rectangle{Max: size})
				},
			}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}

	p.outstanding.Add(1)
	return pool.Get().(*image.RGBA)
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}

	p.mu.RLock()
	pool, exists := p.pools[img.Rect.Size()]
	p.mu.RUnlock()

	if exists {
		p.outstanding.Add(-1)
		pool.Put(img)
	}
}
