package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool переиспользует *image.RGBA одинакового размера, чтобы снизить
// нагрузку на GC при пересоздании поверхностей слоёв.
// У каждого менеджера слоёв свой пул, глобального состояния нет.
type ImagePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex

	gets atomic.Int64
	puts atomic.Int64
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

// Get возвращает очищенный (прозрачный) экземпляр нужного размера.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	p.gets.Add(1)
	img := pool.Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// Put возвращает изображение в пул. Изображения чужих размеров
// отбрасываются.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		p.puts.Add(1)
		pool.Put(img)
	}
}

// Outstanding is the number of images handed out and not yet returned.
func (p *ImagePool) Outstanding() int64 {
	return p.gets.Load() - p.puts.Load()
}
