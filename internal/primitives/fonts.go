package primitives

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/singleflight"
)

// ErrFontUnavailable is returned for sources whose last load failed.
var ErrFontUnavailable = errors.New("font not available")

// FontFetcher returns the raw bytes of a font file.
type FontFetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

type FontFetcherFunc func(ctx context.Context, src string) ([]byte, error)

func (f FontFetcherFunc) Fetch(ctx context.Context, src string) ([]byte, error) {
	return f(ctx, src)
}

type FontState int

const (
	FontReady FontState = iota
	FontPending
	FontFailed
)

type faceKey struct {
	src  string
	size float64
}

type fontResult struct {
	src  string
	font *opentype.Font
	err  error
}

// FontCache loads fonts by source and hands out faces per size. Requests
// load in the background; results become visible once Drain runs on the
// frame loop. Failures are remembered and never retried.
type FontCache struct {
	fetcher FontFetcher
	log     *slog.Logger
	group   singleflight.Group
	wg      sync.WaitGroup

	mu      sync.Mutex
	fonts   map[string]*opentype.Font
	faces   map[faceKey]font.Face
	failed  map[string]error
	pending map[string]bool
	done    []fontResult

	def *opentype.Font
}

func NewFontCache(fetcher FontFetcher, log *slog.Logger) *FontCache {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &FontCache{
		fetcher: fetcher,
		log:     log,
		fonts:   make(map[string]*opentype.Font),
		faces:   make(map[faceKey]font.Face),
		failed:  make(map[string]error),
		pending: make(map[string]bool),
	}
	if f, err := opentype.Parse(goregular.TTF); err == nil {
		c.def = f
	} else {
		log.Warn("default font unavailable, using fixed face", "err", err)
	}
	return c
}

// fetch downloads and parses src. A panicking fetcher is reported as an
// error.
func (c *FontCache) fetch(ctx context.Context, src string) (f *opentype.Font, err error) {
	v, err, _ := c.group.Do(src, func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("load font %s: panic: %v", src, r)
			}
		}()
		if c.fetcher == nil {
			return nil, fmt.Errorf("load font %s: no fetcher", src)
		}
		data, err := c.fetcher.Fetch(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("load font %s: %w", src, err)
		}
		parsed, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse font %s: %w", src, err)
		}
		return parsed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*opentype.Font), nil
}

// Load fetches src synchronously and caches the result. It never panics; a
// failure is logged, cached and returned.
func (c *FontCache) Load(ctx context.Context, src string) (*opentype.Font, error) {
	c.mu.Lock()
	if f, ok := c.fonts[src]; ok {
		c.mu.Unlock()
		return f, nil
	}
	if err, ok := c.failed[src]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	c.mu.Unlock()

	f, err := c.fetch(ctx, src)
	c.apply(fontResult{src: src, font: f, err: err})
	return f, err
}

// Request starts a background load of src unless it is cached, failed or
// already in flight.
func (c *FontCache) Request(src string) {
	c.mu.Lock()
	if _, ok := c.fonts[src]; ok || c.pending[src] {
		c.mu.Unlock()
		return
	}
	if _, ok := c.failed[src]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[src] = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		f, err := c.fetch(context.Background(), src)
		c.mu.Lock()
		c.done = append(c.done, fontResult{src: src, font: f, err: err})
		c.mu.Unlock()
	}()
}

// Drain publishes finished background loads and returns their sources.
func (c *FontCache) Drain() []string {
	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()

	srcs := make([]string, 0, len(done))
	for _, r := range done {
		c.apply(r)
		srcs = append(srcs, r.src)
	}
	return srcs
}

func (c *FontCache) apply(r fontResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, r.src)
	if r.err != nil {
		if _, seen := c.failed[r.src]; !seen {
			c.log.Warn("font load failed", "source", r.src, "err", r.err)
		}
		c.failed[r.src] = r.err
		return
	}
	c.fonts[r.src] = r.font
}

// Wait blocks until every background load finished, then drains.
func (c *FontCache) Wait() []string {
	c.wg.Wait()
	return c.Drain()
}

// Face returns a face of src at size. Until src is ready the default face
// is returned together with the state of src, so callers can tell a
// placeholder from the real thing. An empty source means the default font.
func (c *FontCache) Face(src string, size float64) (font.Face, FontState) {
	if size <= 0 {
		size = 16
	}
	if src == "" {
		return c.DefaultFace(size), FontReady
	}
	c.mu.Lock()
	f, ok := c.fonts[src]
	_, failed := c.failed[src]
	c.mu.Unlock()

	switch {
	case ok:
		if face := c.face(src, f, size); face != nil {
			return face, FontReady
		}
		return c.DefaultFace(size), FontFailed
	case failed:
		return c.DefaultFace(size), FontFailed
	default:
		c.Request(src)
		return c.DefaultFace(size), FontPending
	}
}

// DefaultFace returns Go Regular at size.
func (c *FontCache) DefaultFace(size float64) font.Face {
	if c.def == nil {
		return basicfont.Face7x13
	}
	if face := c.face("", c.def, size); face != nil {
		return face
	}
	return basicfont.Face7x13
}

func (c *FontCache) face(src string, f *opentype.Font, size float64) font.Face {
	key := faceKey{src: src, size: size}
	c.mu.Lock()
	defer c.mu.Unlock()
	if face, ok := c.faces[key]; ok {
		return face
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		c.log.Warn("font face failed", "source", src, "size", size, "err", err)
		return nil
	}
	c.faces[key] = face
	return face
}

// State reports the load state of src without triggering a load.
func (c *FontCache) State(src string) FontState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.fonts[src]; ok || src == "" {
		return FontReady
	}
	if _, ok := c.failed[src]; ok {
		return FontFailed
	}
	return FontPending
}

// Pending returns the number of loads in flight or awaiting Drain.
func (c *FontCache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
