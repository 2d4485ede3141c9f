// Package renderer draws scene elements onto gg contexts.
//
// Each element is rasterised once into an element-local bitmap which is
// kept in the element cache and composited through the element transform
// on later frames. The element slice order is the z-order.
package renderer

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/ivlev/scenecut/internal/cache"
	"github.com/ivlev/scenecut/internal/clock"
	"github.com/ivlev/scenecut/internal/primitives"
	"github.com/ivlev/scenecut/internal/scene"
)

// Options tune one render call.
type Options struct {
	SkipCache  bool
	Quality    Quality
	Background color.Color // RenderElements fills the target with it after clearing
}

// Metrics describe one RenderElements pass. Frames counts every pass the
// renderer has made.
type Metrics struct {
	ElementCount   int
	CacheSize      int
	CacheHits      int
	CacheMisses    int
	Errors         int
	RenderDuration time.Duration
	Frames         int
}

// Result describes how one element was rendered.
type Result struct {
	Element   *scene.Element
	CacheHit  bool
	Pending   bool // a resource was still loading, nothing was cached
	CacheSize int
	Duration  time.Duration
}

// Callbacks are invoked by RenderElements around each element. A panic in
// a callback is handled like a render error.
type Callbacks struct {
	OnBeforeRender func(el *scene.Element)
	OnAfterRender  func(res Result)
	OnRenderError  func(el *scene.Element, err error)
}

type Option func(*Renderer)

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

func WithCallbacks(cb Callbacks) Option {
	return func(r *Renderer) { r.cb = cb }
}

func WithPatterns(p *primitives.PatternCache) Option {
	return func(r *Renderer) { r.patterns = p }
}

// WithScheduler makes ScheduleRender run queued work on ticks of s.
func WithScheduler(s clock.Scheduler) Option {
	return func(r *Renderer) { r.sched = s }
}

// Renderer owns no element cache of its own; it is handed one so the
// engine can drop entries when elements disappear.
type Renderer struct {
	cache    *cache.Cache
	fonts    *primitives.FontCache
	images   *ImageStore
	patterns *primitives.PatternCache
	log      *slog.Logger
	cb       Callbacks
	sched    clock.Scheduler

	draws atomic.Int64

	mu   sync.Mutex
	last Metrics

	qmu     sync.Mutex
	queue   []func()
	running bool
	tick    clock.TickID
}

func New(c *cache.Cache, fonts *primitives.FontCache, images *ImageStore, opts ...Option) *Renderer {
	r := &Renderer{cache: c, fonts: fonts, images: images}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.cache == nil {
		r.cache = cache.New()
	}
	if r.fonts == nil {
		r.fonts = primitives.NewFontCache(nil, r.log)
	}
	if r.images == nil {
		r.images = NewImageStore(nil, r.log)
	}
	if r.patterns == nil {
		r.patterns = primitives.NewPatternCache()
	}
	return r
}

func (r *Renderer) Cache() *cache.Cache                { return r.cache }
func (r *Renderer) Fonts() *primitives.FontCache       { return r.fonts }
func (r *Renderer) Images() *ImageStore                { return r.images }
func (r *Renderer) Patterns() *primitives.PatternCache { return r.patterns }

// Draws counts how many times an element went through the full draw path.
func (r *Renderer) Draws() int64 { return r.draws.Load() }

// Metrics returns the metrics of the last RenderElements pass.
func (r *Renderer) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// RenderElement draws el onto dc. A fresh cached bitmap is composited
// directly; otherwise the element is rasterised, cached unless SkipCache
// is set or a resource is still loading, and composited.
func (r *Renderer) RenderElement(dc *gg.Context, el *scene.Element, opts Options) error {
	_, err := r.render(dc, el, opts)
	return err
}

func (r *Renderer) render(dc *gg.Context, el *scene.Element, opts Options) (Result, error) {
	res := Result{Element: el}
	if el.Width <= 0 || el.Height <= 0 {
		return res, fmt.Errorf("element %s: empty size %gx%g", el.ID, el.Width, el.Height)
	}
	if !opts.SkipCache {
		if e, ok := r.cache.Element(el); ok && e.Bitmap != nil {
			res.CacheHit = true
			r.composite(dc, el, e.Bitmap, e.Origin)
			return res, nil
		}
	}

	ras, err := r.rasterize(el, opts)
	if err != nil {
		return res, err
	}
	res.Pending = ras.pending
	if !opts.SkipCache && !ras.pending {
		r.cache.CacheElement(el, cache.Entry{Bitmap: ras.bitmap, Origin: ras.origin, Gradient: ras.gradient, Path: ras.path})
	}
	r.composite(dc, el, ras.bitmap, ras.origin)
	return res, nil
}

// composite draws a rasterised element through the element transform:
// translate to the position, rotate and scale about the centre, then fade
// by the opacity. A fully transparent element is not drawn.
func (r *Renderer) composite(dc *gg.Context, el *scene.Element, bm *image.RGBA, origin image.Point) {
	n := *el
	n.Normalize()
	if n.Opacity == 0 {
		return
	}
	src := bm
	if n.Opacity < 1 {
		src = fade(bm, n.Opacity)
	}
	cx, cy := n.Width/2, n.Height/2

	dc.Push()
	defer dc.Pop()
	dc.Translate(n.X, n.Y)
	dc.Translate(cx, cy)
	if n.Rotation != 0 {
		dc.Rotate(gg.Radians(n.Rotation))
	}
	if n.ScaleX != 1 || n.ScaleY != 1 {
		dc.Scale(n.ScaleX, n.ScaleY)
	}
	dc.Translate(-cx, -cy)
	dc.DrawImage(src, origin.X, origin.Y)
}

func fade(bm *image.RGBA, opacity float64) *image.RGBA {
	out := image.NewRGBA(bm.Bounds())
	a := uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
	draw.DrawMask(out, out.Bounds(), bm, bm.Bounds().Min, image.NewUniform(color.Alpha{A: a}), image.Point{}, draw.Src)
	return out
}

// RenderElements clears dc and renders elements in slice order. An error
// or panic while rendering one element is reported through OnRenderError
// and the remaining elements are still rendered.
func (r *Renderer) RenderElements(dc *gg.Context, elements []scene.Element, opts Options) Metrics {
	start := time.Now()
	clearTarget(dc, opts.Background)

	var m Metrics
	for i := range elements {
		el := &elements[i]
		m.ElementCount++
		t0 := time.Now()
		res, err := r.safeRender(dc, el, opts)
		if err != nil {
			m.Errors++
			r.log.Warn("element render failed", "id", el.ID, "type", el.Type, "err", err)
			r.reportError(el, err)
			continue
		}
		if res.CacheHit {
			m.CacheHits++
		} else {
			m.CacheMisses++
		}
		res.CacheSize = r.cache.Len()
		res.Duration = time.Since(t0)
		r.afterRender(el, res)
	}
	m.CacheSize = r.cache.Len()
	m.RenderDuration = time.Since(start)

	r.mu.Lock()
	m.Frames = r.last.Frames + 1
	r.last = m
	r.mu.Unlock()
	return m
}

func (r *Renderer) safeRender(dc *gg.Context, el *scene.Element, opts Options) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("element %s: panic: %v", el.ID, p)
		}
	}()
	if r.cb.OnBeforeRender != nil {
		r.cb.OnBeforeRender(el)
	}
	dc.Push()
	defer dc.Pop()
	return r.render(dc, el, opts)
}

func (r *Renderer) afterRender(el *scene.Element, res Result) {
	if r.cb.OnAfterRender == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.reportError(el, fmt.Errorf("after render callback: panic: %v", p))
		}
	}()
	r.cb.OnAfterRender(res)
}

func (r *Renderer) reportError(el *scene.Element, err error) {
	if r.cb.OnRenderError == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("render error callback panicked", "id", el.ID, "panic", p)
		}
	}()
	r.cb.OnRenderError(el, err)
}

func clearTarget(dc *gg.Context, bg color.Color) {
	im, ok := dc.Image().(draw.Image)
	if !ok {
		return
	}
	var fill image.Image = image.Transparent
	if bg != nil {
		fill = image.NewUniform(bg)
	}
	draw.Draw(im, im.Bounds(), fill, image.Point{}, draw.Src)
}

// ScheduleRender queues fn. Queued work runs one job per tick in FIFO
// order; a job never runs while another is running.
func (r *Renderer) ScheduleRender(fn func()) {
	if fn == nil {
		return
	}
	r.qmu.Lock()
	defer r.qmu.Unlock()
	r.queue = append(r.queue, fn)
	if r.sched != nil && r.tick == 0 {
		r.requestTickLocked()
	}
}

// requestTickLocked asks for the tick that runs the next job. Callers hold
// qmu.
func (r *Renderer) requestTickLocked() {
	r.tick = r.sched.RequestTick(func(time.Time) {
		r.qmu.Lock()
		r.tick = 0
		r.qmu.Unlock()

		r.RunNext()

		r.qmu.Lock()
		if len(r.queue) > 0 && r.tick == 0 {
			r.requestTickLocked()
		}
		r.qmu.Unlock()
	})
}

// RunNext runs the oldest queued job. It reports false when the queue is
// empty or a job is already running.
func (r *Renderer) RunNext() bool {
	r.qmu.Lock()
	if r.running || len(r.queue) == 0 {
		r.qmu.Unlock()
		return false
	}
	fn := r.queue[0]
	r.queue = r.queue[1:]
	r.running = true
	r.qmu.Unlock()

	defer func() {
		r.qmu.Lock()
		r.running = false
		r.qmu.Unlock()
		if p := recover(); p != nil {
			r.log.Error("scheduled render panicked", "panic", p)
		}
	}()
	fn()
	return true
}

func (r *Renderer) PendingRenders() int {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return len(r.queue)
}

// CancelRenders drops all queued work. A job that is already running
// finishes; nothing queued before the call runs afterwards.
func (r *Renderer) CancelRenders() {
	r.qmu.Lock()
	r.queue = nil
	id := r.tick
	r.tick = 0
	r.qmu.Unlock()
	if id != 0 && r.sched != nil {
		r.sched.CancelTick(id)
	}
}
