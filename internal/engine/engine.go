// Package engine связывает все части редактора: документ под историей,
// модель таймлайна, слои, рендерер, аниматор и маршрутизатор ввода на
// одном цикле кадров.
package engine

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/ivlev/scenecut/internal/animation"
	"github.com/ivlev/scenecut/internal/cache"
	"github.com/ivlev/scenecut/internal/clock"
	"github.com/ivlev/scenecut/internal/config"
	"github.com/ivlev/scenecut/internal/history"
	"github.com/ivlev/scenecut/internal/input"
	"github.com/ivlev/scenecut/internal/layers"
	"github.com/ivlev/scenecut/internal/primitives"
	"github.com/ivlev/scenecut/internal/project"
	"github.com/ivlev/scenecut/internal/renderer"
	"github.com/ivlev/scenecut/internal/scene"
	"github.com/ivlev/scenecut/internal/source"
	"github.com/ivlev/scenecut/internal/timeline"
)

// Имена слоёв кадра
const (
	LayerBackground = "background"
	LayerElements   = "elements"
	LayerUI         = "ui"
)

var ErrUnknownElement = errors.New("unknown element")

// Document is everything undo and redo restore.
type Document struct {
	Scenes []scene.Scene
	Clips  []timeline.Clip
	Tracks []animation.Track
}

// UIState never produces a history snapshot.
type UIState struct {
	Scene        string // active scene id
	Selected     string // selected element id
	DraggedAsset string
	Clipboard    *scene.Element
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithScheduler drives the frame loop from s instead of a real-time ticker.
func WithScheduler(s clock.Scheduler) Option {
	return func(e *Engine) { e.base = s }
}

// WithLoader sets where image sources come from.
func WithLoader(l source.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

func WithFontFetcher(f primitives.FontFetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithRenderCallbacks hooks into every element render. Callbacks run
// inside the render phase and must not call back into the engine.
func WithRenderCallbacks(cb renderer.Callbacks) Option {
	return func(e *Engine) { e.callbacks = cb }
}

// Engine is safe for concurrent use. The working clip model is only
// reached under the engine lock, through WithTimeline or the clip methods.
type Engine struct {
	cfg       config.Config
	log       *slog.Logger
	base      clock.Scheduler
	ticker    *clock.Ticker // владеем только если планировщик не передан
	loader    source.Loader
	fetcher   primitives.FontFetcher
	callbacks renderer.Callbacks

	loop     *clock.Loop
	cache    *cache.Cache
	renderer *renderer.Renderer
	layers   *layers.Manager
	animator *animation.Animator
	timeline *timeline.Model
	history  *history.Store[Document]
	router   *input.Router

	quality    renderer.Quality
	background color.Color

	mu        sync.Mutex
	doc       Document
	ui        UIState
	playhead  float64
	overrides map[string]map[string]float64
	anims     map[string]*animation.Handle
	frame     *image.RGBA
	metrics   renderer.Metrics
	hooks     []func(history.Change)
	changes   []history.Change
	renderReq bool
	inputReq  bool
	closed    bool
}

// New builds an engine with an empty single-scene document.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, err := timeline.ParseOverlapPolicy(cfg.OverlapPolicy)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		overrides: make(map[string]map[string]float64),
		anims:     make(map[string]*animation.Handle),
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.base == nil {
		e.ticker = clock.NewTicker(cfg.FPS)
		e.base = e.ticker
	}
	if e.loader == nil {
		e.loader = source.NewFiles("")
	}
	if e.fetcher == nil {
		if f, ok := e.loader.(primitives.FontFetcher); ok {
			e.fetcher = f
		}
	}

	e.quality = renderer.ParseQuality(cfg.RenderQuality)
	e.background = primitives.ColorOr(cfg.Background, color.Black)
	e.loop = clock.NewLoop(e.base)

	e.cache = cache.New(cache.WithCapacity(cfg.CacheCapacity), cache.WithLogger(e.log))
	fonts := primitives.NewFontCache(e.fetcher, e.log)
	images := renderer.NewImageStore(e.loader, e.log)
	e.renderer = renderer.New(e.cache, fonts, images,
		renderer.WithLogger(e.log),
		renderer.WithCallbacks(e.callbacks),
		renderer.WithScheduler(e.loop.Phase(clock.PhaseRender)),
	)
	e.animator = animation.New(e.loop.Phase(clock.PhaseAnimate), e.log)
	e.timeline = timeline.New(timeline.Options{
		Duration:       cfg.Duration,
		TrackCount:     cfg.TrackCount,
		TrackHeight:    cfg.TrackHeight,
		ContainerWidth: cfg.ContainerWidth,
		Zoom:           cfg.Zoom,
		MinDuration:    cfg.MinClipDuration,
		HandleWidth:    cfg.HandleWidth,
		Overlap:        policy,
		Logger:         e.log,
	})
	e.router = input.NewRouter(e, input.WithLogger(e.log))

	if err := e.initLayers(); err != nil {
		e.Close()
		return nil, err
	}

	blank := project.New(cfg)
	e.history, err = history.New(Document{Scenes: blank.Scenes}, cfg.HistoryLimit)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.history.OnChange(func(c history.Change) {
		// вызывается под e.mu из методов редактирования
		e.changes = append(e.changes, c)
	})
	e.doc = e.history.Present()
	e.ui.Scene = blank.Scenes[0].ID
	// первый кадр
	e.invalidateLocked(LayerBackground, LayerElements, LayerUI)
	return e, nil
}

// Load builds an engine for a project document. The document settings
// replace cfg.
func Load(f *project.File, opts ...Option) (*Engine, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	e, err := New(f.Config, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Reset(f); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Reset replaces the document and forgets the history.
func (e *Engine) Reset(f *project.File) error {
	e.mu.Lock()
	defer e.unlock()

	doc, err := history.Clone(Document{Scenes: f.Scenes, Clips: f.Timeline.Clips, Tracks: f.Tracks})
	if err != nil {
		return err
	}
	for i := range doc.Scenes {
		for j := range doc.Scenes[i].Elements {
			doc.Scenes[i].Elements[j].Normalize()
		}
	}
	if err := e.history.Reset(doc); err != nil {
		return err
	}
	e.animator.StopAll()
	clear(e.anims)
	clear(e.overrides)
	e.ui = UIState{}
	if len(f.Scenes) > 0 {
		e.ui.Scene = f.Scenes[0].ID
	}
	e.playhead = max(0, min(f.Timeline.Playhead, e.cfg.Duration))
	e.syncLocked()
	return nil
}

func (e *Engine) initLayers() error {
	opaque := false
	specs := []struct {
		name string
		opts layers.Options
	}{
		{LayerBackground, layers.Options{ZIndex: 0, Alpha: &opaque}},
		{LayerElements, layers.Options{ZIndex: 10}},
		{LayerUI, layers.Options{ZIndex: 20}},
	}
	e.layers = layers.New(e.cfg.Width, e.cfg.Height, layers.WithLogger(e.log), layers.WithBackground(e.background))
	for _, s := range specs {
		if _, err := e.layers.CreateLayer(s.name, s.opts); err != nil {
			return fmt.Errorf("create layer %s: %w", s.name, err)
		}
	}
	e.frame = image.NewRGBA(image.Rect(0, 0, e.cfg.Width, e.cfg.Height))
	return nil
}

// unlock releases e.mu and then runs the change hooks for every history
// transition made while it was held.
func (e *Engine) unlock() {
	changes := e.changes
	e.changes = nil
	hooks := slices.Clone(e.hooks)
	e.mu.Unlock()

	for _, c := range changes {
		for _, fn := range hooks {
			e.callHook(fn, c)
		}
	}
}

func (e *Engine) callHook(fn func(history.Change), c history.Change) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("change hook panicked", "kind", c.Kind, "label", c.Label, "panic", r)
		}
	}()
	fn(c)
}

// OnChange registers fn to run after every document change, undo and redo
// included. fn runs without engine locks held.
func (e *Engine) OnChange(fn func(history.Change)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// syncLocked подтягивает документ из истории и приводит к нему модель
// таймлайна, кэш и слои.
func (e *Engine) syncLocked() {
	e.doc = e.history.Present()
	e.timeline.SetClips(e.doc.Clips)
	if e.sceneIndexLocked() < 0 && len(e.doc.Scenes) > 0 {
		e.ui.Scene = e.doc.Scenes[0].ID
	}
	if e.ui.Selected != "" && !e.hasElementLocked(e.ui.Selected) {
		e.ui.Selected = ""
	}

	var keep []string
	for _, s := range e.doc.Scenes {
		keep = append(keep, s.IDs()...)
	}
	if n := e.cache.Retain(keep); n > 0 {
		e.log.Debug("dropped cache entries", "count", n)
	}
	for id := range e.overrides {
		if !e.hasElementLocked(id) {
			e.dropAnimationsLocked(id)
		}
	}
	e.invalidateLocked(LayerBackground, LayerElements, LayerUI)
}

func (e *Engine) sceneIndexLocked() int {
	for i := range e.doc.Scenes {
		if e.doc.Scenes[i].ID == e.ui.Scene {
			return i
		}
	}
	return -1
}

func (e *Engine) hasElementLocked(id string) bool {
	for i := range e.doc.Scenes {
		if e.doc.Scenes[i].Index(id) >= 0 {
			return true
		}
	}
	return false
}

// invalidateLocked помечает слои грязными и просит кадр.
func (e *Engine) invalidateLocked(names ...string) {
	if e.closed {
		return
	}
	for _, n := range names {
		e.layers.MarkDirty(n)
	}
	if e.renderReq {
		return
	}
	e.renderReq = true
	e.loop.Phase(clock.PhaseRender).RequestTick(e.renderTick)
}

// Invalidate forces every layer to redraw on the next frame.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked(LayerBackground, LayerElements, LayerUI)
}

// renderTick перерисовывает грязные слои. Пока картинки или шрифты
// грузятся, кадр перерисовывается на каждом тике.
func (e *Engine) renderTick(time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderReq = false
	if e.closed {
		return
	}

	images, fonts := e.renderer.Images(), e.renderer.Fonts()
	if len(images.Drain())+len(fonts.Drain()) > 0 {
		e.layers.MarkDirty(LayerElements)
	}

	dirty := e.layers.DirtyLayers()
	for _, l := range dirty {
		switch l.Name {
		case LayerBackground:
			l.Context.SetColor(e.sceneBackgroundLocked())
			l.Context.Clear()
		case LayerElements:
			e.metrics = e.renderer.RenderElements(l.Context, e.visibleLocked(), renderer.Options{Quality: e.quality})
		case LayerUI:
			e.drawSelectionLocked(l)
		}
		e.layers.MarkClean(l.Name)
	}
	if len(dirty) > 0 {
		e.loop.Phase(clock.PhaseComposite).RequestTick(e.compositeTick)
	}
	if images.Pending()+fonts.Pending() > 0 {
		e.layers.MarkDirty(LayerElements)
		e.renderReq = true
		e.loop.Phase(clock.PhaseRender).RequestTick(e.renderTick)
	}
}

func (e *Engine) compositeTick(time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.layers.Composite(e.frame)
}

func (e *Engine) sceneBackgroundLocked() color.Color {
	if i := e.sceneIndexLocked(); i >= 0 && e.doc.Scenes[i].Background != "" {
		return primitives.ColorOr(e.doc.Scenes[i].Background, e.background)
	}
	return e.background
}

func (e *Engine) drawSelectionLocked(l *layers.Layer) {
	dc := l.Context
	dc.SetColor(color.Transparent)
	dc.Clear()
	if e.ui.Selected == "" {
		return
	}
	for _, el := range e.visibleLocked() {
		if el.ID != e.ui.Selected {
			continue
		}
		w, h := el.Width*el.ScaleX, el.Height*el.ScaleY
		cx, cy := el.X+el.Width/2, el.Y+el.Height/2
		dc.Push()
		dc.RotateAbout(gg.Radians(el.Rotation), cx, cy)
		dc.DrawRectangle(cx-w/2, cy-h/2, w, h)
		dc.SetRGBA255(33, 150, 243, 255)
		dc.SetLineWidth(2)
		dc.SetDash(6, 4)
		dc.Stroke()
		dc.SetDash()
		dc.Pop()
		return
	}
}

// Frame returns a copy of the last composited frame.
func (e *Engine) Frame() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := image.NewRGBA(e.frame.Bounds())
	copy(out.Pix, e.frame.Pix)
	return out
}

// Metrics returns the figures of the last elements pass.
func (e *Engine) Metrics() renderer.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// Idle reports whether the frame loop has no pending work.
func (e *Engine) Idle() bool {
	return e.loop.Idle()
}

func (e *Engine) Config() config.Config             { return e.cfg }
func (e *Engine) Layers() *layers.Manager            { return e.layers }
func (e *Engine) Renderer() *renderer.Renderer       { return e.renderer }
func (e *Engine) Animator() *animation.Animator      { return e.animator }
func (e *Engine) History() *history.Store[Document] { return e.history }
func (e *Engine) Router() *input.Router              { return e.router }

// WithTimeline runs fn on the working clip model under the engine lock.
// Committed state lives in the document; the model is resynchronised on
// undo and redo. fn must not call back into the engine.
func (e *Engine) WithTimeline(fn func(m *timeline.Model)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.timeline)
}

// Clips returns the working clip table.
func (e *Engine) Clips() []timeline.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeline.Clips()
}

func (e *Engine) Clip(id string) (timeline.Clip, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeline.Clip(id)
}

// Dispatch queues an input event for the input phase of the next frame.
func (e *Engine) Dispatch(ev input.Event) {
	e.router.Enqueue(ev)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inputReq || e.closed {
		return
	}
	e.inputReq = true
	e.loop.Phase(clock.PhaseInput).RequestTick(e.inputTick)
}

func (e *Engine) inputTick(time.Time) {
	e.mu.Lock()
	e.inputReq = false
	e.mu.Unlock()

	// маршрутизатор сам берёт e.mu через WithTimeline и методы редактора
	e.router.Flush()

	e.mu.Lock()
	defer e.unlock()
	e.invalidateLocked(LayerElements, LayerUI)
}

// Document returns a copy of the committed document.
func (e *Engine) Document() Document {
	return e.history.Present()
}

// UI returns a copy of the selection and clipboard state.
func (e *Engine) UI() UIState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ui := e.ui
	if ui.Clipboard != nil {
		c := *ui.Clipboard
		ui.Clipboard = &c
	}
	return ui
}

// Export returns a deep copy of the document as a project file.
func (e *Engine) Export(name string) (*project.File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := history.Clone(e.doc)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	f := project.New(e.cfg)
	f.Name = name
	f.Scenes = doc.Scenes
	f.Timeline = project.Timeline{Playhead: e.playhead, Clips: doc.Clips}
	f.Tracks = doc.Tracks
	return f, nil
}

// Close отменяет анимации и запланированную работу и освобождает слои.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	if e.animator != nil {
		e.animator.Close()
	}
	if e.renderer != nil {
		e.renderer.CancelRenders()
	}
	if e.loop != nil {
		e.loop.Close()
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.layers != nil {
		e.layers.Close()
	}
}
