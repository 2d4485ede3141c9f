// Package layers owns the named drawing surfaces that make up a frame.
// Each layer has its own RGBA surface and gg context; Composite blends the
// visible ones in z order.
package layers

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/ivlev/scenecut/internal/system"
)

var ErrLayerExists = errors.New("layer already exists")

// Layer is one named surface. Fields are owned by the Manager; callers
// draw through Context and read the rest.
type Layer struct {
	Name    string
	Surface *image.RGBA
	Context *gg.Context

	ZIndex         int
	Alpha          bool // false = opaque, cleared to the background
	ReadFrequently bool // surface is never recycled through the pool
	Visible        bool
	Dirty          bool

	seq uint64
}

// Options configures CreateLayer. A nil Alpha means a transparent layer.
type Options struct {
	ZIndex         int
	Alpha          *bool
	ReadFrequently bool
}

// Stats counts surfaces handed out and given back over the manager's life.
type Stats struct {
	Layers    int
	Allocated int
	Released  int
}

type Option func(*Manager)

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithBackground sets the colour opaque layers are cleared to.
func WithBackground(c color.Color) Option {
	return func(m *Manager) { m.background = c }
}

// Manager owns every layer surface. It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	width      int
	height     int
	layers     map[string]*Layer
	seq        uint64
	pool       *system.ImagePool
	background color.Color
	log        *slog.Logger

	allocated int
	released  int
}

func New(width, height int, opts ...Option) *Manager {
	m := &Manager{
		width:      max(1, width),
		height:     max(1, height),
		layers:     make(map[string]*Layer),
		pool:       system.NewImagePool(),
		background: color.Black,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

func (m *Manager) Size() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

func (m *Manager) surface(readFrequently bool) *image.RGBA {
	m.allocated++
	rect := image.Rect(0, 0, m.width, m.height)
	if readFrequently {
		return image.NewRGBA(rect)
	}
	return m.pool.Get(rect)
}

func (m *Manager) release(l *Layer) {
	if l.Surface == nil {
		return
	}
	if !l.ReadFrequently {
		m.pool.Put(l.Surface)
	}
	l.Surface = nil
	l.Context = nil
	m.released++
}

func (m *Manager) reset(l *Layer) {
	if l.Alpha {
		clear(l.Surface.Pix)
	} else {
		draw.Draw(l.Surface, l.Surface.Bounds(), image.NewUniform(m.background), image.Point{}, draw.Src)
	}
	l.Context.Identity()
	l.Context.ResetClip()
	l.Dirty = true
}

// CreateLayer allocates a new layer. Creating a name that already exists is
// an error; destroy it first.
func (m *Manager) CreateLayer(name string, opts Options) (*Layer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLayerExists, name)
	}
	alpha := true
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}
	m.seq++
	l := &Layer{
		Name:           name,
		ZIndex:         opts.ZIndex,
		Alpha:          alpha,
		ReadFrequently: opts.ReadFrequently,
		Visible:        true,
		seq:            m.seq,
	}
	l.Surface = m.surface(l.ReadFrequently)
	l.Context = gg.NewContextForRGBA(l.Surface)
	m.reset(l)
	m.layers[name] = l
	m.log.Debug("layer created", "name", name, "z", l.ZIndex, "alpha", alpha)
	return l, nil
}

// DestroyLayer releases the layer's surface and forgets it. Unknown names
// are ignored.
func (m *Manager) DestroyLayer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[name]
	if !ok {
		return
	}
	m.release(l)
	delete(m.layers, name)
	m.log.Debug("layer destroyed", "name", name)
}

func (m *Manager) Layer(name string) (*Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[name]
	return l, ok
}

// Layers returns every layer by ascending ZIndex. Layers with equal ZIndex
// keep their creation order.
func (m *Manager) Layers() []*Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted()
}

func (m *Manager) sorted() []*Layer {
	out := make([]*Layer, 0, len(m.layers))
	for _, l := range m.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// ClearLayer wipes the pixels of one layer, keeping its surface.
func (m *Manager) ClearLayer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.layers[name]; ok {
		m.reset(l)
	}
}

func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.layers {
		m.reset(l)
	}
}

// Resize gives every layer a new blank surface of w x h. All surfaces are
// allocated before any layer is touched, so callers never see a mix of
// old and new sizes.
func (m *Manager) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w == m.width && h == m.height {
		return
	}
	oldW, oldH := m.width, m.height
	m.width, m.height = w, h

	order := m.sorted()
	fresh := make([]*image.RGBA, len(order))
	for i, l := range order {
		fresh[i] = m.surface(l.ReadFrequently)
	}
	for i, l := range order {
		m.release(l)
		l.Surface = fresh[i]
		l.Context = gg.NewContextForRGBA(fresh[i])
		m.reset(l)
	}
	m.log.Debug("layers resized", "from", fmt.Sprintf("%dx%d", oldW, oldH), "to", fmt.Sprintf("%dx%d", w, h))
}

// SetZIndex moves a layer in the compositing order.
func (m *Manager) SetZIndex(name string, z int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[name]
	if !ok {
		return false
	}
	l.ZIndex = z
	return true
}

func (m *Manager) SetVisible(name string, visible bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[name]
	if !ok {
		return false
	}
	l.Visible = visible
	return true
}

func (m *Manager) MarkDirty(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.layers[name]; ok {
		l.Dirty = true
	}
}

func (m *Manager) MarkAllDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.layers {
		l.Dirty = true
	}
}

// MarkClean clears the dirty flag once a layer has been redrawn.
func (m *Manager) MarkClean(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.layers[name]; ok {
		l.Dirty = false
	}
}

// DirtyLayers returns the dirty layers in compositing order.
func (m *Manager) DirtyLayers() []*Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Layer
	for _, l := range m.sorted() {
		if l.Dirty {
			out = append(out, l)
		}
	}
	return out
}

// Composite draws the visible layers onto dst in z order. dst is not
// cleared first.
func (m *Manager) Composite(dst *image.RGBA) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.sorted() {
		if !l.Visible || l.Surface == nil {
			continue
		}
		op := draw.Over
		if !l.Alpha {
			op = draw.Src
		}
		draw.Draw(dst, dst.Bounds(), l.Surface, dst.Bounds().Min, op)
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Layers: len(m.layers), Allocated: m.allocated, Released: m.released}
}

// Close destroys every remaining layer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, l := range m.layers {
		m.release(l)
		delete(m.layers, name)
	}
}
