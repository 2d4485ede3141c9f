package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scenecut/internal/animation"
	"github.com/ivlev/scenecut/internal/focus"
	"github.com/ivlev/scenecut/internal/scene"
)

// Playhead returns the current time in seconds.
func (e *Engine) Playhead() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playhead
}

// SetPlayhead moves the playhead, clamped to the timeline, and redraws
// the elements at the new time.
func (e *Engine) SetPlayhead(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t = max(0, min(t, e.cfg.Duration))
	if t == e.playhead {
		return
	}
	e.playhead = t
	e.invalidateLocked(LayerElements, LayerUI)
}

// Scene returns a copy of the active scene.
func (e *Engine) Scene() scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.sceneIndexLocked()
	if i < 0 {
		return scene.Scene{}
	}
	s := e.doc.Scenes[i]
	s.Elements = append([]scene.Element(nil), s.Elements...)
	return s
}

// SetScene switches the active scene. Selection is dropped.
func (e *Engine) SetScene(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.ui.Scene
	e.ui.Scene = id
	if e.sceneIndexLocked() < 0 {
		e.ui.Scene = prev
		return false
	}
	e.ui.Selected = ""
	e.invalidateLocked(LayerBackground, LayerElements, LayerUI)
	return true
}

// Visible returns the elements of the active scene as they are drawn at
// the playhead, in z-order.
func (e *Engine) Visible() []scene.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleLocked()
}

// visibleLocked собирает элементы активной сцены для текущего кадра.
// Элемент, на который ссылается хотя бы один клип, виден только пока под
// плейхедом есть видимый клип с ним. Затем применяются ключевые кадры и
// значения идущих анимаций.
func (e *Engine) visibleLocked() []scene.Element {
	i := e.sceneIndexLocked()
	if i < 0 {
		return nil
	}

	bound := make(map[string]bool)
	for _, c := range e.timeline.Clips() {
		if c.ElementID != "" {
			bound[c.ElementID] = true
		}
	}
	active := make(map[string]bool)
	for _, c := range e.timeline.VisibleAt(e.playhead) {
		active[c.ElementID] = true
	}

	src := e.doc.Scenes[i].Elements
	out := make([]scene.Element, 0, len(src))
	for _, el := range src {
		if bound[el.ID] && !active[el.ID] {
			continue
		}
		for _, tr := range e.doc.Tracks {
			if tr.ElementID == el.ID && len(tr.Keyframes) > 0 {
				el.SetProperty(tr.Property, tr.ValueAt(e.playhead))
			}
		}
		for prop, v := range e.overrides[el.ID] {
			el.SetProperty(prop, v)
		}
		if el.Text != nil && el.Text.FontSource == "" && e.cfg.DefaultFont != "" {
			// копия: Text общий с документом
			tp := *el.Text
			tp.FontSource = e.cfg.DefaultFont
			el.Text = &tp
		}
		out = append(out, el)
	}
	return out
}

func (e *Engine) elementLocked(id string) (*scene.Element, bool) {
	for i := range e.doc.Scenes {
		if el, ok := e.doc.Scenes[i].Element(id); ok {
			return el, true
		}
	}
	return nil, false
}

// Animate tweens one property of an element towards to. The value is a
// presentation override: it is drawn but never written to the document,
// and it holds after the tween ends until StopAnimation. A running tween
// of the same property is replaced and the new one starts from its value.
func (e *Engine) Animate(id, property string, to float64, d time.Duration, easing string) (*animation.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine closed")
	}
	el, ok := e.elementLocked(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	from, ok := el.Property(property)
	if !ok {
		return nil, fmt.Errorf("element %s: unknown property %q", id, property)
	}
	if v, ok := e.overrides[id][property]; ok {
		from = v
	}
	var ease animation.Easing = animation.Linear
	if easing != "" {
		if fn, ok := animation.EasingByName(easing); ok {
			ease = fn
		} else {
			return nil, fmt.Errorf("unknown easing %q", easing)
		}
	}

	key := id + "." + property
	if h, ok := e.anims[key]; ok {
		e.animator.Stop(h)
	}
	var h *animation.Handle
	h = e.animator.AnimateProperty(from, to, animation.Config{Duration: d, Easing: ease}, func(v float64) {
		e.mu.Lock()
		defer e.mu.Unlock()
		// Stop мог прийти, пока мы ждали блокировку
		if e.anims[key] != h {
			return
		}
		if e.overrides[id] == nil {
			e.overrides[id] = make(map[string]float64)
		}
		e.overrides[id][property] = v
		e.invalidateLocked(LayerElements, LayerUI)
	})
	e.anims[key] = h
	return h, nil
}

// StopAnimation cancels the tweens of an element and drops its overrides.
func (e *Engine) StopAnimation(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropAnimationsLocked(id)
}

func (e *Engine) dropAnimationsLocked(id string) bool {
	found := false
	for key, h := range e.anims {
		if strings.HasPrefix(key, id+".") {
			e.animator.Stop(h)
			delete(e.anims, key)
			found = true
		}
	}
	if _, ok := e.overrides[id]; ok {
		delete(e.overrides, id)
		found = true
	}
	if found {
		e.invalidateLocked(LayerElements, LayerUI)
	}
	return found
}

// SetTrack stores a keyframe track, replacing the track of the same element
// and property.
func (e *Engine) SetTrack(tr animation.Track) error {
	e.mu.Lock()
	defer e.unlock()
	return e.setTracksLocked("set keyframes", []animation.Track{tr})
}

func (e *Engine) setTracksLocked(label string, tracks []animation.Track) error {
	probe := scene.Element{}
	for i := range tracks {
		if _, ok := e.elementLocked(tracks[i].ElementID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownElement, tracks[i].ElementID)
		}
		if _, ok := probe.Property(tracks[i].Property); !ok {
			return fmt.Errorf("unknown property %q", tracks[i].Property)
		}
		tracks[i].Sort()
	}
	err := e.history.Apply(label, func(d *Document) error {
		for _, tr := range tracks {
			replaced := false
			for j := range d.Tracks {
				if d.Tracks[j].ElementID == tr.ElementID && d.Tracks[j].Property == tr.Property {
					d.Tracks[j] = tr
					replaced = true
				}
			}
			if !replaced {
				d.Tracks = append(d.Tracks, tr)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.syncLocked()
	return nil
}

// FocusPath detects regions of interest in an image element and stores pan
// and zoom tracks that visit them. Keyframe times follow the element's
// first clip, or the whole timeline when no clip shows it.
func (e *Engine) FocusPath(ctx context.Context, id, variant string) ([]focus.Region, error) {
	e.mu.Lock()
	el, ok := e.elementLocked(id)
	var snapshot scene.Element
	if ok {
		snapshot = *el
	}
	start, end := 0.0, e.cfg.Duration
	for _, c := range e.doc.Clips {
		if c.ElementID == id {
			start, end = c.StartTime, c.EndTime
			break
		}
	}
	e.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	if snapshot.Type != scene.TypeImage || snapshot.Image == nil || snapshot.Image.Source == "" {
		return nil, fmt.Errorf("element %s: not an image", id)
	}
	det, err := focus.NewDetector(variant)
	if err != nil {
		return nil, err
	}
	// загрузка и анализ идут без блокировки движка
	img, err := e.renderer.Images().Load(ctx, snapshot.Image.Source)
	if err != nil {
		return nil, err
	}
	regions, err := det.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", id, err)
	}
	tracks, err := focus.NewPlanner().Plan(snapshot, img.Bounds().Size(), regions, end-start)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", id, err)
	}
	for i := range tracks {
		for j := range tracks[i].Keyframes {
			tracks[i].Keyframes[j].Time += start
		}
	}

	e.mu.Lock()
	defer e.unlock()
	if err := e.setTracksLocked("focus path", tracks); err != nil {
		return nil, err
	}
	return regions, nil
}

// Preload fetches every image and font the document refers to. Offline
// rendering calls it so no frame shows a placeholder for a resource that
// is merely slow. Failed sources are reported together; they still render
// as placeholders.
func (e *Engine) Preload(ctx context.Context) error {
	e.mu.Lock()
	images := make(map[string]bool)
	fonts := make(map[string]bool)
	if e.cfg.DefaultFont != "" {
		fonts[e.cfg.DefaultFont] = true
	}
	for _, s := range e.doc.Scenes {
		for _, el := range s.Elements {
			for _, src := range el.Sources() {
				images[src] = true
			}
			if el.Text != nil && el.Text.FontSource != "" {
				fonts[el.Text.FontSource] = true
			}
		}
	}
	e.mu.Unlock()

	var (
		mu     sync.Mutex
		failed []error
	)
	fail := func(err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for src := range images {
		g.Go(func() error {
			if _, err := e.renderer.Images().Load(ctx, src); err != nil {
				fail(fmt.Errorf("image %s: %w", src, err))
			}
			return nil
		})
	}
	for src := range fonts {
		g.Go(func() error {
			if _, err := e.renderer.Fonts().Load(ctx, src); err != nil {
				fail(fmt.Errorf("font %s: %w", src, err))
			}
			return nil
		})
	}
	g.Wait()

	e.Invalidate()
	return errors.Join(failed...)
}
