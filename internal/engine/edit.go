package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ivlev/scenecut/internal/animation"
	"github.com/ivlev/scenecut/internal/history"
	"github.com/ivlev/scenecut/internal/ids"
	"github.com/ivlev/scenecut/internal/scene"
	"github.com/ivlev/scenecut/internal/timeline"
)

// Вставленный элемент сдвигается от оригинала, чтобы не лечь поверх него.
const pasteOffset = 20

// applyLocked делает снимок истории и синхронизирует всё остальное.
func (e *Engine) applyLocked(label string, mutate func(d *Document) error) error {
	if err := e.history.Apply(label, mutate); err != nil {
		return err
	}
	e.syncLocked()
	return nil
}

func findElement(d *Document, id string) (*scene.Scene, *scene.Element) {
	for i := range d.Scenes {
		if el, ok := d.Scenes[i].Element(id); ok {
			return &d.Scenes[i], el
		}
	}
	return nil, nil
}

// AddElement appends el to the active scene, on top of the z-order. An
// empty id gets a fresh one.
func (e *Engine) AddElement(el scene.Element) (scene.Element, error) {
	e.mu.Lock()
	defer e.unlock()

	if el.ID == "" {
		el.ID = ids.New()
	}
	if !el.Type.Valid() {
		return scene.Element{}, fmt.Errorf("element %s: unknown type %q", el.ID, el.Type)
	}
	if e.hasElementLocked(el.ID) {
		return scene.Element{}, fmt.Errorf("duplicate element id %q", el.ID)
	}
	el.Normalize()
	sceneID := e.ui.Scene
	err := e.applyLocked("add element", func(d *Document) error {
		for i := range d.Scenes {
			if d.Scenes[i].ID == sceneID {
				d.Scenes[i].Elements = append(d.Scenes[i].Elements, el)
				return nil
			}
		}
		return fmt.Errorf("no active scene")
	})
	if err != nil {
		return scene.Element{}, err
	}
	return el, nil
}

// UpdateElement replaces the element with the same id.
func (e *Engine) UpdateElement(el scene.Element) error {
	e.mu.Lock()
	defer e.unlock()

	if !el.Type.Valid() {
		return fmt.Errorf("element %s: unknown type %q", el.ID, el.Type)
	}
	el.Normalize()
	return e.applyLocked("update element", func(d *Document) error {
		_, cur := findElement(d, el.ID)
		if cur == nil {
			return fmt.Errorf("%w: %s", ErrUnknownElement, el.ID)
		}
		*cur = el
		return nil
	})
}

func (e *Engine) editElement(label, id string, fn func(el *scene.Element) bool) bool {
	e.mu.Lock()
	defer e.unlock()
	err := e.applyLocked(label, func(d *Document) error {
		_, el := findElement(d, id)
		if el == nil || !fn(el) {
			return errNoChange
		}
		return nil
	})
	return err == nil
}

var errNoChange = errors.New("no change")

// MoveElement places an element at (x, y).
func (e *Engine) MoveElement(id string, x, y float64) bool {
	return e.editElement("move element", id, func(el *scene.Element) bool {
		if el.X == x && el.Y == y {
			return false
		}
		el.X, el.Y = x, y
		return true
	})
}

// ResizeElement sets the box size. Both sides must be positive.
func (e *Engine) ResizeElement(id string, w, h float64) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	return e.editElement("resize element", id, func(el *scene.Element) bool {
		if el.Width == w && el.Height == h {
			return false
		}
		el.Width, el.Height = w, h
		return true
	})
}

// DeleteElement removes an element together with its clips and keyframe
// tracks.
func (e *Engine) DeleteElement(id string) bool {
	e.mu.Lock()
	defer e.unlock()
	err := e.applyLocked("delete element", func(d *Document) error {
		s, _ := findElement(d, id)
		if s == nil {
			return errNoChange
		}
		s.Remove(id)
		d.Clips = slices.DeleteFunc(d.Clips, func(c timeline.Clip) bool { return c.ElementID == id })
		d.Tracks = slices.DeleteFunc(d.Tracks, func(tr animation.Track) bool { return tr.ElementID == id })
		return nil
	})
	return err == nil
}

// SelectElement marks an element of the active scene as selected.
func (e *Engine) SelectElement(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.sceneIndexLocked()
	if i < 0 || e.doc.Scenes[i].Index(id) < 0 {
		return false
	}
	e.ui.Selected = id
	e.invalidateLocked(LayerUI)
	return true
}

func (e *Engine) SelectedElement() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ui.Selected
}

// ClearSelection drops both the element and the clip selection.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeline.ClearSelection()
	if e.ui.Selected != "" {
		e.ui.Selected = ""
		e.invalidateLocked(LayerUI)
	}
}

// SetDraggedAsset remembers the asset being dragged in from a library.
func (e *Engine) SetDraggedAsset(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ui.DraggedAsset = src
}

// CopyElement puts a deep copy of an element on the clipboard.
func (e *Engine) CopyElement(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.elementLocked(id)
	if !ok {
		return false
	}
	cp, err := history.Clone(*el)
	if err != nil {
		e.log.Warn("copy failed", "id", id, "err", err)
		return false
	}
	e.ui.Clipboard = &cp
	return true
}

// PasteElement inserts the clipboard element into the active scene under a
// fresh id, shifted from the original, and selects it. The clipboard is
// kept, so repeated pastes give distinct elements.
func (e *Engine) PasteElement() (scene.Element, bool) {
	e.mu.Lock()
	defer e.unlock()
	if e.ui.Clipboard == nil {
		return scene.Element{}, false
	}
	el, err := history.Clone(*e.ui.Clipboard)
	if err != nil {
		return scene.Element{}, false
	}
	el.ID = ids.New()
	el.X += pasteOffset
	el.Y += pasteOffset

	sceneID := e.ui.Scene
	err = e.applyLocked("paste element", func(d *Document) error {
		for i := range d.Scenes {
			if d.Scenes[i].ID == sceneID {
				d.Scenes[i].Elements = append(d.Scenes[i].Elements, el)
				return nil
			}
		}
		return fmt.Errorf("no active scene")
	})
	if err != nil {
		return scene.Element{}, false
	}
	e.ui.Selected = el.ID
	return el, true
}

// timelineEdit runs fn against the clip model and commits a snapshot when
// it succeeds. A failed edit leaves the model as the document has it.
func (e *Engine) timelineEdit(label string, fn func(m *timeline.Model) bool) bool {
	e.mu.Lock()
	defer e.unlock()
	if !fn(e.timeline) {
		e.timeline.SetClips(e.doc.Clips)
		return false
	}
	return e.commitLocked(label)
}

func (e *Engine) commitLocked(label string) bool {
	clips := e.timeline.Clips()
	if slices.Equal(clips, e.doc.Clips) {
		return false
	}
	selected := e.timeline.SelectedID()
	err := e.applyLocked(label, func(d *Document) error {
		d.Clips = clips
		return nil
	})
	if err != nil {
		e.log.Error("timeline snapshot failed", "label", label, "err", err)
		return false
	}
	e.timeline.Select(selected)
	return true
}

// AddClip inserts a clip and commits it. An empty id gets a fresh one.
func (e *Engine) AddClip(c timeline.Clip) (timeline.Clip, error) {
	e.mu.Lock()
	defer e.unlock()
	if c.ElementID != "" && !e.hasElementLocked(c.ElementID) {
		return timeline.Clip{}, fmt.Errorf("%w: %s", ErrUnknownElement, c.ElementID)
	}
	added, err := e.timeline.Add(c)
	if err != nil {
		return timeline.Clip{}, err
	}
	e.commitLocked("add clip")
	return added, nil
}

func (e *Engine) MoveClip(id string, start float64, track int) bool {
	return e.timelineEdit("move clip", func(m *timeline.Model) bool {
		return m.Move(id, start, track)
	})
}

// ResizeClip sets both edges of a clip. Either both edges land or nothing
// changes; they are applied in whichever order keeps the clip valid in
// between.
func (e *Engine) ResizeClip(id string, start, end float64) bool {
	return e.timelineEdit("resize clip", func(m *timeline.Model) bool {
		c, ok := m.Clip(id)
		if !ok || c.Locked {
			return false
		}
		setStart := func() bool {
			cur, _ := m.Clip(id)
			return cur.StartTime == start || m.ResizeStart(id, start)
		}
		setEnd := func() bool {
			cur, _ := m.Clip(id)
			return cur.EndTime == end || m.ResizeEnd(id, end)
		}
		if start >= c.EndTime {
			return setEnd() && setStart()
		}
		return setStart() && setEnd()
	})
}

func (e *Engine) SplitClip(id string, t float64) bool {
	return e.timelineEdit("split clip", func(m *timeline.Model) bool {
		_, _, ok := m.Split(id, t)
		return ok
	})
}

func (e *Engine) DuplicateClip(id string) (timeline.Clip, bool) {
	var dup timeline.Clip
	ok := e.timelineEdit("duplicate clip", func(m *timeline.Model) bool {
		var ok bool
		dup, ok = m.Duplicate(id)
		return ok
	})
	return dup, ok
}

func (e *Engine) DeleteClip(id string) bool {
	return e.timelineEdit("delete clip", func(m *timeline.Model) bool {
		return m.Delete(id)
	})
}

// SetClipLocked locks or unlocks a clip.
func (e *Engine) SetClipLocked(id string, locked bool) bool {
	return e.timelineEdit("lock clip", func(m *timeline.Model) bool {
		return m.SetLocked(id, locked)
	})
}

// CommitTimeline snapshots the working clip model after a pointer gesture.
// It reports false when nothing changed.
func (e *Engine) CommitTimeline(label string) bool {
	e.mu.Lock()
	defer e.unlock()
	ok := e.commitLocked(label)
	if !ok {
		e.invalidateLocked(LayerElements, LayerUI)
	}
	return ok
}

// RevertTimeline puts the working clip model back to the document.
func (e *Engine) RevertTimeline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	selected := e.timeline.SelectedID()
	e.timeline.SetClips(e.doc.Clips)
	e.timeline.Select(selected)
	e.invalidateLocked(LayerElements, LayerUI)
}

func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.unlock()
	if !e.history.Undo() {
		return false
	}
	e.syncLocked()
	return true
}

func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.unlock()
	if !e.history.Redo() {
		return false
	}
	e.syncLocked()
	return true
}

func (e *Engine) CanUndo() bool { return e.history.CanUndo() }
func (e *Engine) CanRedo() bool { return e.history.CanRedo() }
