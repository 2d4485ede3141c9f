// Package input turns pointer and keyboard events into timeline edits and
// editor commands. Events are queued as they arrive and applied in one batch
// during the input phase of a frame.
package input

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ivlev/scenecut/internal/clock"
	"github.com/ivlev/scenecut/internal/scene"
	"github.com/ivlev/scenecut/internal/timeline"
)

type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
	PointerCancel
)

// Event is a PointerEvent or a KeyEvent.
type Event interface {
	event()
}

// PointerEvent positions are in timeline container pixels.
type PointerEvent struct {
	Kind PointerKind
	X, Y float64
}

// KeyEvent carries a key name as reported by the host ("Delete", "z",
// "Escape") and the modifier state.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Shift bool
	Meta  bool
}

func (PointerEvent) event() {}
func (KeyEvent) event()     {}

// Editor is the set of commands the router can trigger. The engine
// implements it.
type Editor interface {
	// WithTimeline runs fn on the working clip model while the editor
	// holds it exclusively. fn must not call other Editor methods.
	WithTimeline(fn func(m *timeline.Model))
	// CommitTimeline records the current clip table as one undo step.
	CommitTimeline(label string) bool
	// RevertTimeline drops uncommitted timeline changes.
	RevertTimeline()
	Playhead() float64

	DeleteClip(id string) bool
	DuplicateClip(id string) (timeline.Clip, bool)
	SplitClip(id string, t float64) bool

	SelectedElement() string
	DeleteElement(id string) bool
	CopyElement(id string) bool
	PasteElement() (scene.Element, bool)

	Undo() bool
	Redo() bool
	ClearSelection()
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithScheduler makes Enqueue ask s for a tick that flushes the queue.
func WithScheduler(s clock.Scheduler) Option {
	return func(r *Router) { r.sched = s }
}

type Router struct {
	ed    Editor
	log   *slog.Logger
	sched clock.Scheduler

	mu      sync.Mutex
	queue   []Event
	tick    clock.TickID
	handled int
}

func NewRouter(ed Editor, opts ...Option) *Router {
	r := &Router{ed: ed}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Enqueue queues ev for the next Flush. It is safe to call from any
// goroutine.
func (r *Router) Enqueue(ev Event) {
	if ev == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, ev)
	if r.sched != nil && r.tick == 0 {
		r.tick = r.sched.RequestTick(func(time.Time) {
			r.mu.Lock()
			r.tick = 0
			r.mu.Unlock()
			r.Flush()
		})
	}
}

func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Handled counts the events that led to an action.
func (r *Router) Handled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handled
}

// Flush applies the queued events in arrival order and returns how many of
// them did something.
func (r *Router) Flush() int {
	r.mu.Lock()
	queue := r.queue
	r.queue = nil
	r.mu.Unlock()

	n := 0
	for _, ev := range queue {
		var ok bool
		switch e := ev.(type) {
		case PointerEvent:
			ok = r.pointer(e)
		case KeyEvent:
			ok = r.key(e)
		}
		if ok {
			n++
		}
	}
	r.mu.Lock()
	r.handled += n
	r.mu.Unlock()
	return n
}

func (r *Router) gesture() bool {
	var active bool
	r.ed.WithTimeline(func(tl *timeline.Model) {
		active = tl.Dragging() || tl.Resizing()
	})
	return active
}

func (r *Router) pointer(e PointerEvent) bool {
	var ok bool
	switch e.Kind {
	case PointerDown:
		if r.gesture() {
			r.ed.RevertTimeline()
		}
		r.ed.WithTimeline(func(tl *timeline.Model) {
			id, zone := tl.HitTest(e.X, e.Y)
			switch zone {
			case timeline.HitNone:
				tl.ClearSelection()
				ok = true
			case timeline.HitStartHandle:
				ok = tl.BeginResize(id, timeline.EdgeStart, e.X) || tl.Select(id)
			case timeline.HitEndHandle:
				ok = tl.BeginResize(id, timeline.EdgeEnd, e.X) || tl.Select(id)
			default:
				// locked clips can still be selected
				ok = tl.BeginDrag(id, e.X, e.Y) || tl.Select(id)
			}
		})
		return ok

	case PointerMove:
		r.ed.WithTimeline(func(tl *timeline.Model) {
			switch {
			case tl.Dragging():
				ok = tl.DragTo(e.X, e.Y)
			case tl.Resizing():
				ok = tl.ResizeTo(e.X)
			}
		})
		return ok

	case PointerUp:
		var label string
		r.ed.WithTimeline(func(tl *timeline.Model) {
			switch {
			case tl.Dragging():
				tl.DragTo(e.X, e.Y)
				if tl.EndDrag() {
					label = "move clip"
				}
			case tl.Resizing():
				tl.ResizeTo(e.X)
				if tl.EndResize() {
					label = "resize clip"
				}
			}
		})
		if label == "" {
			return false
		}
		return r.ed.CommitTimeline(label)

	case PointerCancel:
		if r.gesture() {
			r.ed.RevertTimeline()
			return true
		}
	}
	return false
}

func (r *Router) key(e KeyEvent) bool {
	key := strings.ToLower(e.Key)
	mod := e.Ctrl || e.Meta

	if key == "escape" || key == "esc" {
		if r.gesture() {
			r.ed.RevertTimeline()
		}
		r.ed.ClearSelection()
		return true
	}
	if r.gesture() {
		r.log.Debug("key ignored during pointer gesture", "key", e.Key)
		return false
	}

	var clip string
	r.ed.WithTimeline(func(tl *timeline.Model) { clip = tl.SelectedID() })
	switch {
	case key == "delete" || key == "backspace":
		if clip != "" {
			return r.ed.DeleteClip(clip)
		}
		if el := r.ed.SelectedElement(); el != "" {
			return r.ed.DeleteElement(el)
		}
	case mod && key == "d":
		if clip != "" {
			_, ok := r.ed.DuplicateClip(clip)
			return ok
		}
	case !mod && key == "s":
		if clip != "" {
			return r.ed.SplitClip(clip, r.ed.Playhead())
		}
	case mod && key == "z" && e.Shift, mod && key == "y":
		return r.ed.Redo()
	case mod && key == "z":
		return r.ed.Undo()
	case mod && key == "c":
		if el := r.ed.SelectedElement(); el != "" {
			return r.ed.CopyElement(el)
		}
	case mod && key == "v":
		_, ok := r.ed.PasteElement()
		return ok
	default:
		r.log.Debug("unbound key", "key", e.Key, "ctrl", e.Ctrl, "shift", e.Shift, "meta", e.Meta)
	}
	return false
}
