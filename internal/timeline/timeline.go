// Package timeline holds clips on tracks and the pointer-driven editing
// operations on them: drag, resize, split, duplicate and delete.
//
// Geometry requests never fail loudly. Invalid requests are clamped or
// rejected and the operation reports false.
package timeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ivlev/scenecut/internal/ids"
)

var (
	ErrInvalidClip = errors.New("invalid clip")
	ErrOverlap     = errors.New("clip overlaps another clip")
	ErrNotFound    = errors.New("clip not found")
)

// OverlapPolicy decides what happens when an edit makes two clips on one
// track overlap.
type OverlapPolicy int

const (
	// OverlapReject refuses the edit.
	OverlapReject OverlapPolicy = iota
	// OverlapAllow lets clips overlap.
	OverlapAllow
	// OverlapShift pushes the following clips on the track to the right.
	OverlapShift
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapAllow:
		return "allow"
	case OverlapShift:
		return "shift"
	default:
		return "reject"
	}
}

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return OverlapReject, nil
	case "allow":
		return OverlapAllow, nil
	case "shift", "ripple":
		return OverlapShift, nil
	}
	return OverlapReject, fmt.Errorf("unknown overlap policy %q", s)
}

type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

// HitZone is the part of a clip under the pointer.
type HitZone int

const (
	HitNone HitZone = iota
	HitBody
	HitStartHandle
	HitEndHandle
)

// Options configures a Model. Zero values fall back to the defaults used by
// New.
type Options struct {
	Duration       float64 // seconds
	TrackCount     int
	TrackHeight    float64 // pixels
	ContainerWidth float64 // pixels
	Zoom           float64 // percent
	MinDuration    float64
	HandleWidth    float64 // pixels
	Overlap        OverlapPolicy
	Logger         *slog.Logger
}

func (o *Options) fill() {
	if o.Duration <= 0 {
		o.Duration = 60
	}
	if o.TrackCount <= 0 {
		o.TrackCount = 4
	}
	if o.TrackHeight <= 0 {
		o.TrackHeight = 48
	}
	if o.ContainerWidth <= 0 {
		o.ContainerWidth = 1200
	}
	if o.Zoom <= 0 {
		o.Zoom = 100
	}
	if o.MinDuration <= 0 {
		o.MinDuration = 1
	}
	if o.HandleWidth <= 0 {
		o.HandleWidth = 6
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

type dragState struct {
	id       string
	pointerX float64
	orig     Clip
}

type resizeState struct {
	id       string
	edge     Edge
	pointerX float64
	orig     Clip
}

// Model is the clip table of one timeline. It is not safe for concurrent
// use; the engine drives it from the frame loop.
type Model struct {
	opts     Options
	log      *slog.Logger
	clips    []Clip
	selected string
	drag     *dragState
	resize   *resizeState
}

func New(opts Options) *Model {
	opts.fill()
	return &Model{opts: opts, log: opts.Logger}
}

func (m *Model) Duration() float64       { return m.opts.Duration }
func (m *Model) TrackCount() int         { return m.opts.TrackCount }
func (m *Model) TrackHeight() float64    { return m.opts.TrackHeight }
func (m *Model) MinDuration() float64    { return m.opts.MinDuration }
func (m *Model) Zoom() float64           { return m.opts.Zoom }
func (m *Model) ContainerWidth() float64 { return m.opts.ContainerWidth }
func (m *Model) Overlap() OverlapPolicy  { return m.opts.Overlap }

// SetZoom sets the zoom percentage. Non-positive values are ignored.
func (m *Model) SetZoom(zoom float64) {
	if zoom > 0 {
		m.opts.Zoom = zoom
	}
}

func (m *Model) SetContainerWidth(w float64) {
	if w > 0 {
		m.opts.ContainerWidth = w
	}
}

func (m *Model) scale() float64 {
	return m.opts.ContainerWidth * m.opts.Zoom / 100 / m.opts.Duration
}

// TimeToPixels converts a time to a horizontal offset in the container.
func (m *Model) TimeToPixels(t float64) float64 {
	return t * m.scale()
}

// PixelsToTime is the inverse of TimeToPixels.
func (m *Model) PixelsToTime(px float64) float64 {
	s := m.scale()
	if s == 0 {
		return 0
	}
	return px / s
}

// TrackAt maps a vertical position to a track index in [0, TrackCount-1].
func (m *Model) TrackAt(y float64) int {
	track := int(math.Floor(y / m.opts.TrackHeight))
	return max(0, min(track, m.opts.TrackCount-1))
}

// Clips returns a copy of the clip table in insertion order.
func (m *Model) Clips() []Clip {
	out := make([]Clip, len(m.clips))
	copy(out, m.clips)
	return out
}

// SetClips replaces the clip table, as undo and document loading do. Clips
// are taken as they are; the selection is dropped if its clip is gone.
func (m *Model) SetClips(clips []Clip) {
	m.clips = make([]Clip, len(clips))
	copy(m.clips, clips)
	m.drag, m.resize = nil, nil
	if m.index(m.selected) < 0 {
		m.selected = ""
	}
}

func (m *Model) Len() int { return len(m.clips) }

func (m *Model) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range m.clips {
		if m.clips[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Model) Clip(id string) (Clip, bool) {
	i := m.index(id)
	if i < 0 {
		return Clip{}, false
	}
	return m.clips[i], true
}

// ClipsOnTrack returns the clips of a track ordered by start time.
func (m *Model) ClipsOnTrack(track int) []Clip {
	var out []Clip
	for _, c := range m.clips {
		if c.LayerIndex == track {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// VisibleAt returns the visible clips under the playhead at t, ordered by
// track and then by start time.
func (m *Model) VisibleAt(t float64) []Clip {
	var out []Clip
	for _, c := range m.clips {
		if c.Visible && c.Contains(t) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LayerIndex != out[j].LayerIndex {
			return out[i].LayerIndex < out[j].LayerIndex
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *Model) valid(c Clip) bool {
	return c.StartTime >= 0 &&
		c.StartTime < c.EndTime &&
		c.EndTime-c.StartTime >= m.opts.MinDuration-1e-9 &&
		c.EndTime <= m.opts.Duration+1e-9 &&
		c.LayerIndex >= 0 && c.LayerIndex < m.opts.TrackCount
}

// Add inserts a clip. An empty id gets a fresh one.
func (m *Model) Add(c Clip) (Clip, error) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	if m.index(c.ID) >= 0 {
		return Clip{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidClip, c.ID)
	}
	if !m.valid(c) {
		return Clip{}, fmt.Errorf("%w: [%g, %g] on track %d", ErrInvalidClip, c.StartTime, c.EndTime, c.LayerIndex)
	}
	next, ok := m.place(-1, c)
	if !ok {
		return Clip{}, fmt.Errorf("%w: [%g, %g] on track %d", ErrOverlap, c.StartTime, c.EndTime, c.LayerIndex)
	}
	m.clips = next
	return c, nil
}

// place returns the clip table with c written at index i (appended when i
// is negative), resolving overlaps by the model's policy. The table itself
// is left untouched.
func (m *Model) place(i int, c Clip) ([]Clip, bool) {
	next := m.Clips()
	if i < 0 {
		next = append(next, c)
		i = len(next) - 1
	} else {
		next[i] = c
	}
	switch m.opts.Overlap {
	case OverlapAllow:
		return next, true
	case OverlapShift:
		return m.ripple(next, i)
	default:
		for j := range next {
			if j != i && next[j].overlaps(c) {
				return nil, false
			}
		}
		return next, true
	}
}

// ripple pushes the clips that start at or after clips[i] on its track to
// the right until nothing overlaps. A clip starting earlier that covers the
// start of clips[i] is not moved; clips[i] is placed after it instead. Any
// locked clip in the way, or a clip pushed past the end, fails the edit.
func (m *Model) ripple(clips []Clip, i int) ([]Clip, bool) {
	c := clips[i]
	var track []int
	for j := range clips {
		if j != i && clips[j].LayerIndex == c.LayerIndex {
			track = append(track, j)
		}
	}
	sort.SliceStable(track, func(a, b int) bool { return clips[track[a]].StartTime < clips[track[b]].StartTime })

	dur := c.Duration()
	for _, j := range track {
		o := clips[j]
		if o.StartTime < c.StartTime && o.EndTime > c.StartTime {
			c.StartTime = o.EndTime
			c.EndTime = c.StartTime + dur
		}
	}
	if c.EndTime > m.opts.Duration+1e-9 {
		return nil, false
	}
	clips[i] = c

	cursor := c.EndTime
	for _, j := range track {
		o := clips[j]
		if o.StartTime < c.StartTime {
			continue
		}
		if o.StartTime < cursor {
			if o.Locked {
				return nil, false
			}
			d := o.Duration()
			o.StartTime = cursor
			o.EndTime = cursor + d
			if o.EndTime > m.opts.Duration+1e-9 {
				return nil, false
			}
			clips[j] = o
		}
		cursor = max(cursor, o.EndTime)
	}
	return clips, true
}

// Move places a clip at start on track. The start is clamped to [0,
// duration-length] and the track to the valid range. Locked clips and
// overlaps refused by the policy leave the model unchanged.
func (m *Model) Move(id string, start float64, track int) bool {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked {
		return false
	}
	c := m.clips[i]
	dur := c.Duration()
	start = max(0, min(start, m.opts.Duration-dur))
	track = max(0, min(track, m.opts.TrackCount-1))
	if start == c.StartTime && track == c.LayerIndex {
		return false
	}
	c.StartTime = start
	c.EndTime = start + dur
	c.LayerIndex = track
	next, ok := m.place(i, c)
	if !ok {
		m.log.Debug("move rejected", "clip", id, "start", start, "track", track)
		return false
	}
	m.clips = next
	return true
}

// BeginDrag starts a drag on an unlocked clip and selects it.
func (m *Model) BeginDrag(id string, x, y float64) bool {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked {
		return false
	}
	m.resize = nil
	m.drag = &dragState{id: id, pointerX: x, orig: m.clips[i]}
	m.selected = id
	return true
}

// DragTo moves the dragged clip by the pointer delta since BeginDrag.
func (m *Model) DragTo(x, y float64) bool {
	if m.drag == nil {
		return false
	}
	start := m.drag.orig.StartTime + m.PixelsToTime(x-m.drag.pointerX)
	return m.Move(m.drag.id, start, m.TrackAt(y))
}

func (m *Model) Dragging() bool { return m.drag != nil }

// EndDrag finishes the drag and reports whether the clip ended up somewhere
// else than where it started.
func (m *Model) EndDrag() bool {
	d := m.drag
	m.drag = nil
	if d == nil {
		return false
	}
	c, ok := m.Clip(d.id)
	return ok && (c.StartTime != d.orig.StartTime || c.LayerIndex != d.orig.LayerIndex)
}

// CancelDrag puts the dragged clip back where it started.
func (m *Model) CancelDrag() {
	d := m.drag
	m.drag = nil
	if d == nil {
		return
	}
	if i := m.index(d.id); i >= 0 {
		m.clips[i] = d.orig
	}
}

// ResizeStart moves the start edge, clamped to [0, end-min]. Unless overlaps
// are allowed, the edge also stops at the end of the previous clip.
func (m *Model) ResizeStart(id string, start float64) bool {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked {
		return false
	}
	c := m.clips[i]
	start = max(0, min(start, c.EndTime-m.opts.MinDuration))
	if m.opts.Overlap != OverlapAllow {
		for j, o := range m.clips {
			if j != i && o.LayerIndex == c.LayerIndex && o.EndTime <= c.StartTime+1e-9 && o.EndTime > start {
				start = o.EndTime
			}
		}
	}
	if start == c.StartTime || start > c.EndTime-m.opts.MinDuration+1e-9 {
		return false
	}
	m.clips[i].StartTime = start
	return true
}

// ResizeEnd moves the end edge, clamped to [start+min, duration]. Under
// OverlapReject the edge stops at the next clip; under OverlapShift the
// following clips are pushed.
func (m *Model) ResizeEnd(id string, end float64) bool {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked {
		return false
	}
	c := m.clips[i]
	end = max(c.StartTime+m.opts.MinDuration, min(end, m.opts.Duration))
	if m.opts.Overlap == OverlapReject {
		for j, o := range m.clips {
			if j != i && o.LayerIndex == c.LayerIndex && o.StartTime >= c.EndTime-1e-9 && o.StartTime < end {
				end = o.StartTime
			}
		}
		if end < c.StartTime+m.opts.MinDuration-1e-9 {
			return false
		}
	}
	if end == c.EndTime {
		return false
	}
	c.EndTime = end
	next, ok := m.place(i, c)
	if !ok {
		return false
	}
	m.clips = next
	return true
}

// BeginResize starts dragging one edge of an unlocked clip.
func (m *Model) BeginResize(id string, edge Edge, x float64) bool {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked {
		return false
	}
	m.drag = nil
	m.resize = &resizeState{id: id, edge: edge, pointerX: x, orig: m.clips[i]}
	m.selected = id
	return true
}

func (m *Model) ResizeTo(x float64) bool {
	r := m.resize
	if r == nil {
		return false
	}
	dt := m.PixelsToTime(x - r.pointerX)
	if r.edge == EdgeStart {
		return m.ResizeStart(r.id, r.orig.StartTime+dt)
	}
	return m.ResizeEnd(r.id, r.orig.EndTime+dt)
}

func (m *Model) Resizing() bool { return m.resize != nil }

// EndResize finishes the resize and reports whether the clip changed.
func (m *Model) EndResize() bool {
	r := m.resize
	m.resize = nil
	if r == nil {
		return false
	}
	c, ok := m.Clip(r.id)
	return ok && (c.StartTime != r.orig.StartTime || c.EndTime != r.orig.EndTime)
}

// Split cuts a clip at t into two clips on the same track whose ids keep
// the original id as prefix. t must lie strictly inside the clip and both
// parts must keep the minimum duration.
func (m *Model) Split(id string, t float64) (Clip, Clip, bool) {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked {
		return Clip{}, Clip{}, false
	}
	c := m.clips[i]
	if t <= c.StartTime || t >= c.EndTime {
		return Clip{}, Clip{}, false
	}
	if t-c.StartTime < m.opts.MinDuration-1e-9 || c.EndTime-t < m.opts.MinDuration-1e-9 {
		m.log.Debug("split too short", "clip", id, "at", t)
		return Clip{}, Clip{}, false
	}
	first, second := c, c
	first.ID = ids.Derived(c.ID)
	first.EndTime = t
	second.ID = ids.Derived(c.ID)
	second.StartTime = t

	next := make([]Clip, 0, len(m.clips)+1)
	next = append(next, m.clips[:i]...)
	next = append(next, first, second)
	next = append(next, m.clips[i+1:]...)
	m.clips = next
	if m.selected == id {
		m.selected = first.ID
	}
	return first, second, true
}

// Duplicate copies a clip into the first free gap of its length on its
// track after the original, falling back to the same time on other tracks.
// The copy is unlocked and selected.
func (m *Model) Duplicate(id string) (Clip, bool) {
	i := m.index(id)
	if i < 0 {
		return Clip{}, false
	}
	src := m.clips[i]
	dup := src
	dup.ID = ids.New()
	dup.Locked = false

	if m.opts.Overlap == OverlapAllow {
		dup.StartTime, dup.EndTime = src.EndTime, src.EndTime+src.Duration()
		if dup.EndTime > m.opts.Duration {
			dup.StartTime, dup.EndTime = src.StartTime, src.EndTime
		}
		m.clips = append(m.clips, dup)
		m.selected = dup.ID
		return dup, true
	}

	if start, ok := m.gap(src.LayerIndex, src.EndTime, src.Duration()); ok {
		dup.StartTime, dup.EndTime = start, start+src.Duration()
	} else {
		placed := false
		for track := 0; track < m.opts.TrackCount && !placed; track++ {
			if track == src.LayerIndex {
				continue
			}
			if start, ok := m.gap(track, src.StartTime, src.Duration()); ok && start == src.StartTime {
				dup.LayerIndex = track
				placed = true
			}
		}
		if !placed {
			return Clip{}, false
		}
	}
	m.clips = append(m.clips, dup)
	m.selected = dup.ID
	return dup, true
}

// gap finds the earliest start >= from where a clip of length dur fits on
// track without overlapping.
func (m *Model) gap(track int, from, dur float64) (float64, bool) {
	start := from
	for _, o := range m.ClipsOnTrack(track) {
		if o.EndTime <= start {
			continue
		}
		if o.StartTime >= start+dur {
			break
		}
		start = o.EndTime
	}
	if start+dur > m.opts.Duration+1e-9 {
		return 0, false
	}
	return start, true
}

// Delete removes a clip. Locked clips can be deleted.
func (m *Model) Delete(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.clips = append(m.clips[:i:i], m.clips[i+1:]...)
	if m.selected == id {
		m.selected = ""
	}
	if m.drag != nil && m.drag.id == id {
		m.drag = nil
	}
	if m.resize != nil && m.resize.id == id {
		m.resize = nil
	}
	return true
}

// SetLocked toggles the lock of a clip.
func (m *Model) SetLocked(id string, locked bool) bool {
	i := m.index(id)
	if i < 0 || m.clips[i].Locked == locked {
		return false
	}
	m.clips[i].Locked = locked
	return true
}

// HitTest finds the clip under (x, y) and the zone hit. Clips added later
// win over earlier ones.
func (m *Model) HitTest(x, y float64) (string, HitZone) {
	if y < 0 || y >= m.opts.TrackHeight*float64(m.opts.TrackCount) {
		return "", HitNone
	}
	track := m.TrackAt(y)
	for i := len(m.clips) - 1; i >= 0; i-- {
		c := m.clips[i]
		if c.LayerIndex != track {
			continue
		}
		x0, x1 := m.TimeToPixels(c.StartTime), m.TimeToPixels(c.EndTime)
		if x < x0 || x > x1 {
			continue
		}
		handle := min(m.opts.HandleWidth, (x1-x0)/3)
		switch {
		case x-x0 <= handle:
			return c.ID, HitStartHandle
		case x1-x <= handle:
			return c.ID, HitEndHandle
		default:
			return c.ID, HitBody
		}
	}
	return "", HitNone
}

// Select makes id the single selected clip.
func (m *Model) Select(id string) bool {
	if m.index(id) < 0 {
		return false
	}
	m.selected = id
	return true
}

func (m *Model) Selected() (Clip, bool) {
	return m.Clip(m.selected)
}

func (m *Model) SelectedID() string { return m.selected }

func (m *Model) ClearSelection() { m.selected = "" }
