package primitives

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// Region is an area that can be established as a clip.
type Region interface {
	// cover paints the region opaque onto a transparent scratch context that
	// carries the caller's transform.
	cover(sc *gg.Context)
}

type RectRegion struct{ X, Y, W, H float64 }

func (r RectRegion) cover(sc *gg.Context) {
	sc.DrawRectangle(r.X, r.Y, r.W, r.H)
	fillOpaque(sc)
}

type CircleRegion struct{ X, Y, R float64 }

func (r CircleRegion) cover(sc *gg.Context) {
	sc.DrawCircle(r.X, r.Y, r.R)
	fillOpaque(sc)
}

type RoundedRectRegion struct{ X, Y, W, H, R float64 }

func (r RoundedRectRegion) cover(sc *gg.Context) {
	rad := clampRadius(r.W, r.H, r.R)
	if rad <= 0 {
		sc.DrawRectangle(r.X, r.Y, r.W, r.H)
	} else {
		sc.DrawRoundedRectangle(r.X, r.Y, r.W, r.H, rad)
	}
	fillOpaque(sc)
}

type PolygonRegion []gg.Point

func (r PolygonRegion) cover(sc *gg.Context) {
	if len(r) < 3 {
		return
	}
	polygonPath(sc, r)
	fillOpaque(sc)
}

// PathRegion builds an arbitrary path on the scratch context.
type PathRegion func(dc *gg.Context)

func (r PathRegion) cover(sc *gg.Context) {
	r(sc)
	fillOpaque(sc)
}

// TextRegion clips to the glyph shapes of Text drawn at (X, Y) with the
// anchor (AX, AY), as gg.DrawStringAnchored does.
type TextRegion struct {
	Text   string
	X, Y   float64
	AX, AY float64
	Face   font.Face
}

func (r TextRegion) cover(sc *gg.Context) {
	if r.Face == nil || r.Text == "" {
		return
	}
	sc.SetFontFace(r.Face)
	sc.SetColor(color.White)
	sc.DrawStringAnchored(r.Text, r.X, r.Y, r.AX, r.AY)
}

func fillOpaque(sc *gg.Context) {
	sc.SetColor(color.White)
	sc.Fill()
}

// ClipStack establishes nested clip regions on a context. gg keeps the clip
// mask across Pop, so every Push here must be paired with a Pop (or use
// With) to bring back the exact outer mask.
type ClipStack struct {
	dc      *gg.Context
	current *image.Alpha
	saved   []*image.Alpha
}

func NewClipStack(dc *gg.Context) *ClipStack {
	return &ClipStack{dc: dc}
}

// Push intersects r with the current clip. It reports false when the
// context transform is singular; nothing is pushed in that case.
func (s *ClipStack) Push(r Region) bool {
	sc, ok := scratchFor(s.dc)
	if !ok {
		return false
	}
	r.cover(sc)
	mask := sc.AsMask()
	if s.current != nil {
		intersect(mask, s.current)
	}
	if err := s.dc.SetMask(mask); err != nil {
		return false
	}
	s.saved = append(s.saved, s.current)
	s.current = mask
	return true
}

// Pop restores the clip in effect before the matching Push. Popping an
// empty stack is a no-op.
func (s *ClipStack) Pop() {
	if len(s.saved) == 0 {
		return
	}
	prev := s.saved[len(s.saved)-1]
	s.saved = s.saved[:len(s.saved)-1]
	s.current = prev
	if prev == nil {
		s.dc.ResetClip()
		return
	}
	_ = s.dc.SetMask(prev)
}

// With runs fn with r clipped and restores the outer clip afterwards, also
// when fn panics.
func (s *ClipStack) With(r Region, fn func(dc *gg.Context)) bool {
	if !s.Push(r) {
		return false
	}
	defer s.Pop()
	fn(s.dc)
	return true
}

func (s *ClipStack) Depth() int { return len(s.saved) }

// Mask returns the active clip mask, nil when nothing is clipped.
func (s *ClipStack) Mask() *image.Alpha { return s.current }

// intersect multiplies dst by src in place. Both masks cover the same
// context size.
func intersect(dst, src *image.Alpha) {
	for i := range dst.Pix {
		if i >= len(src.Pix) {
			break
		}
		dst.Pix[i] = uint8(uint16(dst.Pix[i]) * uint16(src.Pix[i]) / 255)
	}
}
