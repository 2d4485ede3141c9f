package scene

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
)

// Signature hashes every field of the element. Two elements with the same
// signature render to the same pixels. It runs on every cache lookup, so
// the fields are fed to the hash directly.
func (e Element) Signature() uint64 {
	w := sigWriter{h: fnv.New64a()}
	w.str(e.ID)
	w.str(string(e.Type))
	w.num(e.X, e.Y, e.Width, e.Height, e.Rotation, e.ScaleX, e.ScaleY, e.Opacity)

	if w.present(e.Text != nil) {
		t := e.Text
		w.str(t.Content, t.FontSource, t.Color, t.Align)
		w.num(t.FontSize, t.LineSpacing)
		w.paint(t.Fill)
		w.stroke(t.Stroke)
		w.shadow(t.Shadow)
	}
	if w.present(e.Image != nil) {
		im := e.Image
		w.str(im.Source, im.Fit)
		w.num(im.CornerRadius)
		w.shadow(im.Shadow)
	}
	if w.present(e.Shape != nil) {
		sh := e.Shape
		w.str(string(sh.Kind), sh.Content)
		w.num(float64(sh.Sides), sh.InnerRatio, sh.CornerRadius, sh.CellSize)
		w.paint(sh.Fill)
		w.stroke(sh.Stroke)
		w.shadow(sh.Shadow)
		w.shadow(sh.InnerShadow)
	}
	if w.present(e.Media != nil) {
		m := e.Media
		w.str(m.Source, m.Poster, m.Color)
		w.num(m.Volume)
		w.present(m.Muted)
		w.nums(m.Waveform)
	}
	if w.present(e.Character != nil) {
		c := e.Character
		w.str(c.Source, c.Pose, c.Color)
	}
	return w.h.Sum64()
}

type sigWriter struct {
	h   hash.Hash64
	buf [8]byte
}

// str writes each string with its length so that adjacent fields cannot
// run into each other.
func (w *sigWriter) str(ss ...string) {
	for _, s := range ss {
		w.u64(uint64(len(s)))
		w.h.Write([]byte(s))
	}
}

func (w *sigWriter) num(vs ...float64) {
	for _, v := range vs {
		w.u64(math.Float64bits(v))
	}
}

func (w *sigWriter) nums(vs []float64) {
	w.u64(uint64(len(vs)))
	w.num(vs...)
}

func (w *sigWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:], v)
	w.h.Write(w.buf[:])
}

// present writes a marker for an optional block and returns ok.
func (w *sigWriter) present(ok bool) bool {
	if ok {
		w.h.Write([]byte{1})
	} else {
		w.h.Write([]byte{0})
	}
	return ok
}

func (w *sigWriter) paint(p *Paint) {
	if !w.present(p != nil) {
		return
	}
	w.str(p.Color)
	if g := p.Gradient; w.present(g != nil) {
		w.str(g.Kind)
		w.num(g.X0, g.Y0, g.R0, g.X1, g.Y1, g.R1, g.Angle)
		w.u64(uint64(len(g.Stops)))
		for _, s := range g.Stops {
			w.num(s.Offset)
			w.str(s.Color)
		}
	}
	if pt := p.Pattern; w.present(pt != nil) {
		w.str(pt.Kind, pt.Source, pt.Repeat, pt.Foreground, pt.Background)
		w.num(pt.Size, pt.Scale, pt.Rotation)
	}
}

func (w *sigWriter) stroke(s *Stroke) {
	if !w.present(s != nil) {
		return
	}
	w.str(s.Color)
	w.num(s.Width)
	w.nums(s.Dash)
}

func (w *sigWriter) shadow(s *Shadow) {
	if !w.present(s != nil) {
		return
	}
	w.str(s.Color)
	w.num(s.OffsetX, s.OffsetY, s.Blur)
}
