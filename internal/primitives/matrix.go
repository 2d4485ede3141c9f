package primitives

import (
	"image"
	"math"

	"github.com/fogleman/gg"
)

// CurrentMatrix recovers the transform of dc by probing three points.
func CurrentMatrix(dc *gg.Context) gg.Matrix {
	x0, y0 := dc.TransformPoint(0, 0)
	x1, y1 := dc.TransformPoint(1, 0)
	x2, y2 := dc.TransformPoint(0, 1)
	return gg.Matrix{
		XX: x1 - x0, YX: y1 - y0,
		XY: x2 - x0, YY: y2 - y0,
		X0: x0, Y0: y0,
	}
}

// ApplyMatrix multiplies m onto the current transform of dc. gg has no
// matrix setter, so m is decomposed into translate, rotate, shear and scale.
// It reports false for singular matrices.
func ApplyMatrix(dc *gg.Context, m gg.Matrix) bool {
	a, b, c, d := m.XX, m.YX, m.XY, m.YY
	sx := math.Hypot(a, b)
	if sx == 0 {
		return false
	}
	theta := math.Atan2(b, a)
	cos, sin := math.Cos(theta), math.Sin(theta)
	k := cos*c + sin*d
	sy := cos*d - sin*c
	if sy == 0 {
		return false
	}
	dc.Translate(m.X0, m.Y0)
	dc.Rotate(theta)
	dc.Shear(k/sy, 0)
	dc.Scale(sx, sy)
	return true
}

// Invert returns the inverse of m.
func Invert(m gg.Matrix) (gg.Matrix, bool) {
	det := m.XX*m.YY - m.XY*m.YX
	if det == 0 {
		return gg.Matrix{}, false
	}
	inv := gg.Matrix{
		XX: m.YY / det,
		YX: -m.YX / det,
		XY: -m.XY / det,
		YY: m.XX / det,
	}
	inv.X0 = -(inv.XX*m.X0 + inv.XY*m.Y0)
	inv.Y0 = -(inv.YX*m.X0 + inv.YY*m.Y0)
	return inv, true
}

// scratchFor returns an empty context the size of dc carrying the same
// transform, used to compute coverage masks for clips and shadows.
func scratchFor(dc *gg.Context) (*gg.Context, bool) {
	s := gg.NewContext(dc.Width(), dc.Height())
	if !ApplyMatrix(s, CurrentMatrix(dc)) {
		return nil, false
	}
	return s, true
}

// blit draws im in device space, ignoring the current transform but
// honouring the clip mask of dc.
func blit(dc *gg.Context, im image.Image, x, y int) {
	dc.Push()
	dc.Identity()
	dc.DrawImage(im, x, y)
	dc.Pop()
}
