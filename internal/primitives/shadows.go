package primitives

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/fogleman/gg"
)

// Shadow describes a drop or inner shadow. Offsets and blur are in device
// pixels and are not affected by the context transform.
type Shadow struct {
	Color   color.Color
	OffsetX float64
	OffsetY float64
	Blur    float64
}

var defaultShadowColor = color.NRGBA{A: 128}

func (sh Shadow) color() color.Color {
	if sh.Color == nil {
		return defaultShadowColor
	}
	return sh.Color
}

// DropShadow paints the silhouette of whatever fn draws, tinted with the
// shadow colour, blurred and offset, onto dc. The caller paints the real
// content afterwards. It reports false when nothing was drawn.
func DropShadow(dc *gg.Context, sh Shadow, fn func(dc *gg.Context)) bool {
	sc, ok := scratchFor(dc)
	if !ok {
		return false
	}
	fn(sc)
	cov := sc.AsMask()
	r := coverageBounds(cov)
	if r.Empty() {
		return false
	}

	pad := blurPad(sh.Blur)
	sil := silhouette(cov, r, pad, sh.color())
	if sh.Blur > 0 {
		sil = blur.Gaussian(sil, sh.Blur)
	}
	blit(dc, sil,
		r.Min.X-pad+int(math.Round(sh.OffsetX)),
		r.Min.Y-pad+int(math.Round(sh.OffsetY)))
	return true
}

// InnerShadow paints a shadow inside the area covered by path, as if the
// shape were cut out of a surface casting a shadow at the given offset.
func InnerShadow(dc *gg.Context, sh Shadow, path func(dc *gg.Context)) bool {
	sc, ok := scratchFor(dc)
	if !ok {
		return false
	}
	path(sc)
	sc.SetColor(color.White)
	sc.Fill()
	cov := sc.AsMask()
	r := coverageBounds(cov)
	if r.Empty() {
		return false
	}

	ox, oy := int(math.Round(sh.OffsetX)), int(math.Round(sh.OffsetY))
	pad := blurPad(sh.Blur) + max(abs(ox), abs(oy))
	w, h := r.Dx()+2*pad, r.Dy()+2*pad

	outside := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(outside, outside.Bounds(), image.NewUniform(sh.color()), image.Point{}, draw.Src)
	hole := image.Rect(pad+ox, pad+oy, pad+ox+r.Dx(), pad+oy+r.Dy())
	draw.DrawMask(outside, hole, image.Transparent, image.Point{}, cov, r.Min, draw.Src)
	if sh.Blur > 0 {
		outside = blur.Gaussian(outside, sh.Blur)
	}

	inner := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.DrawMask(inner, inner.Bounds(), outside, image.Pt(pad, pad), cov, r.Min, draw.Over)
	blit(dc, inner, r.Min.X, r.Min.Y)
	return true
}

// silhouette copies the coverage inside r into a colour-tinted bitmap with a
// transparent margin of pad pixels, so blurring does not clip at the edges.
func silhouette(cov *image.Alpha, r image.Rectangle, pad int, c color.Color) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx()+2*pad, r.Dy()+2*pad))
	dst := image.Rect(pad, pad, pad+r.Dx(), pad+r.Dy())
	draw.DrawMask(out, dst, image.NewUniform(c), image.Point{}, cov, r.Min, draw.Over)
	return out
}

// coverageBounds returns the smallest rectangle holding every non-zero
// alpha value of a.
func coverageBounds(a *image.Alpha) image.Rectangle {
	b := a.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := a.Pix[(y-b.Min.Y)*a.Stride : (y-b.Min.Y)*a.Stride+b.Dx()]
		for i, v := range row {
			if v == 0 {
				continue
			}
			x := b.Min.X + i
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

func blurPad(radius float64) int {
	if radius <= 0 {
		return 0
	}
	return int(math.Ceil(radius * 2))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
