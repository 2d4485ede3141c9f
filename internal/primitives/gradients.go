package primitives

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// Stop is a colour stop at Offset in [0,1].
type Stop struct {
	Offset float64
	Color  color.Color
}

// NewLinear builds a linear gradient from (x0, y0) to (x1, y1). Gradient
// coordinates are in device space.
func NewLinear(x0, y0, x1, y1 float64, stops ...Stop) gg.Gradient {
	return withStops(gg.NewLinearGradient(x0, y0, x1, y1), stops)
}

// NewRadial builds a two-circle radial gradient.
func NewRadial(x0, y0, r0, x1, y1, r1 float64, stops ...Stop) gg.Gradient {
	return withStops(gg.NewRadialGradient(x0, y0, r0, x1, y1, r1), stops)
}

// NewConic builds a conic (sweep) gradient around (cx, cy). Offset 0 sits at
// angle start, in radians, and offsets grow clockwise in screen space.
func NewConic(cx, cy, start float64, stops ...Stop) gg.Gradient {
	return withStops(&conicGradient{cx: cx, cy: cy, start: start}, stops)
}

func withStops(g gg.Gradient, stops []Stop) gg.Gradient {
	for _, s := range stops {
		g.AddColorStop(s.Offset, s.Color)
	}
	return g
}

type conicGradient struct {
	cx, cy, start float64
	stops         []Stop
}

func (g *conicGradient) AddColorStop(offset float64, c color.Color) {
	g.stops = append(g.stops, Stop{Offset: offset, Color: c})
	sort.SliceStable(g.stops, func(i, j int) bool { return g.stops[i].Offset < g.stops[j].Offset })
}

func (g *conicGradient) ColorAt(x, y int) color.Color {
	if len(g.stops) == 0 {
		return color.Transparent
	}
	a := math.Atan2(float64(y)+0.5-g.cy, float64(x)+0.5-g.cx) - g.start
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return stopColor(a/(2*math.Pi), g.stops)
}

// stopColor interpolates the colour at t across sorted stops.
func stopColor(t float64, stops []Stop) color.Color {
	if t <= stops[0].Offset {
		return stops[0].Color
	}
	last := stops[len(stops)-1]
	if t >= last.Offset {
		return last.Color
	}
	for i := 1; i < len(stops); i++ {
		s0, s1 := stops[i-1], stops[i]
		if t > s1.Offset {
			continue
		}
		span := s1.Offset - s0.Offset
		if span <= 0 {
			return s1.Color
		}
		return mixColor(s0.Color, s1.Color, (t-s0.Offset)/span)
	}
	return last.Color
}

func mixColor(c0, c1 color.Color, t float64) color.Color {
	r0, g0, b0, a0 := c0.RGBA()
	r1, g1, b1, a1 := c1.RGBA()
	mix := func(a, b uint32) uint8 {
		return uint8((float64(a) + t*(float64(b)-float64(a))) / 257)
	}
	return color.RGBA{R: mix(r0, r1), G: mix(g0, g1), B: mix(b0, b1), A: mix(a0, a1)}
}

// FillWith fills the path built by path with p, which may be a gradient or
// a pattern.
func FillWith(dc *gg.Context, p gg.Pattern, path func(dc *gg.Context)) {
	drawStyled(dc, Style{FillPattern: p}, path)
}

// StrokeWith strokes the path built by path with p.
func StrokeWith(dc *gg.Context, p gg.Pattern, width float64, path func(dc *gg.Context)) {
	drawStyled(dc, Style{StrokePattern: p, LineWidth: width}, path)
}

// PaintCoverage paints p through the coverage of whatever fn draws. gg
// draws text with a flat colour only, so this is how text gets gradient or
// pattern fills.
func PaintCoverage(dc *gg.Context, p gg.Pattern, fn func(sc *gg.Context)) bool {
	sc, ok := scratchFor(dc)
	if !ok {
		return false
	}
	sc.SetColor(color.White)
	fn(sc)
	cov := sc.AsMask()
	r := coverageBounds(cov)
	if r.Empty() {
		return false
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			a := uint32(cov.AlphaAt(x, y).A)
			if a == 0 {
				continue
			}
			cr, cg, cb, ca := p.ColorAt(x, y).RGBA()
			out.SetRGBA64(x-r.Min.X, y-r.Min.Y, color.RGBA64{
				R: uint16(cr * a / 255),
				G: uint16(cg * a / 255),
				B: uint16(cb * a / 255),
				A: uint16(ca * a / 255),
			})
		}
	}
	blit(dc, out, r.Min.X, r.Min.Y)
	return true
}

// FillTextGradient draws text with face anchored at (x, y), filled with p.
func FillTextGradient(dc *gg.Context, face font.Face, text string, x, y, ax, ay float64, p gg.Pattern) bool {
	if text == "" || face == nil {
		return false
	}
	return PaintCoverage(dc, p, func(sc *gg.Context) {
		sc.SetFontFace(face)
		sc.DrawStringAnchored(text, x, y, ax, ay)
	})
}
