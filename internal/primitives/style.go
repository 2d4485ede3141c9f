package primitives

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// Style carries the paint state for one draw operation. Nil paints are
// skipped, so a Style with only Stroke set draws an outline.
type Style struct {
	Fill          color.Color
	FillPattern   gg.Pattern
	Stroke        color.Color
	StrokePattern gg.Pattern
	LineWidth     float64
	Dash          []float64
	LineCap       gg.LineCap
	LineJoin      gg.LineJoin
	Shadow        *Shadow
	InnerShadow   *Shadow
}

// Filled returns a style painting only a solid fill.
func Filled(c color.Color) Style {
	return Style{Fill: c}
}

// Stroked returns a style painting only a solid outline.
func Stroked(c color.Color, width float64) Style {
	return Style{Stroke: c, LineWidth: width}
}

func (s Style) hasFill() bool {
	return s.Fill != nil || s.FillPattern != nil
}

func (s Style) hasStroke() bool {
	return s.Stroke != nil || s.StrokePattern != nil
}

// paint fills and strokes the current path of dc. The path is consumed.
func (s Style) paint(dc *gg.Context) {
	if s.hasFill() {
		if s.FillPattern != nil {
			dc.SetFillStyle(s.FillPattern)
		} else {
			dc.SetFillStyle(gg.NewSolidPattern(s.Fill))
		}
		if s.hasStroke() {
			dc.FillPreserve()
		} else {
			dc.Fill()
		}
	}
	if s.hasStroke() {
		s.applyLine(dc)
		dc.Stroke()
	}
	dc.ClearPath()
}

func (s Style) applyLine(dc *gg.Context) {
	if s.StrokePattern != nil {
		dc.SetStrokeStyle(s.StrokePattern)
	} else if s.Stroke != nil {
		dc.SetStrokeStyle(gg.NewSolidPattern(s.Stroke))
	}
	w := s.LineWidth
	if w <= 0 {
		w = 1
	}
	dc.SetLineWidth(w)
	dc.SetLineCap(s.LineCap)
	dc.SetLineJoin(s.LineJoin)
	if len(s.Dash) > 0 {
		dc.SetDash(s.Dash...)
	} else {
		dc.SetDash()
	}
}

// drawStyled builds a path with path and paints it with s, including
// shadows. Context state is restored before returning.
func drawStyled(dc *gg.Context, s Style, path func(dc *gg.Context)) {
	dc.Push()
	defer dc.Pop()

	if s.Shadow != nil {
		DropShadow(dc, *s.Shadow, func(sc *gg.Context) {
			path(sc)
			s.paint(sc)
		})
	}
	path(dc)
	s.paint(dc)
	if s.InnerShadow != nil && s.hasFill() {
		InnerShadow(dc, *s.InnerShadow, path)
	}
}

// ParseColor parses #rgb, #rrggbb and #rrggbbaa colours. An empty string
// is transparent.
func ParseColor(s string) (color.Color, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "transparent") {
		return color.Transparent, nil
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	alpha := uint8(255)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:9], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid alpha in %q: %w", s, err)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// ColorOr parses s and falls back to def when s is empty or invalid.
func ColorOr(s string, def color.Color) color.Color {
	if strings.TrimSpace(s) == "" {
		return def
	}
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c
}

// WithAlpha scales the alpha of c by a in [0,1].
func WithAlpha(c color.Color, a float64) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	n.A = uint8(float64(n.A)*a + 0.5)
	return n
}
