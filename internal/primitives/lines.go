package primitives

import (
	"math"

	"github.com/fogleman/gg"
)

// Line strokes a straight segment. Only the stroke part of s is used.
func Line(dc *gg.Context, x1, y1, x2, y2 float64, s Style) {
	strokeOnly(dc, s, func(c *gg.Context) {
		c.MoveTo(x1, y1)
		c.LineTo(x2, y2)
	})
}

// Polyline strokes a connected run of segments, optionally closed.
func Polyline(dc *gg.Context, pts []gg.Point, closed bool, s Style) bool {
	if len(pts) < 2 {
		return false
	}
	strokeOnly(dc, s, func(c *gg.Context) {
		c.MoveTo(pts[0].X, pts[0].Y)
		for _, p := range pts[1:] {
			c.LineTo(p.X, p.Y)
		}
		if closed {
			c.ClosePath()
		}
	})
	return true
}

// QuadraticCurve strokes a quadratic bezier from p0 to p1 with control c.
func QuadraticCurve(dc *gg.Context, p0, ctrl, p1 gg.Point, s Style) {
	strokeOnly(dc, s, func(c *gg.Context) {
		c.MoveTo(p0.X, p0.Y)
		c.QuadraticTo(ctrl.X, ctrl.Y, p1.X, p1.Y)
	})
}

// CubicCurve strokes a cubic bezier from p0 to p1 with controls c1, c2.
func CubicCurve(dc *gg.Context, p0, c1, c2, p1 gg.Point, s Style) {
	strokeOnly(dc, s, func(c *gg.Context) {
		c.MoveTo(p0.X, p0.Y)
		c.CubicTo(c1.X, c1.Y, c2.X, c2.Y, p1.X, p1.Y)
	})
}

// DashedLine strokes a segment with the given dash pattern, overriding any
// dash set on s.
func DashedLine(dc *gg.Context, x1, y1, x2, y2 float64, dash []float64, s Style) {
	s.Dash = dash
	Line(dc, x1, y1, x2, y2, s)
}

// Arrow strokes a shaft from (x1, y1) to (x2, y2) and fills a triangular
// head of length head at the end point.
func Arrow(dc *gg.Context, x1, y1, x2, y2, head float64, s Style) {
	angle := math.Atan2(y2-y1, x2-x1)
	if head <= 0 {
		head = 10
	}
	spread := math.Pi / 7
	baseX := x2 - head*math.Cos(angle)*0.8
	baseY := y2 - head*math.Sin(angle)*0.8

	Line(dc, x1, y1, baseX, baseY, s)

	headStyle := Style{Fill: s.Stroke, FillPattern: s.StrokePattern, Shadow: s.Shadow}
	if !headStyle.hasFill() {
		return
	}
	drawStyled(dc, headStyle, func(c *gg.Context) {
		c.MoveTo(x2, y2)
		c.LineTo(x2-head*math.Cos(angle-spread), y2-head*math.Sin(angle-spread))
		c.LineTo(x2-head*math.Cos(angle+spread), y2-head*math.Sin(angle+spread))
		c.ClosePath()
	})
}

// Grid strokes the cell lines of a w by h grid with square cells.
func Grid(dc *gg.Context, x, y, w, h, cell float64, s Style) bool {
	if cell <= 0 || w <= 0 || h <= 0 {
		return false
	}
	strokeOnly(dc, s, func(c *gg.Context) {
		for gx := x; gx <= x+w+1e-9; gx += cell {
			c.MoveTo(gx, y)
			c.LineTo(gx, y+h)
		}
		for gy := y; gy <= y+h+1e-9; gy += cell {
			c.MoveTo(x, gy)
			c.LineTo(x+w, gy)
		}
	})
	return true
}

func strokeOnly(dc *gg.Context, s Style, path func(c *gg.Context)) {
	s.Fill = nil
	s.FillPattern = nil
	s.InnerShadow = nil
	if !s.hasStroke() {
		return
	}
	drawStyled(dc, s, path)
}
