package primitives

import (
	"math"

	"github.com/fogleman/gg"
)

// Rectangle fills and/or strokes an axis-aligned rectangle.
func Rectangle(dc *gg.Context, x, y, w, h float64, s Style) {
	drawStyled(dc, s, func(c *gg.Context) {
		c.DrawRectangle(x, y, w, h)
	})
}

// RoundedRectangle draws a rectangle with corner radius r, clamped to half
// of the shorter side.
func RoundedRectangle(dc *gg.Context, x, y, w, h, r float64, s Style) {
	r = clampRadius(w, h, r)
	drawStyled(dc, s, func(c *gg.Context) {
		if r <= 0 {
			c.DrawRectangle(x, y, w, h)
			return
		}
		c.DrawRoundedRectangle(x, y, w, h, r)
	})
}

// Circle draws a circle centred on (cx, cy).
func Circle(dc *gg.Context, cx, cy, r float64, s Style) {
	if r <= 0 {
		return
	}
	drawStyled(dc, s, func(c *gg.Context) {
		c.DrawCircle(cx, cy, r)
	})
}

// Ellipse draws an ellipse centred on (cx, cy).
func Ellipse(dc *gg.Context, cx, cy, rx, ry float64, s Style) {
	if rx <= 0 || ry <= 0 {
		return
	}
	drawStyled(dc, s, func(c *gg.Context) {
		c.DrawEllipse(cx, cy, rx, ry)
	})
}

// RegularPolygon draws an n-sided polygon inscribed in a circle of radius r.
// Rotation is in radians. It reports false when n < 3.
func RegularPolygon(dc *gg.Context, n int, cx, cy, r, rotation float64, s Style) bool {
	if n < 3 || r <= 0 {
		return false
	}
	drawStyled(dc, s, func(c *gg.Context) {
		c.DrawRegularPolygon(n, cx, cy, r, rotation)
	})
	return true
}

// StarPoints returns the vertices of a star with the given number of
// points, alternating between the outer and inner radius. The first point
// faces up when rotation is zero.
func StarPoints(points int, cx, cy, outer, inner, rotation float64) []gg.Point {
	if points < 2 {
		return nil
	}
	verts := make([]gg.Point, 0, points*2)
	step := math.Pi / float64(points)
	for i := 0; i < points*2; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		a := rotation - math.Pi/2 + step*float64(i)
		verts = append(verts, gg.Point{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)})
	}
	return verts
}

// Star draws a star. It reports false for fewer than two points.
func Star(dc *gg.Context, points int, cx, cy, outer, inner, rotation float64, s Style) bool {
	verts := StarPoints(points, cx, cy, outer, inner, rotation)
	if verts == nil || outer <= 0 {
		return false
	}
	drawStyled(dc, s, func(c *gg.Context) {
		polygonPath(c, verts)
	})
	return true
}

// Polygon draws a closed polygon through pts.
func Polygon(dc *gg.Context, pts []gg.Point, s Style) bool {
	if len(pts) < 3 {
		return false
	}
	drawStyled(dc, s, func(c *gg.Context) {
		polygonPath(c, pts)
	})
	return true
}

func polygonPath(dc *gg.Context, pts []gg.Point) {
	dc.NewSubPath()
	for i, p := range pts {
		if i == 0 {
			dc.MoveTo(p.X, p.Y)
			continue
		}
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
}

func clampRadius(w, h, r float64) float64 {
	limit := math.Min(math.Abs(w), math.Abs(h)) / 2
	if r > limit {
		return limit
	}
	if r < 0 {
		return 0
	}
	return r
}
