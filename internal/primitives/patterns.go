package primitives

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"
)

// PatternKey identifies a cached pattern. Source is the identity of the
// tile: a resource path for bitmaps or a descriptor for procedural tiles.
type PatternKey struct {
	Source    string
	Repeat    gg.RepeatOp
	Transform gg.Matrix
}

// TileSpec describes a procedural tile.
type TileSpec struct {
	Kind       string // checker, lines, dots
	Size       int
	Foreground color.Color
	Background color.Color
}

func (t TileSpec) source() string {
	return fmt.Sprintf("proc:%s:%d:%v:%v", t.Kind, t.Size, t.Foreground, t.Background)
}

// PatternCache builds patterns once per key.
type PatternCache struct {
	mu      sync.Mutex
	entries map[PatternKey]gg.Pattern
	hits    int
	misses  int
}

func NewPatternCache() *PatternCache {
	return &PatternCache{entries: make(map[PatternKey]gg.Pattern)}
}

func (c *PatternCache) get(key PatternKey, build func() (image.Image, error)) (gg.Pattern, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[key]; ok {
		c.hits++
		return p, nil
	}
	c.misses++
	im, err := build()
	if err != nil {
		return nil, err
	}
	p := newTilePattern(im, key.Repeat, key.Transform)
	c.entries[key] = p
	return p, nil
}

// FromImage returns the pattern for a bitmap identified by source. The
// image is only consulted on a miss.
func (c *PatternCache) FromImage(source string, im image.Image, repeat gg.RepeatOp, transform gg.Matrix) gg.Pattern {
	p, _ := c.get(PatternKey{Source: "img:" + source, Repeat: repeat, Transform: transform}, func() (image.Image, error) {
		return im, nil
	})
	return p
}

// Procedural returns a pattern for a generated tile.
func (c *PatternCache) Procedural(spec TileSpec, repeat gg.RepeatOp, transform gg.Matrix) (gg.Pattern, error) {
	return c.get(PatternKey{Source: spec.source(), Repeat: repeat, Transform: transform}, func() (image.Image, error) {
		return Tile(spec)
	})
}

// QRCode returns a pattern whose tile is a QR code of content.
func (c *PatternCache) QRCode(content string, size int, repeat gg.RepeatOp, transform gg.Matrix) (gg.Pattern, error) {
	key := PatternKey{Source: fmt.Sprintf("qr:%d:%s", size, content), Repeat: repeat, Transform: transform}
	return c.get(key, func() (image.Image, error) {
		return QRCodeImage(content, size, color.Black, color.White)
	})
}

func (c *PatternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *PatternCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *PatternCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[PatternKey]gg.Pattern)
}

// Tile renders a procedural tile.
func Tile(spec TileSpec) (image.Image, error) {
	size := spec.Size
	if size <= 0 {
		size = 16
	}
	fg, bg := spec.Foreground, spec.Background
	if fg == nil {
		fg = color.Black
	}
	if bg == nil {
		bg = color.Transparent
	}
	switch strings.ToLower(spec.Kind) {
	case "checker":
		return Checker(size, fg, bg), nil
	case "lines", "diagonal":
		return DiagonalLines(size, fg, bg), nil
	case "dots":
		return Dots(size, fg, bg), nil
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", spec.Kind)
	}
}

// Checker returns a 2x2 checker tile with squares of size cell.
func Checker(cell int, fg, bg color.Color) image.Image {
	dc := gg.NewContext(cell*2, cell*2)
	dc.SetColor(bg)
	dc.Clear()
	dc.SetColor(fg)
	dc.DrawRectangle(0, 0, float64(cell), float64(cell))
	dc.DrawRectangle(float64(cell), float64(cell), float64(cell), float64(cell))
	dc.Fill()
	return dc.Image()
}

// DiagonalLines returns a tile with one diagonal stroke that joins up
// seamlessly when repeated.
func DiagonalLines(size int, fg, bg color.Color) image.Image {
	dc := gg.NewContext(size, size)
	dc.SetColor(bg)
	dc.Clear()
	dc.SetColor(fg)
	dc.SetLineWidth(math.Max(1, float64(size)/8))
	s := float64(size)
	dc.DrawLine(0, s, s, 0)
	dc.DrawLine(-s/2, s/2, s/2, -s/2)
	dc.DrawLine(s/2, s*1.5, s*1.5, s/2)
	dc.Stroke()
	return dc.Image()
}

// Dots returns a tile with a centred dot.
func Dots(size int, fg, bg color.Color) image.Image {
	dc := gg.NewContext(size, size)
	dc.SetColor(bg)
	dc.Clear()
	dc.SetColor(fg)
	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/5)
	dc.Fill()
	return dc.Image()
}

// QRCodeImage encodes content as a size x size QR bitmap.
func QRCodeImage(content string, size int, fg, bg color.Color) (image.Image, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	q.ForegroundColor = fg
	q.BackgroundColor = bg
	return q.Image(size), nil
}

// ParseRepeat maps repeat, repeat-x, repeat-y and no-repeat onto gg ops.
func ParseRepeat(s string) gg.RepeatOp {
	switch strings.ToLower(s) {
	case "repeat-x":
		return gg.RepeatX
	case "repeat-y":
		return gg.RepeatY
	case "no-repeat", "none":
		return gg.RepeatNone
	default:
		return gg.RepeatBoth
	}
}

// tilePattern samples a tile through the inverse of the pattern transform,
// handling negative coordinates that gg's surface pattern does not.
type tilePattern struct {
	im  image.Image
	op  gg.RepeatOp
	inv gg.Matrix
}

// A zero transform is treated as identity.
func newTilePattern(im image.Image, op gg.RepeatOp, m gg.Matrix) gg.Pattern {
	if m == (gg.Matrix{}) || m == gg.Identity() {
		return gg.NewSurfacePattern(im, op)
	}
	inv, ok := Invert(m)
	if !ok {
		return gg.NewSolidPattern(color.Transparent)
	}
	return &tilePattern{im: im, op: op, inv: inv}
}

func (p *tilePattern) ColorAt(x, y int) color.Color {
	fx, fy := p.inv.TransformPoint(float64(x)+0.5, float64(y)+0.5)
	b := p.im.Bounds()
	w, h := b.Dx(), b.Dy()
	ix, iy := int(math.Floor(fx)), int(math.Floor(fy))
	inX := ix >= 0 && ix < w
	inY := iy >= 0 && iy < h
	switch p.op {
	case gg.RepeatX:
		if !inY {
			return color.Transparent
		}
	case gg.RepeatY:
		if !inX {
			return color.Transparent
		}
	case gg.RepeatNone:
		if !inX || !inY {
			return color.Transparent
		}
	}
	return p.im.At(b.Min.X+wrap(ix, w), b.Min.Y+wrap(iy, h))
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
