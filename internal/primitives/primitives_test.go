package primitives

import (
	"image/color"
	"math"
	"testing"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func rgbaAt(dc *gg.Context, x, y int) color.RGBA {
	return color.RGBAModel.Convert(dc.Image().At(x, y)).(color.RGBA)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		err  bool
	}{
		{in: "#ff0000", want: color.NRGBA{R: 255, A: 255}},
		{in: "00ff00", want: color.NRGBA{G: 255, A: 255}},
		{in: "#00f", want: color.NRGBA{B: 255, A: 255}},
		{in: "#ffffff80", want: color.NRGBA{R: 255, G: 255, B: 255, A: 128}},
		{in: "#zzzzzz", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseColor(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, color.NRGBAModel.Convert(c))
		})
	}

	c, err := ParseColor("")
	require.NoError(t, err)
	assert.Equal(t, color.Transparent, c)
	assert.Equal(t, blue, ColorOr("not a colour", blue))
}

func TestShapesFillAndRestoreState(t *testing.T) {
	dc := gg.NewContext(60, 60)
	dc.Translate(5, 5)
	before := CurrentMatrix(dc)

	Rectangle(dc, 0, 0, 10, 10, Style{Fill: red, Stroke: blue, LineWidth: 4, Dash: []float64{2, 2}})
	Circle(dc, 30, 30, 5, Filled(blue))

	assert.Equal(t, before, CurrentMatrix(dc))
	assert.Equal(t, uint8(255), rgbaAt(dc, 10, 10).R)
	assert.Equal(t, uint8(255), rgbaAt(dc, 35, 35).B)
	assert.Equal(t, uint8(0), rgbaAt(dc, 55, 5).A)
}

func TestDegenerateShapesAreRejected(t *testing.T) {
	dc := gg.NewContext(20, 20)
	assert.False(t, RegularPolygon(dc, 2, 10, 10, 5, 0, Filled(red)))
	assert.False(t, Star(dc, 1, 10, 10, 5, 2, 0, Filled(red)))
	assert.False(t, Polygon(dc, []gg.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, Filled(red)))
	assert.False(t, Grid(dc, 0, 0, 10, 10, 0, Stroked(red, 1)))
	assert.True(t, RegularPolygon(dc, 6, 10, 10, 5, 0, Filled(red)))
	assert.Len(t, StarPoints(5, 0, 0, 10, 4, 0), 10)
}

func TestStarFirstPointFacesUp(t *testing.T) {
	pts := StarPoints(5, 50, 50, 20, 8, 0)
	assert.InDelta(t, 50, pts[0].X, 1e-9)
	assert.InDelta(t, 30, pts[0].Y, 1e-9)
}

func TestApplyMatrixRoundTrip(t *testing.T) {
	src := gg.NewContext(10, 10)
	src.Translate(3, 4)
	src.Rotate(0.7)
	src.Shear(0.2, 0)
	src.Scale(2, 0.5)
	want := CurrentMatrix(src)

	dst := gg.NewContext(10, 10)
	require.True(t, ApplyMatrix(dst, want))
	got := CurrentMatrix(dst)
	for _, p := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {5, -3}} {
		wx, wy := want.TransformPoint(p[0], p[1])
		gx, gy := got.TransformPoint(p[0], p[1])
		assert.InDelta(t, wx, gx, 1e-9)
		assert.InDelta(t, wy, gy, 1e-9)
	}

	inv, ok := Invert(want)
	require.True(t, ok)
	x, y := want.TransformPoint(7, 8)
	x, y = inv.TransformPoint(x, y)
	assert.InDelta(t, 7, x, 1e-9)
	assert.InDelta(t, 8, y, 1e-9)

	assert.False(t, ApplyMatrix(dst, gg.Matrix{}))
}

func fillAll(dc *gg.Context, c color.Color) {
	dc.SetColor(c)
	dc.DrawRectangle(0, 0, float64(dc.Width()), float64(dc.Height()))
	dc.Fill()
}

func TestClipStackRestoresOuterClip(t *testing.T) {
	dc := gg.NewContext(40, 40)
	cs := NewClipStack(dc)

	require.True(t, cs.Push(RectRegion{X: 0, Y: 0, W: 20, H: 20}))
	require.True(t, cs.Push(RectRegion{X: 10, Y: 10, W: 20, H: 20}))
	assert.Equal(t, 2, cs.Depth())
	fillAll(dc, red)
	assert.Equal(t, uint8(255), rgbaAt(dc, 15, 15).R)
	assert.Equal(t, uint8(0), rgbaAt(dc, 5, 5).A)
	assert.Equal(t, uint8(0), rgbaAt(dc, 25, 25).A)

	cs.Pop()
	fillAll(dc, blue)
	assert.Equal(t, uint8(255), rgbaAt(dc, 5, 5).B)
	assert.Equal(t, uint8(0), rgbaAt(dc, 25, 25).A)

	cs.Pop()
	cs.Pop()
	assert.Equal(t, 0, cs.Depth())
	assert.Nil(t, cs.Mask())
	fillAll(dc, red)
	assert.Equal(t, uint8(255), rgbaAt(dc, 35, 35).R)
}

func TestClipWithCircleScope(t *testing.T) {
	dc := gg.NewContext(40, 40)
	cs := NewClipStack(dc)
	ok := cs.With(CircleRegion{X: 20, Y: 20, R: 5}, func(dc *gg.Context) {
		fillAll(dc, red)
	})
	require.True(t, ok)
	assert.Equal(t, uint8(255), rgbaAt(dc, 20, 20).R)
	assert.Equal(t, uint8(0), rgbaAt(dc, 2, 2).A)
	assert.Equal(t, 0, cs.Depth())
}

func TestDropShadowOffset(t *testing.T) {
	dc := gg.NewContext(100, 60)
	Rectangle(dc, 10, 10, 20, 20, Style{
		Fill:   red,
		Shadow: &Shadow{Color: color.Black, OffsetX: 40},
	})
	assert.Equal(t, color.RGBA{R: 255, A: 255}, rgbaAt(dc, 20, 20))
	assert.Equal(t, color.RGBA{A: 255}, rgbaAt(dc, 60, 20))
	assert.Equal(t, uint8(0), rgbaAt(dc, 90, 50).A)
}

func TestBlurredShadowSpreads(t *testing.T) {
	dc := gg.NewContext(80, 80)
	ok := DropShadow(dc, Shadow{Color: color.Black, Blur: 3}, func(sc *gg.Context) {
		sc.DrawRectangle(30, 30, 20, 20)
		sc.SetColor(color.White)
		sc.Fill()
	})
	require.True(t, ok)
	edge := rgbaAt(dc, 28, 40).A
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255))
}

func TestInnerShadowStaysInside(t *testing.T) {
	dc := gg.NewContext(60, 60)
	Rectangle(dc, 10, 10, 40, 40, Style{
		Fill:        color.White,
		InnerShadow: &Shadow{Color: color.Black, OffsetX: 6, OffsetY: 6},
	})
	inside := rgbaAt(dc, 12, 30)
	assert.Less(t, inside.R, uint8(255))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgbaAt(dc, 40, 40))
	assert.Equal(t, uint8(0), rgbaAt(dc, 5, 5).A)
}

func TestConicGradient(t *testing.T) {
	g := NewConic(0, 0, 0, Stop{Offset: 0, Color: red}, Stop{Offset: 1, Color: blue})
	start := color.RGBAModel.Convert(g.ColorAt(10, 0)).(color.RGBA)
	half := color.RGBAModel.Convert(g.ColorAt(-10, 0)).(color.RGBA)
	assert.Greater(t, start.R, uint8(240))
	assert.InDelta(t, 127, float64(half.B), 8)
	assert.InDelta(t, 127, float64(half.R), 8)
}

func TestFillTextGradient(t *testing.T) {
	fc := NewFontCache(nil, nil)
	dc := gg.NewContext(200, 60)
	g := NewLinear(0, 0, 200, 0, Stop{Offset: 0, Color: red}, Stop{Offset: 1, Color: blue})
	require.True(t, FillTextGradient(dc, fc.DefaultFace(32), "HELLO", 10, 10, 0, 1, g))
	assert.False(t, FillTextGradient(dc, fc.DefaultFace(32), "", 10, 10, 0, 1, g))

	painted := 0
	for y := 0; y < 60; y++ {
		for x := 0; x < 200; x++ {
			if rgbaAt(dc, x, y).A > 0 {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 50)
}

func TestPatternCacheKeys(t *testing.T) {
	pc := NewPatternCache()
	spec := TileSpec{Kind: "checker", Size: 4, Foreground: red, Background: blue}

	p1, err := pc.Procedural(spec, gg.RepeatBoth, gg.Identity())
	require.NoError(t, err)
	p2, err := pc.Procedural(spec, gg.RepeatBoth, gg.Identity())
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	_, err = pc.Procedural(spec, gg.RepeatX, gg.Identity())
	require.NoError(t, err)
	_, err = pc.Procedural(spec, gg.RepeatBoth, gg.Identity().Rotate(math.Pi/4))
	require.NoError(t, err)

	hits, misses := pc.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 3, misses)
	assert.Equal(t, 3, pc.Len())

	_, err = pc.Procedural(TileSpec{Kind: "stripes"}, gg.RepeatBoth, gg.Identity())
	assert.Error(t, err)

	pc.Clear()
	assert.Equal(t, 0, pc.Len())
}

func TestCheckerTileRepeats(t *testing.T) {
	pc := NewPatternCache()
	p, err := pc.Procedural(TileSpec{Kind: "checker", Size: 4, Foreground: red, Background: blue}, gg.RepeatBoth, gg.Translate(-2, -2))
	require.NoError(t, err)

	at := func(x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(p.ColorAt(x, y)).(color.NRGBA)
	}
	assert.Equal(t, red, at(0, 0))
	assert.Equal(t, blue, at(3, 0))
	assert.Equal(t, red, at(2+8, 2+8))
	assert.Equal(t, blue, at(-1, -5))

	none, err := pc.Procedural(TileSpec{Kind: "dots", Size: 4}, gg.RepeatNone, gg.Translate(10, 10))
	require.NoError(t, err)
	assert.Equal(t, color.Transparent, none.ColorAt(0, 0))
}

func TestQRCodePattern(t *testing.T) {
	im, err := QRCodeImage("https://example.com", 64, color.Black, color.White)
	require.NoError(t, err)
	assert.Equal(t, 64, im.Bounds().Dx())

	pc := NewPatternCache()
	_, err = pc.QRCode("hello", 32, gg.RepeatNone, gg.Identity())
	require.NoError(t, err)
	assert.Equal(t, gg.RepeatX, ParseRepeat("repeat-x"))
	assert.Equal(t, gg.RepeatBoth, ParseRepeat(""))
}
