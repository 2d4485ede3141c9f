package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"

	"github.com/ivlev/scenecut/internal/cache"
	"github.com/ivlev/scenecut/internal/primitives"
	"github.com/ivlev/scenecut/internal/scene"
)

const maxRasterSide = 8192

var (
	placeholderFill   = color.NRGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	placeholderStroke = color.NRGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xff}
	defaultShapeFill  = color.NRGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	defaultWaveColor  = color.NRGBA{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff}
	mutedWaveColor    = color.NRGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	defaultCharacter  = color.NRGBA{R: 0x60, G: 0x7d, B: 0x8b, A: 0xff}
	filmColor         = color.NRGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff}
)

var errMissingProps = errors.New("missing type properties")

type raster struct {
	bitmap   *image.RGBA
	origin   image.Point
	gradient gg.Gradient
	path     []gg.Point
	pending  bool
}

// frame is the state of one element rasterisation.
type frame struct {
	r    *Renderer
	dc   *gg.Context
	el   *scene.Element
	dev  gg.Matrix // element-local to raster device coordinates
	w, h float64
	q    Quality
	out  raster
}

// rasterize draws el into a fresh bitmap in element-local coordinates.
// The bitmap has a margin around the element box for shadows and strokes.
func (r *Renderer) rasterize(el *scene.Element, opts Options) (raster, error) {
	pad := margin(el)
	w := int(math.Ceil(el.Width)) + 2*pad
	h := int(math.Ceil(el.Height)) + 2*pad
	if w > maxRasterSide || h > maxRasterSide {
		return raster{}, fmt.Errorf("element %s: raster %dx%d too large", el.ID, w, h)
	}
	dc := gg.NewContext(w, h)
	dc.Translate(float64(pad), float64(pad))
	f := &frame{
		r:   r,
		dc:  dc,
		el:  el,
		dev: gg.Translate(float64(pad), float64(pad)),
		w:   el.Width,
		h:   el.Height,
		q:   opts.Quality,
	}

	var err error
	switch el.Type {
	case scene.TypeText:
		err = f.text()
	case scene.TypeImage:
		err = f.image()
	case scene.TypeShape:
		err = f.shape()
	case scene.TypeVideo:
		err = f.video()
	case scene.TypeAudio:
		err = f.audio()
	case scene.TypeCharacter:
		err = f.character()
	default:
		err = fmt.Errorf("unknown element type %q", el.Type)
	}
	if err != nil {
		return raster{}, fmt.Errorf("element %s: %w", el.ID, err)
	}
	r.draws.Add(1)

	f.out.bitmap = dc.Image().(*image.RGBA)
	f.out.origin = image.Pt(-pad, -pad)
	return f.out, nil
}

func margin(el *scene.Element) int {
	m := 2
	shadow := func(s *scene.Shadow) {
		if s == nil {
			return
		}
		off := math.Max(math.Abs(s.OffsetX), math.Abs(s.OffsetY))
		m = max(m, int(math.Ceil(off+2*math.Max(0, s.Blur)))+2)
	}
	stroke := func(s *scene.Stroke) {
		if s != nil {
			m = max(m, int(math.Ceil(s.Width))+2)
		}
	}
	if t := el.Text; t != nil {
		shadow(t.Shadow)
		stroke(t.Stroke)
	}
	if im := el.Image; im != nil {
		shadow(im.Shadow)
	}
	if s := el.Shape; s != nil {
		shadow(s.Shadow)
		shadow(s.InnerShadow)
		stroke(s.Stroke)
	}
	return m
}

func parseAlign(s string) gg.Align {
	switch strings.ToLower(s) {
	case "center", "centre":
		return gg.AlignCenter
	case "right":
		return gg.AlignRight
	default:
		return gg.AlignLeft
	}
}

func (f *frame) text() error {
	tp := f.el.Text
	if tp == nil {
		return errMissingProps
	}
	size := tp.FontSize
	if size <= 0 {
		size = 16
	}
	face, state := f.r.fonts.Face(tp.FontSource, size)
	if state == primitives.FontPending {
		f.out.pending = true
	}
	spacing := tp.LineSpacing
	if spacing <= 0 {
		spacing = 1
	}
	align := parseAlign(tp.Align)
	content := tp.Content
	draw := func(c *gg.Context) {
		c.SetFontFace(face)
		c.DrawStringWrapped(content, 0, 0, 0, 0, f.w, spacing, align)
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	if sh := shadowOf(tp.Shadow); sh != nil {
		primitives.DropShadow(f.dc, *sh, func(c *gg.Context) {
			c.SetColor(color.White)
			draw(c)
		})
	}
	if s := tp.Stroke; s != nil && s.Width > 0 {
		col := primitives.ColorOr(s.Color, color.Black)
		for i := 0; i < 8; i++ {
			a := float64(i) * math.Pi / 4
			f.dc.Push()
			f.dc.Translate(math.Cos(a)*s.Width, math.Sin(a)*s.Width)
			f.dc.SetColor(col)
			draw(f.dc)
			f.dc.Pop()
		}
	}

	fp := f.r.resolvePaint(tp.Fill, f.dev, primitives.ColorOr(tp.Color, color.Black))
	f.out.pending = f.out.pending || fp.pending
	f.out.gradient = fp.grad
	if fp.pat != nil {
		primitives.PaintCoverage(f.dc, fp.pat, draw)
		return nil
	}
	f.dc.Push()
	f.dc.SetColor(fp.col)
	draw(f.dc)
	f.dc.Pop()
	return nil
}

func (f *frame) image() error {
	ip := f.el.Image
	if ip == nil {
		return errMissingProps
	}
	f.bitmap(ip.Source, ip.Fit, ip.CornerRadius, shadowOf(ip.Shadow))
	return nil
}

// bitmap draws the image at src into the element box. While the image is
// loading, or when it failed, a placeholder takes its place.
func (f *frame) bitmap(src, fit string, corner float64, sh *primitives.Shadow) bool {
	if src == "" {
		f.placeholder()
		return false
	}
	im, state := f.r.images.Image(src)
	switch state {
	case LoadPending:
		f.out.pending = true
		f.placeholder()
		return false
	case LoadFailed:
		f.placeholder()
		return false
	}

	b := im.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw == 0 || ih == 0 {
		f.placeholder()
		return false
	}
	x, y, dw, dh := 0.0, 0.0, f.w, f.h
	switch strings.ToLower(fit) {
	case "contain":
		s := math.Min(f.w/iw, f.h/ih)
		dw, dh = iw*s, ih*s
		x, y = (f.w-dw)/2, (f.h-dh)/2
	case "cover":
		s := math.Max(f.w/iw, f.h/ih)
		dw, dh = iw*s, ih*s
		x, y = (f.w-dw)/2, (f.h-dh)/2
	}
	scaled := f.r.scaled(src, im, int(math.Round(dw)), int(math.Round(dh)), f.q)

	if sh != nil {
		bx, by := math.Max(0, x), math.Max(0, y)
		bw, bh := math.Min(f.w, dw), math.Min(f.h, dh)
		primitives.DropShadow(f.dc, *sh, func(c *gg.Context) {
			if corner > 0 {
				c.DrawRoundedRectangle(bx, by, bw, bh, corner)
			} else {
				c.DrawRectangle(bx, by, bw, bh)
			}
			c.SetColor(color.White)
			c.Fill()
		})
	}

	cs := primitives.NewClipStack(f.dc)
	cs.With(primitives.RoundedRectRegion{W: f.w, H: f.h, R: corner}, func(dc *gg.Context) {
		dc.DrawImage(scaled, int(math.Round(x)), int(math.Round(y)))
	})
	return true
}

// scaled returns im resampled to w x h, kept as a resource entry of the
// element cache.
func (r *Renderer) scaled(src string, im image.Image, w, h int, q Quality) *image.RGBA {
	key := fmt.Sprintf("img:%s@%dx%d:%s", src, w, h, q)
	if e, ok := r.cache.Resource(key); ok && e.Bitmap != nil {
		return e.Bitmap
	}
	out := Scale(im, w, h, q)
	r.cache.PutResource(key, cache.Entry{Bitmap: out})
	return out
}

func (f *frame) placeholder() {
	primitives.Rectangle(f.dc, 0, 0, f.w, f.h, primitives.Style{
		Fill:      placeholderFill,
		Stroke:    placeholderStroke,
		LineWidth: 1,
	})
	st := primitives.Stroked(placeholderStroke, 1)
	primitives.Line(f.dc, 0, 0, f.w, f.h, st)
	primitives.Line(f.dc, f.w, 0, 0, f.h, st)
}

func lineStyle(st primitives.Style) primitives.Style {
	if st.Stroke == nil && st.StrokePattern == nil {
		st.Stroke = st.Fill
		st.StrokePattern = st.FillPattern
		st.LineWidth = 2
	}
	st.Fill, st.FillPattern = nil, nil
	st.InnerShadow = nil
	return st
}

func (f *frame) shape() error {
	sp := f.el.Shape
	if sp == nil {
		return errMissingProps
	}
	st, fp := f.r.style(sp.Fill, defaultShapeFill, sp.Stroke, f.dev)
	st.Shadow = shadowOf(sp.Shadow)
	st.InnerShadow = shadowOf(sp.InnerShadow)
	f.out.pending = fp.pending
	f.out.gradient = fp.grad

	w, h := f.w, f.h
	cx, cy, r := w/2, h/2, math.Min(w, h)/2
	switch sp.Kind {
	case scene.ShapeRect, "":
		primitives.Rectangle(f.dc, 0, 0, w, h, st)
		f.out.path = []gg.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	case scene.ShapeRoundedRect:
		primitives.RoundedRectangle(f.dc, 0, 0, w, h, sp.CornerRadius, st)
	case scene.ShapeCircle:
		primitives.Circle(f.dc, cx, cy, r, st)
	case scene.ShapeEllipse:
		primitives.Ellipse(f.dc, cx, cy, w/2, h/2, st)
	case scene.ShapePolygon:
		sides := sp.Sides
		if sides == 0 {
			sides = 6
		}
		if !primitives.RegularPolygon(f.dc, sides, cx, cy, r, 0, st) {
			return fmt.Errorf("polygon needs at least 3 sides, got %d", sides)
		}
	case scene.ShapeStar:
		points := sp.Sides
		if points == 0 {
			points = 5
		}
		ratio := sp.InnerRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		pts := primitives.StarPoints(points, cx, cy, r, r*ratio, 0)
		if !primitives.Polygon(f.dc, pts, st) {
			return fmt.Errorf("star needs at least 2 points, got %d", points)
		}
		f.out.path = pts
	case scene.ShapeLine:
		primitives.Line(f.dc, 0, 0, w, h, lineStyle(st))
	case scene.ShapeArrow:
		ls := lineStyle(st)
		head := math.Max(8, ls.LineWidth*4)
		primitives.Arrow(f.dc, 0, cy, w, cy, math.Min(head, w/2), ls)
	case scene.ShapeGrid:
		cell := sp.CellSize
		if cell == 0 {
			cell = 20
		}
		ls := lineStyle(st)
		if sp.Stroke == nil {
			ls.LineWidth = 1
		}
		if !primitives.Grid(f.dc, 0, 0, w, h, cell, ls) {
			return fmt.Errorf("grid cell size must be positive, got %g", cell)
		}
	case scene.ShapeQRCode:
		if sp.Content == "" {
			return errors.New("qrcode without content")
		}
		size := int(math.Min(w, h))
		pat, err := f.r.patterns.QRCode(sp.Content, size, gg.RepeatNone, f.dev)
		if err != nil {
			return err
		}
		primitives.FillWith(f.dc, pat, func(dc *gg.Context) {
			dc.DrawRectangle(0, 0, float64(size), float64(size))
		})
	default:
		return fmt.Errorf("unknown shape kind %q", sp.Kind)
	}
	return nil
}

func (f *frame) video() error {
	mp := f.el.Media
	if mp != nil && mp.Poster != "" && f.bitmap(mp.Poster, "cover", 0, nil) {
		f.playButton()
		return nil
	}
	if mp != nil && mp.Poster != "" {
		// placeholder already drawn by bitmap
		return nil
	}
	f.filmStrip()
	return nil
}

func (f *frame) filmStrip() {
	primitives.Rectangle(f.dc, 0, 0, f.w, f.h, primitives.Filled(filmColor))
	hole := math.Max(3, math.Min(f.h/10, 10))
	st := primitives.Filled(color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff})
	for x := hole / 2; x+hole <= f.w; x += hole * 2 {
		primitives.Rectangle(f.dc, x, hole/2, hole, hole, st)
		primitives.Rectangle(f.dc, x, f.h-hole*1.5, hole, hole, st)
	}
	f.playButton()
}

func (f *frame) playButton() {
	r := math.Min(f.w, f.h) / 6
	if r < 2 {
		return
	}
	cx, cy := f.w/2, f.h/2
	primitives.Polygon(f.dc, []gg.Point{
		{X: cx - r*0.6, Y: cy - r},
		{X: cx + r, Y: cy},
		{X: cx - r*0.6, Y: cy + r},
	}, primitives.Filled(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xcc}))
}

func (f *frame) audio() error {
	mp := f.el.Media
	if mp == nil {
		return errMissingProps
	}
	col := primitives.ColorOr(mp.Color, defaultWaveColor)
	if mp.Muted {
		col = mutedWaveColor
	}
	cy := f.h / 2
	if len(mp.Waveform) == 0 {
		primitives.Line(f.dc, 0, cy, f.w, cy, primitives.Stroked(col, 2))
		return nil
	}
	step := f.w / float64(len(mp.Waveform))
	bar := math.Max(1, step*0.7)
	for i, v := range mp.Waveform {
		v = math.Max(0, math.Min(1, math.Abs(v)))
		bh := math.Max(1, v*f.h*0.9)
		primitives.Rectangle(f.dc, float64(i)*step, cy-bh/2, bar, bh, primitives.Filled(col))
	}
	return nil
}

func (f *frame) character() error {
	cp := f.el.Character
	if cp != nil && cp.Source != "" {
		f.bitmap(cp.Source, "contain", 0, nil)
		return nil
	}
	col := defaultCharacter
	var c color.Color = col
	if cp != nil {
		c = primitives.ColorOr(cp.Color, col)
	}
	headR := math.Min(f.w, f.h) * 0.18
	primitives.Circle(f.dc, f.w/2, headR+2, headR, primitives.Filled(c))
	top := headR*2 + 6
	if top < f.h {
		primitives.RoundedRectangle(f.dc, f.w*0.25, top, f.w*0.5, f.h-top, math.Min(f.w*0.1, 12), primitives.Filled(c))
	}
	return nil
}
