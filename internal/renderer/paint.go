package renderer

import (
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"

	"github.com/ivlev/scenecut/internal/primitives"
	"github.com/ivlev/scenecut/internal/scene"
)

// paint is a resolved fill or stroke. At most one of col and pat is set.
type paint struct {
	col     color.Color
	pat     gg.Pattern
	grad    gg.Gradient
	pending bool
}

// resolvePaint turns a scene paint into something gg can draw with. dev
// maps element-local coordinates to device coordinates of the raster
// context, since gg samples gradients and patterns in device space.
func (r *Renderer) resolvePaint(sp *scene.Paint, dev gg.Matrix, def color.Color) paint {
	if sp == nil {
		return paint{col: def}
	}
	switch {
	case sp.Gradient != nil:
		if g := buildGradient(sp.Gradient, dev); g != nil {
			return paint{pat: g, grad: g}
		}
	case sp.Pattern != nil:
		return r.resolvePattern(sp.Pattern, dev)
	}
	return paint{col: primitives.ColorOr(sp.Color, def)}
}

func buildGradient(gs *scene.GradientSpec, dev gg.Matrix) gg.Gradient {
	if len(gs.Stops) == 0 {
		return nil
	}
	stops := make([]primitives.Stop, len(gs.Stops))
	for i, s := range gs.Stops {
		stops[i] = primitives.Stop{Offset: s.Offset, Color: primitives.ColorOr(s.Color, color.Black)}
	}
	x0, y0 := dev.TransformPoint(gs.X0, gs.Y0)
	x1, y1 := dev.TransformPoint(gs.X1, gs.Y1)
	k := math.Sqrt(math.Abs(dev.XX*dev.YY - dev.XY*dev.YX))

	switch strings.ToLower(gs.Kind) {
	case "radial":
		return primitives.NewRadial(x0, y0, gs.R0*k, x1, y1, gs.R1*k, stops...)
	case "conic":
		rot := math.Atan2(dev.YX, dev.XX)
		return primitives.NewConic(x0, y0, gg.Radians(gs.Angle)+rot, stops...)
	default:
		return primitives.NewLinear(x0, y0, x1, y1, stops...)
	}
}

func (r *Renderer) resolvePattern(ps *scene.PatternSpec, dev gg.Matrix) paint {
	scale := ps.Scale
	if scale <= 0 {
		scale = 1
	}
	m := gg.Scale(scale, scale).Multiply(gg.Rotate(gg.Radians(ps.Rotation))).Multiply(dev)
	repeat := primitives.ParseRepeat(ps.Repeat)

	if strings.EqualFold(ps.Kind, "image") || (ps.Kind == "" && ps.Source != "") {
		im, state := r.images.Image(ps.Source)
		switch state {
		case LoadReady:
			return paint{pat: r.patterns.FromImage(ps.Source, im, repeat, m)}
		case LoadPending:
			return paint{col: placeholderFill, pending: true}
		default:
			return paint{col: placeholderFill}
		}
	}

	spec := primitives.TileSpec{
		Kind:       ps.Kind,
		Size:       int(ps.Size),
		Foreground: primitives.ColorOr(ps.Foreground, color.Black),
		Background: primitives.ColorOr(ps.Background, color.Transparent),
	}
	pat, err := r.patterns.Procedural(spec, repeat, m)
	if err != nil {
		r.log.Warn("pattern unavailable", "kind", ps.Kind, "err", err)
		return paint{col: placeholderFill}
	}
	return paint{pat: pat}
}

func shadowOf(s *scene.Shadow) *primitives.Shadow {
	if s == nil {
		return nil
	}
	return &primitives.Shadow{
		Color:   primitives.ColorOr(s.Color, color.NRGBA{A: 128}),
		OffsetX: s.OffsetX,
		OffsetY: s.OffsetY,
		Blur:    s.Blur,
	}
}

// style builds a primitives style from a fill, an optional stroke and the
// shadows.
func (r *Renderer) style(fill *scene.Paint, defFill color.Color, stroke *scene.Stroke, dev gg.Matrix) (primitives.Style, paint) {
	fp := r.resolvePaint(fill, dev, defFill)
	st := primitives.Style{Fill: fp.col, FillPattern: fp.pat}
	if stroke != nil && stroke.Width > 0 {
		st.Stroke = primitives.ColorOr(stroke.Color, color.Black)
		st.LineWidth = stroke.Width
		st.Dash = stroke.Dash
		st.LineJoin = gg.LineJoinRound
		st.LineCap = gg.LineCapRound
	}
	return st, fp
}
