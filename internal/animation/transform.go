package animation

import (
	"time"

	"github.com/fogleman/gg"
)

// Transform is an affine transform in decomposed form. Rotation is in
// degrees.
type Transform struct {
	TranslateX float64 `yaml:"translate_x"`
	TranslateY float64 `yaml:"translate_y"`
	Rotation   float64 `yaml:"rotation"`
	ScaleX     float64 `yaml:"scale_x"`
	ScaleY     float64 `yaml:"scale_y"`
}

func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Lerp interpolates each component towards to.
func (t Transform) Lerp(to Transform, f float64) Transform {
	return Transform{
		TranslateX: lerp(t.TranslateX, to.TranslateX, f),
		TranslateY: lerp(t.TranslateY, to.TranslateY, f),
		Rotation:   lerp(t.Rotation, to.Rotation, f),
		ScaleX:     lerp(t.ScaleX, to.ScaleX, f),
		ScaleY:     lerp(t.ScaleY, to.ScaleY, f),
	}
}

// Apply multiplies the transform onto dc: translate, then rotate, then
// scale.
func (t Transform) Apply(dc *gg.Context) {
	dc.Translate(t.TranslateX, t.TranslateY)
	dc.Rotate(gg.Radians(t.Rotation))
	dc.Scale(t.ScaleX, t.ScaleY)
}

// Matrix returns the transform as a matrix.
func (t Transform) Matrix() gg.Matrix {
	return gg.Scale(t.ScaleX, t.ScaleY).
		Multiply(gg.Rotate(gg.Radians(t.Rotation))).
		Multiply(gg.Translate(t.TranslateX, t.TranslateY))
}

type TransformConfig struct {
	Duration time.Duration
	Start    Transform
	End      Transform
	Easing   Easing
	// OnFrame runs after the interpolated transform is set on the context.
	OnFrame    func(dc *gg.Context, current Transform)
	OnComplete func()
}

// AnimateTransform replaces the transform of dc with the interpolation of
// Start and End on every tick.
func (a *Animator) AnimateTransform(dc *gg.Context, tc TransformConfig) *Handle {
	return a.Start(Config{
		Duration: tc.Duration,
		Easing:   tc.Easing,
		OnUpdate: func(e float64) {
			cur := tc.Start.Lerp(tc.End, e)
			dc.Identity()
			cur.Apply(dc)
			if tc.OnFrame != nil {
				tc.OnFrame(dc, cur)
			}
		},
		OnComplete: tc.OnComplete,
	})
}
