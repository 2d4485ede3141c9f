package focus

import (
	"fmt"
	"image"
	"math"

	"github.com/ivlev/scenecut/internal/animation"
	"github.com/ivlev/scenecut/internal/scene"
)

// Planner turns detected regions into keyframe tracks that pan and zoom an
// element so each region fills its box in turn. The element box itself is
// the viewport: the element is scaled about its centre and shifted so the
// region centre lands on the box centre.
type Planner struct {
	MinDwell float64 // Minimum time per region (seconds)
	MaxDwell float64 // Maximum time per region (seconds)
	Lead     float64 // Full view at the start and at the end (seconds)
	MaxZoom  float64
	Fill     float64 // Share of the box a focused region may take
	Easing   string
}

func NewPlanner() *Planner {
	return &Planner{
		MinDwell: 1.0,
		MaxDwell: 3.0,
		Lead:     1.0,
		MaxZoom:  3.0,
		Fill:     0.9,
		Easing:   "easeInOutCubic",
	}
}

// Plan builds x, y, scale_x and scale_y tracks for el. size is the pixel
// size of the bitmap the regions were detected in; it is stretched over
// the element box.
func (p *Planner) Plan(el scene.Element, size image.Point, regions []Region, duration float64) ([]animation.Track, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("no regions detected")
	}
	if size.X <= 0 || size.Y <= 0 || el.Width <= 0 || el.Height <= 0 {
		return nil, fmt.Errorf("empty geometry: bitmap %v, element %gx%g", size, el.Width, el.Height)
	}
	el.Normalize()

	dwell := p.dwell(duration, len(regions))
	sx, sy := el.Width/float64(size.X), el.Height/float64(size.Y)
	cx, cy := el.Width/2, el.Height/2

	tracks := []animation.Track{
		{ElementID: el.ID, Property: "x"},
		{ElementID: el.ID, Property: "y"},
		{ElementID: el.ID, Property: "scale_x"},
		{ElementID: el.ID, Property: "scale_y"},
	}
	add := func(t, x, y, zoom float64) {
		for i, v := range [4]float64{x, y, el.ScaleX * zoom, el.ScaleY * zoom} {
			tracks[i].Keyframes = append(tracks[i].Keyframes, animation.Keyframe{Time: t, Value: v, Easing: p.Easing})
		}
	}

	// full view
	add(0, el.X, el.Y, 1)
	now := p.Lead
	for _, r := range regions {
		rw, rh := float64(r.Rect.Dx())*sx, float64(r.Rect.Dy())*sy
		rcx := (float64(r.Rect.Min.X) + float64(r.Rect.Dx())/2) * sx
		rcy := (float64(r.Rect.Min.Y) + float64(r.Rect.Dy())/2) * sy
		zoom := p.zoom(el.Width, el.Height, rw, rh)
		add(now, el.X-zoom*el.ScaleX*(rcx-cx), el.Y-zoom*el.ScaleY*(rcy-cy), zoom)
		now += dwell
	}
	add(now, el.X, el.Y, 1)
	return tracks, nil
}

// dwell determines how long each region is shown.
func (p *Planner) dwell(total float64, n int) float64 {
	avail := total - 2*p.Lead
	if avail <= 0 {
		avail = total
	}
	d := avail / float64(n)
	return math.Max(p.MinDwell, math.Min(d, p.MaxDwell))
}

// zoom fits a rw x rh region into the w x h box.
func (p *Planner) zoom(w, h, rw, rh float64) float64 {
	if rw == 0 || rh == 0 {
		return 1
	}
	z := math.Min(w*p.Fill/rw, h*p.Fill/rh)
	return math.Max(1, math.Min(z, p.MaxZoom))
}
