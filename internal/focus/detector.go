// Package focus finds regions of interest in bitmaps and turns them into
// pan and zoom keyframe tracks for image elements.
package focus

import (
	"fmt"
	"image"
	"sort"

	"github.com/anthonynsimon/bild/effect"
)

// Region is a detected area of interest in bitmap pixels.
type Region struct {
	Rect       image.Rectangle
	Kind       string  // "content" for now
	Confidence float64 // 0.0-1.0
}

// Detector is the interface for region detection strategies.
type Detector interface {
	Detect(img image.Image) ([]Region, error)
}

// NewDetector returns the detector registered under variant.
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "edges", "contrast", "":
		return NewEdgeDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}

// EdgeDetector groups strong edges into regions: Sobel magnitude, dilation
// to join nearby edges, then connected components.
type EdgeDetector struct {
	MinArea int     // Minimum bounding box area in pixels²
	Level   uint8   // Edge magnitude threshold
	Spread  float64 // Dilation radius in pixels
	RowSnap int     // Regions whose tops are closer than this share a row
}

func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{
		MinArea: 500,
		Level:   30,
		Spread:  4,
		RowSnap: 20,
	}
}

// Detect returns regions in reading order: top to bottom, left to right
// within a row.
func (d *EdgeDetector) Detect(img image.Image) ([]Region, error) {
	if img == nil {
		return nil, fmt.Errorf("detect: nil image")
	}
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil, nil
	}

	edges := effect.Sobel(effect.Grayscale(img))
	if d.Spread > 0 {
		edges = effect.Dilate(edges, d.Spread)
	}

	// map back to the source bounds whatever origin the filters chose
	off := b.Min.Sub(edges.Bounds().Min)
	var regions []Region
	for _, r := range components(edges, d.Level) {
		if r.Dx()*r.Dy() < d.MinArea {
			continue
		}
		regions = append(regions, Region{Rect: r.Add(off), Kind: "content", Confidence: 0.7})
	}

	snap := d.RowSnap
	sort.SliceStable(regions, func(i, j int) bool {
		a, c := regions[i].Rect.Min, regions[j].Rect.Min
		if abs(a.Y-c.Y) > snap {
			return a.Y < c.Y
		}
		return a.X < c.X
	})
	return regions, nil
}

// components returns the bounding boxes of 4-connected pixels whose red
// channel reaches level.
func components(im *image.RGBA, level uint8) []image.Rectangle {
	b := im.Bounds()
	w, h := b.Dx(), b.Dy()
	on := func(x, y int) bool {
		return im.Pix[(y-b.Min.Y)*im.Stride+(x-b.Min.X)*4] >= level
	}
	visited := make([]bool, w*h)

	var out []image.Rectangle
	var stack []image.Point
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := (y-b.Min.Y)*w + (x - b.Min.X)
			if visited[i] || !on(x, y) {
				continue
			}
			r := image.Rect(x, y, x+1, y+1)
			stack = append(stack[:0], image.Pt(x, y))
			visited[i] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for _, n := range [4]image.Point{image.Pt(p.X+1, p.Y), image.Pt(p.X-1, p.Y), image.Pt(p.X, p.Y+1), image.Pt(p.X, p.Y-1)} {
					if !n.In(b) {
						continue
					}
					j := (n.Y-b.Min.Y)*w + (n.X - b.Min.X)
					if visited[j] || !on(n.X, n.Y) {
						continue
					}
					visited[j] = true
					stack = append(stack, n)
				}
			}
			out = append(out, r)
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
