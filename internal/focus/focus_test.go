package focus

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scenecut/internal/scene"
)

func canvas(w, h int, blocks ...image.Rectangle) *image.RGBA {
	im := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(im, im.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for _, b := range blocks {
		draw.Draw(im, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	return im
}

func TestEdgeDetectorFindsBlock(t *testing.T) {
	d := NewEdgeDetector()
	regions, err := d.Detect(canvas(200, 200, image.Rect(50, 50, 150, 150)))
	require.NoError(t, err)
	require.NotEmpty(t, regions)

	r := regions[0].Rect
	assert.GreaterOrEqual(t, r.Dx(), 80)
	assert.GreaterOrEqual(t, r.Dy(), 80)
	assert.True(t, r.Overlaps(image.Rect(50, 50, 150, 150)))
}

func TestEdgeDetectorReadingOrder(t *testing.T) {
	d := NewEdgeDetector()
	regions, err := d.Detect(canvas(300, 200,
		image.Rect(180, 20, 260, 80), // top right
		image.Rect(20, 25, 100, 85),  // top left, same row
		image.Rect(60, 120, 200, 180),
	))
	require.NoError(t, err)
	require.Len(t, regions, 3)
	assert.Less(t, regions[0].Rect.Min.X, regions[1].Rect.Min.X)
	assert.Less(t, regions[1].Rect.Min.Y, regions[2].Rect.Min.Y)
}

func TestEdgeDetectorIgnoresFlatImage(t *testing.T) {
	regions, err := NewEdgeDetector().Detect(canvas(64, 64))
	require.NoError(t, err)
	assert.Empty(t, regions)

	_, err = NewEdgeDetector().Detect(nil)
	assert.Error(t, err)
}

func TestDetectorRegistry(t *testing.T) {
	tests := []struct {
		variant string
		wantErr bool
	}{
		{"edges", false},
		{"contrast", false},
		{"", false},
		{"ocr", true},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			d, err := NewDetector(tt.variant)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

func TestPlannerTracks(t *testing.T) {
	el := scene.NewElement("photo", scene.TypeImage, 100, 50, 400, 200)
	regions := []Region{
		{Rect: image.Rect(0, 0, 100, 50)},   // top-left quarter of a 200x100 bitmap
		{Rect: image.Rect(100, 50, 200, 100)}, // bottom-right quarter
	}
	tracks, err := NewPlanner().Plan(el, image.Pt(200, 100), regions, 8)
	require.NoError(t, err)
	require.Len(t, tracks, 4)

	x, y, scale := tracks[0], tracks[1], tracks[2]
	assert.Equal(t, "x", x.Property)
	assert.Equal(t, "photo", x.ElementID)
	require.Len(t, x.Keyframes, 4)

	// full view at both ends
	assert.Equal(t, 100.0, x.Keyframes[0].Value)
	assert.Equal(t, 1.0, scale.Keyframes[0].Value)
	assert.Equal(t, 100.0, x.Keyframes[3].Value)

	// a quarter of the box zooms by 1.8 and moves its centre to the box centre
	assert.InDelta(t, 1.8, scale.Keyframes[1].Value, 1e-9)
	assert.InDelta(t, 100+1.8*100, x.Keyframes[1].Value, 1e-9)
	assert.InDelta(t, 50+1.8*50, y.Keyframes[1].Value, 1e-9)
	assert.InDelta(t, 100-1.8*100, x.Keyframes[2].Value, 1e-9)

	// (8 - 2) / 2 = 3 seconds per region
	assert.Equal(t, 1.0, x.Keyframes[1].Time)
	assert.Equal(t, 4.0, x.Keyframes[2].Time)
	assert.Equal(t, 7.0, x.Keyframes[3].Time)
}

func TestPlannerRejectsEmptyInput(t *testing.T) {
	el := scene.NewElement("photo", scene.TypeImage, 0, 0, 10, 10)
	_, err := NewPlanner().Plan(el, image.Pt(10, 10), nil, 5)
	assert.Error(t, err)
	_, err = NewPlanner().Plan(el, image.Point{}, []Region{{Rect: image.Rect(0, 0, 5, 5)}}, 5)
	assert.Error(t, err)
}
