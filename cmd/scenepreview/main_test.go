package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scenecut/internal/config"
	"github.com/ivlev/scenecut/internal/project"
	"github.com/ivlev/scenecut/internal/scene"
	"github.com/ivlev/scenecut/internal/timeline"
)

func TestFrameTimes(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		fps      int
		want     []float64
	}{
		{"one second", 0, 1, 4, []float64{0, 0.25, 0.5, 0.75}},
		{"offset", 2, 2.5, 4, []float64{2, 2.25}},
		{"partial frame", 0, 0.3, 4, []float64{0, 0.25}},
		{"empty", 1, 1, 30, nil},
		{"no fps", 0, 1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := frameTimes(tt.from, tt.to, tt.fps)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitIDs(" a, ,b,"))
	assert.Nil(t, splitIDs(""))
}

func TestPreviewWritesFrames(t *testing.T) {
	cfg := config.Default()
	cfg.Width, cfg.Height = 32, 24
	cfg.FPS = 4
	cfg.Duration = 2

	doc := project.New(cfg)
	el := scene.NewElement("a", scene.TypeShape, 4, 4, 8, 8)
	el.Shape = &scene.ShapeProps{Kind: scene.ShapeCircle, Fill: &scene.Paint{Color: "#ffcc00"}}
	doc.Scenes[0].Elements = []scene.Element{el}
	doc.Timeline.Clips = []timeline.Clip{{ID: "c1", StartTime: 0, EndTime: 1, Visible: true, Volume: 1, ElementID: "a"}}

	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")
	require.NoError(t, project.Write(doc, path))

	out := filepath.Join(dir, "frames")
	require.NoError(t, os.MkdirAll(out, 0o755))
	p := &preview{
		doc:     doc,
		path:    path,
		outDir:  out,
		workers: 2,
		log:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	require.NoError(t, p.Run(context.Background()))

	frames, err := filepath.Glob(filepath.Join(out, "frame_*.png"))
	require.NoError(t, err)
	assert.Len(t, frames, 8)
}
