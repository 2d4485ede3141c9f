package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scenecut/internal/animation"
	"github.com/ivlev/scenecut/internal/clock"
	"github.com/ivlev/scenecut/internal/config"
	"github.com/ivlev/scenecut/internal/history"
	"github.com/ivlev/scenecut/internal/input"
	"github.com/ivlev/scenecut/internal/project"
	"github.com/ivlev/scenecut/internal/renderer"
	"github.com/ivlev/scenecut/internal/scene"
	"github.com/ivlev/scenecut/internal/source"
	"github.com/ivlev/scenecut/internal/timeline"
)

const frameTime = time.Second / 30

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Width, cfg.Height = 64, 48
	cfg.Duration = 20
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(0, 0))
	e, err := New(testConfig(), WithScheduler(clk))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, clk
}

func box(id string, x, y float64, col string) scene.Element {
	el := scene.NewElement(id, scene.TypeShape, x, y, 16, 16)
	el.Shape = &scene.ShapeProps{Kind: scene.ShapeRect, Fill: &scene.Paint{Color: col}}
	return el
}

func clipFor(id, element string, start, end float64) timeline.Clip {
	return timeline.Clip{ID: id, StartTime: start, EndTime: end, Visible: true, Volume: 1, ElementID: element}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.OverlapPolicy = "sometimes"
	_, err := New(cfg, WithScheduler(clock.NewManual(time.Now())))
	assert.Error(t, err)
}

func TestEditsAreUndoable(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.False(t, e.CanUndo())

	el, err := e.AddElement(box("", 4, 4, "#ff0000"))
	require.NoError(t, err)
	assert.NotEmpty(t, el.ID)

	require.True(t, e.MoveElement(el.ID, 30, 20))
	assert.False(t, e.MoveElement(el.ID, 30, 20), "same position is not a change")
	require.True(t, e.ResizeElement(el.ID, 10, 12))
	assert.False(t, e.ResizeElement(el.ID, 0, 12))

	require.True(t, e.Undo())
	got := e.Scene().Elements[0]
	assert.Equal(t, 30.0, got.X)
	assert.Equal(t, 16.0, got.Width)

	require.True(t, e.Undo())
	assert.Equal(t, 4.0, e.Scene().Elements[0].X)
	assert.True(t, e.CanRedo())

	require.True(t, e.Redo())
	require.True(t, e.Redo())
	assert.Equal(t, 10.0, e.Scene().Elements[0].Width)
	assert.False(t, e.Redo())

	// a new edit drops the redo branch
	require.True(t, e.Undo())
	require.True(t, e.MoveElement(el.ID, 1, 1))
	assert.False(t, e.CanRedo())
}

func TestAddElementRejectsDuplicates(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AddElement(box("a", 0, 0, "#fff"))
	require.NoError(t, err)
	_, err = e.AddElement(box("a", 0, 0, "#fff"))
	assert.Error(t, err)

	bad := box("b", 0, 0, "#fff")
	bad.Type = "hologram"
	_, err = e.AddElement(bad)
	assert.Error(t, err)
	assert.ErrorIs(t, e.UpdateElement(box("ghost", 0, 0, "#fff")), ErrUnknownElement)
}

func TestCopyPasteGivesFreshIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	_, ok := e.PasteElement()
	assert.False(t, ok, "empty clipboard")

	_, err := e.AddElement(box("a", 5, 5, "#00ff00"))
	require.NoError(t, err)
	require.True(t, e.CopyElement("a"))
	assert.False(t, e.CopyElement("ghost"))
	assert.False(t, e.CanRedo())

	first, ok := e.PasteElement()
	require.True(t, ok)
	second, ok := e.PasteElement()
	require.True(t, ok)

	assert.NotEqual(t, "a", first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 5.0+pasteOffset, first.X)
	assert.Equal(t, second.ID, e.SelectedElement())
	assert.Len(t, e.Scene().Elements, 3)

	// the clipboard is not part of the document
	require.True(t, e.Undo())
	require.True(t, e.Undo())
	assert.Len(t, e.Scene().Elements, 1)
	assert.NotNil(t, e.UI().Clipboard)
}

func TestDeleteElementDropsClipsTracksAndCache(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.AddElement(box("a", 0, 0, "#ff0000"))
	require.NoError(t, err)
	_, err = e.AddClip(clipFor("c1", "a", 0, 5))
	require.NoError(t, err)
	require.NoError(t, e.SetTrack(animation.Track{ElementID: "a", Property: "x", Keyframes: []animation.Keyframe{{Time: 0, Value: 0}, {Time: 5, Value: 40}}}))
	require.True(t, e.SelectElement("a"))

	clk.Step(frameTime)
	assert.Equal(t, 1, e.Renderer().Cache().Len())

	require.True(t, e.DeleteElement("a"))
	assert.Empty(t, e.Document().Clips)
	assert.Empty(t, e.Document().Tracks)
	assert.Equal(t, 0, len(e.Clips()))
	assert.Equal(t, 0, e.Renderer().Cache().Len())
	assert.Empty(t, e.SelectedElement())
	assert.False(t, e.DeleteElement("a"))

	require.True(t, e.Undo())
	assert.Equal(t, 1, len(e.Clips()))
	assert.Len(t, e.Document().Tracks, 1)
}

func TestSplitClip(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AddClip(clipFor("c1", "", 0, 10))
	require.NoError(t, err)

	require.True(t, e.SplitClip("c1", 4))
	clips := e.Document().Clips
	require.Len(t, clips, 2)
	assert.Equal(t, 0.0, clips[0].StartTime)
	assert.Equal(t, 4.0, clips[0].EndTime)
	assert.Equal(t, 4.0, clips[1].StartTime)
	assert.Equal(t, 10.0, clips[1].EndTime)

	assert.False(t, e.SplitClip(clips[0].ID, 0.5), "parts shorter than the minimum")

	require.True(t, e.Undo())
	assert.Equal(t, 1, len(e.Clips()))
	c, ok := e.Clip("c1")
	require.True(t, ok)
	assert.Equal(t, 10.0, c.EndTime)
}

func TestClipEdits(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AddClip(clipFor("c1", "", 0, 4))
	require.NoError(t, err)
	_, err = e.AddClip(clipFor("c2", "ghost", 0, 4))
	assert.ErrorIs(t, err, ErrUnknownElement)

	require.True(t, e.MoveClip("c1", 6, 2))
	c, _ := e.Clip("c1")
	assert.Equal(t, 6.0, c.StartTime)
	assert.Equal(t, 2, c.LayerIndex)

	require.True(t, e.ResizeClip("c1", 12, 15), "moving right past the old end")
	c, _ = e.Clip("c1")
	assert.Equal(t, 12.0, c.StartTime)
	assert.Equal(t, 15.0, c.EndTime)

	assert.False(t, e.ResizeClip("c1", 12, 15), "nothing changed")
	assert.False(t, e.ResizeClip("ghost", 1, 2))

	assert.False(t, e.ResizeClip("c1", 14, 14.5), "shorter than the minimum")
	c, _ = e.Clip("c1")
	assert.Equal(t, 12.0, c.StartTime, "a failed edit leaves the model as committed")
	assert.Equal(t, 15.0, c.EndTime)

	require.True(t, e.ResizeClip("c1", 12, 500), "the end is clamped to the timeline")
	c, _ = e.Clip("c1")
	assert.Equal(t, 20.0, c.EndTime)
	require.True(t, e.ResizeClip("c1", 12, 15))

	dup, ok := e.DuplicateClip("c1")
	require.True(t, ok)
	assert.Equal(t, 15.0, dup.StartTime)
	require.True(t, e.DeleteClip(dup.ID))
	assert.Equal(t, 1, len(e.Clips()))
}

func TestLockedClipIsImmutable(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AddClip(clipFor("c1", "", 0, 10))
	require.NoError(t, err)
	require.True(t, e.SetClipLocked("c1", true))

	before := e.Document().Clips
	assert.False(t, e.MoveClip("c1", 3, 1))
	assert.False(t, e.ResizeClip("c1", 1, 9))
	assert.False(t, e.SplitClip("c1", 5))
	assert.Equal(t, before, e.Document().Clips)
	assert.Equal(t, before, e.Clips())

	assert.True(t, e.DeleteClip("c1"), "locked clips can be deleted")
}

func TestFrameFollowsPlayhead(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.AddElement(box("a", 8, 8, "#ff0000"))
	require.NoError(t, err)
	_, err = e.AddClip(clipFor("c1", "a", 0, 2))
	require.NoError(t, err)

	clk.Step(frameTime)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, e.Frame().RGBAAt(16, 16))
	assert.Equal(t, color.RGBA{A: 255}, e.Frame().RGBAAt(40, 40))
	assert.Equal(t, 1, e.Metrics().ElementCount)

	e.SetPlayhead(3)
	clk.Step(frameTime)
	assert.Equal(t, color.RGBA{A: 255}, e.Frame().RGBAAt(16, 16), "clip is over")
	assert.Empty(t, e.Visible())

	e.SetPlayhead(-5)
	assert.Equal(t, 0.0, e.Playhead())
}

func TestKeyframeTracksDriveProperties(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AddElement(box("a", 0, 0, "#fff"))
	require.NoError(t, err)

	tr := animation.Track{ElementID: "a", Property: "x", Keyframes: []animation.Keyframe{
		{Time: 2, Value: 40, Easing: "linear"},
		{Time: 0, Value: 0},
	}}
	require.NoError(t, e.SetTrack(tr))
	assert.Error(t, e.SetTrack(animation.Track{ElementID: "a", Property: "colour"}))
	assert.ErrorIs(t, e.SetTrack(animation.Track{ElementID: "ghost", Property: "x"}), ErrUnknownElement)

	e.SetPlayhead(1)
	assert.InDelta(t, 20, e.Visible()[0].X, 1e-9)
	e.SetPlayhead(5)
	assert.InDelta(t, 40, e.Visible()[0].X, 1e-9)
	assert.Equal(t, 0.0, e.Scene().Elements[0].X, "tracks never touch the document")
}

func TestAnimateAndStop(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.AddElement(box("a", 0, 0, "#fff"))
	require.NoError(t, err)

	_, err = e.Animate("a", "x", 100, 100*time.Millisecond, "wobble")
	assert.Error(t, err)
	_, err = e.Animate("ghost", "x", 100, time.Second, "")
	assert.ErrorIs(t, err, ErrUnknownElement)

	h, err := e.Animate("a", "x", 100, 100*time.Millisecond, "linear")
	require.NoError(t, err)

	clk.Step(50 * time.Millisecond) // starts the tween
	clk.Step(50 * time.Millisecond)
	assert.InDelta(t, 50, e.Visible()[0].X, 1e-9)
	clk.Step(50 * time.Millisecond)
	assert.InDelta(t, 100, e.Visible()[0].X, 1e-9)
	assert.Equal(t, animation.StateCompleted, e.Animator().State(h))
	assert.Equal(t, 0.0, e.Scene().Elements[0].X)

	// a cancelled tween never completes
	h, err = e.Animate("a", "y", 30, time.Second, "")
	require.NoError(t, err)
	clk.Step(frameTime)
	require.True(t, e.StopAnimation("a"))
	for i := 0; i < 40; i++ {
		clk.Step(frameTime)
	}
	assert.Equal(t, animation.StateCancelled, e.Animator().State(h))
	assert.Equal(t, 0.0, e.Visible()[0].X, "overrides are dropped")
	assert.Equal(t, 0.0, e.Visible()[0].Y)
	assert.False(t, e.StopAnimation("a"))
}

func TestFadeOutEndsInvisible(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.AddElement(box("a", 8, 8, "#ff0000"))
	require.NoError(t, err)
	clk.Step(frameTime)
	require.Equal(t, color.RGBA{R: 255, A: 255}, e.Frame().RGBAAt(16, 16))

	h, err := e.Animate("a", "opacity", 0, 100*time.Millisecond, "linear")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		clk.Step(frameTime)
	}
	assert.Equal(t, animation.StateCompleted, e.Animator().State(h))
	assert.Equal(t, 0.0, e.Visible()[0].Opacity)
	assert.Equal(t, color.RGBA{A: 255}, e.Frame().RGBAAt(16, 16), "the last frame of a fade-out is empty")
	assert.Equal(t, 1.0, e.Scene().Elements[0].Opacity)
}

func TestPointerDragCommitsOnce(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.AddClip(clipFor("c1", "", 0, 5))
	require.NoError(t, err)

	// 1200px over 20s: 60px per second
	e.Dispatch(input.PointerEvent{Kind: input.PointerDown, X: 150, Y: 10})
	e.Dispatch(input.PointerEvent{Kind: input.PointerMove, X: 210, Y: 10})
	e.Dispatch(input.PointerEvent{Kind: input.PointerUp, X: 270, Y: 10})
	clk.Step(frameTime)

	c, _ := e.Clip("c1")
	assert.Equal(t, 2.0, c.StartTime)
	assert.Equal(t, 2.0, e.Document().Clips[0].StartTime)
	past, _ := e.History().Depth()
	assert.Equal(t, 2, past, "add clip and one move")

	e.Dispatch(input.KeyEvent{Key: "z", Ctrl: true})
	clk.Step(frameTime)
	assert.Equal(t, 0.0, e.Document().Clips[0].StartTime)
	assert.Equal(t, 4, e.Router().Handled())
}

func TestInputRacesEditsOnRealTicker(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	_, err = e.AddElement(box("a", 0, 0, "#ff0000"))
	require.NoError(t, err)
	_, err = e.AddClip(clipFor("c1", "a", 0, 5))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			x := float64(60 + i%4*30)
			e.Dispatch(input.PointerEvent{Kind: input.PointerDown, X: x, Y: 10})
			e.Dispatch(input.PointerEvent{Kind: input.PointerMove, X: x + 30, Y: 60})
			e.Dispatch(input.PointerEvent{Kind: input.PointerUp, X: x + 60, Y: 10})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.MoveClip("c1", float64(i%6), i%2)
			e.Visible()
			e.Clips()
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		return e.Router().Pending() == 0 && e.Idle()
	}, 5*time.Second, 5*time.Millisecond)

	c, ok := e.Clip("c1")
	require.True(t, ok)
	assert.InDelta(t, 5, c.EndTime-c.StartTime, 1e-9)
	assert.GreaterOrEqual(t, c.StartTime, 0.0)
	assert.LessOrEqual(t, c.EndTime, 20.0)
	assert.GreaterOrEqual(t, c.LayerIndex, 0)
	assert.Less(t, c.LayerIndex, e.Config().TrackCount)
}

func TestKeysDeleteSelectedElement(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.AddElement(box("a", 0, 0, "#fff"))
	require.NoError(t, err)
	require.True(t, e.SelectElement("a"))
	assert.False(t, e.SelectElement("ghost"))

	e.Dispatch(input.KeyEvent{Key: "c", Ctrl: true})
	e.Dispatch(input.KeyEvent{Key: "Delete"})
	e.Dispatch(input.KeyEvent{Key: "v", Meta: true})
	clk.Step(frameTime)

	els := e.Scene().Elements
	require.Len(t, els, 1)
	assert.NotEqual(t, "a", els[0].ID)

	e.Dispatch(input.KeyEvent{Key: "Escape"})
	clk.Step(frameTime)
	assert.Empty(t, e.SelectedElement())
}

func TestOnChangeSeesEveryTransition(t *testing.T) {
	e, _ := newTestEngine(t)
	var kinds []history.Kind
	e.OnChange(func(c history.Change) {
		kinds = append(kinds, c.Kind)
		// hooks run without the engine lock
		_ = e.CanUndo()
		_ = e.SelectedElement()
	})
	e.OnChange(func(history.Change) { panic("boom") })

	_, err := e.AddElement(box("a", 0, 0, "#fff"))
	require.NoError(t, err)
	require.True(t, e.Undo())
	require.True(t, e.Redo())
	assert.Equal(t, []history.Kind{history.KindApply, history.KindUndo, history.KindRedo}, kinds)
}

func TestLoadAndExport(t *testing.T) {
	f := project.New(testConfig())
	f.Name = "demo"
	f.Scenes = []scene.Scene{
		{ID: "intro", Background: "#0000ff", Elements: []scene.Element{box("a", 0, 0, "#ff0000")}},
		{ID: "outro"},
	}
	f.Timeline = project.Timeline{Playhead: 1.5, Clips: []timeline.Clip{clipFor("c1", "a", 0, 4)}}

	clk := clock.NewManual(time.Unix(0, 0))
	e, err := Load(f, WithScheduler(clk))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "intro", e.Scene().ID)
	assert.Equal(t, 1.5, e.Playhead())
	assert.Equal(t, 1, len(e.Clips()))
	assert.False(t, e.CanUndo())

	clk.Step(frameTime)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, e.Frame().RGBAAt(40, 40), "scene background")

	require.True(t, e.SetScene("outro"))
	assert.False(t, e.SetScene("ghost"))
	assert.Equal(t, "outro", e.Scene().ID)

	out, err := e.Export("demo")
	require.NoError(t, err)
	assert.Equal(t, f.Scenes[0].Elements, out.Scenes[0].Elements)
	assert.Equal(t, f.Timeline, out.Timeline)
	assert.NoError(t, out.Validate())

	out.Scenes[0].Elements[0].Shape.Fill.Color = "#00ff00"
	out.Timeline.Clips[0].EndTime = 9
	assert.Equal(t, "#ff0000", e.Document().Scenes[0].Elements[0].Shape.Fill.Color, "export is a deep copy")
	assert.Equal(t, 4.0, e.Document().Clips[0].EndTime)

	bad := project.New(testConfig())
	bad.Timeline.Clips = []timeline.Clip{clipFor("c1", "ghost", 0, 4)}
	_, err = Load(bad, WithScheduler(clk))
	assert.Error(t, err)
}

func TestCloseReleasesLayers(t *testing.T) {
	e, clk := newTestEngine(t)
	assert.Len(t, e.Layers().Layers(), 3)

	e.Close()
	e.Close()
	assert.Empty(t, e.Layers().Layers())
	_, err := e.Animate("a", "x", 1, time.Second, "")
	assert.Error(t, err)
	clk.Step(frameTime)
}

// blockLoader serves a black 200x100 bitmap with a white block in its
// top-left quarter and fails every source named "missing.png".
func blockLoader(calls *atomic.Int32) source.Loader {
	return source.LoaderFunc(func(ctx context.Context, src string) (image.Image, error) {
		calls.Add(1)
		if src == "missing.png" {
			return nil, errors.New("not found")
		}
		im := image.NewRGBA(image.Rect(0, 0, 200, 100))
		draw.Draw(im, im.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		draw.Draw(im, image.Rect(10, 10, 90, 45), image.NewUniform(color.White), image.Point{}, draw.Src)
		return im, nil
	})
}

func photo(id, src string) scene.Element {
	el := scene.NewElement(id, scene.TypeImage, 0, 0, 64, 32)
	el.Image = &scene.ImageProps{Source: src}
	return el
}

func TestPreloadLoadsEverySource(t *testing.T) {
	var calls atomic.Int32
	clk := clock.NewManual(time.Unix(0, 0))
	e, err := New(testConfig(), WithScheduler(clk), WithLoader(blockLoader(&calls)))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.AddElement(photo("a", "block.png"))
	require.NoError(t, err)
	_, err = e.AddElement(photo("b", "block.png"))
	require.NoError(t, err)
	_, err = e.AddElement(photo("c", "missing.png"))
	require.NoError(t, err)

	err = e.Preload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.png")
	assert.Equal(t, int32(2), calls.Load(), "one fetch per source")
	assert.Equal(t, renderer.LoadReady, e.Renderer().Images().State("block.png"))

	clk.Step(frameTime)
	assert.Equal(t, 0, e.Renderer().Images().Pending())
	assert.Equal(t, 3, e.Metrics().ElementCount)
	assert.Equal(t, 0, e.Metrics().Errors, "failed images draw a placeholder")
}

func TestFocusPathStoresTracks(t *testing.T) {
	var calls atomic.Int32
	clk := clock.NewManual(time.Unix(0, 0))
	e, err := New(testConfig(), WithScheduler(clk), WithLoader(blockLoader(&calls)))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.AddElement(photo("p", "block.png"))
	require.NoError(t, err)
	_, err = e.AddClip(clipFor("c1", "p", 2, 10))
	require.NoError(t, err)
	_, err = e.AddElement(box("b", 0, 0, "#fff"))
	require.NoError(t, err)

	regions, err := e.FocusPath(context.Background(), "p", "edges")
	require.NoError(t, err)
	require.NotEmpty(t, regions)

	tracks := e.Document().Tracks
	require.Len(t, tracks, 4)
	for _, tr := range tracks {
		assert.Equal(t, "p", tr.ElementID)
		assert.Equal(t, 2.0, tr.Keyframes[0].Time, "keyframes start with the clip")
	}
	assert.Equal(t, "focus path", e.History().UndoLabel())

	_, err = e.FocusPath(context.Background(), "b", "edges")
	assert.Error(t, err, "not an image")
	_, err = e.FocusPath(context.Background(), "p", "ocr")
	assert.Error(t, err)
	_, err = e.FocusPath(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, ErrUnknownElement)
}
