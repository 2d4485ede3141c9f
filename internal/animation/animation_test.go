package animation

import (
	"math"
	"testing"
	"time"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scenecut/internal/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newAnimator() (*Animator, *clock.Manual) {
	m := clock.NewManual(epoch)
	return New(m, nil), m
}

func TestEasingEndpoints(t *testing.T) {
	for _, name := range EasingNames() {
		t.Run(name, func(t *testing.T) {
			e, ok := EasingByName(name)
			require.True(t, ok)
			assert.InDelta(t, 0, e(0), 1e-9)
			assert.InDelta(t, 1, e(1), 1e-9)
		})
	}
}

func TestEasingShapes(t *testing.T) {
	assert.Less(t, EaseInQuad(0.5), 0.5)
	assert.Greater(t, EaseOutQuad(0.5), 0.5)
	assert.InDelta(t, 0.5, EaseInOutCubic(0.5), 1e-9)
	assert.InDelta(t, 0.5, EaseInOutSine(0.5), 1e-9)
	assert.Greater(t, EaseOutBack(0.8), 1.0, "back easing overshoots")

	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := EaseInOutQuart(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestEasingByNameIsForgiving(t *testing.T) {
	_, ok := EasingByName("ease-in-out-cubic")
	assert.True(t, ok)
	_, ok = EasingByName("EASE_OUT_BOUNCE")
	assert.True(t, ok)
	_, ok = EasingByName("wobble")
	assert.False(t, ok)
}

func TestProgressFollowsElapsedTime(t *testing.T) {
	a, m := newAnimator()
	var got []float64
	h := a.Start(Config{Duration: time.Second, OnUpdate: func(v float64) { got = append(got, v) }})
	assert.Equal(t, StatePending, a.State(h))

	m.Step(16 * time.Millisecond) // first tick stamps the start
	assert.Equal(t, StateRunning, a.State(h))
	assert.Equal(t, epoch.Add(16*time.Millisecond), h.StartTimestamp)

	m.Step(250 * time.Millisecond)
	m.Step(10 * time.Millisecond)
	m.Step(500 * time.Millisecond)

	require.Len(t, got, 4)
	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, 0.25, got[1], 1e-9)
	assert.InDelta(t, 0.26, got[2], 1e-9)
	assert.InDelta(t, 0.76, got[3], 1e-9)
}

func TestCompletesOnceAtEnd(t *testing.T) {
	a, m := newAnimator()
	completed := 0
	var last float64
	h := a.Start(Config{
		Duration:   100 * time.Millisecond,
		OnUpdate:   func(v float64) { last = v },
		OnComplete: func() { completed++ },
	})
	m.Step(0)
	m.Step(time.Second)
	m.Step(time.Second)

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1.0, last)
	assert.Equal(t, StateCompleted, a.State(h))
	assert.Equal(t, 0, a.Active())
	assert.False(t, a.Stop(h), "terminal states are final")
	assert.Equal(t, StateCompleted, a.State(h))
}

func TestConcurrentAnimationsAdvanceInSameTick(t *testing.T) {
	a, m := newAnimator()
	var x, y []float64
	a.Start(Config{Duration: time.Second, OnUpdate: func(v float64) { x = append(x, v) }})
	a.Start(Config{Duration: 2 * time.Second, OnUpdate: func(v float64) { y = append(y, v) }})

	m.Step(0)
	m.Step(500 * time.Millisecond)
	require.Len(t, x, 2)
	require.Len(t, y, 2)
	assert.InDelta(t, 0.5, x[1], 1e-9)
	assert.InDelta(t, 0.25, y[1], 1e-9)
	assert.Equal(t, 2, a.Active())
}

func TestCancelledAnimationNeverCompletes(t *testing.T) {
	a, m := newAnimator()
	completed := false
	updates := 0
	h := a.Start(Config{
		Duration:   time.Second,
		OnUpdate:   func(float64) { updates++ },
		OnComplete: func() { completed = true },
	})
	m.Step(0)
	m.Step(400 * time.Millisecond)
	require.True(t, a.Stop(h))
	before := updates

	m.Step(2 * time.Second)
	assert.False(t, completed)
	assert.Equal(t, before, updates)
	assert.Equal(t, StateCancelled, a.State(h))
	assert.Equal(t, 0, m.Pending(), "no tick stays requested without active animations")
}

func TestStopFromInsideFinalUpdate(t *testing.T) {
	a, m := newAnimator()
	completed := false
	var h *Handle
	h = a.Start(Config{
		Duration:   10 * time.Millisecond,
		OnUpdate:   func(v float64) { a.Stop(h) },
		OnComplete: func() { completed = true },
	})
	m.Step(0)
	m.Step(time.Second)
	assert.False(t, completed)
}

func TestStopFromSiblingUpdateSkipsSameTick(t *testing.T) {
	a, m := newAnimator()
	var victim *Handle
	updates := 0
	a.Start(Config{Duration: time.Second, OnUpdate: func(v float64) {
		if v > 0 {
			a.Stop(victim)
		}
	}})
	victim = a.Start(Config{Duration: time.Second, OnUpdate: func(float64) { updates++ }})

	m.Step(0)
	require.Equal(t, 1, updates)
	m.Step(100 * time.Millisecond)
	m.Step(100 * time.Millisecond)
	assert.Equal(t, 1, updates, "stopped before its turn in the tick")
	assert.Equal(t, StateCancelled, a.State(victim))
}

func TestStopAllAndClose(t *testing.T) {
	a, m := newAnimator()
	fired := 0
	for i := 0; i < 3; i++ {
		a.Start(Config{Duration: time.Second, OnComplete: func() { fired++ }})
	}
	m.Step(0)
	a.StopAll()
	m.Step(2 * time.Second)
	assert.Equal(t, 0, fired)

	a.Close()
	h := a.Start(Config{Duration: time.Millisecond, OnComplete: func() { fired++ }})
	assert.Equal(t, StateCancelled, a.State(h))
	m.Step(time.Second)
	m.Step(time.Second)
	assert.Equal(t, 0, fired)
}

func TestPanickingCallbackDoesNotStopOthers(t *testing.T) {
	a, m := newAnimator()
	ok := false
	a.Start(Config{Duration: time.Millisecond, OnUpdate: func(float64) { panic("bad tween") }})
	a.Start(Config{Duration: time.Millisecond, OnComplete: func() { ok = true }})
	m.Step(0)
	m.Step(time.Second)
	assert.True(t, ok)
}

func TestAnimateProperty(t *testing.T) {
	a, m := newAnimator()
	var value float64
	a.AnimateProperty(10, 20, Config{Duration: time.Second, Easing: EaseInQuad}, func(v float64) { value = v })
	m.Step(0)
	m.Step(500 * time.Millisecond)
	assert.InDelta(t, 12.5, value, 1e-9)
	m.Step(time.Second)
	assert.InDelta(t, 20, value, 1e-9)
}

func TestAnimateTransform(t *testing.T) {
	a, m := newAnimator()
	dc := gg.NewContext(100, 100)
	frames := 0
	a.AnimateTransform(dc, TransformConfig{
		Duration: time.Second,
		Start:    Identity(),
		End:      Transform{TranslateX: 40, TranslateY: 20, Rotation: 90, ScaleX: 2, ScaleY: 2},
		OnFrame:  func(*gg.Context, Transform) { frames++ },
	})
	m.Step(0)
	m.Step(500 * time.Millisecond)
	x, y := dc.TransformPoint(0, 0)
	assert.InDelta(t, 20, x, 1e-9)
	assert.InDelta(t, 10, y, 1e-9)

	m.Step(time.Second)
	x, y = dc.TransformPoint(1, 0)
	assert.InDelta(t, 40, x, 1e-9)
	assert.InDelta(t, 22, y, 1e-9)
	assert.Equal(t, 3, frames)
}

func TestTransformMatrixMatchesApply(t *testing.T) {
	tr := Transform{TranslateX: 5, TranslateY: -3, Rotation: 30, ScaleX: 1.5, ScaleY: 0.5}
	dc := gg.NewContext(10, 10)
	tr.Apply(dc)
	m := tr.Matrix()
	for _, p := range [][2]float64{{0, 0}, {3, 4}, {-2, 7}} {
		wx, wy := dc.TransformPoint(p[0], p[1])
		gx, gy := m.TransformPoint(p[0], p[1])
		assert.InDelta(t, wx, gx, 1e-9)
		assert.InDelta(t, wy, gy, 1e-9)
	}
}

func TestInterpolateKeyframes(t *testing.T) {
	keyframes := []Keyframe{
		{Time: 0.0, Value: 1.0},
		{Time: 2.0, Value: 1.5},
		{Time: 4.0, Value: 2.0, Easing: "linear"},
	}

	tests := []struct {
		time     float64
		expected float64
	}{
		{-1.0, 1.0},
		{0.0, 1.0},
		{1.0, 1.25},
		{2.0, 1.5},
		{3.0, 1.75},
		{4.0, 2.0},
		{5.0, 2.0},
	}
	for _, tt := range tests {
		got := Interpolate(keyframes, tt.time)
		assert.InDelta(t, tt.expected, got, 1e-9, "at %.1f", tt.time)
	}

	assert.Less(t, Interpolate(keyframes, 0.5), 1.125, "default segment eases in")
	assert.Equal(t, 0.0, Interpolate(nil, 3))
	assert.False(t, math.IsNaN(Interpolate([]Keyframe{{Time: 1, Value: 2}, {Time: 1, Value: 3}}, 1)))
}

func TestTrackSortAndValue(t *testing.T) {
	tr := Track{ElementID: "title", Property: "x", Keyframes: []Keyframe{
		{Time: 2, Value: 100, Easing: "linear"},
		{Time: 0, Value: 0},
	}}
	tr.Sort()
	assert.Equal(t, 0.0, tr.Keyframes[0].Time)
	assert.Equal(t, 2.0, tr.End())
	assert.InDelta(t, 50, tr.ValueAt(1), 1e-9)
	assert.Equal(t, 100.0, tr.ValueAt(5))
	assert.Equal(t, 0.0, Track{}.End())
}
