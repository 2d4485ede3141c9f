// Package animation runs tweens on a cooperative frame loop. Progress is
// derived from elapsed clock time, not from the number of ticks, so tweens
// finish on time at any frame rate.
package animation

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ivlev/scenecut/internal/clock"
)

type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config describes one tween. OnUpdate receives eased progress in [0,1]
// (back easings may overshoot). OnComplete runs once after the final
// update unless the animation is cancelled first.
type Config struct {
	Duration   time.Duration
	Easing     Easing
	OnUpdate   func(eased float64)
	OnComplete func()
}

// Handle identifies a started animation. Terminal states are final.
type Handle struct {
	ID             uint64
	Duration       time.Duration
	StartTimestamp time.Time
	Easing         Easing

	cfg   Config
	state State
}

func (h *Handle) terminal() bool {
	return h.state == StateCompleted || h.state == StateCancelled
}

type Animator struct {
	sched clock.Scheduler
	log   *slog.Logger

	mu      sync.Mutex
	handles map[uint64]*Handle
	active  []*Handle // start order
	nextID  uint64
	tickID  clock.TickID
	ticking bool
	closed  bool
}

func New(sched clock.Scheduler, log *slog.Logger) *Animator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Animator{
		sched:   sched,
		log:     log,
		handles: make(map[uint64]*Handle),
	}
}

// Start registers a tween. Its start time is taken from the first tick
// it sees, so an animation started mid-frame does not skip ahead.
func (a *Animator) Start(cfg Config) *Handle {
	if cfg.Easing == nil {
		cfg.Easing = Linear
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	h := &Handle{ID: a.nextID, Duration: cfg.Duration, Easing: cfg.Easing, cfg: cfg}
	if a.closed {
		h.state = StateCancelled
		return h
	}
	a.handles[h.ID] = h
	a.active = append(a.active, h)
	a.ensureTickLocked()
	return h
}

func (a *Animator) ensureTickLocked() {
	if a.ticking || len(a.active) == 0 {
		return
	}
	a.ticking = true
	a.tickID = a.sched.RequestTick(a.tick)
}

func (a *Animator) tick(now time.Time) {
	a.mu.Lock()
	a.ticking = false
	batch := append([]*Handle(nil), a.active...)
	a.mu.Unlock()

	for _, h := range batch {
		a.advance(h, now)
	}

	a.mu.Lock()
	a.ensureTickLocked()
	a.mu.Unlock()
}

func (a *Animator) advance(h *Handle, now time.Time) {
	a.mu.Lock()
	if h.terminal() {
		a.mu.Unlock()
		return
	}
	if h.state == StatePending {
		h.state = StateRunning
		h.StartTimestamp = now
	}
	progress := 1.0
	if h.Duration > 0 {
		progress = float64(now.Sub(h.StartTimestamp)) / float64(h.Duration)
	}
	if progress > 1 {
		progress = 1
	}
	done := progress >= 1
	a.mu.Unlock()

	a.call(h, func() {
		// Stop may have landed since the lock was released
		if h.cfg.OnUpdate != nil && a.running(h) {
			h.cfg.OnUpdate(h.Easing(progress))
		}
	})
	if !done {
		return
	}

	a.mu.Lock()
	// OnUpdate may have stopped this handle.
	if h.state != StateRunning {
		a.mu.Unlock()
		return
	}
	h.state = StateCompleted
	a.removeLocked(h)
	a.mu.Unlock()

	if h.cfg.OnComplete != nil {
		a.call(h, h.cfg.OnComplete)
	}
}

func (a *Animator) running(h *Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return h.state == StateRunning
}

// call runs a user callback, logging a panic instead of unwinding the
// frame loop.
func (a *Animator) call(h *Handle, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("animation callback panicked", "id", h.ID, "panic", r)
		}
	}()
	fn()
}

func (a *Animator) removeLocked(h *Handle) {
	delete(a.handles, h.ID)
	for i, x := range a.active {
		if x == h {
			a.active = append(a.active[:i], a.active[i+1:]...)
			break
		}
	}
	if len(a.active) == 0 && a.ticking {
		a.sched.CancelTick(a.tickID)
		a.ticking = false
	}
}

// Stop cancels h and reports false when h already finished. Called on the
// goroutine that drives the scheduler, from a callback included, it is
// synchronous: no further callback of h runs. Called from another
// goroutine, it stops every later tick and OnComplete, but an update the
// loop is already running is not waited for; a setter that must not apply
// a late value checks its own state.
func (a *Animator) Stop(h *Handle) bool {
	if h == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if h.terminal() {
		return false
	}
	h.state = StateCancelled
	a.removeLocked(h)
	return true
}

// StopAll cancels every active animation.
func (a *Animator) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range append([]*Handle(nil), a.active...) {
		h.state = StateCancelled
		a.removeLocked(h)
	}
}

// Close is the teardown hook: it cancels everything and refuses new work.
func (a *Animator) Close() {
	a.StopAll()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

// Active is the number of pending or running animations.
func (a *Animator) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// State returns the current state of h.
func (a *Animator) State(h *Handle) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return h.state
}

// AnimateProperty tweens a number from from to to, handing every value to
// setter. cfg.OnUpdate, if set, still receives eased progress.
func (a *Animator) AnimateProperty(from, to float64, cfg Config, setter func(float64)) *Handle {
	if cfg.Easing == nil {
		cfg.Easing = Linear
	}
	user := cfg.OnUpdate
	cfg.OnUpdate = func(e float64) {
		setter(lerp(from, to, e))
		if user != nil {
			user(e)
		}
	}
	return a.Start(cfg)
}
