// Package clock abstracts the frame loop. A Scheduler runs one-shot tick
// callbacks; code that wants to run every frame requests a new tick from
// inside its callback.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

type TickID uint64

type Scheduler interface {
	// RequestTick schedules cb for the next tick and returns a handle
	// for CancelTick. A zero ID means the scheduler is closed.
	RequestTick(cb func(now time.Time)) TickID
	// CancelTick drops a pending callback. Unknown or fired ids are ignored.
	CancelTick(id TickID)
}

// queue holds pending callbacks in request order. Cancelled ids stay in
// order but lose their callback, so a cancel issued while a batch runs
// still prevents the call.
type queue struct {
	mu    sync.Mutex
	order []TickID
	cbs   map[TickID]func(time.Time)
}

func (q *queue) add(id TickID, cb func(time.Time)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cbs == nil {
		q.cbs = make(map[TickID]func(time.Time))
	}
	q.order = append(q.order, id)
	q.cbs[id] = cb
}

func (q *queue) cancel(id TickID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cbs[id]
	delete(q.cbs, id)
	return ok
}

func (q *queue) take() []TickID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.order
	q.order = nil
	return ids
}

// run calls the callbacks of ids that are still live and returns how many
// ran. No lock is held while a callback runs.
func (q *queue) run(ids []TickID, now time.Time) int {
	n := 0
	for _, id := range ids {
		q.mu.Lock()
		cb, ok := q.cbs[id]
		delete(q.cbs, id)
		q.mu.Unlock()
		if ok {
			cb(now)
			n++
		}
	}
	return n
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cbs)
}

func (q *queue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = nil
	q.cbs = nil
}

// Manual is a deterministic scheduler for tests and offline rendering:
// time only moves when Step is called.
type Manual struct {
	mu  sync.Mutex
	now time.Time
	ids atomic.Uint64
	q   queue
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) RequestTick(cb func(time.Time)) TickID {
	id := TickID(m.ids.Add(1))
	m.q.add(id, cb)
	return id
}

func (m *Manual) CancelTick(id TickID) {
	m.q.cancel(id)
}

// Step advances time by dt and runs the callbacks requested before the
// call. Callbacks requested while stepping wait for the next Step.
func (m *Manual) Step(dt time.Duration) int {
	m.mu.Lock()
	m.now = m.now.Add(dt)
	now := m.now
	m.mu.Unlock()
	return m.q.run(m.q.take(), now)
}

// Pending is the number of callbacks waiting for a tick.
func (m *Manual) Pending() int {
	return m.q.len()
}

// Ticker drives callbacks from a real time.Ticker on its own goroutine.
// All callbacks and posted functions run serially on that goroutine.
type Ticker struct {
	interval time.Duration
	ids      atomic.Uint64
	q        queue
	posts    chan func()
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	t := &Ticker{
		interval: time.Second / time.Duration(fps),
		posts:    make(chan func()),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Ticker) run() {
	defer close(t.done)
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-t.stop:
			return
		case fn := <-t.posts:
			fn()
		case now := <-tk.C:
			t.q.run(t.q.take(), now)
		}
	}
}

func (t *Ticker) RequestTick(cb func(time.Time)) TickID {
	select {
	case <-t.stop:
		return 0
	default:
	}
	id := TickID(t.ids.Add(1))
	t.q.add(id, cb)
	return id
}

func (t *Ticker) CancelTick(id TickID) {
	t.q.cancel(id)
}

// Post runs fn on the loop goroutine between ticks. It reports false once
// the ticker is stopped.
func (t *Ticker) Post(fn func()) bool {
	select {
	case t.posts <- fn:
		return true
	case <-t.stop:
		return false
	}
}

// Stop ends the loop and waits for it. No callback runs after Stop
// returns. It must not be called from a callback.
func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
	t.q.reset()
}
