package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Phase orders work inside one frame.
type Phase int

const (
	PhaseAnimate Phase = iota
	PhaseInput
	PhaseRender
	PhaseComposite
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseAnimate:
		return "animate"
	case PhaseInput:
		return "input"
	case PhaseRender:
		return "render"
	case PhaseComposite:
		return "composite"
	}
	return "unknown"
}

// Loop multiplexes one base scheduler into per-phase schedulers. Every
// frame runs animate, then input, then render, then composite. Work
// requested for a later phase during an earlier one runs in the same frame.
type Loop struct {
	base   Scheduler
	ids    atomic.Uint64
	queues [numPhases]queue

	mu        sync.Mutex
	scheduled bool
	baseID    TickID
	closed    bool
	frames    int
}

func NewLoop(base Scheduler) *Loop {
	return &Loop{base: base}
}

// Phase returns a Scheduler whose callbacks run in phase p.
func (l *Loop) Phase(p Phase) Scheduler {
	return phaseScheduler{l: l, p: p}
}

func (l *Loop) ensure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scheduled || l.closed {
		return
	}
	l.scheduled = true
	l.baseID = l.base.RequestTick(l.tick)
}

func (l *Loop) tick(now time.Time) {
	l.mu.Lock()
	l.scheduled = false
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.frames++
	l.mu.Unlock()

	for p := PhaseAnimate; p < numPhases; p++ {
		l.queues[p].run(l.queues[p].take(), now)
	}

	for p := range l.queues {
		if l.queues[p].len() > 0 {
			l.ensure()
			return
		}
	}
}

// Frames is the number of frames run so far.
func (l *Loop) Frames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Idle reports whether no phase has pending work.
func (l *Loop) Idle() bool {
	for p := range l.queues {
		if l.queues[p].len() > 0 {
			return false
		}
	}
	return true
}

// Close cancels all pending work synchronously. Later requests are
// ignored.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	if l.scheduled {
		l.base.CancelTick(l.baseID)
		l.scheduled = false
	}
	l.mu.Unlock()
	for p := range l.queues {
		l.queues[p].reset()
	}
}

type phaseScheduler struct {
	l *Loop
	p Phase
}

func (s phaseScheduler) RequestTick(cb func(time.Time)) TickID {
	s.l.mu.Lock()
	closed := s.l.closed
	s.l.mu.Unlock()
	if closed {
		return 0
	}
	id := TickID(s.l.ids.Add(1))
	s.l.queues[s.p].add(id, cb)
	s.l.ensure()
	return id
}

func (s phaseScheduler) CancelTick(id TickID) {
	s.l.queues[s.p].cancel(id)
}
