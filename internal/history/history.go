// Package history keeps undo and redo snapshots of a document.
//
// Every snapshot is a deep copy, so nothing handed out by the store
// aliases the state it keeps. Only exported fields survive a copy.
package history

import (
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
)

// Kind is the operation that changed the present state.
type Kind int

const (
	KindApply Kind = iota
	KindUndo
	KindRedo
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindUndo:
		return "undo"
	case KindRedo:
		return "redo"
	case KindReset:
		return "reset"
	default:
		return "apply"
	}
}

// Change describes one transition of the present state.
type Change struct {
	Kind  Kind
	Label string
}

type record[S any] struct {
	label string
	state S
}

// Store holds past, present and future snapshots of S.
type Store[S any] struct {
	mu       sync.Mutex
	past     []record[S]
	present  record[S]
	future   []record[S]
	limit    int
	onChange func(Change)
}

// New returns a store whose present is a copy of initial. A limit <= 0
// keeps every snapshot.
func New[S any](initial S, limit int) (*Store[S], error) {
	st, err := Clone(initial)
	if err != nil {
		return nil, err
	}
	return &Store[S]{present: record[S]{state: st}, limit: limit}, nil
}

// Clone returns a deep copy of v.
func Clone[S any](v S) (S, error) {
	var out S
	if err := copier.CopyWithOption(&out, &v, copier.Option{DeepCopy: true}); err != nil {
		return out, fmt.Errorf("snapshot: %w", err)
	}
	return out, nil
}

// OnChange registers fn to run after every transition. fn runs without the
// store lock held.
func (s *Store[S]) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store[S]) notify(c Change) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Present returns a copy of the current state.
func (s *Store[S]) Present() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := Clone(s.present.state)
	if err != nil {
		return s.present.state
	}
	return st
}

// Apply runs mutate on a copy of the present. If mutate succeeds the copy
// becomes the present, the old present moves to the past and the future
// is cleared. On error nothing changes.
func (s *Store[S]) Apply(label string, mutate func(*S) error) error {
	s.mu.Lock()
	next, err := Clone(s.present.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.past = append(s.past, s.present)
	if s.limit > 0 && len(s.past) > s.limit {
		s.past = append(s.past[:0:0], s.past[len(s.past)-s.limit:]...)
	}
	s.present = record[S]{label: label, state: next}
	s.future = nil
	s.mu.Unlock()

	s.notify(Change{Kind: KindApply, Label: label})
	return nil
}

// Undo restores the previous snapshot. It reports false when there is
// nothing to undo.
func (s *Store[S]) Undo() bool {
	s.mu.Lock()
	if len(s.past) == 0 {
		s.mu.Unlock()
		return false
	}
	label := s.present.label
	last := len(s.past) - 1
	s.future = append([]record[S]{s.present}, s.future...)
	s.present = s.past[last]
	s.past = s.past[:last]
	s.mu.Unlock()

	s.notify(Change{Kind: KindUndo, Label: label})
	return true
}

// Redo re-applies the most recently undone snapshot.
func (s *Store[S]) Redo() bool {
	s.mu.Lock()
	if len(s.future) == 0 {
		s.mu.Unlock()
		return false
	}
	s.past = append(s.past, s.present)
	s.present = s.future[0]
	s.future = s.future[1:]
	label := s.present.label
	s.mu.Unlock()

	s.notify(Change{Kind: KindRedo, Label: label})
	return true
}

func (s *Store[S]) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.past) > 0
}

func (s *Store[S]) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.future) > 0
}

// UndoLabel names the operation Undo would revert, if any.
func (s *Store[S]) UndoLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.past) == 0 {
		return ""
	}
	return s.present.label
}

// RedoLabel names the operation Redo would re-apply, if any.
func (s *Store[S]) RedoLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.future) == 0 {
		return ""
	}
	return s.future[0].label
}

// Depth returns the sizes of the past and future stacks.
func (s *Store[S]) Depth() (past, future int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.past), len(s.future)
}

// Reset replaces the present with a copy of state and forgets all history.
func (s *Store[S]) Reset(state S) error {
	st, err := Clone(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.past, s.future = nil, nil
	s.present = record[S]{state: st}
	s.mu.Unlock()

	s.notify(Change{Kind: KindReset})
	return nil
}
