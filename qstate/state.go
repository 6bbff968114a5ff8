// Package qstate provides an explicit state machine for lifecycle
// tracking, such as the credential store initialization gate.
package qstate

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrInvalidTransition is returned when a transition is not in the allowed set.
var ErrInvalidTransition = errors.New("qstate: invalid state transition")

type State interface {
	comparable
	fmt.Stringer
}

// Transition defines a valid state transition.
type Transition[S State] struct {
	From S
	To   S
	Name string // Human-readable name for logging.
}

type transitionKey[S State] struct {
	From, To S
}

// Machine enforces valid state transitions.
// Transitions are serialized; reads of the current state never block.
type Machine[S State] struct {
	mu      sync.Mutex
	current atomic.Pointer[S]

	allowed  map[transitionKey[S]]string
	onChange func(from, to S, name string)
}

// New creates a state machine starting at the given state.
func New[S State](initial S, transitions []Transition[S], on func(from, to S, name string)) *Machine[S] {
	sm := &Machine[S]{
		allowed:  make(map[transitionKey[S]]string, len(transitions)),
		onChange: on,
	}
	sm.current.Store(&initial)
	for _, t := range transitions {
		sm.allowed[transitionKey[S]{From: t.From, To: t.To}] = t.Name
	}
	return sm
}

func (sm *Machine[S]) look(from, to S) (string, bool) {
	name, ok := sm.allowed[transitionKey[S]{From: from, To: to}]
	return name, ok
}

// CanTransitionTo checks if a transition to the target state is valid.
func (sm *Machine[S]) CanTransitionTo(to S) bool {
	_, ok := sm.look(sm.Current(), to)
	return ok
}

// Do runs fn and then transitions to the target state, both under the
// transition lock. If the transition is not allowed fn is not called and
// ErrInvalidTransition is returned. If fn fails the state is unchanged.
// A nil fn only transitions.
func (sm *Machine[S]) Do(to S, fn func() error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.look(*sm.current.Load(), to); !ok {
		return sm.invalid(*sm.current.Load(), to)
	}
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	return sm.transitionLocked(to)
}

func (sm *Machine[S]) transitionLocked(to S) error {
	c := *sm.current.Load()
	name, ok := sm.look(c, to)
	if !ok {
		return sm.invalid(c, to)
	}
	sm.current.Store(&to)
	if sm.onChange != nil {
		sm.onChange(c, to, name)
	}
	return nil
}

func (sm *Machine[S]) invalid(from, to S) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.String(), to.String())
}

// Current returns the current state.
func (sm *Machine[S]) Current() S {
	return *sm.current.Load()
}

// Is reports whether the machine is in state s.
func (sm *Machine[S]) Is(s S) bool {
	return sm.Current() == s
}
