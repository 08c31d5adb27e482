// Package statemachine provides a small state machine in the state-function
// style: each state is a function that does its work and returns the next
// state function, or nil to terminate.
package statemachine

import "reflect"

// StateFn is a state of the machine over an entity of type T.
type StateFn[T any] func(*T) StateFn[T]

// Machine drives an entity through StateFn transitions. It carries no lock
// of its own: callers are expected to serialize access (the room layer runs
// every mutation under the room mutex, so the machine inherits that).
type Machine[T any] struct {
	entity  *T
	stateFn StateFn[T]
}

// New creates a machine positioned at the initial state.
func New[T any](entity *T, initial StateFn[T]) *Machine[T] {
	return &Machine[T]{entity: entity, stateFn: initial}
}

// Dispatch runs the current state function once and moves to whatever state
// it returns. A terminated machine (nil state) stays terminated.
func (m *Machine[T]) Dispatch() {
	if m.stateFn == nil {
		return
	}
	m.stateFn = m.stateFn(m.entity)
}

// Transition sets the state and immediately runs it once.
func (m *Machine[T]) Transition(next StateFn[T]) {
	m.stateFn = next
	m.Dispatch()
}

// Set replaces the current state without running it.
func (m *Machine[T]) Set(next StateFn[T]) {
	m.stateFn = next
}

// Current returns the current state function, nil if terminated.
func (m *Machine[T]) Current() StateFn[T] {
	return m.stateFn
}

// In reports whether the machine currently sits in the given state. State
// functions have no identity beyond their code pointer, so the comparison
// uses the function pointer.
func (m *Machine[T]) In(state StateFn[T]) bool {
	if m.stateFn == nil || state == nil {
		return m.stateFn == nil && state == nil
	}
	return reflect.ValueOf(m.stateFn).Pointer() == reflect.ValueOf(state).Pointer()
}
