// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ack

import (
	"sync/atomic"
)

type envelopeState int32

const (
	stateInFlight envelopeState = iota
	stateCompleted
	stateExecuted
)

// Envelope couples a payload with its positive and negative acknowledgers
// and guarantees that, across any number of concurrent calls to
// [Envelope.Acknowledge] and [Envelope.Nacknowledge], at most one of those
// callbacks ever runs.
//
// The zero value is not usable; construct one with [New].
type Envelope[T any] struct {
	value T
	ack   func()
	nack  func(error)

	state atomic.Int32
	err   atomic.Pointer[error]

	// immediate controls whether a successful Acknowledge/Nacknowledge
	// runs its callback inline (the IN_FLIGHT -> EXECUTED fast path used
	// when there is no Queue mediating drain order) or merely marks the
	// envelope COMPLETED for a Queue's drain loop to execute later.
	immediate bool
}

// New constructs an [Envelope] in the in-flight state. Both ack and nack
// are executed at most once, and execute immediately (synchronously,
// on the calling goroutine) the moment the envelope is resolved.
//
// New panics if ack or nack is nil.
func New[T any](value T, ack func(), nack func(error)) *Envelope[T] {
	if ack == nil {
		panic("ack: nil acknowledger")
	}
	if nack == nil {
		panic("ack: nil nacknowledger")
	}

	return &Envelope[T]{
		value:     value,
		ack:       ack,
		nack:      nack,
		immediate: true,
	}
}

// newQueued constructs an Envelope owned by a [Queue]: Acknowledge and
// Nacknowledge only mark it COMPLETED, leaving execution to the queue's
// drain loop.
func newQueued[T any](value T, ack func(), nack func(error)) *Envelope[T] {
	if ack == nil {
		panic("ack: nil acknowledger")
	}
	if nack == nil {
		panic("ack: nil nacknowledger")
	}

	return &Envelope[T]{
		value: value,
		ack:   ack,
		nack:  nack,
	}
}

// Value returns the payload wrapped by this envelope.
func (e *Envelope[T]) Value() T {
	return e.value
}

// Acknowledge attempts to transition the envelope from in-flight to
// completed and, for envelopes not owned by a [Queue], executes the
// acknowledger immediately. It returns true iff this call performed the
// transition; a redundant call (the envelope was already completed or
// executed) is a silent no-op that returns false.
func (e *Envelope[T]) Acknowledge() bool {
	ok := e.state.CompareAndSwap(int32(stateInFlight), int32(stateCompleted))
	if ok && e.immediate {
		e.execute()
	}
	return ok
}

// Nacknowledge attempts to set the envelope's error (first writer wins)
// and, on success, transitions it from in-flight to completed. For
// envelopes not owned by a [Queue] the nacknowledger runs immediately.
// It returns true iff this call set both the error and performed the
// transition.
func (e *Envelope[T]) Nacknowledge(err error) bool {
	if err == nil {
		panic("ack: nil error")
	}

	if !e.err.CompareAndSwap(nil, &err) {
		return false
	}

	ok := e.state.CompareAndSwap(int32(stateInFlight), int32(stateCompleted))
	if ok && e.immediate {
		e.execute()
	}
	return ok
}

// IsInFlight reports whether the envelope has not yet been completed.
// The result is a snapshot and may be stale by the time the caller acts
// on it; callers that need a consistent view must synchronize
// externally (as [Queue] does).
func (e *Envelope[T]) IsInFlight() bool {
	return envelopeState(e.state.Load()) == stateInFlight
}

// execute fires whichever of ack/nack applies, at most once. If the
// callback panics, the panic propagates to execute's caller; a [Queue]
// drain loop recovers it and routes it to its configured [ErrorHandler],
// but a directly-constructed [Envelope] has no such backstop and the
// panic will surface on whichever goroutine called Acknowledge or
// Nacknowledge.
func (e *Envelope[T]) execute() {
	if e.state.Swap(int32(stateExecuted)) == int32(stateExecuted) {
		return
	}

	errPtr := e.err.Load()
	if errPtr == nil {
		e.ack()
		return
	}
	e.nack(*errPtr)
}
