// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ack

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Option configures a [Queue] constructed by [Ordered] or [Unordered].
type Option func(*options)

type options struct {
	errHandler ErrorHandler
}

// OnCallbackError registers a handler invoked when an ack/nack callback
// panics during a drain. The default is [DiscardErrors].
func OnCallbackError(h ErrorHandler) Option {
	return func(o *options) {
		o.errHandler = h
	}
}

// Queue is a thread-safe FIFO of in-flight [Envelope]s. Completions may
// arrive from any goroutine in any order; Queue is responsible for
// releasing envelopes to exactly one drainer at a time, in the order
// its ordering policy permits.
//
// Construct a Queue with [Ordered] or [Unordered]; the zero value is not
// usable.
type Queue[T any] struct {
	mu    sync.Mutex
	items *list.List // of *Envelope[T]

	drainsInProgress atomic.Int32

	ordered    bool
	errHandler ErrorHandler
}

func newQueue[T any](ordered bool, opts ...Option) *Queue[T] {
	o := options{errHandler: DiscardErrors}
	for _, opt := range opts {
		opt(&o)
	}

	return &Queue[T]{
		items:      list.New(),
		ordered:    ordered,
		errHandler: o.errHandler,
	}
}

// Ordered constructs a [Queue] whose Complete/CompleteExceptionally only
// mark an envelope completed when it is the current head of the queue.
// Completing a non-head envelope is a no-op that leaves it in-flight;
// strict FIFO release is guaranteed, but a caller that completes
// out-of-order must retry once the head has moved — Ordered does not
// queue the pending completion and replay it automatically. Use Ordered
// only where completions are guaranteed to arrive in emission order,
// e.g. a single goroutine consuming one partition at a time.
func Ordered[T any](opts ...Option) *Queue[T] {
	return newQueue[T](true, opts...)
}

// Unordered constructs a [Queue] whose Complete/CompleteExceptionally
// apply unconditionally to whichever envelope is named, regardless of
// its position in the queue. The drain releases the longest completed
// prefix, so execution still observes FIFO order even though completion
// does not have to.
func Unordered[T any](opts ...Option) *Queue[T] {
	return newQueue[T](false, opts...)
}

// Add constructs an [Envelope] bound to ack/nack, enqueues it at the
// tail, and returns it. Enqueue order defines the FIFO drain order.
func (q *Queue[T]) Add(ack func(), nack func(error)) *Envelope[T] {
	env := newQueued[T](*new(T), ack, nack)

	q.mu.Lock()
	q.items.PushBack(env)
	q.mu.Unlock()

	return env
}

// AddValue is like [Queue.Add] but also attaches a payload, retrievable
// later via [Envelope.Value].
func (q *Queue[T]) AddValue(value T, ack func(), nack func(error)) *Envelope[T] {
	env := newQueued[T](value, ack, nack)

	q.mu.Lock()
	q.items.PushBack(env)
	q.mu.Unlock()

	return env
}

// Complete attempts to positively complete env. If the completion is
// accepted (see [Ordered] for when it isn't) it runs a drain pass and
// returns the number of envelopes executed during that pass; otherwise
// it returns 0 and leaves env in-flight.
func (q *Queue[T]) Complete(env *Envelope[T]) uint64 {
	if !q.complete(env, (*Envelope[T]).Acknowledge) {
		return 0
	}
	return q.drain()
}

// CompleteExceptionally is the negative-completion counterpart of
// [Queue.Complete].
func (q *Queue[T]) CompleteExceptionally(env *Envelope[T], err error) uint64 {
	completer := func(e *Envelope[T]) bool {
		return e.Nacknowledge(err)
	}
	if !q.complete(env, completer) {
		return 0
	}
	return q.drain()
}

// complete is the single hook the two ordering policies differ over.
func (q *Queue[T]) complete(env *Envelope[T], completer func(*Envelope[T]) bool) bool {
	if !q.ordered {
		return completer(env)
	}

	q.mu.Lock()
	isHead := q.items.Len() > 0 && q.items.Front().Value.(*Envelope[T]) == env
	q.mu.Unlock()

	if !isHead {
		return false
	}
	return completer(env)
}

// drain implements the canonical lock-free single-drainer protocol: the
// goroutine that observes drainsInProgress == 0 runs the loop; every
// other concurrent caller just increments the counter and returns,
// trusting the active drainer to observe their increment before it
// exits.
func (q *Queue[T]) drain() uint64 {
	if q.drainsInProgress.Add(1) != 1 {
		return 0
	}

	var drained uint64
	missed := int32(1)
	for {
		for {
			q.mu.Lock()
			front := q.items.Front()
			if front == nil {
				q.mu.Unlock()
				break
			}
			env := front.Value.(*Envelope[T])
			if env.IsInFlight() {
				q.mu.Unlock()
				break
			}
			q.items.Remove(front)
			q.mu.Unlock()

			q.executeWithRecover(env)
			drained++
		}

		missed = q.drainsInProgress.Add(-missed)
		if missed == 0 {
			return drained
		}
	}
}

func (q *Queue[T]) executeWithRecover(env *Envelope[T]) {
	defer func() {
		if r := recover(); r != nil {
			q.errHandler.HandleError(panicError{recovered: r})
		}
	}()
	env.execute()
}

// Len reports the number of envelopes currently tracked by the queue,
// both in-flight and completed-but-not-yet-drained.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
