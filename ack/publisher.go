// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ack

import (
	"reflect"
	"sync"
	"sync/atomic"
)

type publisherState int32

const (
	pubActive publisherState = iota
	pubInFlight
	pubExecuted
)

// Publisher wraps a single-subscription upstream [Source] of T, re-emits
// each value inside an [Envelope], and fires srcAck exactly once the
// upstream has terminated normally and every emitted envelope has been
// acknowledged, or srcNack exactly once with the first observed error
// otherwise.
//
// Publisher may be subscribed to at most once; construct a new one per
// subscription attempt.
type Publisher[T any] struct {
	source  Source[T]
	srcAck  func()
	srcNack func(error)

	subscribedOnce atomic.Bool
}

// NewPublisher constructs a [Publisher] wrapping source. srcAck fires
// when every value source ever emits has been acknowledged by the
// downstream subscriber and source has completed; srcNack fires with
// the first error observed from either source or a downstream
// negative-acknowledgement.
//
// NewPublisher panics if source, srcAck, or srcNack is nil.
func NewPublisher[T any](source Source[T], srcAck func(), srcNack func(error)) *Publisher[T] {
	if source == nil {
		panic("ack: nil source")
	}
	if srcAck == nil {
		panic("ack: nil acknowledger")
	}
	if srcNack == nil {
		panic("ack: nil nacknowledger")
	}

	return &Publisher[T]{
		source:  source,
		srcAck:  srcAck,
		srcNack: srcNack,
	}
}

// Subscribe attaches sub as the sole downstream subscriber. It returns
// [ErrAlreadySubscribed] if called more than once.
func (p *Publisher[T]) Subscribe(sub Subscriber[*Envelope[T]]) error {
	if !p.subscribedOnce.CompareAndSwap(false, true) {
		return ErrAlreadySubscribed
	}

	as := &ackingSubscriber[T]{
		srcAck:         p.srcAck,
		srcNack:        p.srcNack,
		downstream:     sub,
		unacknowledged: make(map[uint64]struct{}),
	}
	p.source.Subscribe(as)
	return nil
}

// ackingSubscriber is the per-subscription state machine described in
// spec §4.3: it tracks which emitted envelopes are still unacknowledged
// by an opaque monotonically-increasing handle (rather than a weak
// reference to the value itself, which Go's garbage collector offers no
// pre-1.24 equivalent of and which wouldn't help generic, possibly
// non-pointer T anyway).
type ackingSubscriber[T any] struct {
	srcAck     func()
	srcNack    func(error)
	downstream Subscriber[*Envelope[T]]

	nextID atomic.Uint64

	mu             sync.Mutex
	unacknowledged map[uint64]struct{}

	state atomic.Int32
}

// isNilValue reports whether v's dynamic value is nil, for the kinds of
// T where "nil" is meaningful (pointers, interfaces, maps, slices,
// chans, funcs). Value kinds such as structs, numerics, and strings are
// never nil and always report false.
func isNilValue[T any](v T) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

func (s *ackingSubscriber[T]) OnSubscribe(upstream Subscription) {
	decorated := subscriptionFuncs{
		request: upstream.Request,
		cancel: func() {
			upstream.Cancel()
			if s.state.CompareAndSwap(int32(pubActive), int32(pubInFlight)) {
				s.maybeFireSrcAck()
			}
		},
	}
	s.downstream.OnSubscribe(decorated)
}

// OnNext panics if v is nil. A nil value is a protocol violation by the
// upstream source, not a processing failure of an emitted value, so it
// is reported synchronously to the offending caller's stack rather than
// routed through OnError and the srcNack path (reactive-streams rule
// 2.13).
func (s *ackingSubscriber[T]) OnNext(v T) {
	if isNilValue(v) {
		panic(ErrNilValue)
	}

	id := s.nextID.Add(1)

	s.mu.Lock()
	if publisherState(s.state.Load()) == pubActive {
		s.unacknowledged[id] = struct{}{}
	}
	s.mu.Unlock()

	env := New(v, s.ackFunc(id), s.nackFunc(id))
	s.downstream.OnNext(env)
}

func (s *ackingSubscriber[T]) ackFunc(id uint64) func() {
	return func() {
		s.mu.Lock()
		_, tracked := s.unacknowledged[id]
		if tracked {
			delete(s.unacknowledged, id)
		}
		s.mu.Unlock()

		if tracked {
			s.maybeFireSrcAck()
		}
	}
}

func (s *ackingSubscriber[T]) nackFunc(id uint64) func(error) {
	return func(err error) {
		s.mu.Lock()
		_, tracked := s.unacknowledged[id]
		s.mu.Unlock()

		if tracked {
			s.maybeFireSrcNack(err)
		}
	}
}

func (s *ackingSubscriber[T]) OnComplete() {
	if s.state.CompareAndSwap(int32(pubActive), int32(pubInFlight)) {
		s.maybeFireSrcAck()
	}
	s.downstream.OnComplete()
}

func (s *ackingSubscriber[T]) OnError(err error) {
	s.maybeFireSrcNack(err)
	s.downstream.OnError(err)
}

func (s *ackingSubscriber[T]) maybeFireSrcAck() {
	s.mu.Lock()
	empty := len(s.unacknowledged) == 0
	fire := empty && s.state.CompareAndSwap(int32(pubInFlight), int32(pubExecuted))
	s.mu.Unlock()

	if fire {
		s.srcAck()
	}
}

func (s *ackingSubscriber[T]) maybeFireSrcNack(err error) {
	s.mu.Lock()
	fire := s.state.CompareAndSwap(int32(pubActive), int32(pubExecuted)) ||
		s.state.CompareAndSwap(int32(pubInFlight), int32(pubExecuted))
	if fire {
		for id := range s.unacknowledged {
			delete(s.unacknowledged, id)
		}
	}
	s.mu.Unlock()

	if fire {
		s.srcNack(err)
	}
}
