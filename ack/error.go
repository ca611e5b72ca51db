// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ack

import "errors"

// ErrAlreadySubscribed is returned by [Publisher.Subscribe] when called
// more than once on the same [Publisher].
var ErrAlreadySubscribed = errors.New("ack: publisher may only be subscribed to once")

// ErrNilValue is the panic value used when an upstream source emits a
// nil value to a [Publisher]. Reactive-streams sources must not emit
// nil; a [Publisher] treats it as a protocol violation by the source
// and panics synchronously back into the call to Subscriber.OnNext,
// rather than routing it through OnError as an ordinary downstream
// failure.
var ErrNilValue = errors.New("ack: nil value emitted upstream")

// ErrorHandler is notified when an ack or nack callback passed to
// [Queue.Add] or [Queue.AddValue] panics during a [Queue] drain. It is never
// invoked for the normal, non-panicking case.
type ErrorHandler interface {
	HandleError(error)
}

// ErrorHandlerFunc is a func type implementation of [ErrorHandler].
type ErrorHandlerFunc func(error)

// HandleError implements the [ErrorHandler] interface.
func (f ErrorHandlerFunc) HandleError(err error) {
	f(err)
}

// discardErrorHandler is the default [ErrorHandler]; it drops whatever
// it's given.
type discardErrorHandler struct{}

func (discardErrorHandler) HandleError(error) {}

// DiscardErrors is an [ErrorHandler] that ignores every error handed to
// it. It is the default used by [Ordered] and [Unordered] queues.
var DiscardErrors ErrorHandler = discardErrorHandler{}

// panicError wraps a recovered panic value as an error so it can be
// routed through an [ErrorHandler].
type panicError struct {
	recovered any
}

func (p panicError) Error() string {
	if err, ok := p.recovered.(error); ok {
		return "ack: callback panicked: " + err.Error()
	}
	return "ack: callback panicked"
}
