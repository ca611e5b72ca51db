// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package ack provides an acknowledgement core for at-least-once message
// processing over brokered sources.
//
// Downstream pipelines built on top of a [queue.Consumer] frequently emit,
// fork, batch, and reorder messages across goroutines before the original
// message can be safely acknowledged back to the broker. This package lets
// that downstream code complete work in whatever order it finishes, while
// still surfacing in-order acknowledgement where the caller needs it.
//
// [Envelope] couples a value with its positive and negative acknowledgers
// and guarantees they are invoked at most once. [Queue] is a FIFO of
// in-flight envelopes that releases its completed prefix to a single
// drainer goroutine, with two ordering policies: [Ordered] enforces strict
// FIFO completion order, [Unordered] allows any envelope to complete
// independently and drains the longest completed prefix. [Publisher] wraps
// a single-subscription upstream source, re-emits each value inside an
// [Envelope], and fires a source-level acknowledgement once the upstream
// has terminated and every emitted envelope has resolved.
//
// Nothing in this package performs I/O; it is a pure, synchronous,
// allocation-light concurrency primitive intended to sit underneath a
// broker-specific runtime such as [github.com/z5labs/humus/queue/kafka].
package ack
