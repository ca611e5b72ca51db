// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queue provides support for creating message queue processing services.
//
// The queue package implements a three-phase message processing pattern that separates
// concerns for consuming, processing, and acknowledging messages from a queue:
//
//   - Consumer: retrieves messages from a queue
//   - Processor: executes business logic on messages
//   - Acknowledger: confirms successful processing back to the queue
//
// Runtime implementations orchestrate these three phases and handle the application
// lifecycle. When a Consumer returns [ErrEndOfQueue], it signals that the queue is
// exhausted and the Runtime should shut down gracefully. This is particularly useful
// for finite queues or batch processing scenarios.
//
// # Example Usage
//
// Here's a typical Runtime implementation that coordinates the three phases:
//
//	type MyRuntime struct {
//	    consumer     queue.Consumer[Message]
//	    processor    queue.Processor[Message]
//	    acknowledger queue.Acknowledger[Message]
//	}
//
//	func (r *MyRuntime) ProcessQueue(ctx context.Context) error {
//	    for {
//	        // Phase 1: Consume a message
//	        msg, err := r.consumer.Consume(ctx)
//	        if errors.Is(err, queue.ErrEndOfQueue) {
//	            // Queue is exhausted, shut down gracefully
//	            return nil
//	        }
//	        if err != nil {
//	            return fmt.Errorf("consume failed: %w", err)
//	        }
//
//	        // Phase 2: Process the message
//	        if err := r.processor.Process(ctx, msg); err != nil {
//	            return fmt.Errorf("process failed: %w", err)
//	        }
//
//	        // Phase 3: Acknowledge successful processing
//	        if err := r.acknowledger.Acknowledge(ctx, msg); err != nil {
//	            return fmt.Errorf("acknowledge failed: %w", err)
//	        }
//	    }
//	}
//
// The runtime is then built with [Build] and driven with [Run]:
//
//	func main() {
//	    builder := queue.Build(&MyRuntime{...})
//	    queue.Run(context.Background(), builder)
//	}
//
// # Processing Semantics
//
// [ProcessAtMostOnce] and [ProcessAtLeastOnce] build an [ItemProcessor]
// around a Consumer/Processor/Acknowledger triple that implements one of
// two delivery guarantees, one item per call to ProcessItem:
//
// ProcessAtMostOnce acknowledges a message immediately after consumption,
// before processing. If processing fails, the message is lost and will
// not be retried. Use this for non-critical data where performance
// matters more than reliability:
//
//	p := queue.ProcessAtMostOnce(consumer, processor, acknowledger)
//	for {
//	    err := p.ProcessItem(ctx)
//	    if errors.Is(err, queue.ErrEndOfQueue) {
//	        return nil
//	    }
//	    // continue even on errors - the message was already acknowledged
//	}
//
// ProcessAtLeastOnce only acknowledges a message after it has been
// processed successfully. If processing fails, the message stays
// unacknowledged and will be redelivered, so processor must be
// idempotent. Use this for critical data where reliability matters more
// than avoiding duplicate processing:
//
//	p := queue.ProcessAtLeastOnce(consumer, processor, acknowledger)
//	for {
//	    err := p.ProcessItem(ctx)
//	    if errors.Is(err, queue.ErrEndOfQueue) {
//	        return nil
//	    }
//	    if err != nil {
//	        // message not acknowledged, will be retried
//	        return err
//	    }
//	}
//
// [github.com/z5labs/humus/queue/kafka] drives both delivery modes
// per-partition against a real Kafka consumer group, additionally using
// [github.com/z5labs/humus/ack] so at-least-once processing can run
// concurrently within a fetch batch while still committing offsets back
// in order.
package queue
