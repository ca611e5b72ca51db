// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kafka implements [github.com/z5labs/humus/queue] on top of a
// Kafka consumer group, using [github.com/twmb/franz-go].
//
// [Build] turns a [Config] plus a set of [TopicProcessor] values into an
// [github.com/z5labs/humus/app.Builder] for a [queue.QueueRuntime]. Each
// topic picks its own [DeliveryMode]:
//
//	cfg := kafka.Config{
//	    Brokers: kafka.BrokersFromEnv(),
//	    GroupID: kafka.GroupIDFromEnv(),
//	}
//
//	topics := []kafka.TopicProcessor{
//	    {Topic: "orders", Processor: ordersProcessor, DeliveryMode: kafka.AtLeastOnce},
//	    {Topic: "clicks", Processor: clicksProcessor, DeliveryMode: kafka.AtMostOnce},
//	}
//
//	app.Run(ctx, kafka.Build(cfg, topics))
//
// Infrastructure settings on [Config] are
// [github.com/z5labs/humus/config.Reader] values, so they can be sourced
// from the environment (the *FromEnv helpers), from a file, or hard-coded
// in tests with a [github.com/z5labs/humus/config.ReaderFunc] that returns
// [github.com/z5labs/humus/config.ValueOf].
//
// # Delivery modes
//
// [AtMostOnce] commits a fetched batch before any of its records are
// processed: offsets always advance, and a processing failure only costs
// that one message. [AtLeastOnce] commits each record only after its own
// processing succeeds, so a failure leaves it uncommitted for redelivery;
// processors selecting this mode must tolerate being called more than
// once for the same record.
//
// Within a single fetched batch, at-least-once delivery processes records
// concurrently but commits them in fetch order: an
// [github.com/z5labs/humus/ack.Queue] holds each record's commit until
// every record ahead of it has also finished, so a slow record never lets
// a later offset commit ahead of it.
//
// # Partition concurrency
//
// Each assigned partition gets its own [queue.QueueRuntime] driven by an
// internal event loop that dispatches fetched batches as partitions are
// assigned and stops them as partitions are revoked or lost during a
// consumer group rebalance.
//
// # Instrumentation
//
// Logging goes through [github.com/z5labs/humus.Logger]. Each processed
// record is traced via the configured OpenTelemetry tracer provider, and
// messages-processed/messages-committed counters are recorded against the
// configured meter provider; see [initConsumerMetrics].
package kafka
