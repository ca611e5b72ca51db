// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/z5labs/humus/ack"
	"github.com/z5labs/humus/queue"

	"github.com/sourcegraph/conc/pool"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// atLeastOnceOrchestrator drives a single partition with at-least-once
// delivery semantics: records within a fetched batch are processed
// concurrently, but each is only committed once its processing succeeds,
// and commits happen in fetch order regardless of which record finished
// processing first. A processing failure leaves its record uncommitted
// so it will be redelivered on the next fetch. Pair with [AtLeastOnce]
// in a [TopicProcessor] to select this mode for a topic.
type atLeastOnceOrchestrator struct {
	groupId   string
	processor queue.Processor[Message]
}

func newAtLeastOnceOrchestrator(
	groupID string,
	processor queue.Processor[Message],
) partitionOrchestrator {
	return atLeastOnceOrchestrator{
		groupId:   groupID,
		processor: processor,
	}
}

func (o atLeastOnceOrchestrator) Orchestrate(
	consumer queue.Consumer[fetch],
	acknowledger queue.Acknowledger[[]*kgo.Record],
) queue.QueueRuntime {
	log := logger().With(GroupIDAttr(o.groupId))
	metrics := initConsumerMetrics(log)

	return atLeastOncePartitionRuntime{
		log:      log,
		consumer: consumer,
		processor: recordProcessor{
			log:               log,
			tracer:            tracer(),
			processor:         o.processor,
			messagesProcessed: metrics.messagesProcessed,
		},
		acknowledger:      acknowledger,
		messagesCommitted: metrics.messagesCommitted,
	}
}

type atLeastOncePartitionRuntime struct {
	log               *slog.Logger
	consumer          queue.Consumer[fetch]
	processor         recordProcessor
	acknowledger      queue.Acknowledger[[]*kgo.Record]
	messagesCommitted metric.Int64Counter
}

func (rt atLeastOncePartitionRuntime) ProcessQueue(ctx context.Context) error {
	p := pool.New().WithContext(ctx)

	fetchCh := make(chan fetch)
	p.Go(consumeFetches(rt.log, rt.consumer, fetchCh))

	p.Go(func(ctx context.Context) error {
		for f := range fetchCh {
			if err := rt.processFetch(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})

	return p.Wait()
}

// processFetch runs every record in f through rt.processor concurrently,
// but acknowledges records back to Kafka strictly in the order they were
// fetched: an [ack.Queue] holds each record's commit until every record
// ahead of it in the batch has also finished processing, so offsets
// never advance past a record still being processed.
func (rt atLeastOncePartitionRuntime) processFetch(ctx context.Context, f fetch) error {
	q := ack.Unordered[*kgo.Record]()
	envs := make([]*ack.Envelope[*kgo.Record], len(f.records))

	for i, record := range f.records {
		record := record
		envs[i] = q.AddValue(
			record,
			func() { rt.commitRecord(ctx, f, record) },
			func(err error) {
				rt.log.WarnContext(
					ctx,
					"record not committed after processing failure, it will be redelivered",
					TopicAttr(record.Topic),
					PartitionAttr(record.Partition),
					OffsetAttr(record.Offset),
					slog.Any("error", err),
				)
			},
		)
	}

	p := pool.New().WithContext(ctx)
	for i, record := range f.records {
		i, record := i, record
		p.Go(func(ctx context.Context) error {
			err := rt.processor.processErr(ctx, record)
			if err != nil {
				q.CompleteExceptionally(envs[i], err)
				return nil
			}
			q.Complete(envs[i])
			return nil
		})
	}

	return p.Wait()
}

func (rt atLeastOncePartitionRuntime) commitRecord(ctx context.Context, f fetch, record *kgo.Record) {
	err := rt.acknowledger.Acknowledge(ctx, []*kgo.Record{record})
	if err != nil {
		rt.log.ErrorContext(
			ctx,
			"failed to commit kafka record",
			TopicAttr(record.Topic),
			PartitionAttr(record.Partition),
			OffsetAttr(record.Offset),
			slog.Any("error", err),
		)
		return
	}

	rt.messagesCommitted.Add(ctx, 1, metric.WithAttributes(
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(f.topic),
		semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(f.partition), 10)),
	))
}
