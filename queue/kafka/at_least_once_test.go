// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/z5labs/humus/queue"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
)

type mockFetchConsumer struct {
	fetches []fetch
	index   int
	err     error
}

func (m *mockFetchConsumer) Consume(ctx context.Context) (fetch, error) {
	if m.err != nil {
		return fetch{}, m.err
	}
	if m.index >= len(m.fetches) {
		return fetch{}, queue.ErrEndOfQueue
	}
	f := m.fetches[m.index]
	m.index++
	return f, nil
}

// mockMessageProcessor fails only for records whose value matches failOn,
// so tests can exercise partial-batch failure.
type mockMessageProcessor struct {
	mu       sync.Mutex
	messages []Message
	err      error
	failOn   []byte
}

func (m *mockMessageProcessor) Process(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	if m.err == nil {
		return nil
	}
	if m.failOn != nil && string(msg.Value) != string(m.failOn) {
		return nil
	}
	return m.err
}

type mockRecordAcknowledger struct {
	mu           sync.Mutex
	acknowledged [][]*kgo.Record
	err          error
}

func (m *mockRecordAcknowledger) Acknowledge(ctx context.Context, records []*kgo.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.acknowledged = append(m.acknowledged, records)
	return nil
}

func newTestAtLeastOnceRuntime(consumer queue.Consumer[fetch], processor queue.Processor[Message], acknowledger queue.Acknowledger[[]*kgo.Record]) atLeastOncePartitionRuntime {
	meter := noop.NewMeterProvider().Meter("test")
	processedCounter, _ := meter.Int64Counter("messages_processed")
	committedCounter, _ := meter.Int64Counter("messages_committed")

	return atLeastOncePartitionRuntime{
		log:      slog.Default(),
		consumer: consumer,
		processor: recordProcessor{
			log:               slog.Default(),
			tracer:            otel.Tracer("test"),
			processor:         processor,
			messagesProcessed: processedCounter,
		},
		acknowledger:      acknowledger,
		messagesCommitted: committedCounter,
	}
}

func TestAtLeastOncePartitionRuntime_ProcessQueue(t *testing.T) {
	t.Run("will commit every record in a batch when processing succeeds", func(t *testing.T) {
		ctx := context.Background()

		records := []*kgo.Record{
			{Topic: "test", Partition: 0, Offset: 100, Value: []byte("msg1")},
			{Topic: "test", Partition: 0, Offset: 101, Value: []byte("msg2")},
		}
		consumer := &mockFetchConsumer{fetches: []fetch{{topicPartition: topicPartition{topic: "test", partition: 0}, records: records}}}
		processor := &mockMessageProcessor{}
		acknowledger := &mockRecordAcknowledger{}

		rt := newTestAtLeastOnceRuntime(consumer, processor, acknowledger)

		err := rt.ProcessQueue(ctx)
		require.NoError(t, err)
		require.Len(t, processor.messages, 2)
		require.Len(t, acknowledger.acknowledged, 2)
	})

	t.Run("will not commit a record whose processing failed", func(t *testing.T) {
		ctx := context.Background()

		records := []*kgo.Record{
			{Topic: "test", Partition: 0, Offset: 100, Value: []byte("good")},
			{Topic: "test", Partition: 0, Offset: 101, Value: []byte("bad")},
		}
		consumer := &mockFetchConsumer{fetches: []fetch{{topicPartition: topicPartition{topic: "test", partition: 0}, records: records}}}
		processor := &mockMessageProcessor{err: errors.New("processing failed"), failOn: []byte("bad")}
		acknowledger := &mockRecordAcknowledger{}

		rt := newTestAtLeastOnceRuntime(consumer, processor, acknowledger)

		err := rt.ProcessQueue(ctx)
		require.NoError(t, err)
		require.Len(t, processor.messages, 2)

		var committedOffsets []int64
		for _, batch := range acknowledger.acknowledged {
			for _, r := range batch {
				committedOffsets = append(committedOffsets, r.Offset)
			}
		}
		require.Contains(t, committedOffsets, int64(100))
		require.NotContains(t, committedOffsets, int64(101))
	})

	t.Run("will propagate a consume error", func(t *testing.T) {
		ctx := context.Background()

		expectedErr := errors.New("consume failed")
		consumer := &mockFetchConsumer{err: expectedErr}
		processor := &mockMessageProcessor{}
		acknowledger := &mockRecordAcknowledger{}

		rt := newTestAtLeastOnceRuntime(consumer, processor, acknowledger)

		err := rt.ProcessQueue(ctx)
		require.ErrorIs(t, err, expectedErr)
		require.Len(t, processor.messages, 0)
	})

	t.Run("will return gracefully at end of queue", func(t *testing.T) {
		ctx := context.Background()

		consumer := &mockFetchConsumer{fetches: []fetch{}}
		processor := &mockMessageProcessor{}
		acknowledger := &mockRecordAcknowledger{}

		rt := newTestAtLeastOnceRuntime(consumer, processor, acknowledger)

		err := rt.ProcessQueue(ctx)
		require.NoError(t, err)
		require.Len(t, acknowledger.acknowledged, 0)
	})

	t.Run("will log, not return, an acknowledge error", func(t *testing.T) {
		ctx := context.Background()

		records := []*kgo.Record{
			{Topic: "test", Partition: 0, Offset: 100, Value: []byte("msg1")},
		}
		consumer := &mockFetchConsumer{fetches: []fetch{{topicPartition: topicPartition{topic: "test", partition: 0}, records: records}}}
		processor := &mockMessageProcessor{}
		acknowledger := &mockRecordAcknowledger{err: errors.New("acknowledge failed")}

		rt := newTestAtLeastOnceRuntime(consumer, processor, acknowledger)

		err := rt.ProcessQueue(ctx)
		require.NoError(t, err, "an acknowledge failure is logged, not returned, since the record will simply be redelivered")
		require.Len(t, processor.messages, 1)
		require.Len(t, acknowledger.acknowledged, 0)
	})
}
