package activity

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

func testRecord() interactions.Record {
	return interactions.Record{
		ID:        17,
		UserID:    3,
		ContentID: "c1",
		Kind:      interactions.KindLike,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(testRecord(), interactions.OutcomeAdded)

	id, err := uuid.Parse(evt.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "interaction.added", evt.Type)
	assert.Equal(t, int64(17), evt.RecordID)
	assert.Equal(t, testRecord().CreatedAt, evt.OccurredAt)

	b, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"like"`)
}

type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memorySink) Publish(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evt)
	return nil
}

func TestAsyncSinkDelivers(t *testing.T) {
	sink := &memorySink{}
	a := NewAsyncSink(sink, 4)

	require.NoError(t, a.RecordActivity(context.Background(), testRecord(), interactions.OutcomeAdded))
	a.Close()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "c1", sink.events[0].ContentID)

	// После Close события молча игнорируются
	assert.NoError(t, a.RecordActivity(context.Background(), testRecord(), interactions.OutcomeAdded))
}

func TestAsyncSinkSwallowsFailures(t *testing.T) {
	sink := &memorySink{err: assert.AnError}
	a := NewAsyncSink(sink, 4)

	require.NoError(t, a.RecordActivity(context.Background(), testRecord(), interactions.OutcomeAdded))
	a.Close()
	assert.Empty(t, sink.events)
}

func TestKafkaSinkPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var evt Event
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		assert.Equal(t, "c1", evt.ContentID)
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaSink(producer, "engagement.activity")
	evt := NewEvent(testRecord(), interactions.OutcomeAdded)

	require.NoError(t, sink.Publish(context.Background(), evt))
	assert.ErrorIs(t, sink.Publish(context.Background(), evt), sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{}.Publish(context.Background(), NewEvent(testRecord(), interactions.OutcomeAdded)))
}
