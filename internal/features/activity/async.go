package activity

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

// ErrQueueFull — очередь событий заполнена, событие отброшено.
var ErrQueueFull = errors.New("очередь событий активности заполнена")

// AsyncSink — ограниченная очередь и один воркер перед медленным приёмником.
// Тоггл только кладёт событие в очередь и не ждёт.
type AsyncSink struct {
	sink  Sink
	queue chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ interactions.ActivitySink = (*AsyncSink)(nil)

// NewAsyncSink запускает воркер.
func NewAsyncSink(sink Sink, queueSize int) *AsyncSink {
	if queueSize <= 0 {
		queueSize = 1
	}
	a := &AsyncSink{
		sink:  sink,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

// RecordActivity реализует interactions.ActivitySink.
func (a *AsyncSink) RecordActivity(_ context.Context, rec interactions.Record, outcome interactions.Outcome) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}

	select {
	case a.queue <- NewEvent(rec, outcome):
		return nil
	default:
		metrics.ActivityTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

func (a *AsyncSink) loop() {
	defer close(a.done)
	for evt := range a.queue {
		if err := a.sink.Publish(context.Background(), evt); err != nil {
			metrics.ActivityTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("event_id", evt.ID).Warn("Событие активности не доставлено")
			continue
		}
		metrics.ActivityTotal.WithLabelValues("published").Inc()
	}
}

// Close дожидается отправки накопленных событий.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
