package rewards

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

// flakyAwarder падает failures раз, потом отвечает успехом.
type flakyAwarder struct {
	failures int32
	calls    atomic.Int32
	mu       sync.Mutex
	done     []int64
}

func (f *flakyAwarder) AwardPoints(_ context.Context, job Job) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return errors.New("база недоступна")
	}
	f.mu.Lock()
	f.done = append(f.done, job.RecordID)
	f.mu.Unlock()
	return nil
}

func testOptions() DispatcherOptions {
	return DispatcherOptions{
		Workers:     1,
		QueueSize:   8,
		MaxRetry:    3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	awarder := &flakyAwarder{failures: 2}
	d := NewDispatcher(awarder, testOptions())

	err := d.EnqueueReward(context.Background(), interactions.Record{ID: 5, UserID: 1, ContentID: "c1", Kind: interactions.KindLike})
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(3), awarder.calls.Load())
	assert.Equal(t, []int64{5}, awarder.done)
}

func TestDispatcherGivesUpAfterMaxRetry(t *testing.T) {
	awarder := &flakyAwarder{failures: 100}
	d := NewDispatcher(awarder, testOptions())

	require.NoError(t, d.Enqueue(Job{RecordID: 1, UserID: 1, Kind: interactions.KindLike}))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(4), awarder.calls.Load(), "1 попытка + 3 повтора")
	assert.Empty(t, awarder.done)
}

// blockingAwarder держит воркер, пока не закроют release.
type blockingAwarder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAwarder) AwardPoints(context.Context, Job) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestDispatcherQueueFullDoesNotBlock(t *testing.T) {
	awarder := &blockingAwarder{started: make(chan struct{}), release: make(chan struct{})}
	opt := testOptions()
	opt.QueueSize = 1
	d := NewDispatcher(awarder, opt)

	require.NoError(t, d.Enqueue(Job{RecordID: 1, UserID: 1}))
	<-awarder.started // воркер занят первым заданием
	require.NoError(t, d.Enqueue(Job{RecordID: 2, UserID: 1}))

	start := time.Now()
	err := d.Enqueue(Job{RecordID: 3, UserID: 1})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(awarder.release)
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Enqueue(Job{RecordID: 4, UserID: 1}), ErrDispatcherClosed)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, backoff(10*time.Millisecond, time.Second, 0))
	assert.Equal(t, 40*time.Millisecond, backoff(10*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, backoff(10*time.Millisecond, time.Second, 20))
	assert.Equal(t, time.Second, backoff(10*time.Millisecond, time.Second, 100))
}

func TestMsgID(t *testing.T) {
	assert.Equal(t, "reward-42", MsgID(42))
}
