// Package rewards — dispatcher.go: локальная ограниченная очередь + воркеры
// с повторами и экспоненциальной задержкой.
//
// Enqueue только кладёт задание в очередь и никогда не ждёт: тоггл уже закоммичен.
// Задания, потерянные при переполнении или после исчерпанных повторов, дозачисляет Service.Reconcile.
package rewards

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

// Awarder — то, что умеет выполнить задание (обычно *Service).
type Awarder interface {
	AwardPoints(ctx context.Context, job Job) error
}

// DispatcherOptions — параметры очереди.
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Dispatcher — in-process очередь наград.
type Dispatcher struct {
	awarder Awarder
	opt     DispatcherOptions
	queue   chan Job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

var _ interactions.RewardEnqueuer = (*Dispatcher)(nil)

// NewDispatcher создаёт очередь и сразу запускает воркеров.
func NewDispatcher(awarder Awarder, opt DispatcherOptions) *Dispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		awarder: awarder,
		opt:     opt,
		queue:   make(chan Job, opt.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opt.Workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
	return d
}

// EnqueueReward реализует interactions.RewardEnqueuer.
func (d *Dispatcher) EnqueueReward(_ context.Context, rec interactions.Record) error {
	return d.Enqueue(JobFromRecord(rec))
}

// Enqueue кладёт задание в очередь. Очередь полна — ErrQueueFull, без ожидания.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- job:
		metrics.RewardQueueDepth.Inc()
		return nil
	default:
		metrics.RewardTotal.WithLabelValues("dropped").Inc()
		log.WithFields(log.Fields{
			"record_id": job.RecordID,
			"user_id":   job.UserID,
		}).Error("Очередь наград заполнена, задание отброшено")
		return ErrQueueFull
	}
}

// Close перестаёт принимать задания и ждёт, пока воркеры разберут очередь.
// Если ctx истёк раньше — прерывает ожидание задержек между повторами.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for job := range d.queue {
		metrics.RewardQueueDepth.Dec()
		d.awardWithRetry(workerID, job)
	}
}

func (d *Dispatcher) awardWithRetry(workerID int, job Job) {
	for attempt := 0; attempt <= d.opt.MaxRetry; attempt++ {
		err := d.awarder.AwardPoints(d.ctx, job)
		if err == nil {
			return
		}

		if attempt == d.opt.MaxRetry || d.ctx.Err() != nil {
			metrics.RewardTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithFields(log.Fields{
				"record_id": job.RecordID,
				"user_id":   job.UserID,
				"kind":      job.Kind.String(),
				"attempts":  attempt + 1,
				"worker":    workerID,
			}).Error("Начисление не удалось, требуется сверка")
			return
		}

		select {
		case <-time.After(backoff(d.opt.BaseBackoff, d.opt.MaxBackoff, attempt)):
		case <-d.ctx.Done():
		}
	}
}

// backoff — base * 2^attempt, не больше max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	b := base * time.Duration(1<<attempt)
	if max > 0 && (b > max || b <= 0) {
		b = max
	}
	return b
}
