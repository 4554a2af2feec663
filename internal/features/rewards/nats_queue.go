// Package rewards — nats_queue.go: устойчивая очередь наград поверх NATS JetStream.
//
// Публикация идёт с Nats-Msg-Id = reward-<recordId>, поэтому повторная публикация
// той же записи в окне дедупликации отбрасывается самим сервером. Вне окна
// дубликат всё равно гасится уникальным индексом reward_ledger.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	libnats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

const (
	rewardStream   = "ENGAGEMENT_REWARDS"
	rewardSubject  = "engagement.rewards"
	rewardConsumer = "reward-awarder"
)

// NATSQueueOptions — параметры повторов.
type NATSQueueOptions struct {
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// NATSQueue публикует задания в JetStream и разбирает их durable-консьюмером.
type NATSQueue struct {
	js      jetstream.JetStream
	awarder Awarder
	opt     NATSQueueOptions
	consume jetstream.ConsumeContext
}

var _ interactions.RewardEnqueuer = (*NATSQueue)(nil)

// NewNATSQueue создаёт (или обновляет) стрим наград.
func NewNATSQueue(ctx context.Context, nc *libnats.Conn, awarder Awarder, opt NATSQueueOptions) (*NATSQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к JetStream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       rewardStream,
		Subjects:   []string{rewardSubject},
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания стрима %s: %w", rewardStream, err)
	}
	log.WithField("stream", rewardStream).Info("Стрим наград создан или обновлён")

	return &NATSQueue{js: js, awarder: awarder, opt: opt}, nil
}

// MsgID — идентификатор сообщения для дедупликации на сервере.
func MsgID(recordID int64) string {
	return fmt.Sprintf("reward-%d", recordID)
}

// EnqueueReward публикует задание асинхронно и не ждёт подтверждения.
func (q *NATSQueue) EnqueueReward(_ context.Context, rec interactions.Record) error {
	job := JobFromRecord(rec)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задания: %w", err)
	}

	ack, err := q.js.PublishAsync(rewardSubject, data, jetstream.WithMsgID(MsgID(job.RecordID)))
	if err != nil {
		metrics.RewardTotal.WithLabelValues("dropped").Inc()
		return fmt.Errorf("ошибка публикации задания: %w", err)
	}

	go func() {
		select {
		case <-ack.Ok():
		case err := <-ack.Err():
			metrics.RewardTotal.WithLabelValues("dropped").Inc()
			log.WithError(err).WithField("record_id", job.RecordID).
				Error("JetStream не подтвердил задание награды, требуется сверка")
		}
	}()
	return nil
}

// Start создаёт durable-консьюмер и начинает разбор заданий.
func (q *NATSQueue) Start(ctx context.Context) error {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, rewardStream, jetstream.ConsumerConfig{
		Durable:       rewardConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: rewardSubject,
		MaxDeliver:    q.opt.MaxRetry + 1,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания консьюмера %s: %w", rewardConsumer, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		q.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("ошибка запуска консьюмера: %w", err)
	}
	q.consume = cc
	return nil
}

func (q *NATSQueue) handle(ctx context.Context, msg jetstream.Msg) {
	var job Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		log.WithError(err).Error("Битое задание награды, сообщение удалено")
		_ = msg.Term()
		return
	}

	err := q.awarder.AwardPoints(ctx, job)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			// Повторная доставка безопасна: начисление идемпотентно
			log.WithError(ackErr).WithField("record_id", job.RecordID).Warn("Не удалось подтвердить задание")
		}
		return
	}

	delivered := uint64(1)
	if meta, mErr := msg.Metadata(); mErr == nil {
		delivered = meta.NumDelivered
	}
	fields := log.Fields{
		"record_id": job.RecordID,
		"user_id":   job.UserID,
		"attempt":   delivered,
	}
	if int(delivered) > q.opt.MaxRetry {
		metrics.RewardTotal.WithLabelValues("failed").Inc()
		log.WithError(err).WithFields(fields).Error("Начисление не удалось, требуется сверка")
		_ = msg.Term()
		return
	}

	log.WithError(err).WithFields(fields).Warn("Начисление не удалось, повтор")
	_ = msg.NakWithDelay(backoff(q.opt.BaseBackoff, q.opt.MaxBackoff, int(delivered)-1))
}

// Close останавливает разбор заданий. Соединение закрывает владелец.
func (q *NATSQueue) Close() {
	if q.consume != nil {
		q.consume.Stop()
	}
}
