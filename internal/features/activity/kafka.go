package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaSink отправляет события в топик Kafka. Ключ — contentId,
// чтобы события одного контента попадали в одну партицию по порядку.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer создаёт синхронного продюсера.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	// SyncProducer требует Return.Successes
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к Kafka: %w", err)
	}
	return producer, nil
}

// NewKafkaSink создаёт приёмник поверх готового продюсера.
func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// Publish реализует Sink.
func (k *KafkaSink) Publish(_ context.Context, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(evt.ContentID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("ошибка отправки события в %s: %w", k.topic, err)
	}
	return nil
}

// Close закрывает продюсера.
func (k *KafkaSink) Close() error {
	return k.producer.Close()
}
