// Package activity публикует события ленты активности (кто что лайкнул/сохранил).
// Доставка best-effort: ошибки приёмника логируются и не доходят до тоггла.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

// Event — событие активности.
type Event struct {
	ID         string            `json:"id"` // UUIDv7, сортируется по времени
	Type       string            `json:"type"`
	UserID     int64             `json:"userId"`
	ContentID  string            `json:"contentId"`
	Kind       interactions.Kind `json:"kind"`
	RecordID   int64             `json:"recordId"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NewEvent строит событие по записи журнала.
func NewEvent(rec interactions.Record, outcome interactions.Outcome) Event {
	occurred := rec.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Event{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Type:       "interaction." + outcome.String(),
		UserID:     rec.UserID,
		ContentID:  rec.ContentID,
		Kind:       rec.Kind,
		RecordID:   rec.ID,
		OccurredAt: occurred,
	}
}

// Sink — приёмник событий.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// LogSink пишет события в лог. Используется, когда Kafka не настроена.
type LogSink struct{}

// Publish реализует Sink.
func (LogSink) Publish(_ context.Context, evt Event) error {
	log.WithFields(log.Fields{
		"event_id":   evt.ID,
		"type":       evt.Type,
		"user_id":    evt.UserID,
		"content_id": evt.ContentID,
		"kind":       evt.Kind.String(),
	}).Info("Событие активности")
	return nil
}
