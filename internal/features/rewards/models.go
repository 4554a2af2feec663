// Package rewards начисляет очки за взаимодействия.
// Начисление идемпотентно по id записи журнала: одна запись — не больше одного начисления,
// сколько бы раз задание ни повторялось.
// models.go описывает задания, записи журнала наград и балансы.
package rewards

import (
	"errors"
	"time"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

// Ошибки очереди
var (
	// ErrQueueFull — очередь заполнена, задание отброшено (его подберёт Service.Reconcile)
	ErrQueueFull = errors.New("очередь наград заполнена")
	// ErrDispatcherClosed — диспетчер остановлен
	ErrDispatcherClosed = errors.New("диспетчер наград остановлен")
)

// Job — задание на начисление. RecordID — ключ идемпотентности.
type Job struct {
	RecordID  int64             `json:"recordId"`
	UserID    int64             `json:"userId"`
	ContentID string            `json:"contentId"`
	Kind      interactions.Kind `json:"kind"`
}

// JobFromRecord строит задание по только что вставленной записи журнала.
func JobFromRecord(rec interactions.Record) Job {
	return Job{
		RecordID:  rec.ID,
		UserID:    rec.UserID,
		ContentID: rec.ContentID,
		Kind:      rec.Kind,
	}
}

// Reason — причина начисления в журнале наград.
func (j Job) Reason() string {
	return "interaction_" + j.Kind.String()
}

// Entry — строка reward_ledger.
type Entry struct {
	ID                  int64     `json:"id" db:"id"`
	InteractionRecordID int64     `json:"interactionRecordId" db:"interaction_record_id"` // UNIQUE
	UserID              int64     `json:"userId" db:"user_id"`
	Points              int64     `json:"points" db:"points"`
	Reason              string    `json:"reason" db:"reason"`            // interaction_like, ...
	ReferenceID         string    `json:"referenceId" db:"reference_id"` // contentId
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
}

// Balance — сумма очков пользователя.
type Balance struct {
	UserID int64 `json:"userId"`
	Points int64 `json:"points"`
}
