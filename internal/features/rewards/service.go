// Package rewards — service.go содержит бизнес-логику начислений.
package rewards

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

// Лимиты истории начислений
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100

	// reconcileBatch — сколько записей без начисления читаем за раз
	reconcileBatch = 500
)

// Service начисляет очки и отдаёт балансы.
type Service struct {
	store Store
}

// NewService создаёт сервис наград.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// AwardPoints начисляет очки за запись журнала.
//
// Повтор с тем же RecordID ничего не меняет. Тип без очков (0)
// не создаёт записи и ошибкой не считается. Ошибка хранилища возвращается
// вызывающему (диспетчеру), чтобы он повторил попытку.
func (s *Service) AwardPoints(ctx context.Context, job Job) error {
	if job.RecordID <= 0 {
		return fmt.Errorf("%w: record_id=%d", common.ErrInvalidRequest, job.RecordID)
	}
	if job.UserID <= 0 {
		return common.ErrInvalidUserID
	}

	points := job.Kind.Points()
	if points == 0 {
		metrics.RewardTotal.WithLabelValues("zero").Inc()
		return nil
	}

	inserted, err := s.store.InsertEntry(ctx, Entry{
		InteractionRecordID: job.RecordID,
		UserID:              job.UserID,
		Points:              points,
		Reason:              job.Reason(),
		ReferenceID:         job.ContentID,
	})
	if err != nil {
		return fmt.Errorf("ошибка начисления за запись %d: %w", job.RecordID, err)
	}

	fields := log.Fields{
		"record_id":  job.RecordID,
		"user_id":    job.UserID,
		"content_id": job.ContentID,
		"points":     points,
	}
	if !inserted {
		metrics.RewardTotal.WithLabelValues("duplicate").Inc()
		log.WithFields(fields).Debug("Начисление уже было, повтор пропущен")
		return nil
	}

	metrics.RewardTotal.WithLabelValues("awarded").Inc()
	log.WithFields(fields).Info("Очки начислены")
	return nil
}

// Reconcile дозачисляет очки за записи журнала, до которых не дошла очередь:
// задание отброшено при переполнении, исчерпало повторы или процесс упал
// между коммитом и публикацией. Возвращает число обработанных записей.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	var afterID int64
	processed := 0
	for {
		jobs, err := s.store.ListUnrewarded(ctx, afterID, reconcileBatch)
		if err != nil {
			return processed, err
		}
		for _, job := range jobs {
			afterID = job.RecordID
			if job.Kind.Points() == 0 {
				continue
			}
			if err := s.AwardPoints(ctx, job); err != nil {
				return processed, err
			}
			metrics.RewardTotal.WithLabelValues("reconciled").Inc()
			processed++
		}
		if len(jobs) < reconcileBatch {
			break
		}
	}

	if processed > 0 {
		log.WithField("records", processed).Warn("Дозачислены награды за записи без начисления")
	}
	return processed, nil
}

// parseStoredKind разбирает тип из БД. Неизвестный тип даёт 0 (без очков).
func parseStoredKind(recordID int64, s string) interactions.Kind {
	kind, err := interactions.ParseKind(s)
	if err != nil {
		log.WithError(err).WithField("record_id", recordID).Warn("Неизвестный тип в журнале взаимодействий")
		return 0
	}
	return kind
}

// Balance возвращает баланс пользователя.
func (s *Service) Balance(ctx context.Context, userID int64) (*Balance, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidUserID
	}
	points, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{UserID: userID, Points: points}, nil
}

// History возвращает последние начисления. limit приводится к [1, MaxHistoryLimit].
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidUserID
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.store.ListEntries(ctx, userID, limit)
}
