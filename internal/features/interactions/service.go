// Package interactions — service.go содержит координатор тоггла и фасад чтения.
// Решение add/remove/noop, запись в журнал и изменение счётчика
// выполняются в одной транзакции; награды и лента активности — после коммита.
package interactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

// ContentCatalog проверяет, что контент существует и опубликован.
// Возвращает common.ErrContentNotFound / common.ErrContentNotPublished.
type ContentCatalog interface {
	EnsurePublished(ctx context.Context, contentID string) error
}

// RewardEnqueuer ставит начисление очков в очередь. Не должен блокироваться.
type RewardEnqueuer interface {
	EnqueueReward(ctx context.Context, rec Record) error
}

// ActivitySink принимает события ленты активности. Ошибки игнорируются.
type ActivitySink interface {
	RecordActivity(ctx context.Context, rec Record, outcome Outcome) error
}

// DriftHook получает сигналы о зажатых в ноль счётчиках.
type DriftHook func(DriftSignal)

// Service — координатор тоггла и фасад чтения.
type Service struct {
	store    Store
	catalog  ContentCatalog
	rewards  RewardEnqueuer
	activity ActivitySink
	onDrift  DriftHook
	timeout  time.Duration // 0 — без своего таймаута, только контекст вызывающего
}

// Option настраивает Service.
type Option func(*Service)

// WithRewards подключает очередь наград.
func WithRewards(r RewardEnqueuer) Option {
	return func(s *Service) { s.rewards = r }
}

// WithActivity подключает ленту активности.
func WithActivity(a ActivitySink) Option {
	return func(s *Service) { s.activity = a }
}

// WithDriftHook подключает обработчик сигналов расхождения (обычно аудитор).
func WithDriftHook(h DriftHook) Option {
	return func(s *Service) { s.onDrift = h }
}

// WithTimeout ограничивает время транзакции тоггла.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService создаёт координатор. catalog может быть nil — тогда статус
// публикации не проверяется (используется в CLI и тестах хранилища).
func NewService(store Store, catalog ContentCatalog, opts ...Option) *Service {
	s := &Service{store: store, catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// decide выбирает итог по желаемому действию и текущему состоянию.
//
//	toggle: ABSENT → added,  PRESENT → removed
//	add:    ABSENT → added,  PRESENT → noop
//	remove: ABSENT → noop,   PRESENT → removed
func decide(action Action, present bool) Outcome {
	switch action {
	case ActionAdd:
		if present {
			return OutcomeNoop
		}
		return OutcomeAdded
	case ActionRemove:
		if present {
			return OutcomeRemoved
		}
		return OutcomeNoop
	default:
		if present {
			return OutcomeRemoved
		}
		return OutcomeAdded
	}
}

// Toggle меняет состояние (user, content, kind) и возвращает итог со свежими счётчиками.
//
// Порядок:
//  1. Валидация ключа и действия — до любой транзакции.
//  2. Проверка каталога: NOT_FOUND / NOT_PUBLISHED уходят вызывающему.
//  3. Транзакция: блокировка строки счётчиков, чтение записи, вставка или удаление, ±1.
//  4. После коммита: награда и событие активности (только для added).
//
// Проигранная гонка на уникальном индексе превращается в noop.
func (s *Service) Toggle(ctx context.Context, req ToggleRequest) (*ToggleResult, error) {
	start := time.Now()
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if req.Action > ActionRemove {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAction, req.Action)
	}

	if s.catalog != nil {
		if err := s.catalog.EnsurePublished(ctx, key.ContentID); err != nil {
			return nil, err
		}
	}

	txCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		result  ToggleResult
		drift   *DriftSignal
		changed *Record
	)
	err := s.store.WithinTx(txCtx, func(tx Tx) error {
		result, drift, changed = ToggleResult{}, nil, nil

		counters, err := tx.LockCounters(txCtx, key.ContentID)
		if err != nil {
			return err
		}
		existing, err := tx.FindInteraction(txCtx, key)
		if err != nil {
			return err
		}

		result.Counters = counters
		switch decide(req.Action, existing != nil) {
		case OutcomeAdded:
			rec, err := tx.InsertInteraction(txCtx, key)
			if err != nil {
				return err
			}
			if rec == nil {
				// Запись уже вставил параллельный запрос
				metrics.ConflictTotal.Inc()
				return nil
			}
			counters, drift = Project(counters, key.Kind, +1)
			if err := tx.SaveCounters(txCtx, counters); err != nil {
				return err
			}
			result = ToggleResult{Action: OutcomeAdded, Counters: counters, RecordID: rec.ID}
			changed = rec

		case OutcomeRemoved:
			rec, err := tx.DeleteInteraction(txCtx, key)
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}
			counters, drift = Project(counters, key.Kind, -1)
			if err := tx.SaveCounters(txCtx, counters); err != nil {
				return err
			}
			result = ToggleResult{Action: OutcomeRemoved, Counters: counters, RecordID: rec.ID}
			changed = rec
		}
		return nil
	})

	if errors.Is(err, common.ErrConflict) {
		// Транзакция откатилась целиком, отдаём noop с тем, что закоммитил победитель
		metrics.ConflictTotal.Inc()
		counters, cerr := s.store.GetCounters(ctx, key.ContentID)
		if cerr != nil {
			return nil, fmt.Errorf("ошибка чтения счётчиков после конфликта: %w", cerr)
		}
		counters.ContentID = key.ContentID
		result = ToggleResult{Action: OutcomeNoop, Counters: counters}
		err = nil
	}
	if err != nil {
		metrics.ToggleTotal.WithLabelValues(key.Kind.String(), "error").Inc()
		return nil, fmt.Errorf("ошибка тоггла %s для %s: %w", key.Kind, key.ContentID, err)
	}

	if drift != nil {
		s.reportDrift(*drift)
	}
	if result.Action == OutcomeAdded && changed != nil {
		s.afterAdd(ctx, *changed)
	}

	metrics.ToggleTotal.WithLabelValues(key.Kind.String(), result.Action.String()).Inc()
	metrics.ToggleDuration.WithLabelValues(key.Kind.String()).Observe(time.Since(start).Seconds())

	log.WithFields(log.Fields{
		"user_id":    key.UserID,
		"content_id": key.ContentID,
		"kind":       key.Kind.String(),
		"action":     req.Action.String(),
		"outcome":    result.Action.String(),
	}).Debug("Тоггл выполнен")

	return &result, nil
}

// afterAdd запускает побочные эффекты добавления. Ошибки только логируются:
// транзакция уже закоммичена и откатываться не должна.
func (s *Service) afterAdd(ctx context.Context, rec Record) {
	// Отмена запроса клиентом не должна отменять постановку в очередь
	ctx = context.WithoutCancel(ctx)

	if s.rewards != nil {
		if err := s.rewards.EnqueueReward(ctx, rec); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"record_id": rec.ID,
				"user_id":   rec.UserID,
			}).Warn("Не удалось поставить награду в очередь")
		}
	}
	if s.activity != nil {
		if err := s.activity.RecordActivity(ctx, rec, OutcomeAdded); err != nil {
			log.WithError(err).WithField("record_id", rec.ID).
				Warn("Не удалось записать событие активности")
		}
	}
}

func (s *Service) reportDrift(d DriftSignal) {
	metrics.DriftTotal.WithLabelValues(d.Kind.String(), "projector").Inc()
	log.WithFields(log.Fields{
		"content_id": d.ContentID,
		"kind":       d.Kind.String(),
		"stored":     d.StoredValue,
		"delta":      d.Delta,
	}).Warn("Счётчик прижат к нулю: журнал и счётчик разошлись")

	if s.onDrift != nil {
		s.onDrift(d)
	}
}

// GetState возвращает флаги пользователя и счётчики контента.
// Только чтение, без кеша: отражает последнюю закоммиченную транзакцию.
func (s *Service) GetState(ctx context.Context, userID int64, contentID string) (*State, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidUserID
	}
	if err := ValidateContentID(contentID); err != nil {
		return nil, err
	}

	kinds, err := s.store.UserKinds(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	counters, err := s.store.GetCounters(ctx, contentID)
	if err != nil {
		return nil, err
	}

	state := &State{Counters: counters}
	for _, k := range kinds {
		state.set(k)
	}
	return state, nil
}
