// Package interactions — store.go описывает контракт хранилища журнала и счётчиков.
// Реализации: repository.go (PostgreSQL, pgx) и sqlite_repository.go (SQLite).
package interactions

import "context"

// Tx — операции внутри одной транзакции тоггла.
//
// Порядок блокировок фиксирован: сначала строка счётчиков (LockCounters),
// потом строка журнала. Аудитор берёт блокировки в том же порядке.
type Tx interface {
	// LockCounters создаёт строку счётчиков при необходимости и блокирует её до конца транзакции.
	LockCounters(ctx context.Context, contentID string) (Counters, error)
	// SaveCounters записывает значения счётчиков (ContentID берётся из структуры).
	SaveCounters(ctx context.Context, c Counters) error
	// FindInteraction возвращает запись по ключу или nil, если её нет.
	FindInteraction(ctx context.Context, key Key) (*Record, error)
	// InsertInteraction вставляет запись. Если запись уже есть (проиграли гонку) —
	// возвращает nil без ошибки либо common.ErrConflict.
	InsertInteraction(ctx context.Context, key Key) (*Record, error)
	// DeleteInteraction удаляет запись и возвращает её, nil если удалять нечего.
	DeleteInteraction(ctx context.Context, key Key) (*Record, error)
}

// Store — хранилище журнала взаимодействий и счётчиков.
type Store interface {
	// WithinTx выполняет fn в одной транзакции. Ошибка fn откатывает всё.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// UserKinds — какие типы есть у пользователя на контенте.
	UserKinds(ctx context.Context, userID int64, contentID string) ([]Kind, error)
	// GetCounters — последние закоммиченные счётчики; нули, если строки ещё нет.
	GetCounters(ctx context.Context, contentID string) (Counters, error)
}

// CounterSnapshot — сохранённые и фактические значения счётчиков одного контента.
// Используется аудитором при сверке.
type CounterSnapshot struct {
	ContentID string
	Stored    Counters
	Actual    Counters
}

// AuditStore — операции сверки счётчиков с журналом.
type AuditStore interface {
	// ScanCounters читает сохранённые счётчики и COUNT(*) по журналу.
	// Пустой contentID — все контенты. Только чтение.
	ScanCounters(ctx context.Context, contentID string) ([]CounterSnapshot, error)
	// RepairCounter в короткой транзакции под блокировкой счётчика пересчитывает
	// журнал и перезаписывает счётчик. Возвращает значения до и после.
	RepairCounter(ctx context.Context, contentID string, kind Kind) (stored, actual int64, err error)
}
