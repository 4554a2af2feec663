package rewards

import "context"

// Store — хранилище журнала наград и балансов.
type Store interface {
	// InsertEntry вставляет запись и прибавляет очки к балансу в одной транзакции.
	// Если запись с таким InteractionRecordID уже есть — возвращает false и баланс не трогает.
	InsertEntry(ctx context.Context, e Entry) (bool, error)
	// GetBalance возвращает баланс, 0 если начислений не было.
	GetBalance(ctx context.Context, userID int64) (int64, error)
	// ListEntries возвращает последние limit начислений пользователя.
	ListEntries(ctx context.Context, userID int64, limit int) ([]Entry, error)
	// ListUnrewarded возвращает записи журнала взаимодействий с id > afterID,
	// для которых ещё нет начисления, по возрастанию id.
	ListUnrewarded(ctx context.Context, afterID int64, limit int) ([]Job, error)
}
