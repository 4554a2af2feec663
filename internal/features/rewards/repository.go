// Package rewards — repository.go выполняет операции с таблицами reward_ledger и reward_balances.
// Запись начисления и изменение баланса выполняются в одной транзакции.
package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository — PostgreSQL-реализация Store.
type Repository struct {
	db *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository создаёт репозиторий наград.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertEntry — см. Store.InsertEntry.
func (r *Repository) InsertEntry(ctx context.Context, e Entry) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Повторное задание упирается в UNIQUE(interaction_record_id) и ничего не вставляет
	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO reward_ledger (interaction_record_id, user_id, points, reason, reference_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (interaction_record_id) DO NOTHING
		RETURNING id
	`, e.InteractionRecordID, e.UserID, e.Points, e.Reason, e.ReferenceID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка записи начисления: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reward_balances (user_id, points) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET points = reward_balances.points + EXCLUDED.points, updated_at = NOW()
	`, e.UserID, e.Points)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления баланса: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации начисления: %w", err)
	}
	return true, nil
}

// GetBalance возвращает текущий баланс пользователя.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var points int64
	err := r.db.QueryRow(ctx, `SELECT points FROM reward_balances WHERE user_id = $1`, userID).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return points, nil
}

// ListEntries возвращает последние начисления, новые первыми.
func (r *Repository) ListEntries(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, interaction_record_id, user_id, points, reason, reference_id, created_at
		FROM reward_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.InteractionRecordID, &e.UserID, &e.Points,
			&e.Reason, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListUnrewarded — см. Store.ListUnrewarded.
func (r *Repository) ListUnrewarded(ctx context.Context, afterID int64, limit int) ([]Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT i.id, i.user_id, i.content_id, i.kind
		FROM interactions i
		LEFT JOIN reward_ledger r ON r.interaction_record_id = i.id
		WHERE r.id IS NULL AND i.id > $1
		ORDER BY i.id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска записей без начисления: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var kind string
		if err := rows.Scan(&j.RecordID, &j.UserID, &j.ContentID, &kind); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		j.Kind = parseStoredKind(j.RecordID, kind)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
