package rewards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"serotonyl.ru/engagement-engine/internal/db/sqlite"
)

// SQLiteRepository — реализация Store для SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository создаёт репозиторий наград поверх SQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertEntry — см. Store.InsertEntry.
func (r *SQLiteRepository) InsertEntry(ctx context.Context, e Entry) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO reward_ledger (interaction_record_id, user_id, points, reason, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (interaction_record_id) DO NOTHING
		RETURNING id
	`, e.InteractionRecordID, e.UserID, e.Points, e.Reason, e.ReferenceID, time.Now().UTC()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || sqlite.IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка записи начисления: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reward_balances (user_id, points) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET points = reward_balances.points + excluded.points, updated_at = CURRENT_TIMESTAMP
	`, e.UserID, e.Points)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления баланса: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ошибка фиксации начисления: %w", err)
	}
	return true, nil
}

// GetBalance возвращает текущий баланс пользователя.
func (r *SQLiteRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var points int64
	err := r.db.QueryRowContext(ctx, `SELECT points FROM reward_balances WHERE user_id = ?`, userID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return points, nil
}

// ListEntries возвращает последние начисления, новые первыми.
func (r *SQLiteRepository) ListEntries(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, interaction_record_id, user_id, points, reason, reference_id, created_at
		FROM reward_ledger
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt sqlite.Time
		if err := rows.Scan(&e.ID, &e.InteractionRecordID, &e.UserID, &e.Points,
			&e.Reason, &e.ReferenceID, &createdAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		e.CreatedAt = createdAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListUnrewarded — см. Store.ListUnrewarded.
func (r *SQLiteRepository) ListUnrewarded(ctx context.Context, afterID int64, limit int) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.content_id, i.kind
		FROM interactions i
		LEFT JOIN reward_ledger r ON r.interaction_record_id = i.id
		WHERE r.id IS NULL AND i.id > ?
		ORDER BY i.id
		LIMIT ?
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
