// Package interactions — sqlite_repository.go повторяет Repository поверх SQLite.
// Используется в локальном режиме (DB_DRIVER=sqlite) и в тестах:
// уникальный индекс журнала здесь настоящий, а не эмуляция.
package interactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/db/sqlite"
)

// SQLiteRepository — реализация Store и AuditStore для SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ Store      = (*SQLiteRepository)(nil)
	_ AuditStore = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository создаёт репозиторий поверх открытой базы (см. sqlite.Open).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithinTx выполняет fn в транзакции. BEGIN IMMEDIATE сразу берёт блокировку записи,
// поэтому параллельные тогглы выстраиваются в очередь на старте.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// UserKinds возвращает типы взаимодействий пользователя с контентом.
func (r *SQLiteRepository) UserKinds(ctx context.Context, userID int64, contentID string) ([]Kind, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind FROM interactions WHERE user_id = ? AND content_id = ?`, userID, contentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	defer rows.Close()

	var kinds []Kind
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования типа: %w", err)
		}
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// GetCounters возвращает счётчики контента.
func (r *SQLiteRepository) GetCounters(ctx context.Context, contentID string) (Counters, error) {
	c := Counters{ContentID: contentID}
	err := r.db.QueryRowContext(ctx, `
		SELECT likes, saves, shares, comments, views
		FROM content_counters WHERE content_id = ?
	`, contentID).Scan(&c.Likes, &c.Saves, &c.Shares, &c.Comments, &c.Views)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("ошибка получения счётчиков: %w", err)
	}
	return c, nil
}

// ScanCounters — то же, что Repository.ScanCounters.
func (r *SQLiteRepository) ScanCounters(ctx context.Context, contentID string) ([]CounterSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH actual AS (
			SELECT content_id,
			       SUM(CASE WHEN kind = 'like' THEN 1 ELSE 0 END)    AS likes,
			       SUM(CASE WHEN kind = 'save' THEN 1 ELSE 0 END)    AS saves,
			       SUM(CASE WHEN kind = 'share' THEN 1 ELSE 0 END)   AS shares,
			       SUM(CASE WHEN kind = 'comment' THEN 1 ELSE 0 END) AS comments,
			       SUM(CASE WHEN kind = 'view' THEN 1 ELSE 0 END)    AS views
			FROM interactions
			WHERE ? = '' OR content_id = ?
			GROUP BY content_id
		), stored AS (
			SELECT content_id, likes, saves, shares, comments, views
			FROM content_counters
			WHERE ? = '' OR content_id = ?
		)
		SELECT COALESCE(s.content_id, a.content_id) AS cid,
		       COALESCE(s.likes, 0), COALESCE(s.saves, 0), COALESCE(s.shares, 0),
		       COALESCE(s.comments, 0), COALESCE(s.views, 0),
		       COALESCE(a.likes, 0), COALESCE(a.saves, 0), COALESCE(a.shares, 0),
		       COALESCE(a.comments, 0), COALESCE(a.views, 0)
		FROM stored s
		FULL OUTER JOIN actual a ON a.content_id = s.content_id
		ORDER BY cid
	`, contentID, contentID, contentID, contentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка сверки счётчиков: %w", err)
	}
	defer rows.Close()

	var out []CounterSnapshot
	for rows.Next() {
		var s CounterSnapshot
		if err := rows.Scan(&s.ContentID,
			&s.Stored.Likes, &s.Stored.Saves, &s.Stored.Shares, &s.Stored.Comments, &s.Stored.Views,
			&s.Actual.Likes, &s.Actual.Saves, &s.Actual.Shares, &s.Actual.Comments, &s.Actual.Views,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сверки: %w", err)
		}
		s.Stored.ContentID = s.ContentID
		s.Actual.ContentID = s.ContentID
		out = append(out, s)
	}
	return out, rows.Err()
}

// RepairCounter пересчитывает один счётчик в отдельной транзакции.
func (r *SQLiteRepository) RepairCounter(ctx context.Context, contentID string, kind Kind) (int64, int64, error) {
	var stored, actual int64
	err := r.WithinTx(ctx, func(tx Tx) error {
		c, err := tx.LockCounters(ctx, contentID)
		if err != nil {
			return err
		}
		stored = c.Get(kind)

		if err := tx.(*sqliteTx).tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM interactions WHERE content_id = ? AND kind = ?`,
			contentID, kind.String(),
		).Scan(&actual); err != nil {
			return fmt.Errorf("ошибка подсчёта журнала: %w", err)
		}
		if stored == actual {
			return nil
		}
		return tx.SaveCounters(ctx, c.With(kind, actual))
	})
	if err != nil {
		return 0, 0, err
	}
	return stored, actual, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockCounters: отдельного FOR UPDATE в SQLite нет, блокировку записи
// транзакция уже держит с BEGIN IMMEDIATE.
func (t *sqliteTx) LockCounters(ctx context.Context, contentID string) (Counters, error) {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO content_counters (content_id) VALUES (?) ON CONFLICT (content_id) DO NOTHING`,
		contentID,
	); err != nil {
		return Counters{}, fmt.Errorf("ошибка создания счётчиков: %w", err)
	}

	c := Counters{ContentID: contentID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT likes, saves, shares, comments, views
		FROM content_counters WHERE content_id = ?
	`, contentID).Scan(&c.Likes, &c.Saves, &c.Shares, &c.Comments, &c.Views)
	if err != nil {
		return Counters{}, fmt.Errorf("ошибка блокировки счётчиков: %w", err)
	}
	return c, nil
}

func (t *sqliteTx) SaveCounters(ctx context.Context, c Counters) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE content_counters
		SET likes = ?, saves = ?, shares = ?, comments = ?, views = ?, updated_at = CURRENT_TIMESTAMP
		WHERE content_id = ?
	`, c.Likes, c.Saves, c.Shares, c.Comments, c.Views, c.ContentID)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчиков: %w", err)
	}
	return nil
}

func (t *sqliteTx) FindInteraction(ctx context.Context, key Key) (*Record, error) {
	rec := Record{UserID: key.UserID, ContentID: key.ContentID, Kind: key.Kind}
	var createdAt sqlite.Time
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, created_at FROM interactions
		WHERE user_id = ? AND content_id = ? AND kind = ?
	`, key.UserID, key.ContentID, key.Kind.String()).Scan(&rec.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи: %w", err)
	}
	rec.CreatedAt = createdAt.Time
	return &rec, nil
}

func (t *sqliteTx) InsertInteraction(ctx context.Context, key Key) (*Record, error) {
	rec := Record{UserID: key.UserID, ContentID: key.ContentID, Kind: key.Kind, CreatedAt: time.Now().UTC()}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO interactions (user_id, content_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, content_id, kind) DO NOTHING
		RETURNING id
	`, key.UserID, key.ContentID, key.Kind.String(), rec.CreatedAt).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if sqlite.IsUniqueViolation(err) {
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return &rec, nil
}

func (t *sqliteTx) DeleteInteraction(ctx context.Context, key Key) (*Record, error) {
	rec := Record{UserID: key.UserID, ContentID: key.ContentID, Kind: key.Kind}
	var createdAt sqlite.Time
	err := t.tx.QueryRowContext(ctx, `
		DELETE FROM interactions
		WHERE user_id = ? AND content_id = ? AND kind = ?
		RETURNING id, created_at
	`, key.UserID, key.ContentID, key.Kind.String()).Scan(&rec.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления записи: %w", err)
	}
	rec.CreatedAt = createdAt.Time
	return &rec, nil
}
