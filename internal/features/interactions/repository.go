// Package interactions — repository.go выполняет операции с таблицами interactions
// и content_counters в PostgreSQL.
// Запись в журнал и изменение счётчика всегда идут в одной транзакции.
package interactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/db/postgres"
)

// Repository — PostgreSQL-реализация Store и AuditStore.
type Repository struct {
	db *pgxpool.Pool
}

var (
	_ Store      = (*Repository)(nil)
	_ AuditStore = (*Repository)(nil)
)

// NewRepository создаёт репозиторий журнала взаимодействий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// WithinTx выполняет fn в транзакции READ COMMITTED.
// Сериализация по одному контенту обеспечивается блокировкой строки счётчиков.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так (после Commit — no-op)
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// UserKinds возвращает типы взаимодействий пользователя с контентом.
func (r *Repository) UserKinds(ctx context.Context, userID int64, contentID string) ([]Kind, error) {
	rows, err := r.db.Query(ctx, `
		SELECT kind FROM interactions
		WHERE user_id = $1 AND content_id = $2
	`, userID, contentID)
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

// GetCounters возвращает счётчики контента. Нет строки — все нули.
func (r *Repository) GetCounters(ctx context.Context, contentID string) (Counters, error) {
	c := Counters{ContentID: contentID}
	err := r.db.QueryRow(ctx, `
		SELECT likes, saves, shares, comments, views
		FROM content_counters WHERE content_id = $1
	`, contentID).Scan(&c.Likes, &c.Saves, &c.Shares, &c.Comments, &c.Views)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("ошибка получения счётчиков: %w", err)
	}
	return c, nil
}

// ScanCounters сверяет сохранённые счётчики с COUNT(*) по журналу.
// FULL JOIN ловит оба вида расхождений: счётчик без записей и записи без счётчика.
func (r *Repository) ScanCounters(ctx context.Context, contentID string) ([]CounterSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		WITH actual AS (
			SELECT content_id,
			       COUNT(*) FILTER (WHERE kind = 'like')    AS likes,
			       COUNT(*) FILTER (WHERE kind = 'save')    AS saves,
			       COUNT(*) FILTER (WHERE kind = 'share')   AS shares,
			       COUNT(*) FILTER (WHERE kind = 'comment') AS comments,
			       COUNT(*) FILTER (WHERE kind = 'view')    AS views
			FROM interactions
			WHERE $1 = '' OR content_id = $1
			GROUP BY content_id
		), stored AS (
			SELECT content_id, likes, saves, shares, comments, views
			FROM content_counters
			WHERE $1 = '' OR content_id = $1
		)
		SELECT COALESCE(s.content_id, a.content_id),
		       COALESCE(s.likes, 0), COALESCE(s.saves, 0), COALESCE(s.shares, 0),
		       COALESCE(s.comments, 0), COALESCE(s.views, 0),
		       COALESCE(a.likes, 0), COALESCE(a.saves, 0), COALESCE(a.shares, 0),
		       COALESCE(a.comments, 0), COALESCE(a.views, 0)
		FROM stored s
		FULL OUTER JOIN actual a ON a.content_id = s.content_id
		ORDER BY 1
	`, contentID)
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

// RepairCounter пересчитывает один счётчик под блокировкой строки.
// Если за время между сканом и ремонтом расхождение исчезло — ничего не пишет.
func (r *Repository) RepairCounter(ctx context.Context, contentID string, kind Kind) (int64, int64, error) {
	var stored, actual int64
	err := r.WithinTx(ctx, func(tx Tx) error {
		c, err := tx.LockCounters(ctx, contentID)
		if err != nil {
			return err
		}
		stored = c.Get(kind)

		if err := tx.(*pgTx).tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM interactions WHERE content_id = $1 AND kind = $2
		`, contentID, kind.String()).Scan(&actual); err != nil {
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

// pgTx — операции тоггла поверх pgx.Tx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockCounters(ctx context.Context, contentID string) (Counters, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO content_counters (content_id) VALUES ($1)
		ON CONFLICT (content_id) DO NOTHING
	`, contentID); err != nil {
		return Counters{}, fmt.Errorf("ошибка создания счётчиков: %w", err)
	}

	// Блокируем строку до конца транзакции
	c := Counters{ContentID: contentID}
	err := t.tx.QueryRow(ctx, `
		SELECT likes, saves, shares, comments, views
		FROM content_counters WHERE content_id = $1
		FOR UPDATE
	`, contentID).Scan(&c.Likes, &c.Saves, &c.Shares, &c.Comments, &c.Views)
	if err != nil {
		return Counters{}, fmt.Errorf("ошибка блокировки счётчиков: %w", err)
	}
	return c, nil
}

func (t *pgTx) SaveCounters(ctx context.Context, c Counters) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE content_counters
		SET likes = $2, saves = $3, shares = $4, comments = $5, views = $6, updated_at = NOW()
		WHERE content_id = $1
	`, c.ContentID, c.Likes, c.Saves, c.Shares, c.Comments, c.Views)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчиков: %w", err)
	}
	return nil
}

func (t *pgTx) FindInteraction(ctx context.Context, key Key) (*Record, error) {
	rec := Record{UserID: key.UserID, ContentID: key.ContentID, Kind: key.Kind}
	err := t.tx.QueryRow(ctx, `
		SELECT id, created_at FROM interactions
		WHERE user_id = $1 AND content_id = $2 AND kind = $3
	`, key.UserID, key.ContentID, key.Kind.String()).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи: %w", err)
	}
	return &rec, nil
}

func (t *pgTx) InsertInteraction(ctx context.Context, key Key) (*Record, error) {
	// Параллельная вставка того же ключа ждёт на уникальном индексе,
	// после коммита победителя получает DO NOTHING и пустой RETURNING
	rec := Record{UserID: key.UserID, ContentID: key.ContentID, Kind: key.Kind}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO interactions (user_id, content_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, content_id, kind) DO NOTHING
		RETURNING id, created_at
	`, key.UserID, key.ContentID, key.Kind.String()).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if postgres.IsUniqueViolation(err) {
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return &rec, nil
}

func (t *pgTx) DeleteInteraction(ctx context.Context, key Key) (*Record, error) {
	rec := Record{UserID: key.UserID, ContentID: key.ContentID, Kind: key.Kind}
	err := t.tx.QueryRow(ctx, `
		DELETE FROM interactions
		WHERE user_id = $1 AND content_id = $2 AND kind = $3
		RETURNING id, created_at
	`, key.UserID, key.ContentID, key.Kind.String()).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления записи: %w", err)
	}
	return &rec, nil
}
