// Package interactions ведёт журнал взаимодействий (лайк, сохранение, репост,
// комментарий, просмотр) и денормализованные счётчики на контенте.
// models.go описывает структуры журнала, счётчиков и запросов.
package interactions

import (
	"fmt"
	"time"

	"serotonyl.ru/engagement-engine/internal/common"
)

// MaxContentIDLen — ограничение длины content_id (varchar(64) в схеме).
const MaxContentIDLen = 64

// Key — кортеж (пользователь, контент, тип). В журнале не больше одной строки на ключ,
// это держит уникальный индекс в БД.
type Key struct {
	UserID    int64
	ContentID string
	Kind      Kind
}

// Validate проверяет ключ до начала транзакции.
func (k Key) Validate() error {
	if k.UserID <= 0 {
		return common.ErrInvalidUserID
	}
	if err := ValidateContentID(k.ContentID); err != nil {
		return err
	}
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: %d", common.ErrInvalidKind, uint8(k.Kind))
	}
	return nil
}

// ValidateContentID проверяет идентификатор контента.
func ValidateContentID(id string) error {
	if id == "" || len(id) > MaxContentIDLen {
		return fmt.Errorf("%w: %q", common.ErrInvalidContentID, id)
	}
	return nil
}

// Record — строка журнала interactions.
type Record struct {
	ID        int64     `db:"id"`         // ID записи, ключ идемпотентности для наград
	UserID    int64     `db:"user_id"`    // Пользователь (из identity)
	ContentID string    `db:"content_id"` // Контент из каталога
	Kind      Kind      `db:"kind"`       // Тип взаимодействия
	CreatedAt time.Time `db:"created_at"` // Когда добавлено
}

// Counters — строка content_counters. Всегда равна COUNT(*) по журналу
// для каждого типа и никогда не бывает отрицательной.
type Counters struct {
	ContentID string `json:"-" db:"content_id"`
	Likes     int64  `json:"likes" db:"likes"`
	Saves     int64  `json:"saves" db:"saves"`
	Shares    int64  `json:"shares" db:"shares"`
	Comments  int64  `json:"comments" db:"comments"`
	Views     int64  `json:"views" db:"views"`
}

// Get возвращает значение счётчика для типа.
func (c Counters) Get(k Kind) int64 {
	switch k {
	case KindLike:
		return c.Likes
	case KindSave:
		return c.Saves
	case KindShare:
		return c.Shares
	case KindComment:
		return c.Comments
	case KindView:
		return c.Views
	default:
		return 0
	}
}

// With возвращает копию с новым значением счётчика для типа.
func (c Counters) With(k Kind, v int64) Counters {
	switch k {
	case KindLike:
		c.Likes = v
	case KindSave:
		c.Saves = v
	case KindShare:
		c.Shares = v
	case KindComment:
		c.Comments = v
	case KindView:
		c.Views = v
	}
	return c
}

// ToggleRequest — запрос на изменение состояния. UserID берётся
// только из проверенной сессии, не из тела запроса.
type ToggleRequest struct {
	UserID    int64
	ContentID string
	Kind      Kind
	Action    Action
}

// Key возвращает кортеж журнала для запроса.
func (r ToggleRequest) Key() Key {
	return Key{UserID: r.UserID, ContentID: r.ContentID, Kind: r.Kind}
}

// ToggleResult — итог тоггла: однозначное действие и свежие счётчики.
type ToggleResult struct {
	Action   Outcome  `json:"action"`
	Counters Counters `json:"counters"`
	// RecordID — id вставленной или удалённой строки журнала, 0 для noop
	RecordID int64 `json:"-"`
}

// State — ответ фасада чтения.
type State struct {
	Liked     bool     `json:"liked"`
	Saved     bool     `json:"saved"`
	Shared    bool     `json:"shared"`
	Commented bool     `json:"commented"`
	Viewed    bool     `json:"viewed"`
	Counters  Counters `json:"counters"`
}

// set отмечает присутствие типа в состоянии.
func (s *State) set(k Kind) {
	switch k {
	case KindLike:
		s.Liked = true
	case KindSave:
		s.Saved = true
	case KindShare:
		s.Shared = true
	case KindComment:
		s.Commented = true
	case KindView:
		s.Viewed = true
	}
}

// DriftSignal — счётчик пришлось прижать к нулю: журнал и проекция разошлись.
// Наружу синхронно не выходит, уходит в лог и аудитору.
type DriftSignal struct {
	ContentID   string
	Kind        Kind
	StoredValue int64 // значение до применения дельты
	Delta       int
	DetectedAt  time.Time
}

func (d *DriftSignal) Error() string {
	return fmt.Sprintf("%s: content=%s kind=%s stored=%d delta=%d",
		common.ErrDrift, d.ContentID, d.Kind, d.StoredValue, d.Delta)
}

func (d *DriftSignal) Unwrap() error { return common.ErrDrift }
