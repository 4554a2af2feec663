// Package interactions — kind.go описывает закрытый набор типов взаимодействий.
// Каждый тип несёт свою стоимость в очках и колонку счётчика,
// поэтому строковых switch'ей по типу в остальном коде нет.
package interactions

import (
	"fmt"
	"strings"

	"serotonyl.ru/engagement-engine/internal/common"
)

// Kind — тип взаимодействия пользователя с контентом.
// Нулевое значение невалидно: неинициализированный Kind не пройдёт проверку.
type Kind uint8

const (
	KindLike Kind = iota + 1
	KindSave
	KindShare
	KindComment
	KindView
)

// kindSpec — статическое описание типа.
type kindSpec struct {
	name   string // имя на проводе и в БД
	column string // колонка в content_counters
	points int64  // очки за первое добавление
}

// Таблица типов:
//
//	like    → likes,    10 очков
//	save    → saves,    15 очков
//	share   → shares,   20 очков
//	comment → comments, 25 очков
//	view    → views,     1 очко
var kindSpecs = map[Kind]kindSpec{
	KindLike:    {name: "like", column: "likes", points: 10},
	KindSave:    {name: "save", column: "saves", points: 15},
	KindShare:   {name: "share", column: "shares", points: 20},
	KindComment: {name: "comment", column: "comments", points: 25},
	KindView:    {name: "view", column: "views", points: 1},
}

var allKinds = []Kind{KindLike, KindSave, KindShare, KindComment, KindView}

// Kinds возвращает все типы в каноническом порядке.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind разбирает тип из строки. Регистр и пробелы по краям не важны.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range allKinds {
		if kindSpecs[k].name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", common.ErrInvalidKind, s)
}

// Valid проверяет, что значение входит в закрытый набор.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func (k Kind) String() string {
	if spec, ok := kindSpecs[k]; ok {
		return spec.name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Column — колонка счётчика в content_counters.
func (k Kind) Column() string {
	return kindSpecs[k].column
}

// Points — очки за добавление. Для неизвестного типа 0, а не ошибка.
func (k Kind) Points() int64 {
	return kindSpecs[k].points
}

// MarshalText нужен для JSON и логов.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", common.ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText разбирает тип из JSON.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Action — желаемое действие клиента.
type Action uint8

const (
	ActionToggle Action = iota
	ActionAdd
	ActionRemove
)

// ParseAction разбирает действие. Пустая строка означает toggle.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "toggle":
		return ActionToggle, nil
	case "add":
		return ActionAdd, nil
	case "remove":
		return ActionRemove, nil
	default:
		return 0, fmt.Errorf("%w: %q", common.ErrInvalidAction, s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionToggle:
		return "toggle"
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Outcome — фактический результат тоггла.
type Outcome uint8

const (
	OutcomeNoop Outcome = iota
	OutcomeAdded
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeRemoved:
		return "removed"
	default:
		return "noop"
	}
}

// MarshalText — результат уходит клиенту строкой.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
