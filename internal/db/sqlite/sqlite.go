// Package sqlite открывает встроенную базу SQLite для локального запуска
// и тестов. Схема та же, что в PostgreSQL, включая уникальные индексы.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// schema — таблицы движка. Уникальность (user_id, content_id, kind) и
// interaction_record_id держит сама база.
const schema = `
CREATE TABLE IF NOT EXISTS content_counters (
	content_id TEXT PRIMARY KEY,
	likes      INTEGER NOT NULL DEFAULT 0 CHECK (likes >= 0),
	saves      INTEGER NOT NULL DEFAULT 0 CHECK (saves >= 0),
	shares     INTEGER NOT NULL DEFAULT 0 CHECK (shares >= 0),
	comments   INTEGER NOT NULL DEFAULT 0 CHECK (comments >= 0),
	views      INTEGER NOT NULL DEFAULT 0 CHECK (views >= 0),
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS interactions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	content_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, content_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_interactions_content ON interactions(content_id, kind);

CREATE TABLE IF NOT EXISTS reward_ledger (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	interaction_record_id INTEGER NOT NULL UNIQUE,
	user_id               INTEGER NOT NULL,
	points                INTEGER NOT NULL,
	reason                TEXT NOT NULL,
	reference_id          TEXT NOT NULL,
	created_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reward_ledger_user ON reward_ledger(user_id, created_at);

CREATE TABLE IF NOT EXISTS reward_balances (
	user_id    INTEGER PRIMARY KEY,
	points     INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open открывает (или создаёт) файл базы и применяет схему.
// Соединение одно: SQLite всё равно сериализует запись,
// а _txlock=immediate берёт блокировку записи сразу на BEGIN.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ошибка создания каталога базы: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("SQLite недоступна: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка применения схемы SQLite: %w", err)
	}

	log.WithFields(log.Fields{
		"path": path,
	}).Info("SQLite открыта")
	return db, nil
}

// IsUniqueViolation сообщает, что ошибка — нарушение уникального индекса.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Time сканирует отметку времени из SQLite. Для колонок из RETURNING драйвер
// не знает объявленный тип и отдаёт строку, поэтому разбираем сами.
type Time struct {
	time.Time
}

// Scan реализует sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("неподдерживаемый тип времени %T", src)
	}
}

func (t *Time) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("не удалось разобрать время %q", s)
}
