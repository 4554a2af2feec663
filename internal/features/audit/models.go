// Package audit сверяет денормализованные счётчики с журналом взаимодействий
// и чинит расхождения. Работает параллельно с живым трафиком:
// скан только читает, каждая починка — отдельная короткая транзакция
// под той же блокировкой строки счётчиков, что и тоггл.
package audit

import (
	"time"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

// Drift — найденное и исправленное расхождение.
type Drift struct {
	ContentID   string            `json:"contentId"`
	Kind        interactions.Kind `json:"kind"`
	StoredValue int64             `json:"storedValue"`
	ActualValue int64             `json:"actualValue"`
}

// Report — итог прогона сверки.
type Report struct {
	ContentID  string    `json:"contentId,omitempty"` // пусто — полный проход
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Scanned    int       `json:"scanned"` // сколько контентов просмотрено
	Drifts     []Drift   `json:"drifts"`
}
