// Package interactions — projector.go переводит изменение журнала в ±1 на счётчике.
// Вызывается только координатором внутри той же транзакции, что и запись в журнал.
package interactions

import "time"

// Project применяет дельту к счётчику типа k.
//
// Счётчик не опускается ниже нуля: если дельта увела бы его в минус,
// значение прижимается к 0 и возвращается DriftSignal. Ошибкой это не считается —
// тоггл должен завершиться, а расхождение починит аудитор.
func Project(c Counters, k Kind, delta int) (Counters, *DriftSignal) {
	stored := c.Get(k)
	next := stored + int64(delta)
	if next >= 0 {
		return c.With(k, next), nil
	}
	return c.With(k, 0), &DriftSignal{
		ContentID:   c.ContentID,
		Kind:        k,
		StoredValue: stored,
		Delta:       delta,
		DetectedAt:  time.Now().UTC(),
	}
}
