// Package audit — service.go: прогон сверки и обработка сигналов от проектора.
package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

// Notifier сообщает оператору о найденных расхождениях.
type Notifier interface {
	NotifyDrift(ctx context.Context, report *Report) error
}

// Auditor — сверка счётчиков.
type Auditor struct {
	store       interactions.AuditStore
	parallelism int
	notifier    Notifier

	// Точечные проверки по сигналам проектора
	pending chan string
}

// Option настраивает Auditor.
type Option func(*Auditor)

// WithParallelism — сколько починок выполнять одновременно.
func WithParallelism(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

// WithNotifier подключает оповещение оператора.
func WithNotifier(n Notifier) Option {
	return func(a *Auditor) { a.notifier = n }
}

// NewAuditor создаёт аудитора.
func NewAuditor(store interactions.AuditStore, opts ...Option) *Auditor {
	a := &Auditor{
		store:       store,
		parallelism: 4,
		pending:     make(chan string, 256),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// repairTask — один счётчик одного контента.
type repairTask struct {
	contentID string
	kind      interactions.Kind
}

// Reconcile сверяет счётчики contentID (пустой — все) с журналом и чинит расхождения.
//
// Скан не берёт блокировок. Для каждого расхождения RepairCounter заново
// считает журнал под блокировкой строки: если тоггл успел всё выправить,
// расхождение в отчёт не попадает.
func (a *Auditor) Reconcile(ctx context.Context, contentID string) (*Report, error) {
	report := &Report{ContentID: contentID, StartedAt: time.Now().UTC(), Drifts: []Drift{}}

	snaps, err := a.store.ScanCounters(ctx, contentID)
	if err != nil {
		metrics.AuditRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("ошибка сверки: %w", err)
	}
	report.Scanned = len(snaps)

	mismatched := lo.Filter(snaps, func(s interactions.CounterSnapshot, _ int) bool {
		return s.Stored != s.Actual
	})
	tasks := lo.FlatMap(mismatched, func(s interactions.CounterSnapshot, _ int) []repairTask {
		kinds := lo.Filter(interactions.Kinds(), func(k interactions.Kind, _ int) bool {
			return s.Stored.Get(k) != s.Actual.Get(k)
		})
		return lo.Map(kinds, func(k interactions.Kind, _ int) repairTask {
			return repairTask{contentID: s.ContentID, kind: k}
		})
	})

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for _, task := range tasks {
		g.Go(func() error {
			stored, actual, err := a.store.RepairCounter(gctx, task.contentID, task.kind)
			if err != nil {
				return fmt.Errorf("ошибка починки %s/%s: %w", task.contentID, task.kind, err)
			}
			if stored == actual {
				return nil
			}

			metrics.DriftTotal.WithLabelValues(task.kind.String(), "auditor").Inc()
			log.WithFields(log.Fields{
				"content_id": task.contentID,
				"kind":       task.kind.String(),
				"stored":     stored,
				"actual":     actual,
			}).Warn("Счётчик исправлен по журналу")

			mu.Lock()
			report.Drifts = append(report.Drifts, Drift{
				ContentID:   task.contentID,
				Kind:        task.kind,
				StoredValue: stored,
				ActualValue: actual,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.AuditRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	sort.Slice(report.Drifts, func(i, j int) bool {
		if report.Drifts[i].ContentID != report.Drifts[j].ContentID {
			return report.Drifts[i].ContentID < report.Drifts[j].ContentID
		}
		return report.Drifts[i].Kind < report.Drifts[j].Kind
	})
	report.FinishedAt = time.Now().UTC()
	metrics.AuditRunsTotal.WithLabelValues("ok").Inc()

	log.WithFields(log.Fields{
		"content_id": contentID,
		"scanned":    report.Scanned,
		"drifts":     len(report.Drifts),
		"duration":   report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Сверка счётчиков завершена")

	if len(report.Drifts) > 0 && a.notifier != nil {
		if err := a.notifier.NotifyDrift(ctx, report); err != nil {
			log.WithError(err).Warn("Не удалось оповестить оператора о расхождениях")
		}
	}
	return report, nil
}

// HandleDrift принимает сигнал проектора и ставит точечную сверку контента.
// Не блокируется: при переполнении сигнал теряется, его подберёт плановый проход.
func (a *Auditor) HandleDrift(d interactions.DriftSignal) {
	select {
	case a.pending <- d.ContentID:
	default:
		log.WithField("content_id", d.ContentID).Warn("Очередь точечных сверок заполнена")
	}
}

// Run разбирает точечные сверки до отмены ctx.
func (a *Auditor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case contentID := <-a.pending:
			batch := a.drainPending(contentID)
			for _, id := range batch {
				if _, err := a.Reconcile(ctx, id); err != nil {
					log.WithError(err).WithField("content_id", id).Error("Точечная сверка не удалась")
				}
			}
		}
	}
}

// drainPending забирает всё, что накопилось, без повторов.
func (a *Auditor) drainPending(first string) []string {
	batch := []string{first}
	for {
		select {
		case id := <-a.pending:
			batch = append(batch, id)
		default:
			return lo.Uniq(batch)
		}
	}
}
