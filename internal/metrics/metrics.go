// Package metrics регистрирует метрики Prometheus движка.
// Все метрики создаются через promauto в DefaultRegisterer и отдаются на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToggleTotal — тогглы по типу и итогу (added/removed/noop/error).
	ToggleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_toggle_total",
		Help: "Количество тогглов по типу взаимодействия и итогу",
	}, []string{"kind", "outcome"})

	// ToggleDuration — длительность тоггла вместе с проверкой каталога.
	ToggleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engagement_toggle_duration_seconds",
		Help:    "Длительность тоггла",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"kind"})

	// ConflictTotal — параллельные вставки, разрешённые как noop.
	ConflictTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engagement_toggle_conflict_total",
		Help: "Конфликты уникальности, превращённые в noop",
	})

	// DriftTotal — сработки зажима счётчика в ноль и расхождения, найденные аудитором.
	DriftTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_counter_drift_total",
		Help: "Расхождения счётчиков с журналом",
	}, []string{"kind", "source"})

	// RewardTotal — результаты начисления очков (awarded/duplicate/zero/failed/dropped/reconciled).
	RewardTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_reward_total",
		Help: "Результаты начисления очков",
	}, []string{"result"})

	// RewardQueueDepth — текущая длина очереди наград.
	RewardQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engagement_reward_queue_depth",
		Help: "Задания в очереди наград",
	})

	// ActivityTotal — события ленты активности (published/failed/dropped).
	ActivityTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_activity_events_total",
		Help: "События ленты активности",
	}, []string{"result"})

	// CatalogLookupTotal — запросы к каталогу контента (hit/miss/error).
	CatalogLookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_catalog_lookup_total",
		Help: "Запросы статуса контента",
	}, []string{"result"})

	// AuditRunsTotal — прогоны аудитора (ok/failed).
	AuditRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_audit_runs_total",
		Help: "Прогоны сверки счётчиков",
	}, []string{"result"})

	// HTTPRequestsTotal — запросы HTTP API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_http_requests_total",
		Help: "HTTP-запросы по маршруту и статусу",
	}, []string{"route", "status"})
)
