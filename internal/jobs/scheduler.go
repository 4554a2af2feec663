// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает плановую сверку счётчиков с журналом
// и добор наград, потерянных очередью.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/features/audit"
)

// Sweeper — полный проход сверки (audit.Auditor).
type Sweeper interface {
	Reconcile(ctx context.Context, contentID string) (*audit.Report, error)
}

// RewardReconciler — добор наград за записи без начисления (rewards.Service).
type RewardReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	jobs    []job
	timeout time.Duration
}

// NewScheduler создаёт пустой планировщик. timezone — IANA-зона,
// по которой считаются cron-выражения.
func NewScheduler(timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC", timezone)
		loc = time.UTC
	}

	// Следующий проход задачи не стартует, пока не закончился предыдущий
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))),
	)

	return &Scheduler{
		cron:    c,
		timeout: 10 * time.Minute,
	}
}

// AddCounterSweep регистрирует сверку счётчиков. spec — стандартное
// cron-выражение (5 полей).
func (s *Scheduler) AddCounterSweep(sweeper Sweeper, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("некорректный AUDIT_CRON %q: %w", spec, err)
	}
	s.jobs = append(s.jobs, job{
		name: "counters",
		spec: spec,
		run:  func(ctx context.Context) { s.sweep(ctx, sweeper) },
	})
	return nil
}

// AddRewardReconcile регистрирует добор потерянных наград.
func (s *Scheduler) AddRewardReconcile(r RewardReconciler, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("некорректный REWARD_RECONCILE_CRON %q: %w", spec, err)
	}
	s.jobs = append(s.jobs, job{
		name: "rewards",
		spec: spec,
		run:  func(ctx context.Context) { s.reconcileRewards(ctx, r) },
	})
	return nil
}

// Start запускает все зарегистрированные задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs {
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("ошибка регистрации задачи %s: %w", j.name, err)
		}
		log.WithFields(log.Fields{"job": j.name, "cron": j.spec}).Debug("Задача зарегистрирована")
	}

	s.cron.Start()
	log.WithField("jobs", len(s.jobs)).Info("Планировщик задач запущен")
	return nil
}

// sweep — один полный проход сверки.
func (s *Scheduler) sweep(ctx context.Context, sweeper Sweeper) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log.Info("[CRON] Сверка счётчиков")
	report, err := sweeper.Reconcile(ctx, "")
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сверки")
		return
	}
	if len(report.Drifts) > 0 {
		log.WithField("drifts", len(report.Drifts)).Warn("[CRON] Найдены и исправлены расхождения")
	}
}

func (s *Scheduler) reconcileRewards(ctx context.Context, r RewardReconciler) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := r.Reconcile(ctx)
	if err != nil {
		log.WithError(err).WithField("processed", n).Error("[CRON] Ошибка добора наград")
		return
	}
	if n > 0 {
		log.WithField("records", n).Warn("[CRON] Дозачислены награды, потерянные очередью")
	}
}

// Stop останавливает планировщик и ждёт текущие проходы.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
