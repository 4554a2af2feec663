// Package app инициализирует все компоненты движка.
// app.go — точка сборки: открывает хранилище, подключает каталог, очередь наград,
// ленту активности и аудитора, собирает HTTP API и планировщик в один объект App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	libnats "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/config"
	"serotonyl.ru/engagement-engine/internal/db/postgres"
	"serotonyl.ru/engagement-engine/internal/db/sqlite"
	"serotonyl.ru/engagement-engine/internal/features/activity"
	"serotonyl.ru/engagement-engine/internal/features/audit"
	"serotonyl.ru/engagement-engine/internal/features/catalog"
	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/features/rewards"
	"serotonyl.ru/engagement-engine/internal/httpapi"
	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
	"serotonyl.ru/engagement-engine/internal/jobs"
)

// Storage — открытое хранилище одного из драйверов.
type Storage struct {
	Interactions interactions.Store
	Audit        interactions.AuditStore
	Rewards      rewards.Store

	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage подключается к базе по DB_DRIVER и применяет схему.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия SQLite: %w", err)
		}
		repo := interactions.NewSQLiteRepository(db)
		return &Storage{
			Interactions: repo,
			Audit:        repo,
			Rewards:      rewards.NewSQLiteRepository(db),
			Ping:         db.PingContext,
			Close:        func() { _ = db.Close() },
		}, nil

	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		return newPostgresStorage(pool), nil
	}
}

func newPostgresStorage(pool *pgxpool.Pool) *Storage {
	repo := interactions.NewRepository(pool)
	return &Storage{
		Interactions: repo,
		Audit:        repo,
		Rewards:      rewards.NewRepository(pool),
		Ping:         pool.Ping,
		Close:        pool.Close,
	}
}

// rewardQueue — in-process Dispatcher или NATSQueue.
type rewardQueue interface {
	interactions.RewardEnqueuer
	Start(ctx context.Context) error
	Close(ctx context.Context) error
}

// memoryQueue подгоняет Dispatcher под rewardQueue: воркеры стартуют в конструкторе.
type memoryQueue struct{ *rewards.Dispatcher }

func (memoryQueue) Start(context.Context) error { return nil }

// natsQueue владеет соединением и закрывает его вслед за консьюмером.
type natsQueue struct {
	*rewards.NATSQueue
	conn *libnats.Conn
}

func (q natsQueue) Close(context.Context) error {
	q.NATSQueue.Close()
	return q.conn.Drain()
}

// App содержит все компоненты приложения.
type App struct {
	cfg *config.Config

	Storage      *Storage
	Interactions *interactions.Service
	Rewards      *rewards.Service
	Auditor      *audit.Auditor
	Scheduler    *jobs.Scheduler // nil, если нет ни одной плановой задачи
	Router       http.Handler
	Server       *httpapi.Server

	queue    rewardQueue
	activity *activity.AsyncSink
	closers  []func() error
	limiters []*middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	// === 1. База данных ===
	storage, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Storage = storage

	// === 2. Каталог контента ===
	guard := a.buildCatalog()

	// === 3. Награды ===
	a.Rewards = rewards.NewService(storage.Rewards)
	if a.queue, err = a.buildRewardQueue(ctx); err != nil {
		return nil, err
	}

	// === 4. Лента активности ===
	sink, err := a.buildActivitySink()
	if err != nil {
		return nil, err
	}
	a.activity = activity.NewAsyncSink(sink, cfg.ActivityQueueSize)

	// === 5. Аудитор ===
	auditOpts := []audit.Option{audit.WithParallelism(cfg.AuditParallelism)}
	if cfg.AlertTelegramToken != "" {
		notifier, err := audit.NewTelegramNotifier(cfg.AlertTelegramToken, cfg.AlertTelegramChatID)
		if err != nil {
			return nil, err
		}
		auditOpts = append(auditOpts, audit.WithNotifier(notifier))
	}
	a.Auditor = audit.NewAuditor(storage.Audit, auditOpts...)

	// === 6. Координатор взаимодействий ===
	a.Interactions = interactions.NewService(storage.Interactions, guard,
		interactions.WithRewards(a.queue),
		interactions.WithActivity(a.activity),
		interactions.WithDriftHook(a.Auditor.HandleDrift),
		interactions.WithTimeout(cfg.HTTPToggleTimeout),
	)

	// === 7. HTTP API ===
	userLimiter := middleware.NewRateLimiter(cfg.HTTPRateLimit, cfg.HTTPRateWindow)
	operatorFailures := middleware.NewRateLimiter(cfg.OperatorMaxFailures, time.Hour)
	a.limiters = append(a.limiters, userLimiter, operatorFailures)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		JWTSecret:        []byte(cfg.JWTSecret),
		OperatorKeyHash:  cfg.OperatorKeyHash,
		UserLimiter:      userLimiter,
		OperatorFailures: operatorFailures,
		User: []httpapi.Registrar{
			interactions.NewHandler(a.Interactions),
			rewards.NewHandler(a.Rewards),
		},
		Operator: []httpapi.Registrar{
			audit.NewHandler(a.Auditor),
		},
		Health: storage.Ping,
	})
	a.Router = router
	a.Server = httpapi.NewServer(cfg.HTTPAddr, router)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(cfg.AuditTimezone)
	if cfg.AuditEnabled {
		if err := scheduler.AddCounterSweep(a.Auditor, cfg.AuditCron); err != nil {
			return nil, err
		}
	}
	if cfg.RewardReconcileCron != "" {
		if err := scheduler.AddRewardReconcile(a.Rewards, cfg.RewardReconcileCron); err != nil {
			return nil, err
		}
	}
	if cfg.AuditEnabled || cfg.RewardReconcileCron != "" {
		a.Scheduler = scheduler
	}

	ok = true
	return a, nil
}

// buildCatalog: HTTP-клиент → кеш статусов (Redis или память) → проверка публикации.
func (a *App) buildCatalog() *catalog.Guard {
	client := catalog.NewHTTPClient(a.cfg.CatalogURL, a.cfg.CatalogTimeout)
	a.closers = append(a.closers, client.Close)

	var cache catalog.StatusCache
	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
		})
		a.closers = append(a.closers, rdb.Close)
		cache = catalog.NewRedisCache(rdb)
		log.WithField("addr", a.cfg.RedisAddr).Info("Кеш каталога: Redis")
	} else {
		mem := catalog.NewMemoryCache()
		a.closers = append(a.closers, func() error { mem.Close(); return nil })
		cache = mem
		log.Info("Кеш каталога: в памяти процесса")
	}

	return catalog.NewGuard(catalog.NewCachedCatalog(client, cache, a.cfg.CatalogCacheTTL))
}

func (a *App) buildRewardQueue(ctx context.Context) (rewardQueue, error) {
	if a.cfg.RewardQueue == config.RewardQueueNATS {
		nc, err := libnats.Connect(a.cfg.NATSURL, libnats.Name("engagement-engine"))
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к NATS: %w", err)
		}
		q, err := rewards.NewNATSQueue(ctx, nc, a.Rewards, rewards.NATSQueueOptions{
			MaxRetry:    a.cfg.RewardMaxRetry,
			BaseBackoff: a.cfg.RewardBaseBackoff,
			MaxBackoff:  a.cfg.RewardMaxBackoff,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
		log.WithField("url", a.cfg.NATSURL).Info("Очередь наград: NATS JetStream")
		return natsQueue{NATSQueue: q, conn: nc}, nil
	}

	log.WithField("workers", a.cfg.RewardWorkers).Info("Очередь наград: в памяти процесса")
	return memoryQueue{rewards.NewDispatcher(a.Rewards, rewards.DispatcherOptions{
		Workers:     a.cfg.RewardWorkers,
		QueueSize:   a.cfg.RewardQueueSize,
		MaxRetry:    a.cfg.RewardMaxRetry,
		BaseBackoff: a.cfg.RewardBaseBackoff,
		MaxBackoff:  a.cfg.RewardMaxBackoff,
	})}, nil
}

func (a *App) buildActivitySink() (activity.Sink, error) {
	if len(a.cfg.KafkaBrokers) == 0 {
		log.Info("Лента активности: только лог")
		return activity.LogSink{}, nil
	}
	producer, err := activity.NewKafkaProducer(a.cfg.KafkaBrokers)
	if err != nil {
		return nil, err
	}
	sink := activity.NewKafkaSink(producer, a.cfg.KafkaActivityTopic)
	a.closers = append(a.closers, sink.Close)
	log.WithFields(log.Fields{
		"brokers": a.cfg.KafkaBrokers,
		"topic":   a.cfg.KafkaActivityTopic,
	}).Info("Лента активности: Kafka")
	return sink, nil
}

// Run запускает фоновые компоненты и HTTP API и блокируется до отмены ctx
// или падения сервера.
func (a *App) Run(ctx context.Context) error {
	if err := a.queue.Start(ctx); err != nil {
		return err
	}
	go a.Auditor.Run(ctx)
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close останавливает компоненты в обратном порядке: сначала перестаём
// принимать запросы, потом дожидаемся очередей, последней закрываем базу.
func (a *App) Close(ctx context.Context) {
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("HTTP API остановлен некорректно")
		}
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	for _, l := range a.limiters {
		l.Close()
	}
	if a.queue != nil {
		if err := a.queue.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Очередь наград закрыта с ошибкой")
		}
	}
	if a.activity != nil {
		a.activity.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("Ошибка закрытия ресурса")
		}
	}
	if a.Storage != nil {
		a.Storage.Close()
	}
}
