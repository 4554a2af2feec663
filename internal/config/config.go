// Package config загружает конфигурацию движка взаимодействий из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Реализации очереди наград.
const (
	RewardQueueMemory = "memory"
	RewardQueueNATS   = "nats"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// postgres — основной режим, sqlite — локальная разработка и одиночный инстанс
	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"engagement"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"engagement"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/engagement.db"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- HTTP ---
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	// Тоггл, не успевший закоммититься за это время, откатывается целиком
	HTTPToggleTimeout time.Duration `envconfig:"HTTP_TOGGLE_TIMEOUT" default:"3s"`
	// Лимит запросов на пользователя в скользящем окне
	HTTPRateLimit  int           `envconfig:"HTTP_RATE_LIMIT" default:"120"`
	HTTPRateWindow time.Duration `envconfig:"HTTP_RATE_WINDOW" default:"1m"`

	// --- Identity / Operator ---
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	// Argon2id-хеш операторского ключа (engine operator-key <ключ>)
	OperatorKeyHash string `envconfig:"OPERATOR_KEY_HASH"`
	// 3 неверных ключа с одного IP — блокировка на час
	OperatorMaxFailures int `envconfig:"OPERATOR_MAX_FAILURES" default:"3"`

	// --- Content Catalog ---
	CatalogURL      string        `envconfig:"CATALOG_URL" default:"http://catalog:8080"`
	CatalogTimeout  time.Duration `envconfig:"CATALOG_TIMEOUT" default:"800ms"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"30s"`

	// --- Rewards ---
	RewardQueue       string        `envconfig:"REWARD_QUEUE" default:"memory"`
	NATSURL           string        `envconfig:"NATS_URL" default:"nats://nats:4222"`
	RewardWorkers     int           `envconfig:"REWARD_WORKERS" default:"4"`
	RewardQueueSize   int           `envconfig:"REWARD_QUEUE_SIZE" default:"1024"`
	RewardMaxRetry    int           `envconfig:"REWARD_MAX_RETRY" default:"5"`
	RewardBaseBackoff time.Duration `envconfig:"REWARD_BASE_BACKOFF" default:"100ms"`
	RewardMaxBackoff  time.Duration `envconfig:"REWARD_MAX_BACKOFF" default:"5s"`
	// Добор наград за записи без начисления; пусто — выключен
	RewardReconcileCron string `envconfig:"REWARD_RECONCILE_CRON" default:"*/10 * * * *"`

	// --- Activity log ---
	KafkaBrokersRaw    string   `envconfig:"KAFKA_BROKERS"`
	KafkaBrokers       []string `envconfig:"-"` // заполним вручную
	KafkaActivityTopic string   `envconfig:"KAFKA_ACTIVITY_TOPIC" default:"engagement.activity"`
	ActivityQueueSize  int      `envconfig:"ACTIVITY_QUEUE_SIZE" default:"1024"`

	// --- Audit ---
	AuditEnabled  bool   `envconfig:"AUDIT_ENABLED" default:"true"`
	AuditCron     string `envconfig:"AUDIT_CRON" default:"*/15 * * * *"`
	AuditTimezone string `envconfig:"AUDIT_TIMEZONE" default:"UTC"`
	// Сколько content_id чинить параллельно при полном проходе
	AuditParallelism int `envconfig:"AUDIT_PARALLELISM" default:"4"`

	// --- Alerts ---
	AlertTelegramToken  string `envconfig:"ALERT_TELEGRAM_TOKEN"`
	AlertTelegramChatID int64  `envconfig:"ALERT_TELEGRAM_CHAT_ID"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность значений, которые envconfig проверить не может.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH не задан")
		}
	default:
		return fmt.Errorf("неизвестный DB_DRIVER %q", c.DBDriver)
	}
	if c.CatalogCacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL должен быть > 0")
	}
	if c.RewardQueue != RewardQueueMemory && c.RewardQueue != RewardQueueNATS {
		return fmt.Errorf("неизвестный REWARD_QUEUE %q", c.RewardQueue)
	}
	if c.RewardWorkers <= 0 || c.RewardQueueSize <= 0 {
		return fmt.Errorf("REWARD_WORKERS и REWARD_QUEUE_SIZE должны быть > 0")
	}
	if c.RewardMaxRetry < 0 {
		return fmt.Errorf("REWARD_MAX_RETRY должен быть >= 0")
	}
	if c.HTTPToggleTimeout <= 0 {
		return fmt.Errorf("HTTP_TOGGLE_TIMEOUT должен быть > 0")
	}
	if c.HTTPRateLimit <= 0 || c.HTTPRateWindow <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT и HTTP_RATE_WINDOW должны быть > 0")
	}
	if c.AuditParallelism <= 0 {
		return fmt.Errorf("AUDIT_PARALLELISM должен быть > 0")
	}
	if c.AlertTelegramToken != "" && c.AlertTelegramChatID == 0 {
		return fmt.Errorf("ALERT_TELEGRAM_CHAT_ID обязателен вместе с ALERT_TELEGRAM_TOKEN")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.KafkaBrokers = parseCSV(cfg.KafkaBrokersRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
