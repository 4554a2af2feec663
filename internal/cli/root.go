// Package cli описывает команды бинарника engine: serve, audit, migrate и operator-key.
package cli

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/engagement-engine/internal/config"
)

// RootOptions — общие флаги всех команд.
type RootOptions struct {
	LogLevel string // перекрывает APP_LOG_LEVEL
}

// NewRootCommand создаёт корневую команду.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Движок взаимодействий с контентом",
		Long: `Журнал лайков, сохранений, репостов, комментариев и просмотров
с денормализованными счётчиками, начислением очков и сверкой счётчиков.

Настройки читаются из переменных окружения (internal/config).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "уровень логирования (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewOperatorKeyCommand())

	return cmd
}

// loadConfig читает конфигурацию и настраивает логирование.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg, opts.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging: в production — JSON для сборщика логов, иначе читаемый текст.
func setupLogging(cfg *config.Config, override string) error {
	if cfg.AppEnv == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(os.Stdout)

	name := cfg.AppLogLevel
	if override != "" {
		name = override
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("некорректный уровень логирования %q: %w", name, err)
	}
	log.SetLevel(level)
	return nil
}
