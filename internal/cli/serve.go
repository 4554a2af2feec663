package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/engagement-engine/internal/app"
)

// shutdownTimeout — сколько ждём активные запросы и очереди при остановке.
const shutdownTimeout = 15 * time.Second

// NewServeCommand создаёт команду запуска HTTP API и фоновых задач.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API, очередь наград и плановую сверку",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log.Info("=== Движок запускается ===")

	// Контекст отменяется по SIGINT/SIGTERM (Ctrl+C, docker stop)
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	log.Info("=== Движок готов к работе ===")
	runErr := application.Run(ctx)
	if runErr == nil {
		log.Info("Получен сигнал остановки, останавливаемся...")
	}

	// Контекст запросов уже отменён, на остановку даём свой
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	application.Close(shutdownCtx)

	log.Info("=== Движок остановлен ===")
	return runErr
}
