package cli

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/engagement-engine/internal/app"
)

// NewMigrateCommand создаёт команду применения схемы без запуска сервера.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить схему базы данных и выйти",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			storage, err := app.OpenStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			storage.Close()
			log.WithField("driver", cfg.DBDriver).Info("Схема базы данных актуальна")
			return nil
		},
	}
}
