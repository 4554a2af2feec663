package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
)

// NewOperatorKeyCommand создаёт команду генерации Argon2id-хеша операторского ключа.
// Конфигурация не нужна: команда только печатает хеш.
func NewOperatorKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "operator-key <ключ>",
		Short: "Посчитать хеш операторского ключа для OPERATOR_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := middleware.HashArgon2id(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Хеш ключа (вставьте в .env как OPERATOR_KEY_HASH):")
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
