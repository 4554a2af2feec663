package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"serotonyl.ru/engagement-engine/internal/app"
	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/features/audit"
	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

// AuditOptions — флаги команды audit.
type AuditOptions struct {
	ContentID string
	JSON      bool
}

// NewAuditCommand создаёт команду разовой сверки счётчиков.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Сверить счётчики с журналом и исправить расхождения",
		Long: `Пересчитывает журнал взаимодействий и перезаписывает разошедшиеся счётчики.
Безопасно запускать при живом трафике. Без --content проходит по всем контентам.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd.Context(), rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ContentID, "content", "", "сверить только этот contentId")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "вывести отчёт в JSON")

	return cmd
}

func runAudit(ctx context.Context, rootOpts *RootOptions, opts *AuditOptions, out io.Writer) error {
	if opts.ContentID != "" {
		if err := interactions.ValidateContentID(opts.ContentID); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	report, err := audit.NewAuditor(storage.Audit, audit.WithParallelism(cfg.AuditParallelism)).
		Reconcile(ctx, opts.ContentID)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if len(report.Drifts) == 0 {
		_, err = fmt.Fprintf(out, "Расхождений нет (просмотрено %s)\n", common.FormatNumber(int64(report.Scanned)))
		return err
	}
	_, err = fmt.Fprintln(out, audit.FormatReport(report))
	return err
}
