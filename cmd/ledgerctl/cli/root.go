// Package cli implements ledgerctl, the operator command line for the
// voucher ledger.
package cli

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/voucher-ledger/internal/app"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
)

// NewRootCommand assembles the ledgerctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the voucher ledger",
		Long:          "Schema migrations, chart-of-accounts seeding and background job control for the voucher ledger.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMigrateCommand(), newSeedCommand(), newJobsCommand())
	return root
}

type runtime struct {
	cfg    *app.Config
	logger *slog.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: app.NewLogger(cfg)}, nil
}

func (r *runtime) connect(ctx context.Context) (*pgxpool.Pool, error) {
	return db.New(ctx, r.cfg.PGDSN, r.cfg.PGStatementTimeout)
}
