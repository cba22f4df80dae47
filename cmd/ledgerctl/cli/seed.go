package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

func newSeedCommand() *cobra.Command {
	var actorID int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default ledgers the posting engine needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			pool, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			directory := accounting.NewDirectory(accounting.NewRepository(pool), nil, shared.NewAuditLogger(pool), rt.logger)
			return runSeed(cmd, directory, actorID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&actorID, "actor", 0, "actor id recorded in the audit log")
	return cmd
}

func runSeed(cmd *cobra.Command, creator accounting.Creator, actorID int64, out io.Writer) error {
	created, err := accounting.SeedChart(cmd.Context(), creator, accounting.DefaultChart, actorID)
	for _, code := range created {
		fmt.Fprintf(out, "created %s\n", code)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d default accounts created\n", len(created), len(accounting.DefaultChart))
	return nil
}
