package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
)

func newMigrateCommand() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				migrations, err := db.Migrations()
				if err != nil {
					return err
				}
				for _, m := range migrations {
					fmt.Fprintf(out, "%04d %s\n", m.Version, m.Name)
				}
				return nil
			}
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			pool, err := rt.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "schema up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "applied %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list embedded migrations without connecting")
	return cmd
}
