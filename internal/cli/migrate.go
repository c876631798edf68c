package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/garyjia/excise-workflow/pkg/database"
)

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// opening the stack migrates
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			version, err := database.NewMigrator(s.db.Conn, s.logger).CurrentVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s schema at version %d\n",
				color.New(color.FgGreen).Sprint("OK"), s.db.Conn.Driver, version)
			return nil
		},
	}
}
