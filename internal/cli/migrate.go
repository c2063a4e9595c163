package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"products/internal/database"
)

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the products table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.DatabaseDriver == database.DriverMemory {
				return errors.New("the memory driver has no schema to migrate")
			}

			db, err := database.Open(e.cfg.DatabaseDriver, e.cfg.DatabaseDSN, e.log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			e.log.WithField("driver", e.cfg.DatabaseDriver).Info("Database migrated")
			return nil
		},
	}
}
