package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"instalytics/internal/adapters/postgres"
	"instalytics/internal/logger"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(postgres.MigrateUp), string(postgres.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := postgres.MigrateDirection(args[0])
			if direction != postgres.MigrateUp && direction != postgres.MigrateDown {
				return fmt.Errorf("unknown direction %q, want up or down", args[0])
			}

			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if !cfg.Database.Enabled() {
				return errNoDatabase
			}

			changed, err := postgres.Migrate(dir, cfg.Database.MigrateURL(), direction)
			if err != nil {
				return err
			}
			if !changed {
				log.Info("Schema already up to date", logger.String("direction", string(direction)))
				return nil
			}
			log.Info("Migrations applied", logger.String("direction", string(direction)), logger.String("dir", dir))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding the migration files")
	return cmd
}
