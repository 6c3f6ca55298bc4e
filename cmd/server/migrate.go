package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbergh0930/create3x/internal/config"
	"github.com/mbergh0930/create3x/internal/database"
	"github.com/mbergh0930/create3x/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|version",
		Short:     "Apply, roll back or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pool, err := database.NewPostgresPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			db := database.OpenDB(pool)
			defer func() { _ = db.Close() }()

			switch args[0] {
			case "up":
				return database.MigrateUp(db, logger)
			case "down":
				if err := database.MigrateDown(db); err != nil {
					return err
				}
				logger.Info("database migrations rolled back")
				return nil
			default:
				version, dirty, err := database.MigrationVersion(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			}
		},
	}
}
